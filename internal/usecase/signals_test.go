package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
)

func newTestSignalService(store *fakeSignalStore, pub *fakePublisher, threshold float64) (*SignalService, *Broadcaster) {
	b := NewBroadcaster(pub, nopMetrics{}, BroadcasterConfig{RetryMax: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}, nil)
	b.Start()
	subs := &fakeSubscriberStore{subs: map[models.RiskTier][]*models.Subscriber{
		models.TierMedium: {
			{UserID: "u1", RiskTier: models.TierMedium, Active: true},
			{UserID: "u2", RiskTier: models.TierMedium, Active: true},
		},
	}}
	svc := NewSignalService(store, subs, b, nopMetrics{}, ThresholdPolicy(threshold), 5*time.Minute, nil)
	return svc, b
}

func validCreateRequest() *models.CreateSignalRequest {
	return &models.CreateSignalRequest{
		Symbol:     "BTCUSDT",
		Timeframe:  "1h",
		Side:       "buy",
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 110,
		RiskTier:   "medium",
		Confidence: 90,
	}
}

func waitForPublished(t *testing.T, pub *fakePublisher, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(pub.published()) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d published events, got %d", want, len(pub.published()))
}

func TestCreateSignalPublishesFanout(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	res, err := svc.Create(context.Background(), validCreateRequest(), "admin-1", models.OriginAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Existing {
		t.Fatalf("fresh insert reported as existing")
	}
	if res.Signal.Status != models.StatusActive {
		t.Fatalf("new signal must be active, got %s", res.Signal.Status)
	}
	if res.Signal.RiskReward != 2 {
		t.Fatalf("expected risk/reward 2, got %v", res.Signal.RiskReward)
	}
	if res.MatchedUsers != 2 {
		t.Fatalf("expected 2 matched users, got %d", res.MatchedUsers)
	}

	waitForPublished(t, pub, 1)
	ev := pub.published()[0]
	if ev.SignalID != res.Signal.ID || ev.RiskTier != models.TierMedium {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestCreateDuplicateReturnsWinnerWithoutPublishing(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	first, err := svc.Create(context.Background(), validCreateRequest(), "admin-1", models.OriginAdmin)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	waitForPublished(t, pub, 1)

	second, err := svc.Create(context.Background(), validCreateRequest(), "admin-2", models.OriginAdmin)
	if err != nil {
		t.Fatalf("duplicate create must not error: %v", err)
	}
	if !second.Existing {
		t.Fatalf("expected existing=true")
	}
	if second.Signal.ID != first.Signal.ID {
		t.Fatalf("duplicate must return the winning record")
	}

	time.Sleep(20 * time.Millisecond)
	if got := len(pub.published()); got != 1 {
		t.Fatalf("duplicate must not publish, got %d events", got)
	}
}

func TestCreateConcurrentDuplicatesElectSingleWinner(t *testing.T) {
	const callers = 16

	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	results := make(chan *CreateResult, callers)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(n int) {
			defer done.Done()
			start.Wait()
			res, err := svc.Create(context.Background(), validCreateRequest(), fmt.Sprintf("admin-%d", n), models.OriginAdmin)
			if err != nil {
				t.Errorf("create %d: %v", n, err)
				return
			}
			results <- res
		}(i)
	}
	start.Done()
	done.Wait()
	close(results)

	collected := make([]*CreateResult, 0, callers)
	for res := range results {
		collected = append(collected, res)
	}

	var winners, losers int
	var winnerID string
	for _, res := range collected {
		if res.Existing {
			losers++
		} else {
			winners++
			winnerID = res.Signal.ID
		}
	}
	if winners != 1 || losers != callers-1 {
		t.Fatalf("expected 1 winner and %d losers, got %d/%d", callers-1, winners, losers)
	}
	for _, res := range collected {
		if res.Existing && res.Signal.ID != winnerID {
			t.Fatalf("loser got %s instead of the winning record %s", res.Signal.ID, winnerID)
		}
	}
	if len(store.byID) != 1 {
		t.Fatalf("store must hold exactly the winning row, got %d", len(store.byID))
	}
	if _, ok := store.byID[winnerID]; !ok {
		t.Fatalf("stored row is not the winner")
	}

	waitForPublished(t, pub, 1)
	time.Sleep(20 * time.Millisecond)
	if got := len(pub.published()); got != 1 {
		t.Fatalf("only the winner may publish, got %d events", got)
	}
}

func TestCreateRejectsNonPositiveRisk(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	req := validCreateRequest()
	req.StopLoss = 100 // equal to entry

	_, err := svc.Create(context.Background(), req, "admin-1", models.OriginAdmin)
	if _, ok := domrepo.AsValidation(err); !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.byID) != 0 {
		t.Fatalf("rejected submission must leave no trace")
	}
}

func TestRecommendThresholdIsStrict(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	atThreshold := validCreateRequest()
	atThreshold.Confidence = 80
	res, err := svc.Create(context.Background(), atThreshold, "admin-1", models.OriginAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Signal.Recommended {
		t.Fatalf("confidence == threshold must not be recommended")
	}

	above := validCreateRequest()
	above.Confidence = 81
	above.Symbol = "ETHUSDT"
	res, err = svc.Create(context.Background(), above, "admin-1", models.OriginAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Signal.Recommended {
		t.Fatalf("confidence above threshold must be recommended")
	}
}

func TestArchiveThenTakenRejected(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	res, err := svc.Create(context.Background(), validCreateRequest(), "admin-1", models.OriginAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Archive(context.Background(), res.Signal.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err = svc.MarkTaken(context.Background(), res.Signal.ID, "u1", &models.MarkTakenRequest{Outcome: "win", PnL: 12.5})
	if err != domrepo.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMarkTakenRecordsOutcome(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	res, err := svc.Create(context.Background(), validCreateRequest(), "admin-1", models.OriginAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sig, err := svc.MarkTaken(context.Background(), res.Signal.ID, "u1", &models.MarkTakenRequest{Outcome: "win", PnL: 12.5})
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	if sig.Status != models.StatusTaken || sig.TakenBy != "u1" {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if sig.Outcome == nil || *sig.Outcome != models.OutcomeWin {
		t.Fatalf("outcome not recorded")
	}
}

func TestMarkTakenUnknownID(t *testing.T) {
	store := newFakeSignalStore()
	pub := &fakePublisher{}
	svc, b := newTestSignalService(store, pub, 80)
	defer b.Stop(context.Background())

	_, err := svc.MarkTaken(context.Background(), "missing", "u1", &models.MarkTakenRequest{Outcome: "loss"})
	if err != domrepo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBroadcasterRetriesTransientFailure(t *testing.T) {
	pub := &fakePublisher{fails: 1}
	b := NewBroadcaster(pub, nopMetrics{}, BroadcasterConfig{RetryMax: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}, nil)
	b.Start()
	defer b.Stop(context.Background())

	b.Enqueue(&models.FanoutEvent{SignalID: "s1", RiskTier: models.TierLow})
	waitForPublished(t, pub, 1)
}
