package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"TradeCast/internal/domain/models"
)

func seedActiveSignal(t *testing.T, store *fakeSignalStore, tier models.RiskTier) *models.Signal {
	t.Helper()
	sig := &models.Signal{
		ID:       uuid.NewString(),
		Symbol:   "BTCUSDT",
		Side:     models.SideBuy,
		RiskTier: tier,
		Status:   models.StatusActive,
		DedupKey: uuid.NewString(),
	}
	stored, err := store.Create(context.Background(), sig)
	if err != nil {
		t.Fatalf("seed signal: %v", err)
	}
	return stored
}

func fanoutEvent(t *testing.T, sig *models.Signal) []byte {
	t.Helper()
	b, err := json.Marshal(models.FanoutEvent{SignalID: sig.ID, RiskTier: sig.RiskTier})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func TestFanoutCreatesRecordsAndPushesToOnlineUsers(t *testing.T) {
	store := newFakeSignalStore()
	deliveries := newFakeDeliveryStore()
	subs := &fakeSubscriberStore{subs: map[models.RiskTier][]*models.Subscriber{
		models.TierHigh: {
			{UserID: "u1", RiskTier: models.TierHigh, Active: true},
			{UserID: "u2", RiskTier: models.TierHigh, Active: true},
		},
	}}
	pusher := newFakePusher(map[string]int{"user:u1": 1}) // only u1 online
	audit := &fakeAudit{}

	h := NewFanoutHandler("signals.fanout", store, deliveries, subs, pusher, audit, nopMetrics{}, nil)
	sig := seedActiveSignal(t, store, models.TierHigh)

	if err := h.Handle(context.Background(), fanoutEvent(t, sig)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// both users get a delivery record regardless of connectivity
	if got := len(deliveries.records[sig.ID]); got != 2 {
		t.Fatalf("expected 2 delivery records, got %d", got)
	}
	if !deliveries.isDelivered("u1", sig.ID) {
		t.Fatalf("online user must be marked delivered")
	}
	if deliveries.isDelivered("u2", sig.ID) {
		t.Fatalf("offline user must stay undelivered")
	}
	if len(pusher.pushed["user:u1"]) != 1 {
		t.Fatalf("expected one push to u1")
	}

	var frame models.PushMessage
	if err := json.Unmarshal(pusher.pushed["user:u1"][0], &frame); err != nil {
		t.Fatalf("decode push frame: %v", err)
	}
	if frame.Event != models.PushEventSignalNew {
		t.Errorf("frame event = %q, want %q", frame.Event, models.PushEventSignalNew)
	}
	if frame.Signal == nil || frame.Signal.ID != sig.ID {
		t.Errorf("frame must carry the full signal payload")
	}
}

func TestFanoutDeliveryTrackingSurvivesPushOutage(t *testing.T) {
	store := newFakeSignalStore()
	deliveries := newFakeDeliveryStore()
	subs := &fakeSubscriberStore{subs: map[models.RiskTier][]*models.Subscriber{
		models.TierLow: {{UserID: "u1", RiskTier: models.TierLow, Active: true}},
	}}
	pusher := newFakePusher(nil) // nobody online
	audit := &fakeAudit{}

	h := NewFanoutHandler("signals.fanout", store, deliveries, subs, pusher, audit, nopMetrics{}, nil)
	sig := seedActiveSignal(t, store, models.TierLow)

	if err := h.Handle(context.Background(), fanoutEvent(t, sig)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := len(deliveries.records[sig.ID]); got != 1 {
		t.Fatalf("delivery record must exist even with zero pushes, got %d", got)
	}
	if deliveries.isDelivered("u1", sig.ID) {
		t.Fatalf("nothing was pushed, nothing may be marked delivered")
	}
}

func TestFanoutSkipsNonActiveSignal(t *testing.T) {
	store := newFakeSignalStore()
	deliveries := newFakeDeliveryStore()
	subs := &fakeSubscriberStore{subs: map[models.RiskTier][]*models.Subscriber{
		models.TierHigh: {{UserID: "u1", RiskTier: models.TierHigh, Active: true}},
	}}
	pusher := newFakePusher(map[string]int{"user:u1": 1})
	audit := &fakeAudit{}

	h := NewFanoutHandler("signals.fanout", store, deliveries, subs, pusher, audit, nopMetrics{}, nil)
	sig := seedActiveSignal(t, store, models.TierHigh)
	if _, err := store.Archive(context.Background(), sig.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if err := h.Handle(context.Background(), fanoutEvent(t, sig)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(deliveries.records[sig.ID]) != 0 {
		t.Fatalf("archived signal must not fan out")
	}
	if len(pusher.pushed) != 0 {
		t.Fatalf("archived signal must not be pushed")
	}
}

func TestFanoutUnknownSignalReturnsError(t *testing.T) {
	store := newFakeSignalStore()
	h := NewFanoutHandler("signals.fanout", store, newFakeDeliveryStore(),
		&fakeSubscriberStore{}, newFakePusher(nil), &fakeAudit{}, nopMetrics{}, nil)

	ev, _ := json.Marshal(models.FanoutEvent{SignalID: uuid.NewString(), RiskTier: models.TierLow})
	if err := h.Handle(context.Background(), ev); err == nil {
		t.Fatalf("unknown signal must error so the consumer can retry")
	}
}

func TestFanoutAuditRecordsPush(t *testing.T) {
	store := newFakeSignalStore()
	deliveries := newFakeDeliveryStore()
	subs := &fakeSubscriberStore{subs: map[models.RiskTier][]*models.Subscriber{
		models.TierHigh: {{UserID: "u1", RiskTier: models.TierHigh, Active: true}},
	}}
	pusher := newFakePusher(map[string]int{"user:u1": 1})
	audit := &fakeAudit{}

	h := NewFanoutHandler("signals.fanout", store, deliveries, subs, pusher, audit, nopMetrics{}, nil)
	sig := seedActiveSignal(t, store, models.TierHigh)

	if err := h.Handle(context.Background(), fanoutEvent(t, sig)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		audit.mu.Lock()
		n := len(audit.events)
		audit.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected one audit event")
}
