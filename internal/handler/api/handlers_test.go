package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	models "TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
	"TradeCast/internal/service/identity"
	"TradeCast/internal/service/ratelimit"
	"TradeCast/internal/usecase"
	applogger "TradeCast/pkg/logger"
)

const (
	adminToken = "test-admin-token"
	userToken  = "test-user-token"
)

// --- In-memory doubles ---

type memSignalStore struct {
	mu      sync.Mutex
	byID    map[string]*models.Signal
	byDedup map[string]*models.Signal
	seq     int64
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{
		byID:    make(map[string]*models.Signal),
		byDedup: make(map[string]*models.Signal),
	}
}

func (m *memSignalStore) Create(_ context.Context, s *models.Signal) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if winner, ok := m.byDedup[s.DedupKey]; ok {
		return winner, domrepo.ErrDuplicate
	}
	m.seq++
	cp := *s
	cp.Seq = m.seq
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byID[cp.ID] = &cp
	m.byDedup[cp.DedupKey] = &cp
	out := cp
	return &out, nil
}

func (m *memSignalStore) Get(_ context.Context, id string) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (m *memSignalStore) Archive(_ context.Context, id string) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	if s.Status.Terminal() {
		return nil, domrepo.ErrInvalidTransition
	}
	s.Status = models.StatusArchived
	out := *s
	return &out, nil
}

func (m *memSignalStore) MarkTaken(_ context.Context, id, userID string, outcome models.Outcome, pnl float64) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	if s.Status.Terminal() {
		return nil, domrepo.ErrInvalidTransition
	}
	s.Status = models.StatusTaken
	s.TakenBy = userID
	s.Outcome = &outcome
	s.PnL = &pnl
	out := *s
	return &out, nil
}

func (m *memSignalStore) ActiveForTier(_ context.Context, tier models.RiskTier, since time.Time, limit int) ([]*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Signal
	for _, s := range m.byID {
		if s.RiskTier == tier && s.Status == models.StatusActive && !s.CreatedAt.Before(since) {
			cp := *s
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSignalStore) Health(context.Context) error { return nil }

type memDeliveryStore struct {
	mu        sync.Mutex
	delivered map[string]bool
}

func newMemDeliveryStore() *memDeliveryStore {
	return &memDeliveryStore{delivered: make(map[string]bool)}
}

func (m *memDeliveryStore) EnsureRecords(context.Context, string, []string) error { return nil }

func (m *memDeliveryStore) MarkDelivered(_ context.Context, userID, signalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[userID+"|"+signalID] = true
	return nil
}

func (m *memDeliveryStore) DeliveredSet(_ context.Context, userID string, signalIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range signalIDs {
		if m.delivered[userID+"|"+id] {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memDeliveryStore) Stats(context.Context, string, models.RiskTier, time.Duration) (*models.DeliveryStats, error) {
	return &models.DeliveryStats{}, nil
}

type memSubscriberStore struct{}

func (memSubscriberStore) ActiveByTier(context.Context, models.RiskTier) ([]*models.Subscriber, error) {
	return nil, nil
}
func (memSubscriberStore) CountByTier(context.Context, models.RiskTier) (int64, error) {
	return 0, nil
}

type memPublisher struct{}

func (memPublisher) PublishEvent(context.Context, *models.FanoutEvent) error { return nil }
func (memPublisher) Close() error                                            { return nil }

type memAudit struct{}

func (memAudit) Append(context.Context, string, string, string, time.Time) error { return nil }
func (memAudit) Close() error                                                    { return nil }

type memMetrics struct{}

func (memMetrics) RecordSignalCreated(string)    {}
func (memMetrics) RecordFanout(string, int)      {}
func (memMetrics) RecordPush(string, int)        {}
func (memMetrics) RecordError(string)            {}
func (memMetrics) RecordLatency(string, float64) {}

// --- Test environment ---

type testEnv struct {
	e          *echo.Echo
	signals    *memSignalStore
	deliveries *memDeliveryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := identity.NewStaticProvider(map[string]string{
		adminToken: "admin-1:high:admin",
		userToken:  "user-1:medium",
	})

	signals := newMemSignalStore()
	deliveries := newMemDeliveryStore()

	bc := usecase.NewBroadcaster(memPublisher{}, memMetrics{}, usecase.BroadcasterConfig{
		RetryMax:   2,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}, nil)
	bc.Start()
	t.Cleanup(func() { bc.Stop(context.Background()) })

	signalSvc := usecase.NewSignalService(signals, memSubscriberStore{}, bc, memMetrics{}, usecase.ThresholdPolicy(80), time.Hour, nil)
	syncSvc := usecase.NewSyncService(signals, deliveries, memAudit{}, memMetrics{}, nil, usecase.SyncConfig{
		MaxLimit:     100,
		RecentWindow: 24 * time.Hour,
		StatsTTL:     time.Second,
	}, nil)

	e := echo.New()
	l := applogger.Nop()
	NewAdminSignalsHandler(l, signalSvc, provider).RegisterRoutes(e)
	NewSyncHandler(l, syncSvc, provider, ratelimit.New()).RegisterRoutes(e)

	return &testEnv{e: e, signals: signals, deliveries: deliveries}
}

func (env *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v (data %s)", err, string(env.Data))
		}
	}
}

const validCreateBody = `{
	"symbol": "BTCUSDT",
	"timeframe": "1h",
	"side": "buy",
	"entry_price": 100,
	"stop_loss": 95,
	"take_profit": 110,
	"risk_tier": "medium",
	"confidence": 90
}`

// --- Admin surface ---

func TestAdminCreateSignal(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/admin/signals", adminToken, validCreateBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var res models.CreateSignalResponse
	decodeEnvelope(t, rec, &res)
	if res.Signal == nil || res.Signal.ID == "" {
		t.Fatal("response should carry the stored signal")
	}
	if res.Signal.Status != models.StatusActive {
		t.Errorf("new signal status = %s, want active", res.Signal.Status)
	}
	if !res.Signal.Recommended {
		t.Error("confidence 90 should be recommended")
	}
	if res.Signal.RiskReward != 2 {
		t.Errorf("risk reward = %v, want 2", res.Signal.RiskReward)
	}
}

func TestAdminCreateDuplicateReturnsWinner(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(http.MethodPost, "/api/admin/signals", adminToken, validCreateBody)
	if first.Code != http.StatusCreated {
		t.Fatalf("first submission: expected 201, got %d", first.Code)
	}
	var created models.CreateSignalResponse
	decodeEnvelope(t, first, &created)

	second := env.do(http.MethodPost, "/api/admin/signals", adminToken, validCreateBody)
	if second.Code != http.StatusOK {
		t.Fatalf("resubmission: expected 200, got %d: %s", second.Code, second.Body.String())
	}
	var dup models.DuplicateSignalResponse
	decodeEnvelope(t, second, &dup)
	if !dup.Exists {
		t.Error("resubmission should report exists=true")
	}
	if dup.Signal == nil || dup.Signal.ID != created.Signal.ID {
		t.Error("resubmission should return the winning record")
	}
}

func TestAdminCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	body := strings.Replace(validCreateBody, `"buy"`, `"hold"`, 1)
	rec := env.do(http.MethodPost, "/api/admin/signals", adminToken, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminCreateInvertedLevelsRejected(t *testing.T) {
	env := newTestEnv(t)

	// stop loss above entry on a buy leaves zero risk
	body := strings.Replace(validCreateBody, `"stop_loss": 95`, `"stop_loss": 100`, 1)
	rec := env.do(http.MethodPost, "/api/admin/signals", adminToken, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/admin/signals", "", validCreateBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/api/admin/signals", "garbage", validCreateBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: expected 401, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/api/admin/signals", userToken, validCreateBody)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin token: expected 403, got %d", rec.Code)
	}
}

func TestAdminArchiveLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(http.MethodPost, "/api/admin/signals", adminToken, validCreateBody)
	var res models.CreateSignalResponse
	decodeEnvelope(t, created, &res)
	id := res.Signal.ID

	rec := env.do(http.MethodPatch, "/api/admin/signals/"+id+"/archive", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var archived models.Signal
	decodeEnvelope(t, rec, &archived)
	if archived.Status != models.StatusArchived {
		t.Errorf("status = %s, want archived", archived.Status)
	}

	// terminal states cannot move again
	rec = env.do(http.MethodPost, "/api/admin/signals/"+id+"/taken", adminToken, `{"outcome":"win","pnl":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("taken after archive: expected 400, got %d", rec.Code)
	}

	rec = env.do(http.MethodPatch, "/api/admin/signals/unknown-id/archive", adminToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rec.Code)
	}
}

func TestAdminMarkTaken(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(http.MethodPost, "/api/admin/signals", adminToken, validCreateBody)
	var res models.CreateSignalResponse
	decodeEnvelope(t, created, &res)

	rec := env.do(http.MethodPost, "/api/admin/signals/"+res.Signal.ID+"/taken", adminToken, `{"outcome":"win","pnl":2.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var taken models.Signal
	decodeEnvelope(t, rec, &taken)
	if taken.Status != models.StatusTaken {
		t.Errorf("status = %s, want taken", taken.Status)
	}
	if taken.Outcome == nil || *taken.Outcome != models.OutcomeWin {
		t.Error("outcome should be recorded")
	}
	if taken.TakenBy != "admin-1" {
		t.Errorf("taken_by = %q, want caller id", taken.TakenBy)
	}

	rec = env.do(http.MethodPost, "/api/admin/signals/"+res.Signal.ID+"/taken", adminToken, `{"outcome":"bogus"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad outcome: expected 422, got %d", rec.Code)
	}
}

// --- Sync surface ---

func (env *testEnv) seedSignal(t *testing.T, tier models.RiskTier, dedup string) *models.Signal {
	t.Helper()
	sig := &models.Signal{
		ID:         "sig-" + dedup,
		Symbol:     "ETHUSDT",
		Timeframe:  "1h",
		Side:       models.SideBuy,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 110,
		RiskTier:   tier,
		Status:     models.StatusActive,
		DedupKey:   dedup,
	}
	stored, err := env.signals.Create(context.Background(), sig)
	if err != nil {
		t.Fatalf("seed signal: %v", err)
	}
	return stored
}

func TestSyncScopedToCallerTier(t *testing.T) {
	env := newTestEnv(t)
	env.seedSignal(t, models.TierMedium, "d1")
	env.seedSignal(t, models.TierMedium, "d2")
	env.seedSignal(t, models.TierHigh, "d3")

	rec := env.do(http.MethodGet, "/api/signals", userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res models.SyncResponse
	decodeEnvelope(t, rec, &res)
	if res.Count != 2 {
		t.Fatalf("count = %d, want 2 medium signals", res.Count)
	}
	if res.RiskTier != models.TierMedium {
		t.Errorf("risk_tier = %s, want medium", res.RiskTier)
	}
	for _, s := range res.Signals {
		if s.RiskTier != models.TierMedium {
			t.Errorf("leaked signal from tier %s", s.RiskTier)
		}
		if s.Delivered != nil {
			t.Error("delivered annotation should be absent without includeDelivered")
		}
	}
}

func TestSyncDeliveredAnnotation(t *testing.T) {
	env := newTestEnv(t)
	seen := env.seedSignal(t, models.TierMedium, "d1")
	env.seedSignal(t, models.TierMedium, "d2")
	env.deliveries.MarkDelivered(context.Background(), "user-1", seen.ID)

	rec := env.do(http.MethodGet, "/api/signals?includeDelivered=true", userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var res models.SyncResponse
	decodeEnvelope(t, rec, &res)
	for _, s := range res.Signals {
		if s.Delivered == nil {
			t.Fatalf("signal %s missing delivered annotation", s.ID)
		}
		want := s.ID == seen.ID
		if *s.Delivered != want {
			t.Errorf("signal %s delivered = %v, want %v", s.ID, *s.Delivered, want)
		}
	}
}

func TestSyncAck(t *testing.T) {
	env := newTestEnv(t)
	sig := env.seedSignal(t, models.TierMedium, "d1")

	rec := env.do(http.MethodPost, "/api/signals/"+sig.ID+"/delivered", userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res map[string]bool
	decodeEnvelope(t, rec, &res)
	if !res["acknowledged"] {
		t.Error("ack should report acknowledged=true")
	}

	set, _ := env.deliveries.DeliveredSet(context.Background(), "user-1", []string{sig.ID})
	if !set[sig.ID] {
		t.Error("ack should mark the record delivered")
	}

	rec = env.do(http.MethodPost, "/api/signals/unknown-id/delivered", userToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown signal: expected 404, got %d", rec.Code)
	}

	archived := env.seedSignal(t, models.TierMedium, "d2")
	env.signals.Archive(context.Background(), archived.ID)
	rec = env.do(http.MethodPost, "/api/signals/"+archived.ID+"/delivered", userToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("archived signal: expected 400, got %d", rec.Code)
	}
}

func TestSyncRateLimit(t *testing.T) {
	env := newTestEnv(t)

	limited := false
	for i := 0; i < 60; i++ {
		rec := env.do(http.MethodGet, "/api/signals", userToken, "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	if !limited {
		t.Error("burst past the bucket capacity should be limited")
	}
}
