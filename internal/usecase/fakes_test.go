package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
)

// fakeSignalStore implements SignalStore in memory with dedup semantics.
type fakeSignalStore struct {
	mu      sync.Mutex
	byID    map[string]*models.Signal
	byDedup map[string]*models.Signal
	seq     int64
	failing bool
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{
		byID:    make(map[string]*models.Signal),
		byDedup: make(map[string]*models.Signal),
	}
}

func (f *fakeSignalStore) Create(_ context.Context, s *models.Signal) (*models.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("store down")
	}
	if winner, ok := f.byDedup[s.DedupKey]; ok {
		return winner, domrepo.ErrDuplicate
	}
	f.seq++
	cp := *s
	cp.Seq = f.seq
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byID[cp.ID] = &cp
	f.byDedup[cp.DedupKey] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSignalStore) Get(_ context.Context, id string) (*models.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeSignalStore) Archive(_ context.Context, id string) (*models.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
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

func (f *fakeSignalStore) MarkTaken(_ context.Context, id, userID string, outcome models.Outcome, pnl float64) (*models.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
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

func (f *fakeSignalStore) ActiveForTier(_ context.Context, tier models.RiskTier, since time.Time, limit int) ([]*models.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Signal
	for _, s := range f.byID {
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

func (f *fakeSignalStore) Health(context.Context) error { return nil }

// fakeDeliveryStore records delivery bookkeeping calls.
type fakeDeliveryStore struct {
	mu        sync.Mutex
	records   map[string][]string // signalID -> userIDs ensured
	delivered map[string]bool     // userID|signalID
	statsHits int
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{
		records:   make(map[string][]string),
		delivered: make(map[string]bool),
	}
}

func (f *fakeDeliveryStore) EnsureRecords(_ context.Context, signalID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[signalID] = append(f.records[signalID], userIDs...)
	return nil
}

func (f *fakeDeliveryStore) MarkDelivered(_ context.Context, userID, signalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[userID+"|"+signalID] = true
	return nil
}

func (f *fakeDeliveryStore) DeliveredSet(_ context.Context, userID string, signalIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(signalIDs))
	for _, id := range signalIDs {
		out[id] = f.delivered[userID+"|"+id]
	}
	return out, nil
}

func (f *fakeDeliveryStore) Stats(_ context.Context, _ string, tier models.RiskTier, _ time.Duration) (*models.DeliveryStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsHits++
	return &models.DeliveryStats{Total: 10, Delivered: 7, Recent: 3, RiskTier: tier}, nil
}

func (f *fakeDeliveryStore) isDelivered(userID, signalID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[userID+"|"+signalID]
}

// fakeSubscriberStore serves a fixed tier directory.
type fakeSubscriberStore struct {
	subs map[models.RiskTier][]*models.Subscriber
}

func (f *fakeSubscriberStore) ActiveByTier(_ context.Context, tier models.RiskTier) ([]*models.Subscriber, error) {
	return f.subs[tier], nil
}

func (f *fakeSubscriberStore) CountByTier(_ context.Context, tier models.RiskTier) (int64, error) {
	return int64(len(f.subs[tier])), nil
}

// fakePublisher records or rejects publishes.
type fakePublisher struct {
	mu     sync.Mutex
	events []*models.FanoutEvent
	fails  int
}

func (f *fakePublisher) PublishEvent(_ context.Context, ev *models.FanoutEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []*models.FanoutEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.FanoutEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakePusher simulates the gateway hub with fixed online users.
type fakePusher struct {
	mu     sync.Mutex
	online map[string]int // group -> connection count
	pushed map[string][][]byte
}

func newFakePusher(online map[string]int) *fakePusher {
	return &fakePusher{online: online, pushed: make(map[string][][]byte)}
}

func (f *fakePusher) Push(group string, data []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.online[group]
	if n > 0 {
		f.pushed[group] = append(f.pushed[group], data)
	}
	return n
}

// fakeAudit records append calls.
type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Append(_ context.Context, signalID, userID, event string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event+":"+userID+":"+signalID)
	return nil
}

func (f *fakeAudit) Close() error { return nil }

// nopMetrics satisfies the Metrics interface.
type nopMetrics struct{}

func (nopMetrics) RecordSignalCreated(string)    {}
func (nopMetrics) RecordFanout(string, int)      {}
func (nopMetrics) RecordPush(string, int)        {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
