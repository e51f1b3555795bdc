package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
	"TradeCast/internal/service/cache"
	applogger "TradeCast/pkg/logger"
	"TradeCast/pkg/util"
)

// SyncService serves the pull-based catch-up API: tier-scoped signal lists,
// delivery acknowledgements, and per-user stats.
type SyncService struct {
	signals      domrepo.SignalStore
	deliveries   domrepo.DeliveryStore
	audit        domrepo.AuditSink
	metrics      domrepo.Metrics
	cache        cache.BytesCache
	maxLimit     int
	recentWindow time.Duration
	statsTTL     time.Duration
	l            *applogger.Logger
}

type SyncConfig struct {
	MaxLimit     int
	RecentWindow time.Duration
	StatsTTL     time.Duration
}

func NewSyncService(
	signals domrepo.SignalStore,
	deliveries domrepo.DeliveryStore,
	audit domrepo.AuditSink,
	metrics domrepo.Metrics,
	bc cache.BytesCache,
	cfg SyncConfig,
	l *applogger.Logger,
) *SyncService {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 200
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 24 * time.Hour
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 30 * time.Second
	}
	if bc == nil {
		bc = cache.NewTTLCache()
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SyncService{
		signals:      signals,
		deliveries:   deliveries,
		audit:        audit,
		metrics:      metrics,
		cache:        bc,
		maxLimit:     cfg.MaxLimit,
		recentWindow: cfg.RecentWindow,
		statsTTL:     cfg.StatsTTL,
		l:            l,
	}
}

// Sync returns active signals for the caller's tier, newest first. Signals are
// annotated with the caller's delivery state when requested; callers only ever
// see their own tier.
func (s *SyncService) Sync(ctx context.Context, userID string, tier models.RiskTier, req *models.SyncRequest) (*models.SyncResponse, error) {
	limit := util.ClampInt(req.Limit, 1, s.maxLimit)
	since := util.ParseTimeDefault(req.Since, time.Time{})

	sigs, err := s.signals.ActiveForTier(ctx, tier, since, limit)
	if err != nil {
		s.metrics.RecordError("sync_list")
		return nil, fmt.Errorf("sync signals: %w", err)
	}

	out := make([]*models.SyncedSignal, 0, len(sigs))
	if req.IncludeDelivered {
		ids := make([]string, 0, len(sigs))
		for _, sig := range sigs {
			ids = append(ids, sig.ID)
		}
		deliveredSet, err := s.deliveries.DeliveredSet(ctx, userID, ids)
		if err != nil {
			s.metrics.RecordError("sync_delivered_set")
			return nil, fmt.Errorf("delivered set: %w", err)
		}
		for _, sig := range sigs {
			d := deliveredSet[sig.ID]
			out = append(out, &models.SyncedSignal{Signal: sig, Delivered: &d})
		}
	} else {
		for _, sig := range sigs {
			out = append(out, &models.SyncedSignal{Signal: sig})
		}
	}

	return &models.SyncResponse{Signals: out, Count: len(out), RiskTier: tier}, nil
}

// Recent is Sync bounded to the configured recent window.
func (s *SyncService) Recent(ctx context.Context, userID string, tier models.RiskTier, req *models.SyncRequest) (*models.SyncResponse, error) {
	bounded := *req
	bounded.Since = time.Now().Add(-s.recentWindow).UTC().Format(time.RFC3339)
	return s.Sync(ctx, userID, tier, &bounded)
}

// Ack records a client-confirmed delivery. Idempotent; acknowledging a signal
// that was already marked delivered changes nothing.
func (s *SyncService) Ack(ctx context.Context, userID, signalID string) error {
	sig, err := s.signals.Get(ctx, signalID)
	if err != nil {
		return err
	}
	if sig.Status != models.StatusActive {
		return domrepo.ErrInvalidTransition
	}
	if err := s.deliveries.MarkDelivered(ctx, userID, signalID); err != nil {
		s.metrics.RecordError("sync_ack")
		return err
	}

	actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.audit.Append(actx, signalID, userID, "ack", time.Now().UTC()); err != nil {
		s.metrics.RecordError("audit_append")
	}
	return nil
}

// Stats returns per-user delivery counts, cached briefly since clients poll it.
func (s *SyncService) Stats(ctx context.Context, userID string, tier models.RiskTier) (*models.DeliveryStats, error) {
	key := "stats:" + userID + ":" + string(tier)
	if b, ok, err := s.cache.GetBytes(key); err == nil && ok {
		var st models.DeliveryStats
		if json.Unmarshal(b, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.deliveries.Stats(ctx, userID, tier, s.recentWindow)
	if err != nil {
		s.metrics.RecordError("sync_stats")
		return nil, fmt.Errorf("delivery stats: %w", err)
	}

	if b, err := json.Marshal(st); err == nil {
		if err := s.cache.SetBytes(key, b, s.statsTTL); err != nil {
			s.l.Warn("stats cache write failed", applogger.Error(err))
		}
	}
	return st, nil
}
