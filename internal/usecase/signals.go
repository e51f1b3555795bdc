package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
	applogger "TradeCast/pkg/logger"
)

// RecommendPolicy decides whether a signal gets the recommended flag.
// Injected so the threshold can change without touching ingestion logic.
type RecommendPolicy func(confidence float64) bool

// ThresholdPolicy recommends signals with confidence strictly above t.
func ThresholdPolicy(t float64) RecommendPolicy {
	return func(confidence float64) bool { return confidence > t }
}

// SignalService owns admin-facing signal lifecycle: ingest with dedup,
// archive, mark taken.
type SignalService struct {
	store       domrepo.SignalStore
	subscribers domrepo.SubscriberStore
	broadcaster *Broadcaster
	metrics     domrepo.Metrics
	recommend   RecommendPolicy
	dedupBucket time.Duration
	l           *applogger.Logger
}

func NewSignalService(
	store domrepo.SignalStore,
	subscribers domrepo.SubscriberStore,
	broadcaster *Broadcaster,
	metrics domrepo.Metrics,
	recommend RecommendPolicy,
	dedupBucket time.Duration,
	l *applogger.Logger,
) *SignalService {
	if recommend == nil {
		recommend = ThresholdPolicy(80)
	}
	if dedupBucket <= 0 {
		dedupBucket = 5 * time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalService{
		store:       store,
		subscribers: subscribers,
		broadcaster: broadcaster,
		metrics:     metrics,
		recommend:   recommend,
		dedupBucket: dedupBucket,
		l:           l,
	}
}

// CreateResult distinguishes a fresh insert from an idempotent retry.
type CreateResult struct {
	Signal       *models.Signal
	Existing     bool
	MatchedUsers int64
}

// Create validates cross-field rules, persists exactly one row per dedup key,
// and hands the fan-out event to the broadcaster. The event is published only
// after the row is committed; a duplicate never publishes anything.
func (s *SignalService) Create(ctx context.Context, req *models.CreateSignalRequest, creatorID string, origin models.Origin) (*CreateResult, error) {
	side, ok := models.ParseSide(req.Side)
	if !ok {
		return nil, domrepo.NewValidationError("side", "must be buy or sell")
	}
	tier, ok := models.ParseRiskTier(req.RiskTier)
	if !ok {
		return nil, domrepo.NewValidationError("risk_tier", "must be low, medium or high")
	}

	rr, err := models.RiskReward(side, req.EntryPrice, req.StopLoss, req.TakeProfit)
	if err != nil {
		return nil, domrepo.NewValidationError("stop_loss", err.Error())
	}

	now := time.Now().UTC()
	sig := &models.Signal{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Timeframe:   req.Timeframe,
		Side:        side,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		RiskReward:  rr,
		RiskTier:    tier,
		Confidence:  req.Confidence,
		Recommended: s.recommend(req.Confidence),
		Metadata:    req.Metadata,
		CreatorID:   creatorID,
		Origin:      origin,
		Status:      models.StatusActive,
		DedupKey:    models.DedupKey(req.Symbol, req.Timeframe, side, req.EntryPrice, req.StopLoss, req.TakeProfit, now, s.dedupBucket),
	}

	stored, err := s.store.Create(ctx, sig)
	if errors.Is(err, domrepo.ErrDuplicate) {
		s.l.Info("duplicate signal submission",
			applogger.String("symbol", req.Symbol),
			applogger.String("existing_id", stored.ID),
		)
		return &CreateResult{Signal: stored, Existing: true}, nil
	}
	if err != nil {
		s.metrics.RecordError("signal_create")
		return nil, fmt.Errorf("create signal: %w", err)
	}

	matched, err := s.subscribers.CountByTier(ctx, tier)
	if err != nil {
		// count is informational only, the event still goes out
		s.l.Warn("count subscribers failed", applogger.Error(err))
	}

	s.metrics.RecordSignalCreated(string(tier))
	s.broadcaster.Enqueue(&models.FanoutEvent{SignalID: stored.ID, RiskTier: tier})

	s.l.Info("signal created",
		applogger.String("id", stored.ID),
		applogger.String("symbol", stored.Symbol),
		applogger.String("risk_tier", string(tier)),
		applogger.Bool("recommended", stored.Recommended),
		applogger.Int64("matched_users", matched),
	)
	return &CreateResult{Signal: stored, MatchedUsers: matched}, nil
}

// Get returns one signal by id.
func (s *SignalService) Get(ctx context.Context, id string) (*models.Signal, error) {
	return s.store.Get(ctx, id)
}

// Archive retires an active signal. Terminal states reject further changes.
func (s *SignalService) Archive(ctx context.Context, id string) (*models.Signal, error) {
	sig, err := s.store.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.l.Info("signal archived", applogger.String("id", id))
	return sig, nil
}

// MarkTaken records that a user acted on an active signal and its outcome.
func (s *SignalService) MarkTaken(ctx context.Context, id, userID string, req *models.MarkTakenRequest) (*models.Signal, error) {
	outcome, ok := models.ParseOutcome(req.Outcome)
	if !ok {
		return nil, domrepo.NewValidationError("outcome", "must be win, loss or breakeven")
	}
	sig, err := s.store.MarkTaken(ctx, id, userID, outcome, req.PnL)
	if err != nil {
		return nil, err
	}
	s.l.Info("signal taken",
		applogger.String("id", id),
		applogger.String("user_id", userID),
		applogger.String("outcome", string(outcome)),
	)
	return sig, nil
}
