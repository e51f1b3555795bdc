package repository

import (
	"context"
	"time"

	"TradeCast/internal/domain/models"
)

// SignalStore is the durable record of signals. The contract intentionally has
// no delete operation: archived and taken rows stay queryable forever.
type SignalStore interface {
	// Create persists a fully-validated signal. Concurrent submissions with
	// the same dedup key yield exactly one stored row; losers receive
	// ErrDuplicate together with the winning record.
	Create(ctx context.Context, s *models.Signal) (*models.Signal, error)

	// Get fetches one signal by id.
	Get(ctx context.Context, id string) (*models.Signal, error)

	// Archive transitions active -> archived. ErrNotFound if the id is
	// unknown, ErrInvalidTransition if the signal is already terminal.
	Archive(ctx context.Context, id string) (*models.Signal, error)

	// MarkTaken transitions active -> taken and records the outcome.
	MarkTaken(ctx context.Context, id, userID string, outcome models.Outcome, pnl float64) (*models.Signal, error)

	// ActiveForTier lists signals for a tier newest-first, ordered by
	// (created_at, insertion seq) for a stable tie-break.
	ActiveForTier(ctx context.Context, tier models.RiskTier, since time.Time, limit int) ([]*models.Signal, error)

	Health(ctx context.Context) error
}

// DeliveryStore is the per-user delivery bookkeeping table.
type DeliveryStore interface {
	// EnsureRecords create-or-gets a record per (user, signal) pair,
	// defaulting to delivered=false. Idempotent under concurrent fan-out.
	EnsureRecords(ctx context.Context, signalID string, userIDs []string) error

	// MarkDelivered flips delivered false->true with a timestamp. Calling it
	// again is a no-op.
	MarkDelivered(ctx context.Context, userID, signalID string) error

	// DeliveredSet returns the signal ids among the given set that were
	// delivered to the user.
	DeliveredSet(ctx context.Context, userID string, signalIDs []string) (map[string]bool, error)

	// Stats aggregates counts for one user within a tier.
	Stats(ctx context.Context, userID string, tier models.RiskTier, recentWindow time.Duration) (*models.DeliveryStats, error)
}

// SubscriberStore reads the externally-maintained recipient directory.
type SubscriberStore interface {
	ActiveByTier(ctx context.Context, tier models.RiskTier) ([]*models.Subscriber, error)
	CountByTier(ctx context.Context, tier models.RiskTier) (int64, error)
}

// EventPublisher pushes fan-out events onto the shared broadcast channel.
// Implementations must key messages by tier so each tier is a single ordered
// stream.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *models.FanoutEvent) error
	Close() error
}

// AuditSink records append-only delivery events for analytics. Sink failures
// are logged by callers and never propagate into the delivery path.
type AuditSink interface {
	Append(ctx context.Context, signalID, userID, event string, at time.Time) error
	Close() error
}

// Metrics abstracts the Prometheus recorder so usecases stay test-friendly.
type Metrics interface {
	RecordSignalCreated(tier string)
	RecordFanout(tier string, recipients int)
	RecordPush(tier string, delivered int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
