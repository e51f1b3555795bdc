package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"TradeCast/internal/domain/models"
	applogger "TradeCast/pkg/logger"
	pkgpg "TradeCast/pkg/postgres"
)

// PGDeliveryStore implements DeliveryStore backed by Postgres.
type PGDeliveryStore struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

func NewPGDeliveryStore(pg *pkgpg.Client) *PGDeliveryStore {
	return &PGDeliveryStore{pool: pg.Pool()}
}

// SetLogger injects a structured logger.
func (s *PGDeliveryStore) SetLogger(l *applogger.Logger) { s.l = l }

// EnsureRecords inserts one row per (user, signal) pair, delivered=false.
// ON CONFLICT DO NOTHING makes concurrent fan-out retries idempotent.
func (s *PGDeliveryStore) EnsureRecords(ctx context.Context, signalID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const q = `
		INSERT INTO user_delivery (user_id, signal_id, delivered)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (user_id, signal_id) DO NOTHING`
	for _, uid := range userIDs {
		batch.Queue(q, uid, signalID)
	}
	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range userIDs {
		if _, err := res.Exec(); err != nil {
			if s.l != nil {
				s.l.Error("postgres ensure delivery records error",
					applogger.String("signal_id", signalID),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("ensure delivery records: %w", err)
		}
	}
	return nil
}

// MarkDelivered flips delivered false->true once and stamps the time.
// Repeated calls match zero rows and succeed quietly.
func (s *PGDeliveryStore) MarkDelivered(ctx context.Context, userID, signalID string) error {
	const q = `
		UPDATE user_delivery
		SET delivered = TRUE, delivered_at = now()
		WHERE user_id = $1 AND signal_id = $2 AND delivered = FALSE`
	if _, err := s.pool.Exec(ctx, q, userID, signalID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// DeliveredSet returns which of the given signal ids were delivered to the user.
func (s *PGDeliveryStore) DeliveredSet(ctx context.Context, userID string, signalIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(signalIDs))
	if len(signalIDs) == 0 {
		return out, nil
	}
	const q = `
		SELECT signal_id, delivered
		FROM user_delivery
		WHERE user_id = $1 AND signal_id = ANY($2)`
	rows, err := s.pool.Query(ctx, q, userID, signalIDs)
	if err != nil {
		return nil, fmt.Errorf("delivered set: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var delivered bool
		if err := rows.Scan(&id, &delivered); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out[id] = delivered
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Stats aggregates per-user delivery counts within the caller's tier.
func (s *PGDeliveryStore) Stats(ctx context.Context, userID string, tier models.RiskTier, recentWindow time.Duration) (*models.DeliveryStats, error) {
	const q = `
		SELECT
			count(*),
			count(*) FILTER (WHERE d.delivered),
			count(*) FILTER (WHERE d.created_at >= $3)
		FROM user_delivery d
		JOIN signals s ON s.id = d.signal_id
		WHERE d.user_id = $1 AND s.risk_tier = $2`
	cutoff := time.Now().Add(-recentWindow)
	st := &models.DeliveryStats{RiskTier: tier}
	err := s.pool.QueryRow(ctx, q, userID, string(tier), cutoff).
		Scan(&st.Total, &st.Delivered, &st.Recent)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}
	return st, nil
}

// PGSubscriberStore implements SubscriberStore backed by Postgres.
type PGSubscriberStore struct {
	pool *pgxpool.Pool
}

func NewPGSubscriberStore(pg *pkgpg.Client) *PGSubscriberStore {
	return &PGSubscriberStore{pool: pg.Pool()}
}

// ActiveByTier enumerates active recipients for a tier.
func (s *PGSubscriberStore) ActiveByTier(ctx context.Context, tier models.RiskTier) ([]*models.Subscriber, error) {
	const q = `SELECT user_id, risk_tier, active FROM subscribers WHERE risk_tier = $1 AND active`
	rows, err := s.pool.Query(ctx, q, string(tier))
	if err != nil {
		return nil, fmt.Errorf("subscribers by tier: %w", err)
	}
	defer rows.Close()

	var out []*models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		var t string
		if err := rows.Scan(&sub.UserID, &t, &sub.Active); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		sub.RiskTier = models.RiskTier(t)
		out = append(out, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// CountByTier counts active recipients for a tier.
func (s *PGSubscriberStore) CountByTier(ctx context.Context, tier models.RiskTier) (int64, error) {
	const q = `SELECT count(*) FROM subscribers WHERE risk_tier = $1 AND active`
	var n int64
	if err := s.pool.QueryRow(ctx, q, string(tier)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}
