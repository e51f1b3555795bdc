package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
	applogger "TradeCast/pkg/logger"
	pkgpg "TradeCast/pkg/postgres"
)

const pgUniqueViolation = "23505"

const signalColumns = `id, symbol, timeframe, side, entry_price, stop_loss, take_profit,
	risk_reward, risk_tier, confidence, recommended, metadata, creator_id, origin,
	status, outcome, pnl, taken_by, dedup_key, seq, created_at, updated_at`

// PGSignalStore implements SignalStore backed by Postgres.
type PGSignalStore struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

func NewPGSignalStore(pg *pkgpg.Client) *PGSignalStore {
	return &PGSignalStore{pool: pg.Pool()}
}

// SetLogger injects a structured logger.
func (s *PGSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

// Create inserts the signal, relying on the dedup_key unique index to pick a
// single winner under concurrency. Losers get ErrDuplicate plus the winning row.
func (s *PGSignalStore) Create(ctx context.Context, sig *models.Signal) (*models.Signal, error) {
	const q = `
		INSERT INTO signals (
			id, symbol, timeframe, side, entry_price, stop_loss, take_profit,
			risk_reward, risk_tier, confidence, recommended, metadata,
			creator_id, origin, status, taken_by, dedup_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING seq, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, q,
		sig.ID, sig.Symbol, sig.Timeframe, string(sig.Side),
		sig.EntryPrice, sig.StopLoss, sig.TakeProfit,
		sig.RiskReward, string(sig.RiskTier), sig.Confidence, sig.Recommended,
		sig.Metadata, sig.CreatorID, string(sig.Origin), string(sig.Status),
		sig.TakenBy, sig.DedupKey,
	).Scan(&sig.Seq, &sig.CreatedAt, &sig.UpdatedAt)

	if err == nil {
		return sig, nil
	}

	// DO NOTHING returns no row on conflict; an explicit 23505 can still
	// surface from a concurrent insert racing the arbiter check.
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation) {
		winner, werr := s.getByDedupKey(ctx, sig.DedupKey)
		if werr != nil {
			return nil, fmt.Errorf("fetch duplicate winner: %w", werr)
		}
		return winner, domrepo.ErrDuplicate
	}

	if s.l != nil {
		s.l.Error("postgres signal insert error",
			applogger.String("symbol", sig.Symbol),
			applogger.Error(err),
		)
	}
	return nil, fmt.Errorf("insert signal: %w", err)
}

// Get fetches one signal by id.
func (s *PGSignalStore) Get(ctx context.Context, id string) (*models.Signal, error) {
	q := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`
	sig, err := scanSignal(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return sig, nil
}

// Archive transitions active -> archived.
func (s *PGSignalStore) Archive(ctx context.Context, id string) (*models.Signal, error) {
	q := `
		UPDATE signals SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + signalColumns
	sig, err := scanSignal(s.pool.QueryRow(ctx, q, id, string(models.StatusArchived), string(models.StatusActive)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionFailure(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive signal: %w", err)
	}
	return sig, nil
}

// MarkTaken transitions active -> taken and records who took it and the outcome.
func (s *PGSignalStore) MarkTaken(ctx context.Context, id, userID string, outcome models.Outcome, pnl float64) (*models.Signal, error) {
	q := `
		UPDATE signals
		SET status = $2, taken_by = $3, outcome = $4, pnl = $5, updated_at = now()
		WHERE id = $1 AND status = $6
		RETURNING ` + signalColumns
	sig, err := scanSignal(s.pool.QueryRow(ctx, q,
		id, string(models.StatusTaken), userID, string(outcome), pnl, string(models.StatusActive)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionFailure(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("mark taken: %w", err)
	}
	return sig, nil
}

// ActiveForTier lists active signals for a tier, newest first. Seq breaks
// created_at ties so pagination stays stable.
func (s *PGSignalStore) ActiveForTier(ctx context.Context, tier models.RiskTier, since time.Time, limit int) ([]*models.Signal, error) {
	q := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE risk_tier = $1 AND status = $2 AND created_at >= $3
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`
	rows, err := s.pool.Query(ctx, q, string(tier), string(models.StatusActive), since, limit)
	if err != nil {
		return nil, fmt.Errorf("list active signals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Signal, 0, limit)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PGSignalStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// transitionFailure disambiguates a zero-row conditional update: either the id
// does not exist, or the signal is already terminal.
func (s *PGSignalStore) transitionFailure(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domrepo.ErrInvalidTransition
}

func (s *PGSignalStore) getByDedupKey(ctx context.Context, key string) (*models.Signal, error) {
	q := `SELECT ` + signalColumns + ` FROM signals WHERE dedup_key = $1`
	return scanSignal(s.pool.QueryRow(ctx, q, key))
}

func scanSignal(row pgx.Row) (*models.Signal, error) {
	var (
		sig           models.Signal
		side, tier    string
		origin, state string
		outcome       *string
	)
	err := row.Scan(
		&sig.ID, &sig.Symbol, &sig.Timeframe, &side,
		&sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit,
		&sig.RiskReward, &tier, &sig.Confidence, &sig.Recommended,
		&sig.Metadata, &sig.CreatorID, &origin,
		&state, &outcome, &sig.PnL, &sig.TakenBy,
		&sig.DedupKey, &sig.Seq, &sig.CreatedAt, &sig.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sig.Side = models.Side(side)
	sig.RiskTier = models.RiskTier(tier)
	sig.Origin = models.Origin(origin)
	sig.Status = models.SignalStatus(state)
	if outcome != nil {
		oc := models.Outcome(*outcome)
		sig.Outcome = &oc
	}
	return &sig, nil
}
