package repository

// PostgresSchema returns idempotent DDL for the relational tables.
// The unique index on dedup_key is the single-winner arbiter for
// concurrent duplicate submissions.
func PostgresSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id          UUID PRIMARY KEY,
			symbol      TEXT NOT NULL,
			timeframe   TEXT NOT NULL,
			side        TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss   DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			risk_reward DOUBLE PRECISION NOT NULL,
			risk_tier   TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL,
			recommended BOOLEAN NOT NULL DEFAULT FALSE,
			metadata    JSONB,
			creator_id  TEXT NOT NULL,
			origin      TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'active',
			outcome     TEXT,
			pnl         DOUBLE PRECISION,
			taken_by    TEXT NOT NULL DEFAULT '',
			dedup_key   TEXT NOT NULL,
			seq         BIGSERIAL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS signals_dedup_key_uq ON signals (dedup_key)`,
		`CREATE INDEX IF NOT EXISTS signals_tier_status_idx ON signals (risk_tier, status, created_at DESC, seq DESC)`,
		`CREATE TABLE IF NOT EXISTS user_delivery (
			user_id      TEXT NOT NULL,
			signal_id    UUID NOT NULL REFERENCES signals (id),
			delivered    BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_at TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, signal_id)
		)`,
		`CREATE INDEX IF NOT EXISTS user_delivery_user_idx ON user_delivery (user_id, delivered)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			user_id   TEXT PRIMARY KEY,
			risk_tier TEXT NOT NULL,
			active    BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS subscribers_tier_idx ON subscribers (risk_tier, active)`,
	}
}

// AuditSchema returns idempotent DDL for the ClickHouse audit table.
func AuditSchema(database string) []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS ` + database,
		`CREATE TABLE IF NOT EXISTS ` + database + `.delivery_audit (
			ts        DateTime64(3) CODEC(Delta, ZSTD),
			signal_id String,
			user_id   String,
			event     LowCardinality(String)
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (signal_id, ts)`,
	}
}
