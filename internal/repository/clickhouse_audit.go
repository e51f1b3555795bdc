package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pkgch "TradeCast/pkg/clickhouse"
	applogger "TradeCast/pkg/logger"
)

// CHAuditSink implements AuditSink backed by ClickHouse. The table is
// append-only; rows are never updated or deleted.
type CHAuditSink struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHAuditSink(ch *pkgch.Client, database string) *CHAuditSink {
	return &CHAuditSink{db: ch.DB(), table: database + ".delivery_audit"}
}

// SetLogger injects a structured logger.
func (s *CHAuditSink) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHAuditSink) Append(ctx context.Context, signalID, userID, event string, at time.Time) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, signal_id, user_id, event) VALUES (?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, at, signalID, userID, event); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse audit append error",
				applogger.String("signal_id", signalID),
				applogger.String("event", event),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (s *CHAuditSink) Close() error {
	return nil // pool owned by pkg client
}

// NopAuditSink is used when the audit backend is disabled in config.
type NopAuditSink struct{}

func (NopAuditSink) Append(context.Context, string, string, string, time.Time) error { return nil }
func (NopAuditSink) Close() error                                                    { return nil }
