package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/pkg/fscache"
)

// SQLSink persists terminal actions into the external File_operations
// table of §4.G, via database/sql against a driver registered by the
// caller (sqlite for a single-node deployment, Postgres for a shared one,
// per the teacher's dual-backend metadata-store selection in
// pkg/config/stores.go). Audit write failures are logged and never
// propagate — the action has already completed by the time this runs.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// Dialect picks the positional-parameter syntax for the target database.
type Dialect int

const (
	// DialectPostgres uses $1, $2, ... placeholders.
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? placeholders.
	DialectSQLite
)

// NewSQLSink wraps an already-opened *sql.DB. The caller is responsible for
// registering the driver (blank import) and opening the connection; this
// keeps the driver choice out of pkg/audit entirely.
func NewSQLSink(db *sql.DB, dialect Dialect) *SQLSink {
	return &SQLSink{db: db, dialect: dialect}
}

func (s *SQLSink) insertSQL() string {
	switch s.dialect {
	case DialectSQLite:
		return `INSERT INTO File_operations
			(share_name, path, client_host, operation_type, start_time, duration_in_ms, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
	default:
		return `INSERT INTO File_operations
			(share_name, path, client_host, operation_type, start_time, duration_in_ms, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
	}
}

// Record inserts one terminal action row. Never returns an error to the
// caller; failures are logged (§4.G "Audit write failures never fail the
// action").
func (s *SQLSink) Record(ctx context.Context, rec fscache.ActionRecord) {
	_, err := s.db.ExecContext(ctx, s.insertSQL(),
		rec.Share, rec.Path, rec.Peer, string(rec.ActionType),
		rec.Start.UTC(), rec.Duration.Milliseconds(), string(rec.Status))
	if err != nil {
		logger.WarnCtx(ctx, "audit: File_operations insert failed",
			logger.Share(rec.Share), logger.Path(rec.Path), logger.Err(err))
	}
}

// EnsureSchema creates the File_operations table if it does not already
// exist, using the DDL of the sink's dialect (sqlite or postgres); there
// is no separate migration step.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS File_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		share_name TEXT NOT NULL,
		path TEXT NOT NULL,
		client_host TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		duration_in_ms BIGINT NOT NULL,
		status TEXT NOT NULL
	)`
	if s.dialect == DialectPostgres {
		ddl = `CREATE TABLE IF NOT EXISTS File_operations (
			id BIGSERIAL PRIMARY KEY,
			share_name TEXT NOT NULL,
			path TEXT NOT NULL,
			client_host TEXT NOT NULL,
			operation_type TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			duration_in_ms BIGINT NOT NULL,
			status TEXT NOT NULL
		)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("audit: create File_operations table: %w", err)
	}
	return nil
}
