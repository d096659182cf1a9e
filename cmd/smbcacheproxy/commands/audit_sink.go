package commands

import (
	"context"
	"database/sql"
	"fmt"

	// Blank-imported SQL drivers for the optional File_operations audit
	// sink (§4.G): pure-Go sqlite for a single-node deployment, lib/pq for
	// a shared Postgres one. The dialect actually used is picked at
	// runtime from config; both drivers are registered here so the choice
	// doesn't require a build tag, per DESIGN.md's note on pkg/audit
	// deliberately not picking a driver itself.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/seekscale/smbcacheproxy/internal/config"
	"github.com/seekscale/smbcacheproxy/pkg/audit"
)

// openAuditSink opens the configured File_operations database and ensures
// its schema exists, returning nil if auditing is disabled.
func openAuditSink(ctx context.Context, cfg config.AuditConfig) (*audit.SQLSink, error) {
	if !cfg.EnableAuditLog {
		return nil, nil
	}

	var driver string
	var dialect audit.Dialect
	switch cfg.Dialect {
	case "postgres":
		driver = "postgres"
		dialect = audit.DialectPostgres
	default:
		driver = "sqlite"
		dialect = audit.DialectSQLite
	}

	db, err := sql.Open(driver, cfg.AuditLogHost)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s database: %w", driver, err)
	}

	sink := audit.NewSQLSink(db, dialect)
	if err := sink.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return sink, nil
}
