// Package repository opens the catalog database and manages its schema.
//
// Entity persistence goes through github.com/goliatone/go-repository-bun; this
// package supplies the *bun.DB it runs on, table creation and query logging.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DatabaseConfig describes how to open the catalog database.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogQueries attaches a QueryLogger at debug level.
	LogQueries bool
}

// Open connects to the configured database, pings it and wraps it with the
// matching bun dialect.
func Open(ctx context.Context, cfg DatabaseConfig, logger *zap.Logger) (*bun.DB, error) {
	var dialect schema.Dialect
	switch cfg.Driver {
	case DriverSQLite:
		dialect = sqlitedialect.New()
	case DriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", cfg.Driver), goerrors.CategoryBadInput)
	}

	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "open "+cfg.Driver)
	}

	memory := cfg.Driver == DriverSQLite && isMemoryDSN(cfg.DSN)
	if memory {
		// every pooled connection to :memory: would see its own empty database
		sqldb.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 && !memory {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "ping "+cfg.Driver)
	}

	db := bun.NewDB(sqldb, dialect)
	if cfg.LogQueries && logger != nil {
		db.AddQueryHook(NewQueryLogger(logger))
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	switch dsn {
	case ":memory:", "file::memory:", "file::memory:?cache=shared":
		return true
	}
	return false
}
