// Package sqlstore implements the persistence repositories on bun, backed by
// SQLite for single-node deployments and PostgreSQL otherwise.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"
)

// PoolConfig tunes the connection pool. Zero values keep driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// IsPostgres reports whether the DSN addresses a PostgreSQL server.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to the database named by dsn. PostgreSQL URLs use pgx;
// anything else is handed to the SQLite driver, which is limited to a single
// connection so that transactions serialise.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*bun.DB, error) {
	driver, dialect := "sqlite", schema.Dialect(sqlitedialect.New())
	if IsPostgres(dsn) {
		driver, dialect = "pgx", pgdialect.New()
	} else {
		pool.MaxOpenConns = 1
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: open %s", driver)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrapf(err, "sqlstore: ping %s", driver)
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// Close releases the database handle.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
