package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"

	"github.com/example/availability-engine/internal/persistence/sqlstore"
)

// StoreHarness provides a migrated store backed by a temporary SQLite file
// for integration-style tests.
type StoreHarness struct {
	Store *sqlstore.Store
	DB    *bun.DB
	Clock *Clock

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *StoreHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewStoreHarness opens and migrates a store whose audit clock starts at
// ReferenceTime. Callers may invoke Close, but the helper also registers a
// cleanup callback with tb.
func NewStoreHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	dsn := "file:" + filepath.Join(tb.TempDir(), "bookings.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, dsn, sqlstore.PoolConfig{})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if _, err := sqlstore.Migrate(ctx, db, nil); err != nil {
		_ = sqlstore.Close(db)
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	clock := NewClock(ReferenceTime())
	harness := &StoreHarness{
		Store: sqlstore.New(db, sqlstore.WithNow(clock.NowFunc())),
		DB:    db,
		Clock: clock,
		cleanup: func() {
			_ = sqlstore.Close(db)
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
