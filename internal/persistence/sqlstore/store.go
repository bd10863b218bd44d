package sqlstore

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/persistence"
)

// Store implements persistence.Store on a bun database or transaction.
type Store struct {
	root *bun.DB
	db   bun.IDB
	now  func() time.Time
}

var _ persistence.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithNow overrides the clock used for audit timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open database.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{root: db, db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.root == nil {
		return nil
	}
	return s.root.PingContext(ctx)
}

// WithinTx implements persistence.Store. Nested calls reuse the running
// transaction. On PostgreSQL each locked resource takes a transaction scoped
// advisory lock; SQLite already serialises through its single connection.
func (s *Store) WithinTx(ctx context.Context, lock []string, fn func(ctx context.Context, tx persistence.Store) error) error {
	if s.root == nil {
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockResources(ctx, tx, lock); err != nil {
			return err
		}
		return fn(ctx, &Store{db: tx, now: s.now})
	})
}

func lockResources(ctx context.Context, tx bun.Tx, ids []string) error {
	if tx.Dialect().Name() != dialect.PG || len(ids) == 0 {
		return nil
	}
	// A fixed order keeps two multi-resource bookings from deadlocking.
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for _, id := range slices.Compact(sorted) {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", id).Exec(ctx); err != nil {
			return errors.Wrapf(err, "sqlstore: lock resource %s", id)
		}
	}
	return nil
}

// inTx runs fn in a transaction unless the store already is one.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error {
	if s.root == nil {
		return fn(ctx, s.db)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// ----------------------------- Resources -----------------------------

// CreateResource implements persistence.ResourceRepository.
func (s *Store) CreateResource(ctx context.Context, resource domain.Resource) error {
	row, hours := persistence.FromResource(resource, s.timestamp())
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		if _, err := db.NewInsert().Model(&row).Exec(ctx); err != nil {
			return mapError(err)
		}
		return insertHours(ctx, db, hours)
	})
}

// UpdateResource implements persistence.ResourceRepository. Working hours
// are replaced wholesale.
func (s *Store) UpdateResource(ctx context.Context, resource domain.Resource) error {
	row, hours := persistence.FromResource(resource, s.timestamp())
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		res, err := db.NewUpdate().Model(&row).
			Column("kind", "name", "timezone", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return mapError(err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if _, err := db.NewDelete().Model((*persistence.WorkingHours)(nil)).Where("resource_id = ?", row.ID).Exec(ctx); err != nil {
			return mapError(err)
		}
		return insertHours(ctx, db, hours)
	})
}

func insertHours(ctx context.Context, db bun.IDB, hours []persistence.WorkingHours) error {
	if len(hours) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&hours).Exec(ctx)
	return mapError(err)
}

// GetResource implements persistence.ResourceRepository.
func (s *Store) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	var row persistence.Resource
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Resource{}, mapError(err)
	}
	var hours []persistence.WorkingHours
	if err := s.db.NewSelect().Model(&hours).
		Where("resource_id = ?", id).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx); err != nil {
		return domain.Resource{}, mapError(err)
	}
	return row.Domain(hours), nil
}

// ListResources implements persistence.ResourceRepository.
func (s *Store) ListResources(ctx context.Context) ([]domain.Resource, error) {
	var rows []persistence.Resource
	if err := s.db.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	var hours []persistence.WorkingHours
	if err := s.db.NewSelect().Model(&hours).
		OrderExpr("resource_id ASC, weekday ASC, start_minute ASC").
		Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	byResource := make(map[string][]persistence.WorkingHours, len(rows))
	for _, wh := range hours {
		byResource[wh.ResourceID] = append(byResource[wh.ResourceID], wh)
	}
	out := make([]domain.Resource, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Domain(byResource[row.ID]))
	}
	return out, nil
}

// DeleteResource implements persistence.ResourceRepository. A resource that
// still has bookings cannot be removed.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		inUse, err := db.NewSelect().Model((*persistence.BookingResource)(nil)).Where("resource_id = ?", id).Exists(ctx)
		if err != nil {
			return mapError(err)
		}
		if inUse {
			return errors.Wrapf(persistence.ErrConstraintViolation, "resource %s has bookings", id)
		}
		for _, model := range []any{
			(*persistence.WorkingHours)(nil),
			(*persistence.BlockedDate)(nil),
			(*persistence.BufferRule)(nil),
		} {
			if _, err := db.NewDelete().Model(model).Where("resource_id = ?", id).Exec(ctx); err != nil {
				return mapError(err)
			}
		}
		res, err := db.NewDelete().Model((*persistence.Resource)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return mapError(err)
		}
		return requireAffected(res)
	})
}

// ----------------------------- Blocked dates -------------------------

// CreateBlockedDate implements persistence.BlockedDateRepository.
func (s *Store) CreateBlockedDate(ctx context.Context, blocked domain.BlockedDate) error {
	row := persistence.FromBlockedDate(blocked, s.timestamp())
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return mapError(err)
}

// ListBlockedDates implements persistence.BlockedDateRepository.
func (s *Store) ListBlockedDates(ctx context.Context, resourceID string, from, to time.Time) ([]domain.BlockedDate, error) {
	var rows []persistence.BlockedDate
	err := s.db.NewSelect().Model(&rows).
		Where("resource_id = ?", resourceID).
		Where("starts_at < ?", to.UTC()).
		Where("ends_at > ?", from.UTC()).
		OrderExpr("starts_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.BlockedDate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Domain())
	}
	return out, nil
}

// DeleteBlockedDate implements persistence.BlockedDateRepository.
func (s *Store) DeleteBlockedDate(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*persistence.BlockedDate)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// ----------------------------- Buffer rules --------------------------

// CreateBufferRule implements persistence.BufferRuleRepository.
func (s *Store) CreateBufferRule(ctx context.Context, rule domain.BufferRule) error {
	row := persistence.FromBufferRule(rule)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return mapError(err)
}

// ListBufferRules implements persistence.BufferRuleRepository.
func (s *Store) ListBufferRules(ctx context.Context, resourceID string) ([]domain.BufferRule, error) {
	var rows []persistence.BufferRule
	if err := s.db.NewSelect().Model(&rows).Where("resource_id = ?", resourceID).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.BufferRule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Domain())
	}
	return out, nil
}

// DeleteBufferRule implements persistence.BufferRuleRepository.
func (s *Store) DeleteBufferRule(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*persistence.BufferRule)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}
