package sqlstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"

	"github.com/example/availability-engine/internal/persistence"
)

// SchemaMigration records an applied schema version.
type SchemaMigration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Description string    `bun:"description,notnull"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
}

type migration struct {
	version     string
	description string
	up          func(ctx context.Context, tx bun.Tx) error
}

// migrations run in order, each inside its own transaction.
var migrations = []migration{
	{version: "001", description: "create resource catalog", up: createCatalog},
	{version: "002", description: "create bookings", up: createBookings},
	{version: "003", description: "create booking links", up: createLinks},
}

// Versions lists the known schema versions in order.
func Versions() []string {
	out := make([]string, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, m.version)
	}
	return out
}

// Migrate applies pending schema versions and returns how many ran.
func Migrate(ctx context.Context, db *bun.DB, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.NewCreateTable().Model((*SchemaMigration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "sqlstore: create schema_migrations")
	}

	var applied []SchemaMigration
	if err := db.NewSelect().Model(&applied).Order("version").Scan(ctx); err != nil {
		return 0, errors.Wrap(err, "sqlstore: list applied migrations")
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}
	current := "none"
	if len(applied) > 0 {
		current = applied[len(applied)-1].Version
	}
	logger.InfoContext(ctx, "schema version", slog.String("current", current), slog.Int("known", len(migrations)))

	ran := 0
	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		started := time.Now()
		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := m.up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.NewInsert().Model(&SchemaMigration{
				Version:     m.version,
				Description: m.description,
				AppliedAt:   time.Now().UTC(),
			}).Exec(ctx)
			return err
		})
		if err != nil {
			logger.ErrorContext(ctx, "migration failed", slog.String("version", m.version), slog.Any("error", err))
			return ran, errors.Wrapf(err, "sqlstore: migration %s (%s)", m.version, m.description)
		}
		ran++
		logger.InfoContext(ctx, "migration applied",
			slog.String("version", m.version),
			slog.String("description", m.description),
			slog.Duration("duration", time.Since(started)),
		)
	}
	return ran, nil
}

func createCatalog(ctx context.Context, tx bun.Tx) error {
	if _, err := tx.NewCreateTable().Model((*persistence.Resource)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewCreateTable().Model((*persistence.WorkingHours)(nil)).IfNotExists().
		ForeignKey(`("resource_id") REFERENCES "resources" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewCreateTable().Model((*persistence.BlockedDate)(nil)).IfNotExists().
		ForeignKey(`("resource_id") REFERENCES "resources" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewCreateIndex().Model((*persistence.BlockedDate)(nil)).IfNotExists().
		Index("blocked_dates_resource_span_idx").Column("resource_id", "starts_at", "ends_at").
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewCreateTable().Model((*persistence.BufferRule)(nil)).IfNotExists().
		ForeignKey(`("resource_id") REFERENCES "resources" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewCreateIndex().Model((*persistence.BufferRule)(nil)).IfNotExists().
		Index("buffer_rules_resource_idx").Column("resource_id").
		Exec(ctx)
	return err
}

func createBookings(ctx context.Context, tx bun.Tx) error {
	if _, err := tx.NewCreateTable().Model((*persistence.Booking)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewCreateIndex().Model((*persistence.Booking)(nil)).IfNotExists().
		Index("bookings_span_idx").Column("starts_at", "series_ends_at").
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewCreateTable().Model((*persistence.BookingResource)(nil)).IfNotExists().
		ForeignKey(`("booking_id") REFERENCES "bookings" ("id") ON DELETE CASCADE`).
		ForeignKey(`("resource_id") REFERENCES "resources" ("id")`).
		Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewCreateIndex().Model((*persistence.BookingResource)(nil)).IfNotExists().
		Index("booking_resources_resource_idx").Column("resource_id").
		Exec(ctx)
	return err
}

func createLinks(ctx context.Context, tx bun.Tx) error {
	_, err := tx.NewCreateTable().Model((*persistence.BookingLink)(nil)).IfNotExists().Exec(ctx)
	return err
}
