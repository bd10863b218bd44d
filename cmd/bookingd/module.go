package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/config"
	"github.com/example/availability-engine/internal/engine"
	"github.com/example/availability-engine/internal/logging"
	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/persistence/sqlstore"
	"github.com/example/availability-engine/internal/telemetry"
)

// Module wires the booking daemon.
var Module = fx.Options(
	ConfigModule,
	StoreModule,
	ServiceModule,
	HTTPModule,
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		config.Load,
		newLogger,
	),
	fx.Invoke(setupTelemetry),
)

var StoreModule = fx.Module("store",
	fx.Provide(
		newDB,
		newStore,
		func(store *sqlstore.Store) persistence.Store { return store },
	),
)

var ServiceModule = fx.Module("services",
	fx.Provide(
		engineConfig,
		newEngine,
		newCache,
		newAvailabilityService,
		newBookingService,
		newCatalogService,
	),
)

func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) error {
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		Enabled:     cfg.OTel.Enabled,
		ServiceName: cfg.OTel.ServiceName,
		Endpoint:    cfg.OTel.Endpoint,
		Insecure:    cfg.OTel.Insecure,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		return err
	}
	if cfg.OTel.Enabled {
		logger.Info("trace export enabled", "endpoint", cfg.OTel.Endpoint, "sample_ratio", cfg.OTel.SampleRatio)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return shutdown(ctx)
		},
	})
	return nil
}

func newDB(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (*bun.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlstore.Open(ctx, cfg.Database.DSN, sqlstore.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}
	applied, err := sqlstore.Migrate(ctx, db, logger.With("component", "migrate"))
	if err != nil {
		_ = sqlstore.Close(db)
		return nil, err
	}
	logger.Info("database ready", "postgres", sqlstore.IsPostgres(cfg.Database.DSN), "migrations_applied", applied)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sqlstore.Close(db)
		},
	})
	return db, nil
}

func newStore(db *bun.DB) *sqlstore.Store {
	return sqlstore.New(db)
}

func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Horizon:            cfg.Engine.Horizon,
		ConflictLookaround: cfg.Engine.ConflictLookaround,
		MaxOccurrences:     cfg.Engine.MaxOccurrences,
		MaxGoroutines:      cfg.Engine.MaxGoroutines,
	}
}

func newEngine(cfg engine.Config) *engine.Engine {
	return engine.New(cfg, time.Now)
}

// newCache returns nil when caching is disabled; a nil cache never hits.
func newCache(cfg config.Config) *application.Cache {
	if cfg.Cache.Size == 0 {
		return nil
	}
	return application.NewCache(cfg.Cache.Size, cfg.Cache.TTL)
}

func newAvailabilityService(store persistence.Store, eng *engine.Engine, cfg engine.Config, cache *application.Cache, logger *slog.Logger) *application.AvailabilityService {
	return application.NewAvailabilityServiceWithLogger(store, eng, cfg, cache, time.Now, logger)
}

func newBookingService(store persistence.Store, eng *engine.Engine, cfg engine.Config, cache *application.Cache, logger *slog.Logger) *application.BookingService {
	return application.NewBookingServiceWithLogger(store, eng, cfg, cache, nil, time.Now, logger)
}

func newCatalogService(store persistence.Store, cache *application.Cache, logger *slog.Logger) *application.CatalogService {
	return application.NewCatalogServiceWithLogger(store, cache, nil, time.Now, logger)
}
