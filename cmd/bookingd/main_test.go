package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/example/availability-engine/internal/config"
	"github.com/example/availability-engine/internal/persistence/sqlstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: 8080, RequestTimeout: 5 * time.Second},
		Database: config.DatabaseConfig{
			DSN: "file:" + filepath.Join(t.TempDir(), "bookings.db") + "?_pragma=foreign_keys(1)",
		},
		Engine: config.EngineConfig{
			Horizon:            366 * 24 * time.Hour,
			ConflictLookaround: 24 * time.Hour,
			MaxOccurrences:     50000,
		},
		Cache:           config.CacheConfig{Size: 16, TTL: time.Minute},
		CORS:            config.CORSConfig{AllowOrigins: []string{"*"}},
		ShutdownTimeout: time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestModuleGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(Module, fx.NopLogger)
	require.NoError(t, err)
}

func TestNewDBMigratesAndCloses(t *testing.T) {
	cfg := testConfig(t)
	lc := fxtest.NewLifecycle(t)

	db, err := newDB(lc, cfg, discardLogger())
	require.NoError(t, err)
	lc.RequireStart()

	applied, err := sqlstore.Migrate(context.Background(), db, discardLogger())
	require.NoError(t, err)
	assert.Zero(t, applied, "migrations ran again on an up to date schema")
	require.NoError(t, newStore(db).Ping(context.Background()))

	lc.RequireStop()
	assert.Error(t, db.PingContext(context.Background()))
}

func TestNewDBReportsUnreachableDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "missing", "bookings.db")

	_, err := newDB(fxtest.NewLifecycle(t), cfg, discardLogger())
	require.Error(t, err)
}

func TestRouterServesHealthAndAPI(t *testing.T) {
	var router *gin.Engine
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(testConfig(t)),
		fx.Provide(discardLogger),
		StoreModule,
		ServiceModule,
		fx.Provide(newRouter),
		fx.Populate(&router),
	)
	app.RequireStart()
	defer app.RequireStop()

	handler := newHandler(router)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/resources", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resources":[]}`, rec.Body.String())
}
