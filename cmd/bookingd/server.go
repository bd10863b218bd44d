package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/config"
	httptransport "github.com/example/availability-engine/internal/http"
	"github.com/example/availability-engine/internal/persistence/sqlstore"
)

var HTTPModule = fx.Module("http",
	fx.Provide(
		newRouter,
		newServer,
	),
	fx.Invoke(func(*http.Server) {}),
)

func newRouter(cfg config.Config, store *sqlstore.Store, availability *application.AvailabilityService, bookings *application.BookingService, catalog *application.CatalogService, logger *slog.Logger) *gin.Engine {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Resources:    httptransport.NewResourceHandler(catalog, logger),
		Availability: httptransport.NewAvailabilityHandler(availability, time.Now, logger),
		Bookings:     httptransport.NewBookingHandler(bookings, logger),
		Links:        httptransport.NewLinkHandler(catalog, availability, logger),
		Health:       store,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Logger:       logger,
	})
}

func newHandler(router http.Handler) http.Handler {
	return otelhttp.NewHandler(router, "bookingd",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func newServer(lc fx.Lifecycle, cfg config.Config, router *gin.Engine, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           newHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.RequestTimeout,
		WriteTimeout:      cfg.HTTP.RequestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return errors.Wrapf(err, "listen on %s", server.Addr)
			}
			logger.Info("bookingd listening", "addr", ln.Addr().String(), "mode", gin.Mode())
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server encountered error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			logger.Info("shutting down bookingd")
			if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "shutdown server")
			}
			return nil
		},
	})
	return server
}
