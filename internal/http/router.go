package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Resources    *ResourceHandler
	Availability *AvailabilityHandler
	Bookings     *BookingHandler
	Links        *LinkHandler
	Health       HealthChecker
	AllowOrigins []string
	Logger       *slog.Logger
	Middleware   []gin.HandlerFunc
}

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// NewRouter builds the gin engine serving the booking API under /api.
func NewRouter(cfg RouterConfig) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// Recovery must stay outermost to catch panics from the other middleware.
	engine.Use(Recovery(cfg.Logger))
	engine.Use(RequestID())
	engine.Use(CORS(cfg.AllowOrigins))
	engine.Use(RequestLogger(cfg.Logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			engine.Use(mw)
		}
	}

	responder := newResponder(cfg.Logger)
	engine.NoRoute(func(c *gin.Context) {
		responder.writeJSON(c, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "route not found"})
	})
	engine.NoMethod(func(c *gin.Context) {
		responder.writeJSON(c, http.StatusMethodNotAllowed, errorResponse{ErrorCode: "METHOD_NOT_ALLOWED", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})
	engine.GET("/health", healthCheck(cfg.Health))

	api := engine.Group("/api")
	if h := cfg.Resources; h != nil {
		addRoutes(api, []route{
			{Method: http.MethodGet, Path: "/resources", Handler: h.List},
			{Method: http.MethodPost, Path: "/resources", Handler: h.Create},
			{Method: http.MethodGet, Path: "/resources/:id", Handler: h.Get},
			{Method: http.MethodPut, Path: "/resources/:id", Handler: h.Update},
			{Method: http.MethodDelete, Path: "/resources/:id", Handler: h.Delete},
			{Method: http.MethodGet, Path: "/resources/:id/blocked-dates", Handler: h.ListBlockedDates},
			{Method: http.MethodPost, Path: "/resources/:id/blocked-dates", Handler: h.CreateBlockedDate},
			{Method: http.MethodDelete, Path: "/resources/:id/blocked-dates/:blocked_id", Handler: h.DeleteBlockedDate},
			{Method: http.MethodGet, Path: "/resources/:id/buffer-rules", Handler: h.ListBufferRules},
			{Method: http.MethodPost, Path: "/resources/:id/buffer-rules", Handler: h.CreateBufferRule},
			{Method: http.MethodDelete, Path: "/resources/:id/buffer-rules/:rule_id", Handler: h.DeleteBufferRule},
		})
	}
	if h := cfg.Availability; h != nil {
		addRoutes(api, []route{
			{Method: http.MethodGet, Path: "/resources/:id/availability", Handler: h.Availability},
			{Method: http.MethodPost, Path: "/conflicts/check", Handler: h.CheckConflict},
			{Method: http.MethodGet, Path: "/slots", Handler: h.Slots},
			{Method: http.MethodPost, Path: "/recurrence/expand", Handler: h.Expand},
		})
	}
	if h := cfg.Bookings; h != nil {
		addRoutes(api, []route{
			{Method: http.MethodPost, Path: "/bookings", Handler: h.Create},
			{Method: http.MethodGet, Path: "/bookings/:id", Handler: h.Get},
			{Method: http.MethodDelete, Path: "/bookings/:id", Handler: h.Cancel},
			{Method: http.MethodPost, Path: "/bookings/:id/cancel", Handler: h.Cancel},
			{Method: http.MethodPost, Path: "/links/:slug/bookings", Handler: h.BookFromLink},
		})
	}
	if h := cfg.Links; h != nil {
		addRoutes(api, []route{
			{Method: http.MethodPost, Path: "/links", Handler: h.Create},
			{Method: http.MethodGet, Path: "/links/:slug", Handler: h.Get},
			{Method: http.MethodGet, Path: "/links/:slug/slots", Handler: h.Slots},
		})
	}

	return engine
}

func healthCheck(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func addRoutes(g *gin.RouterGroup, routes []route) {
	for _, r := range routes {
		g.Handle(r.Method, r.Path, r.Handler)
	}
}
