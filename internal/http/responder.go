package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/logging"
	"github.com/example/availability-engine/internal/recurrence"
	"github.com/example/availability-engine/internal/scheduler"
)

var (
	errBadRequestBody  = errors.New("request body is malformed")
	errMissingID       = errors.New("identifier is required")
	errServiceNotReady = errors.New("service not configured")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(c *gin.Context, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		c.Status(status)
		c.Writer.WriteHeaderNow()
		return
	}
	c.JSON(status, payload)
}

func (r responder) writeError(c *gin.Context, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed", "status", status, "error", err)
	}
	r.writeJSON(c, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError translates service errors into HTTP responses. Expected
// rejections keep their detail; anything unknown becomes a 500 without it.
func (r responder) handleServiceError(c *gin.Context, err error) {
	if err == nil {
		r.writeError(c, http.StatusInternalServerError, "INTERNAL", errors.New("unknown error"))
		return
	}

	var (
		vErr    *application.ValidationError
		cErr    *application.ConflictError
		lErr    *application.LinkRefusedError
		ivErr   *domain.InvalidIntervalError
		ruleErr *recurrence.InvalidRuleError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &ivErr):
		r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_INTERVAL",
			Message:   ivErr.Error(),
			Errors:    map[string]string{ivErr.Field: "end must be after start"},
		})
	case errors.As(err, &ruleErr):
		r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_RULE",
			Message:   ruleErr.Error(),
			Errors:    map[string]string{"recurrence." + ruleErr.Field: ruleErr.Reason},
		})
	case errors.Is(err, scheduler.ErrNoResources):
		r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "request contains invalid fields",
			Errors:    map[string]string{"resource_ids": "at least one resource is required"},
		})
	case errors.As(err, &cErr):
		r.writeJSON(c, http.StatusConflict, errorResponse{
			ErrorCode: "BOOKING_CONFLICT",
			Message:   "the proposal conflicts with existing commitments",
			Conflicts: toVerdictDTOs(cErr.Decision.Rejections()),
		})
	case errors.As(err, &lErr):
		r.writeJSON(c, http.StatusGone, errorResponse{
			ErrorCode: strings.ToUpper(string(lErr.Reason)),
			Message:   lErr.Error(),
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(c, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "the requested record does not exist"})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(c, http.StatusConflict, errorResponse{ErrorCode: "ALREADY_EXISTS", Message: "a record with the same identity already exists"})
	case errors.Is(err, application.ErrInUse):
		r.writeJSON(c, http.StatusConflict, errorResponse{ErrorCode: "IN_USE", Message: "the record is still referenced"})
	default:
		r.loggerFor(c.Request.Context()).ErrorContext(c.Request.Context(), "unexpected service error", "error", err)
		r.writeJSON(c, http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflicts []verdictDTO      `json:"conflicts,omitempty"`
}
