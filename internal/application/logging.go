package application

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/logging"
	"github.com/example/availability-engine/internal/recurrence"
)

var tracer = otel.Tracer("github.com/example/availability-engine/internal/application")

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInUse):
		return "in_use"
	case errors.Is(err, domain.ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, recurrence.ErrInvalidRule):
		return "invalid_rule"
	case errors.Is(err, recurrence.ErrExpansionHorizonExceeded):
		return "horizon_exceeded"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return "conflict"
	}
	var lErr *LinkRefusedError
	if errors.As(err, &lErr) {
		return "link_refused"
	}

	return "unexpected"
}

// finishSpan records the outcome of an operation on its span. Expected
// rejections are not marked as span errors.
func finishSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	if kind := ErrorKind(err); kind == "unexpected" {
		span.SetStatus(codes.Error, err.Error())
	}
}
