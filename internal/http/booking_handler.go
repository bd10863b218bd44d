package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/recurrence"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (domain.Booking, error)
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	CancelBooking(ctx context.Context, id string) error
	BookFromLink(ctx context.Context, slug string, start time.Time) (domain.Booking, error)
}

// BookingHandler creates, reads and cancels bookings.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(c *gin.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(c.Request.Context(), h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) ready(c *gin.Context) bool {
	if h == nil || h.service == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: errServiceNotReady.Error()})
		return false
	}
	return true
}

// Create books the requested resources. A rejected proposal answers 409 with
// the per-resource verdicts.
func (h *BookingHandler) Create(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "Create", "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	params := application.CreateBookingParams{
		ResourceIDs: req.ResourceIDs,
		ServiceID:   req.ServiceID,
		Start:       req.Start,
		End:         req.End,
	}
	if text := strings.TrimSpace(req.Recurrence); text != "" {
		rule, err := recurrence.ParseRRule(text)
		if err != nil {
			h.responder.handleServiceError(c, err)
			return
		}
		params.Recurrence = &rule
	}

	logger := h.log(c, "Create", "resource_ids", req.ResourceIDs)
	booking, err := h.service.CreateBooking(c.Request.Context(), params)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "booking rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.With("booking_id", booking.ID).InfoContext(c.Request.Context(), "booking created")
	h.responder.writeJSON(c, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Get(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	booking, err := h.service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errMissingID)
		return
	}

	logger := h.log(c, "Cancel", "booking_id", id)
	if err := h.service.CancelBooking(c.Request.Context(), id); err != nil {
		logger.ErrorContext(c.Request.Context(), "booking cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}
	logger.InfoContext(c.Request.Context(), "booking cancelled")
	h.responder.writeJSON(c, http.StatusNoContent, nil)
}

// BookFromLink converts a slot offered by a link into a booking.
func (h *BookingHandler) BookFromLink(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	slug := c.Param("slug")

	var req linkBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "BookFromLink", "slug", slug, "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode link booking", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(c, "BookFromLink", "slug", slug)
	booking, err := h.service.BookFromLink(c.Request.Context(), slug, req.Start)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "link booking rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.With("booking_id", booking.ID).InfoContext(c.Request.Context(), "booking created from link")
	h.responder.writeJSON(c, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

type bookingRequest struct {
	ResourceIDs []string  `json:"resource_ids"`
	ServiceID   string    `json:"service_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	// Recurrence is RRULE text such as "FREQ=WEEKLY;BYDAY=MO,WE".
	Recurrence string `json:"recurrence"`
}

type linkBookingRequest struct {
	Start time.Time `json:"start"`
}

type bookingDTO struct {
	ID          string   `json:"id"`
	ResourceIDs []string `json:"resource_ids"`
	ServiceID   string   `json:"service_id,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Recurrence  string   `json:"recurrence,omitempty"`
	Status      string   `json:"status"`
	LinkID      string   `json:"link_id,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

func toBookingDTO(booking domain.Booking) bookingDTO {
	dto := bookingDTO{
		ID:          booking.ID,
		ResourceIDs: append([]string(nil), booking.ResourceIDs...),
		ServiceID:   booking.ServiceID,
		Start:       formatTime(booking.Start),
		End:         formatTime(booking.End),
		Status:      string(booking.Status),
		LinkID:      booking.LinkID,
		CreatedAt:   formatTime(booking.CreatedAt),
	}
	if booking.Recurrence != nil {
		if text, err := recurrence.FormatRRule(*booking.Recurrence); err == nil {
			dto.Recurrence = text
		}
	}
	return dto
}
