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
)

type linkCatalog interface {
	CreateLink(ctx context.Context, input domain.BookingLink) (domain.BookingLink, error)
	GetLink(ctx context.Context, slug string) (domain.BookingLink, error)
}

type linkSlotFinder interface {
	LinkSlots(ctx context.Context, slug string, window domain.Window, limit int) (application.LinkSlots, error)
}

// LinkHandler manages booking links and the slots they offer.
type LinkHandler struct {
	catalog   linkCatalog
	slots     linkSlotFinder
	responder responder
	logger    *slog.Logger
}

func NewLinkHandler(catalog linkCatalog, slots linkSlotFinder, logger *slog.Logger) *LinkHandler {
	base := defaultLogger(logger)
	return &LinkHandler{catalog: catalog, slots: slots, responder: newResponder(base), logger: base}
}

func (h *LinkHandler) log(c *gin.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(c.Request.Context(), h.logger, "LinkHandler", operation, attrs...)
}

func (h *LinkHandler) ready(c *gin.Context) bool {
	if h == nil || h.catalog == nil || h.slots == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: errServiceNotReady.Error()})
		return false
	}
	return true
}

func (h *LinkHandler) Create(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "Create", "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode link request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(c, "Create", "resource_ids", req.ResourceIDs)
	link, err := h.catalog.CreateLink(c.Request.Context(), req.toDomain())
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "link creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.With("slug", link.Slug).InfoContext(c.Request.Context(), "link created")
	h.responder.writeJSON(c, http.StatusCreated, linkResponse{Link: toLinkDTO(link)})
}

func (h *LinkHandler) Get(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	link, err := h.catalog.GetLink(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, linkResponse{Link: toLinkDTO(link)})
}

// Slots lists the start times a link offers between from and to. A refused
// link answers 200 with its reason and no slots.
func (h *LinkHandler) Slots(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	slug := c.Param("slug")

	errs := fieldErrors{}
	window := queryWindow(c, errs)
	limit := queryInt(c, "limit", errs)
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	result, err := h.slots.LinkSlots(c.Request.Context(), slug, window, limit.OrEmpty())
	if err != nil {
		h.log(c, "Slots", "slug", slug).ErrorContext(c.Request.Context(), "link slots failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	h.responder.writeJSON(c, http.StatusOK, linkSlotsResponse{
		Link:   toLinkDTO(result.Link),
		Slots:  toSlotDTOs(result.Slots),
		Reason: string(result.Reason),
	})
}

type linkRequest struct {
	Slug            string     `json:"slug"`
	ServiceID       string     `json:"service_id"`
	ResourceIDs     []string   `json:"resource_ids"`
	Type            string     `json:"type"`
	DurationMinutes int        `json:"duration_minutes"`
	StepMinutes     int        `json:"step_minutes"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (r linkRequest) toDomain() domain.BookingLink {
	return domain.BookingLink{
		Slug:        r.Slug,
		ServiceID:   r.ServiceID,
		ResourceIDs: r.ResourceIDs,
		Type:        domain.LinkType(strings.TrimSpace(r.Type)),
		Duration:    minutes(r.DurationMinutes),
		Step:        minutes(r.StepMinutes),
		ExpiresAt:   r.ExpiresAt,
	}
}

type linkDTO struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	ServiceID       string   `json:"service_id,omitempty"`
	ResourceIDs     []string `json:"resource_ids"`
	Type            string   `json:"type"`
	DurationMinutes int      `json:"duration_minutes"`
	StepMinutes     int      `json:"step_minutes"`
	ExpiresAt       *string  `json:"expires_at,omitempty"`
	SpentAt         *string  `json:"spent_at,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

type linkResponse struct {
	Link linkDTO `json:"link"`
}

type linkSlotsResponse struct {
	Link   linkDTO       `json:"link"`
	Slots  []intervalDTO `json:"slots"`
	Reason string        `json:"reason,omitempty"`
}

func toLinkDTO(link domain.BookingLink) linkDTO {
	return linkDTO{
		ID:              link.ID,
		Slug:            link.Slug,
		ServiceID:       link.ServiceID,
		ResourceIDs:     append([]string(nil), link.ResourceIDs...),
		Type:            string(link.Type),
		DurationMinutes: toMinutes(link.Duration),
		StepMinutes:     toMinutes(link.Step),
		ExpiresAt:       formatOptionalTime(link.ExpiresAt),
		SpentAt:         formatOptionalTime(link.SpentAt),
		CreatedAt:       formatTime(link.CreatedAt),
	}
}
