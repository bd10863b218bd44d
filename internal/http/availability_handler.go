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
	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/recurrence"
	"github.com/example/availability-engine/internal/scheduler"
)

type availabilityService interface {
	Resolve(ctx context.Context, resourceID string, window domain.Window, minDuration time.Duration) ([]domain.AvailabilitySlot, error)
	Busy(ctx context.Context, resourceID string, window domain.Window) ([]interval.Interval, error)
	CheckConflict(ctx context.Context, params application.ConflictParams) (scheduler.Decision, error)
	Slots(ctx context.Context, params application.SlotParams) ([]domain.Slot, error)
	Expand(ctx context.Context, params application.ExpandParams) (application.Expansion, error)
}

// AvailabilityHandler answers availability, conflict, slot and recurrence
// queries. None of them change state.
type AvailabilityHandler struct {
	service   availabilityService
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, now func() time.Time, logger *slog.Logger) *AvailabilityHandler {
	if now == nil {
		now = time.Now
	}
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, now: now, responder: newResponder(base), logger: base}
}

func (h *AvailabilityHandler) log(c *gin.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(c.Request.Context(), h.logger, "AvailabilityHandler", operation, attrs...)
}

func (h *AvailabilityHandler) ready(c *gin.Context) bool {
	if h == nil || h.service == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: errServiceNotReady.Error()})
		return false
	}
	return true
}

// Availability returns the free time of a resource, or its busy time as an
// iCalendar VFREEBUSY document when format=ics.
func (h *AvailabilityHandler) Availability(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	resourceID := c.Param("id")

	errs := fieldErrors{}
	window := queryWindow(c, errs)
	minDuration := queryInt(c, "min_duration", errs)
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	logger := h.log(c, "Availability", "resource_id", resourceID)

	if strings.EqualFold(c.Query("format"), "ics") {
		busy, err := h.service.Busy(c.Request.Context(), resourceID, window)
		if err != nil {
			logger.ErrorContext(c.Request.Context(), "busy lookup failed", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(c, err)
			return
		}
		body, err := encodeFreeBusy(resourceID, window, busy, h.now())
		if err != nil {
			h.responder.writeError(c, http.StatusInternalServerError, "INTERNAL", err)
			return
		}
		c.Data(http.StatusOK, icalContentType, body)
		return
	}

	free, err := h.service.Resolve(c.Request.Context(), resourceID, window, minutes(minDuration.OrEmpty()))
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "availability lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	out := make([]intervalDTO, 0, len(free))
	for _, slot := range free {
		out = append(out, intervalDTO{Start: formatTime(slot.Start), End: formatTime(slot.End)})
	}
	h.responder.writeJSON(c, http.StatusOK, availabilityResponse{
		ResourceID: resourceID,
		From:       formatTime(window.Start),
		To:         formatTime(window.End),
		Free:       out,
	})
}

// CheckConflict judges a proposal without booking it. Rejections are part of
// a 200 answer.
func (h *AvailabilityHandler) CheckConflict(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req conflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "CheckConflict", "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode conflict request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	decision, err := h.service.CheckConflict(c.Request.Context(), application.ConflictParams{
		ResourceIDs:     req.ResourceIDs,
		ServiceID:       req.ServiceID,
		Start:           req.Start,
		End:             req.End,
		IgnoreBookingID: req.IgnoreBookingID,
	})
	if err != nil {
		h.log(c, "CheckConflict", "resource_ids", req.ResourceIDs).ErrorContext(c.Request.Context(), "conflict check failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	h.responder.writeJSON(c, http.StatusOK, decisionResponse{
		Accepted: decision.Accepted,
		Verdicts: toVerdictDTOs(decision.Verdicts),
	})
}

// Slots lists start times at which every requested resource is free.
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	errs := fieldErrors{}
	window := queryWindow(c, errs)
	duration := queryInt(c, "duration", errs)
	step := queryInt(c, "step", errs)
	limit := queryInt(c, "limit", errs)
	if duration.IsAbsent() {
		errs.add("duration", "is required")
	}
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	resourceIDs := queryList(c, "resource_ids")
	found, err := h.service.Slots(c.Request.Context(), application.SlotParams{
		ResourceIDs: resourceIDs,
		ServiceID:   strings.TrimSpace(c.Query("service_id")),
		Duration:    minutes(duration.OrEmpty()),
		Step:        minutes(step.OrEmpty()),
		Window:      window,
		Limit:       limit.OrEmpty(),
	})
	if err != nil {
		h.log(c, "Slots", "resource_ids", resourceIDs).ErrorContext(c.Request.Context(), "slot generation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, slotsResponse{Slots: toSlotDTOs(found)})
}

// Expand previews the occurrences of a recurrence rule.
func (h *AvailabilityHandler) Expand(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "Expand", "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode expand request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	expansion, err := h.service.Expand(c.Request.Context(), params)
	if err != nil {
		h.log(c, "Expand").ErrorContext(c.Request.Context(), "recurrence expansion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, expandResponse{
		Occurrences: toIntervalDTOs(expansion.Occurrences),
		Truncated:   expansion.Truncated,
	})
}

type availabilityResponse struct {
	ResourceID string        `json:"resource_id"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Free       []intervalDTO `json:"free"`
}

type conflictRequest struct {
	ResourceIDs     []string  `json:"resource_ids"`
	ServiceID       string    `json:"service_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	IgnoreBookingID string    `json:"ignore_booking_id"`
}

type decisionResponse struct {
	Accepted bool         `json:"accepted"`
	Verdicts []verdictDTO `json:"verdicts"`
}

type slotsResponse struct {
	Slots []intervalDTO `json:"slots"`
}

type ruleDTO struct {
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	ByWeekday  []string   `json:"by_weekday"`
	ByMonthDay int        `json:"by_month_day"`
	Count      int        `json:"count"`
	Until      *time.Time `json:"until"`
}

type expandRequest struct {
	RRule           string     `json:"rrule"`
	Rule            *ruleDTO   `json:"rule"`
	Anchor          time.Time  `json:"anchor"`
	DurationMinutes int        `json:"duration_minutes"`
	From            *time.Time `json:"from"`
	To              *time.Time `json:"to"`
	Timezone        string     `json:"timezone"`
}

func (r expandRequest) toParams() (application.ExpandParams, error) {
	params := application.ExpandParams{
		RRule:    r.RRule,
		Anchor:   r.Anchor,
		Duration: minutes(r.DurationMinutes),
		Timezone: strings.TrimSpace(r.Timezone),
	}
	if r.From != nil {
		params.Window.Start = *r.From
	}
	if r.To != nil {
		params.Window.End = *r.To
	}
	if r.Rule == nil {
		return params, nil
	}

	errs := fieldErrors{}
	freq, err := recurrence.ParseFrequency(r.Rule.Frequency)
	if err != nil {
		errs.add("rule.frequency", "must be daily, weekly, monthly or yearly")
	}
	days := parseWeekdays("rule.by_weekday", r.Rule.ByWeekday, errs)
	if err := errs.err(); err != nil {
		return application.ExpandParams{}, err
	}
	every := r.Rule.Interval
	if every == 0 {
		every = 1
	}
	params.Rule = &recurrence.Rule{
		Frequency:  freq,
		Interval:   every,
		ByWeekday:  days,
		ByMonthDay: r.Rule.ByMonthDay,
		Count:      r.Rule.Count,
		Until:      r.Rule.Until,
	}
	return params, nil
}

type expandResponse struct {
	Occurrences []intervalDTO `json:"occurrences"`
	Truncated   bool          `json:"truncated"`
}
