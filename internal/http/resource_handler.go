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

type catalogService interface {
	CreateResource(ctx context.Context, input domain.Resource) (domain.Resource, error)
	UpdateResource(ctx context.Context, input domain.Resource) (domain.Resource, error)
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	ListResources(ctx context.Context) ([]domain.Resource, error)
	DeleteResource(ctx context.Context, id string) error
	CreateBlockedDate(ctx context.Context, input domain.BlockedDate) (domain.BlockedDate, error)
	ListBlockedDates(ctx context.Context, resourceID string, window domain.Window) ([]domain.BlockedDate, error)
	DeleteBlockedDate(ctx context.Context, id string) error
	CreateBufferRule(ctx context.Context, input domain.BufferRule) (domain.BufferRule, error)
	ListBufferRules(ctx context.Context, resourceID string) ([]domain.BufferRule, error)
	DeleteBufferRule(ctx context.Context, id string) error
}

// ResourceHandler serves the resource catalog with its blocked dates and
// buffer rules.
type ResourceHandler struct {
	service   catalogService
	responder responder
	logger    *slog.Logger
}

func NewResourceHandler(service catalogService, logger *slog.Logger) *ResourceHandler {
	base := defaultLogger(logger)
	return &ResourceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ResourceHandler) log(c *gin.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(c.Request.Context(), h.logger, "ResourceHandler", operation, attrs...)
}

func (h *ResourceHandler) ready(c *gin.Context) bool {
	if h == nil || h.service == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: errServiceNotReady.Error()})
		return false
	}
	return true
}

func (h *ResourceHandler) Create(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req resourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "Create", "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode resource request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	input, err := req.toDomain(strings.TrimSpace(req.ID))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	logger := h.log(c, "Create")
	resource, err := h.service.CreateResource(c.Request.Context(), input)
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "resource creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.With("resource_id", resource.ID).InfoContext(c.Request.Context(), "resource created")
	h.responder.writeJSON(c, http.StatusCreated, resourceResponse{Resource: toResourceDTO(resource)})
}

func (h *ResourceHandler) Update(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id := strings.TrimSpace(c.Param("id"))

	var req resourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "Update", "resource_id", id, "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode resource update", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	input, err := req.toDomain(id)
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	logger := h.log(c, "Update", "resource_id", id)
	resource, err := h.service.UpdateResource(c.Request.Context(), input)
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "resource update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.InfoContext(c.Request.Context(), "resource updated")
	h.responder.writeJSON(c, http.StatusOK, resourceResponse{Resource: toResourceDTO(resource)})
}

func (h *ResourceHandler) Get(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	resource, err := h.service.GetResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, resourceResponse{Resource: toResourceDTO(resource)})
}

func (h *ResourceHandler) List(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	resources, err := h.service.ListResources(c.Request.Context())
	if err != nil {
		h.log(c, "List").ErrorContext(c.Request.Context(), "resource list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	out := make([]resourceDTO, 0, len(resources))
	for _, resource := range resources {
		out = append(out, toResourceDTO(resource))
	}
	h.responder.writeJSON(c, http.StatusOK, listResourcesResponse{Resources: out})
}

func (h *ResourceHandler) Delete(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id := c.Param("id")
	logger := h.log(c, "Delete", "resource_id", id)
	if err := h.service.DeleteResource(c.Request.Context(), id); err != nil {
		logger.ErrorContext(c.Request.Context(), "resource delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.InfoContext(c.Request.Context(), "resource deleted")
	h.responder.writeJSON(c, http.StatusNoContent, nil)
}

func (h *ResourceHandler) CreateBlockedDate(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	resourceID := c.Param("id")

	var req blockedDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "CreateBlockedDate", "resource_id", resourceID, "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode blocked date", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(c, "CreateBlockedDate", "resource_id", resourceID)
	blocked, err := h.service.CreateBlockedDate(c.Request.Context(), domain.BlockedDate{
		ResourceID: resourceID,
		Start:      req.Start,
		End:        req.End,
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "blocked date creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.With("blocked_date_id", blocked.ID).InfoContext(c.Request.Context(), "blocked date created")
	h.responder.writeJSON(c, http.StatusCreated, blockedDateResponse{BlockedDate: toBlockedDateDTO(blocked)})
}

// ListBlockedDates lists blocked dates overlapping from/to. Both bounds are
// optional; a missing bound leaves that side open.
func (h *ResourceHandler) ListBlockedDates(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	errs := fieldErrors{}
	from := queryTime(c, "from", errs)
	to := queryTime(c, "to", errs)
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	window := domain.Window{
		Start: from.OrElse(time.Unix(0, 0).UTC()),
		End:   to.OrElse(time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)),
	}
	blocked, err := h.service.ListBlockedDates(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	out := make([]blockedDateDTO, 0, len(blocked))
	for _, b := range blocked {
		out = append(out, toBlockedDateDTO(b))
	}
	h.responder.writeJSON(c, http.StatusOK, listBlockedDatesResponse{BlockedDates: out})
}

func (h *ResourceHandler) DeleteBlockedDate(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id := c.Param("blocked_id")
	logger := h.log(c, "DeleteBlockedDate", "blocked_date_id", id)
	if err := h.service.DeleteBlockedDate(c.Request.Context(), id); err != nil {
		logger.ErrorContext(c.Request.Context(), "blocked date delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}
	logger.InfoContext(c.Request.Context(), "blocked date deleted")
	h.responder.writeJSON(c, http.StatusNoContent, nil)
}

func (h *ResourceHandler) CreateBufferRule(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	resourceID := c.Param("id")

	var req bufferRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c, "CreateBufferRule", "resource_id", resourceID, "error_kind", "bad_request").ErrorContext(c.Request.Context(), "failed to decode buffer rule", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}
	input, err := req.toDomain(resourceID)
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	logger := h.log(c, "CreateBufferRule", "resource_id", resourceID)
	rule, err := h.service.CreateBufferRule(c.Request.Context(), input)
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "buffer rule creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	logger.With("buffer_rule_id", rule.ID).InfoContext(c.Request.Context(), "buffer rule created")
	h.responder.writeJSON(c, http.StatusCreated, bufferRuleResponse{BufferRule: toBufferRuleDTO(rule)})
}

func (h *ResourceHandler) ListBufferRules(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	rules, err := h.service.ListBufferRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	out := make([]bufferRuleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toBufferRuleDTO(rule))
	}
	h.responder.writeJSON(c, http.StatusOK, listBufferRulesResponse{BufferRules: out})
}

func (h *ResourceHandler) DeleteBufferRule(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id := c.Param("rule_id")
	logger := h.log(c, "DeleteBufferRule", "buffer_rule_id", id)
	if err := h.service.DeleteBufferRule(c.Request.Context(), id); err != nil {
		logger.ErrorContext(c.Request.Context(), "buffer rule delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}
	logger.InfoContext(c.Request.Context(), "buffer rule deleted")
	h.responder.writeJSON(c, http.StatusNoContent, nil)
}

type workingHoursDTO struct {
	Weekday string `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type resourceRequest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         string            `json:"kind"`
	Timezone     string            `json:"timezone"`
	WorkingHours []workingHoursDTO `json:"working_hours"`
}

func (r resourceRequest) toDomain(id string) (domain.Resource, error) {
	errs := fieldErrors{}
	hours := make([]domain.WorkingHours, 0, len(r.WorkingHours))
	for _, wh := range r.WorkingHours {
		day, ok := parseWeekday(wh.Weekday)
		if !ok {
			errs.add("working_hours", "unknown weekday "+wh.Weekday)
			continue
		}
		start, err := domain.ParseClockTime(wh.Start)
		if err != nil {
			errs.add("working_hours", "start must be HH:MM")
			continue
		}
		end, err := domain.ParseClockTime(wh.End)
		if err != nil {
			errs.add("working_hours", "end must be HH:MM")
			continue
		}
		hours = append(hours, domain.WorkingHours{Weekday: day, Start: start, End: end})
	}
	if err := errs.err(); err != nil {
		return domain.Resource{}, err
	}
	return domain.Resource{
		ID:           id,
		Kind:         domain.ResourceKind(strings.TrimSpace(r.Kind)),
		Name:         r.Name,
		Timezone:     r.Timezone,
		WorkingHours: hours,
	}, nil
}

type resourceDTO struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Name         string            `json:"name"`
	Timezone     string            `json:"timezone"`
	WorkingHours []workingHoursDTO `json:"working_hours"`
}

type resourceResponse struct {
	Resource resourceDTO `json:"resource"`
}

type listResourcesResponse struct {
	Resources []resourceDTO `json:"resources"`
}

func toResourceDTO(resource domain.Resource) resourceDTO {
	hours := make([]workingHoursDTO, 0, len(resource.WorkingHours))
	for _, wh := range resource.WorkingHours {
		hours = append(hours, workingHoursDTO{
			Weekday: strings.ToLower(wh.Weekday.String()),
			Start:   wh.Start.String(),
			End:     wh.End.String(),
		})
	}
	return resourceDTO{
		ID:           resource.ID,
		Kind:         string(resource.Kind),
		Name:         resource.Name,
		Timezone:     resource.Timezone,
		WorkingHours: hours,
	}
}

type blockedDateRequest struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

type blockedDateDTO struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Reason     string `json:"reason,omitempty"`
}

type blockedDateResponse struct {
	BlockedDate blockedDateDTO `json:"blocked_date"`
}

type listBlockedDatesResponse struct {
	BlockedDates []blockedDateDTO `json:"blocked_dates"`
}

func toBlockedDateDTO(b domain.BlockedDate) blockedDateDTO {
	return blockedDateDTO{
		ID:         b.ID,
		ResourceID: b.ResourceID,
		Start:      formatTime(b.Start),
		End:        formatTime(b.End),
		Reason:     b.Reason,
	}
}

type bufferRuleRequest struct {
	ServiceID     string   `json:"service_id"`
	BeforeMinutes int      `json:"before_minutes"`
	AfterMinutes  int      `json:"after_minutes"`
	AppliesTo     string   `json:"applies_to"`
	Days          []string `json:"days"`
}

func (r bufferRuleRequest) toDomain(resourceID string) (domain.BufferRule, error) {
	errs := fieldErrors{}
	days := parseWeekdays("days", r.Days, errs)
	if err := errs.err(); err != nil {
		return domain.BufferRule{}, err
	}
	return domain.BufferRule{
		ResourceID: resourceID,
		ServiceID:  strings.TrimSpace(r.ServiceID),
		Before:     minutes(r.BeforeMinutes),
		After:      minutes(r.AfterMinutes),
		AppliesTo:  domain.BufferScope(strings.TrimSpace(r.AppliesTo)),
		Days:       days,
	}, nil
}

type bufferRuleDTO struct {
	ID            string   `json:"id"`
	ResourceID    string   `json:"resource_id"`
	ServiceID     string   `json:"service_id,omitempty"`
	BeforeMinutes int      `json:"before_minutes"`
	AfterMinutes  int      `json:"after_minutes"`
	AppliesTo     string   `json:"applies_to"`
	Days          []string `json:"days,omitempty"`
}

type bufferRuleResponse struct {
	BufferRule bufferRuleDTO `json:"buffer_rule"`
}

type listBufferRulesResponse struct {
	BufferRules []bufferRuleDTO `json:"buffer_rules"`
}

func toBufferRuleDTO(rule domain.BufferRule) bufferRuleDTO {
	return bufferRuleDTO{
		ID:            rule.ID,
		ResourceID:    rule.ResourceID,
		ServiceID:     rule.ServiceID,
		BeforeMinutes: toMinutes(rule.Before),
		AfterMinutes:  toMinutes(rule.After),
		AppliesTo:     string(rule.AppliesTo),
		Days:          weekdayNames(rule.Days),
	}
}
