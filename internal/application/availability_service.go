package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/engine"
	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/recurrence"
	"github.com/example/availability-engine/internal/scheduler"
)

// AvailabilityService answers read-only questions about resources: free time,
// proposal conflicts, bookable slots and recurrence previews.
type AvailabilityService struct {
	store  persistence.Store
	engine *engine.Engine
	cache  *Cache
	reach  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewAvailabilityService constructs the service. cache may be nil.
func NewAvailabilityService(store persistence.Store, eng *engine.Engine, cfg engine.Config, cache *Cache, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(store, eng, cfg, cache, now, nil)
}

// NewAvailabilityServiceWithLogger constructs the service with a specified logger.
func NewAvailabilityServiceWithLogger(store persistence.Store, eng *engine.Engine, cfg engine.Config, cache *Cache, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	if eng == nil {
		eng = engine.New(cfg, now)
	}
	return &AvailabilityService{
		store:  store,
		engine: eng,
		cache:  cache,
		reach:  lookaround(cfg),
		now:    now,
		logger: defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

func (s *AvailabilityService) ready() error {
	if s == nil {
		return errors.New("AvailabilityService is nil")
	}
	if s.store == nil {
		return errors.New("store not configured")
	}
	return nil
}

// Resolve returns the free intervals of a resource inside the window that are
// at least minDuration long.
func (s *AvailabilityService) Resolve(ctx context.Context, resourceID string, window domain.Window, minDuration time.Duration) (free []domain.AvailabilitySlot, err error) {
	if err = s.ready(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "AvailabilityService.Resolve", trace.WithAttributes(attribute.String("resource_id", resourceID)))
	logger := s.loggerWith(ctx, "Resolve", "resource_id", resourceID)
	cached := false
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to resolve availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "availability resolved", "slots", len(free), "cached", cached)
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(resourceID) == "" {
		vErr.add("resource_id", "is required")
	}
	if minDuration < 0 {
		vErr.add("min_duration", "must not be negative")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}
	if err = window.Validate(); err != nil {
		return nil, err
	}

	key := availabilityKey(resourceID, window, minDuration)
	if hit, ok := s.cache.Get(key); ok {
		cached = true
		return hit, nil
	}

	state, found, err := loadState(ctx, s.store, resourceID, window.Start, window.End, 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "resource %s", resourceID)
	}

	free, err = s.engine.ResolveAvailability(ctx, state, window, minDuration)
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, free)
	return free, nil
}

// Busy returns the merged occupied time of a resource, including buffers, for
// free/busy exports.
func (s *AvailabilityService) Busy(ctx context.Context, resourceID string, window domain.Window) (busy []interval.Interval, err error) {
	if err = s.ready(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "AvailabilityService.Busy", trace.WithAttributes(attribute.String("resource_id", resourceID)))
	logger := s.loggerWith(ctx, "Busy", "resource_id", resourceID)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list busy time", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = window.Validate(); err != nil {
		return nil, err
	}
	state, found, err := loadState(ctx, s.store, resourceID, window.Start, window.End, 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "resource %s", resourceID)
	}
	return s.engine.Busy(ctx, state, window)
}

// ConflictParams describes a proposal to check without booking it.
type ConflictParams struct {
	ResourceIDs []string
	ServiceID   string
	Start       time.Time
	End         time.Time
	// IgnoreBookingID leaves one booking out, for rescheduling it.
	IgnoreBookingID string
}

// CheckConflict decides whether the proposal fits on every resource. Unknown
// resources are rejected with ReasonUnknownResource rather than an error.
func (s *AvailabilityService) CheckConflict(ctx context.Context, params ConflictParams) (decision scheduler.Decision, err error) {
	if err = s.ready(); err != nil {
		return scheduler.Decision{}, err
	}

	ctx, span := tracer.Start(ctx, "AvailabilityService.CheckConflict", trace.WithAttributes(attribute.StringSlice("resource_ids", params.ResourceIDs)))
	logger := s.loggerWith(ctx, "CheckConflict", "resource_ids", params.ResourceIDs, "service_id", params.ServiceID)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to check conflict", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "conflict checked", "accepted", decision.Accepted)
	}()

	if vErr := validateResourceIDs(params.ResourceIDs); vErr.HasErrors() {
		return scheduler.Decision{}, vErr
	}
	if !params.End.After(params.Start) {
		return scheduler.Decision{}, &domain.InvalidIntervalError{Field: "proposed", Detail: interval.Interval{Start: params.Start, End: params.End}.String()}
	}

	states, err := loadStates(ctx, s.store, params.ResourceIDs, params.Start, params.End, s.reach, true)
	if err != nil {
		return scheduler.Decision{}, err
	}
	return s.engine.CheckConflict(ctx, engine.ConflictQuery{
		ResourceIDs:     params.ResourceIDs,
		Start:           params.Start,
		End:             params.End,
		ServiceID:       params.ServiceID,
		States:          states,
		IgnoreBookingID: params.IgnoreBookingID,
	})
}

// SlotParams describes a slot search across resources that must all be free.
type SlotParams struct {
	ResourceIDs []string
	ServiceID   string
	Duration    time.Duration
	// Step defaults to Duration.
	Step   time.Duration
	Window domain.Window
	// Limit caps the result. Zero returns every slot in the window.
	Limit int
}

// Slots lists bookable start times. Slots in the past are never offered.
func (s *AvailabilityService) Slots(ctx context.Context, params SlotParams) (found []domain.Slot, err error) {
	if err = s.ready(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "AvailabilityService.Slots", trace.WithAttributes(attribute.StringSlice("resource_ids", params.ResourceIDs)))
	logger := s.loggerWith(ctx, "Slots", "resource_ids", params.ResourceIDs, "service_id", params.ServiceID)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "slots generated", "slots", len(found))
	}()

	vErr := validateResourceIDs(params.ResourceIDs)
	vErr.merge(validateSlotShape(params.Duration, params.Step, params.Limit))
	if vErr.HasErrors() {
		return nil, vErr
	}
	if err = params.Window.Validate(); err != nil {
		return nil, err
	}
	step := params.Step
	if step == 0 {
		step = params.Duration
	}

	states, err := loadStates(ctx, s.store, params.ResourceIDs, params.Window.Start, params.Window.End, 0, true)
	if err != nil {
		return nil, err
	}
	if err = requireStates(states, params.ResourceIDs); err != nil {
		return nil, err
	}

	stream, err := s.engine.GenerateSlots(ctx, engine.SlotQuery{
		ResourceIDs: params.ResourceIDs,
		States:      states,
		ServiceID:   params.ServiceID,
		Duration:    params.Duration,
		Step:        step,
		Window:      params.Window,
		NotBefore:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	return stream.Take(params.Limit), nil
}

// LinkSlots is the answer to a slot query through a booking link. When Reason
// is set the link refused the query and Slots is empty.
type LinkSlots struct {
	Link   domain.BookingLink
	Slots  []domain.Slot
	Reason domain.Reason
}

// LinkSlots lists the slots a booking link offers inside the window.
func (s *AvailabilityService) LinkSlots(ctx context.Context, slug string, window domain.Window, limit int) (result LinkSlots, err error) {
	if err = s.ready(); err != nil {
		return LinkSlots{}, err
	}

	ctx, span := tracer.Start(ctx, "AvailabilityService.LinkSlots", trace.WithAttributes(attribute.String("slug", slug)))
	logger := s.loggerWith(ctx, "LinkSlots", "slug", slug)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to generate link slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if result.Reason != domain.ReasonNone {
			logger.InfoContext(ctx, "booking link refused", "reason", result.Reason.String())
			return
		}
		logger.DebugContext(ctx, "link slots generated", "slots", len(result.Slots))
	}()

	if limit < 0 {
		vErr := &ValidationError{}
		vErr.add("limit", "must not be negative")
		return LinkSlots{}, vErr
	}
	if err = window.Validate(); err != nil {
		return LinkSlots{}, err
	}

	link, err := s.store.GetLinkBySlug(ctx, slug)
	if err != nil {
		return LinkSlots{}, mapRepoError(err)
	}
	result = LinkSlots{Link: link, Slots: []domain.Slot{}}
	if reason := s.engine.ValidateLink(link); reason != domain.ReasonNone {
		result.Reason = reason
		return result, nil
	}

	states, err := loadStates(ctx, s.store, link.ResourceIDs, window.Start, window.End, 0, true)
	if err != nil {
		return LinkSlots{}, err
	}
	if err = requireStates(states, link.ResourceIDs); err != nil {
		return LinkSlots{}, err
	}

	step := link.Step
	if step <= 0 {
		step = link.Duration
	}
	stream, err := s.engine.GenerateSlots(ctx, engine.SlotQuery{
		ResourceIDs: link.ResourceIDs,
		States:      states,
		ServiceID:   link.ServiceID,
		Duration:    link.Duration,
		Step:        step,
		Window:      window,
		Link:        &link,
		NotBefore:   s.now(),
	})
	if err != nil {
		return LinkSlots{}, err
	}
	result.Reason = stream.Reason
	result.Slots = stream.Take(limit)
	return result, nil
}

// ExpandParams describes a recurrence preview. Exactly one of Rule and RRule
// must be set.
type ExpandParams struct {
	Rule     *recurrence.Rule
	RRule    string
	Anchor   time.Time
	Duration time.Duration
	Window   recurrence.Window
	// Timezone keeps wall-clock times across offset changes. Empty means UTC.
	Timezone string
}

// Expansion lists occurrences. Truncated is set when the expansion stopped at
// the horizon or the occurrence cap instead of at the end of the rule.
type Expansion struct {
	Occurrences []interval.Interval
	Truncated   bool
}

// Expand lists the occurrences of a rule without storing anything.
func (s *AvailabilityService) Expand(ctx context.Context, params ExpandParams) (expansion Expansion, err error) {
	if s == nil {
		return Expansion{}, errors.New("AvailabilityService is nil")
	}

	ctx, span := tracer.Start(ctx, "AvailabilityService.Expand")
	logger := s.loggerWith(ctx, "Expand")
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to expand recurrence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "recurrence expanded", "occurrences", len(expansion.Occurrences), "truncated", expansion.Truncated)
	}()

	vErr := &ValidationError{}
	switch {
	case params.Rule == nil && strings.TrimSpace(params.RRule) == "":
		vErr.add("rule", "a rule or an rrule is required")
	case params.Rule != nil && strings.TrimSpace(params.RRule) != "":
		vErr.add("rule", "set either a rule or an rrule, not both")
	}
	if params.Anchor.IsZero() {
		vErr.add("anchor", "is required")
	}
	if params.Duration <= 0 {
		vErr.add("duration", "must be positive")
	}
	loc := time.UTC
	if params.Timezone != "" {
		zone, zoneErr := time.LoadLocation(params.Timezone)
		if zoneErr != nil {
			vErr.add("timezone", "unknown timezone")
		} else {
			loc = zone
		}
	}
	if vErr.HasErrors() {
		return Expansion{}, vErr
	}
	w := params.Window
	if !w.Start.IsZero() && !w.End.IsZero() && !w.End.After(w.Start) {
		return Expansion{}, &domain.InvalidIntervalError{Field: "window", Detail: interval.Interval{Start: w.Start, End: w.End}.String()}
	}

	var rule recurrence.Rule
	if params.Rule != nil {
		rule = params.Rule.Clone()
	} else if rule, err = recurrence.ParseRRule(params.RRule); err != nil {
		return Expansion{}, err
	}

	occurrences, err := s.engine.ExpandRecurrence(rule, params.Anchor, params.Duration, params.Window, loc)
	if errors.Is(err, recurrence.ErrExpansionHorizonExceeded) {
		return Expansion{Occurrences: occurrences, Truncated: true}, nil
	}
	if err != nil {
		return Expansion{}, err
	}
	return Expansion{Occurrences: occurrences}, nil
}

func lookaround(cfg engine.Config) time.Duration {
	if cfg.ConflictLookaround > 0 {
		return cfg.ConflictLookaround
	}
	return scheduler.DefaultLookaround
}

func validateResourceIDs(ids []string) *ValidationError {
	vErr := &ValidationError{}
	if len(uniqueStrings(ids)) == 0 {
		vErr.add("resource_ids", "at least one resource is required")
	}
	return vErr
}

func validateSlotShape(duration, step time.Duration, limit int) *ValidationError {
	vErr := &ValidationError{}
	if duration <= 0 {
		vErr.add("duration", "must be positive")
	}
	if step < 0 {
		vErr.add("step", "must not be negative")
	}
	if limit < 0 {
		vErr.add("limit", "must not be negative")
	}
	return vErr
}
