package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/persistence"
)

func newID() string {
	return uuid.NewString()
}

// CatalogService manages resources and the rules around them: working hours,
// blocked dates, buffer rules and booking links.
type CatalogService struct {
	store       persistence.Store
	cache       *Cache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCatalogService constructs a catalog service with the provided dependencies.
func NewCatalogService(store persistence.Store, cache *Cache, idGenerator func() string, now func() time.Time) *CatalogService {
	return NewCatalogServiceWithLogger(store, cache, idGenerator, now, nil)
}

// NewCatalogServiceWithLogger constructs a catalog service with a specified logger.
func NewCatalogServiceWithLogger(store persistence.Store, cache *Cache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CatalogService {
	if idGenerator == nil {
		idGenerator = newID
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogService{store: store, cache: cache, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *CatalogService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CatalogService", operation, attrs...)
}

func (s *CatalogService) ready() error {
	if s == nil {
		return errors.New("CatalogService is nil")
	}
	if s.store == nil {
		return errors.New("store not configured")
	}
	return nil
}

// CreateResource validates and stores a new resource. An empty ID is
// generated; an empty kind defaults to a room.
func (s *CatalogService) CreateResource(ctx context.Context, input domain.Resource) (resource domain.Resource, err error) {
	if err = s.ready(); err != nil {
		return domain.Resource{}, err
	}

	logger := s.loggerWith(ctx, "CreateResource")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create resource", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("resource_id", resource.ID).InfoContext(ctx, "resource created")
	}()

	resource = normalizeResource(input)
	if resource.ID == "" {
		resource.ID = s.idGenerator()
	}
	if vErr := validateResource(resource); vErr.HasErrors() {
		return domain.Resource{}, vErr
	}
	if err = s.store.CreateResource(ctx, resource); err != nil {
		return domain.Resource{}, mapRepoError(err)
	}
	return resource, nil
}

// UpdateResource replaces the attributes and working hours of a resource.
func (s *CatalogService) UpdateResource(ctx context.Context, input domain.Resource) (resource domain.Resource, err error) {
	if err = s.ready(); err != nil {
		return domain.Resource{}, err
	}

	logger := s.loggerWith(ctx, "UpdateResource", "resource_id", input.ID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update resource", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "resource updated")
	}()

	resource = normalizeResource(input)
	vErr := validateResource(resource)
	if resource.ID == "" {
		vErr.add("id", "is required")
	}
	if vErr.HasErrors() {
		return domain.Resource{}, vErr
	}
	if err = s.store.UpdateResource(ctx, resource); err != nil {
		return domain.Resource{}, mapRepoError(err)
	}
	s.cache.InvalidateResource(resource.ID)
	return resource, nil
}

// GetResource returns a resource with its working hours.
func (s *CatalogService) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	if err := s.ready(); err != nil {
		return domain.Resource{}, err
	}
	resource, err := s.store.GetResource(ctx, id)
	if err != nil {
		return domain.Resource{}, mapRepoError(err)
	}
	return resource, nil
}

// ListResources returns every resource ordered by id.
func (s *CatalogService) ListResources(ctx context.Context) ([]domain.Resource, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	resources, err := s.store.ListResources(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return resources, nil
}

// DeleteResource removes a resource that has no bookings.
func (s *CatalogService) DeleteResource(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	logger := s.loggerWith(ctx, "DeleteResource", "resource_id", id)
	if err := s.store.DeleteResource(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete resource", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.cache.InvalidateResource(id)
	logger.InfoContext(ctx, "resource deleted")
	return nil
}

// CreateBlockedDate blacks out a span on an existing resource.
func (s *CatalogService) CreateBlockedDate(ctx context.Context, input domain.BlockedDate) (blocked domain.BlockedDate, err error) {
	if err = s.ready(); err != nil {
		return domain.BlockedDate{}, err
	}

	logger := s.loggerWith(ctx, "CreateBlockedDate", "resource_id", input.ResourceID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create blocked date", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("blocked_date_id", blocked.ID).InfoContext(ctx, "blocked date created")
	}()

	blocked = input
	blocked.ResourceID = strings.TrimSpace(blocked.ResourceID)
	blocked.Reason = strings.TrimSpace(blocked.Reason)
	blocked.Start, blocked.End = blocked.Start.UTC(), blocked.End.UTC()
	if blocked.ID == "" {
		blocked.ID = s.idGenerator()
	}
	if blocked.ResourceID == "" {
		vErr := &ValidationError{}
		vErr.add("resource_id", "is required")
		return domain.BlockedDate{}, vErr
	}
	if err = blocked.Validate(); err != nil {
		return domain.BlockedDate{}, err
	}
	if err = s.requireResource(ctx, blocked.ResourceID); err != nil {
		return domain.BlockedDate{}, err
	}
	if err = s.store.CreateBlockedDate(ctx, blocked); err != nil {
		return domain.BlockedDate{}, mapRepoError(err)
	}
	s.cache.InvalidateResource(blocked.ResourceID)
	return blocked, nil
}

// ListBlockedDates returns the blocked spans of a resource overlapping the window.
func (s *CatalogService) ListBlockedDates(ctx context.Context, resourceID string, window domain.Window) ([]domain.BlockedDate, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	blocked, err := s.store.ListBlockedDates(ctx, resourceID, window.Start, window.End)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return blocked, nil
}

// DeleteBlockedDate removes a blocked span.
func (s *CatalogService) DeleteBlockedDate(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	logger := s.loggerWith(ctx, "DeleteBlockedDate", "blocked_date_id", id)
	if err := s.store.DeleteBlockedDate(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete blocked date", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	// The owning resource is not known here.
	s.cache.Invalidate()
	logger.InfoContext(ctx, "blocked date deleted")
	return nil
}

// CreateBufferRule adds padding around bookings on a resource.
func (s *CatalogService) CreateBufferRule(ctx context.Context, input domain.BufferRule) (rule domain.BufferRule, err error) {
	if err = s.ready(); err != nil {
		return domain.BufferRule{}, err
	}

	logger := s.loggerWith(ctx, "CreateBufferRule", "resource_id", input.ResourceID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create buffer rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("buffer_rule_id", rule.ID).InfoContext(ctx, "buffer rule created")
	}()

	rule = input
	rule.ResourceID = strings.TrimSpace(rule.ResourceID)
	rule.ServiceID = strings.TrimSpace(rule.ServiceID)
	if rule.ID == "" {
		rule.ID = s.idGenerator()
	}
	if rule.AppliesTo == "" {
		rule.AppliesTo = domain.BufferScopeAll
	}

	vErr := &ValidationError{}
	if rule.ResourceID == "" {
		vErr.add("resource_id", "is required")
	}
	if rule.Before < 0 {
		vErr.add("before", "must not be negative")
	}
	if rule.After < 0 {
		vErr.add("after", "must not be negative")
	}
	if rule.AppliesTo != domain.BufferScopeAll && rule.AppliesTo != domain.BufferScopeSpecificDays {
		vErr.add("applies_to", "must be all or specific_days")
	}
	for _, day := range rule.Days {
		if day < time.Sunday || day > time.Saturday {
			vErr.add("days", "contains an unknown weekday")
		}
	}
	if vErr.HasErrors() {
		return domain.BufferRule{}, vErr
	}

	if err = s.requireResource(ctx, rule.ResourceID); err != nil {
		return domain.BufferRule{}, err
	}
	if err = s.store.CreateBufferRule(ctx, rule); err != nil {
		return domain.BufferRule{}, mapRepoError(err)
	}
	s.cache.InvalidateResource(rule.ResourceID)
	return rule, nil
}

// ListBufferRules returns the buffer rules of a resource.
func (s *CatalogService) ListBufferRules(ctx context.Context, resourceID string) ([]domain.BufferRule, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.store.ListBufferRules(ctx, resourceID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return rules, nil
}

// DeleteBufferRule removes a buffer rule.
func (s *CatalogService) DeleteBufferRule(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	logger := s.loggerWith(ctx, "DeleteBufferRule", "buffer_rule_id", id)
	if err := s.store.DeleteBufferRule(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete buffer rule", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.cache.Invalidate()
	logger.InfoContext(ctx, "buffer rule deleted")
	return nil
}

// CreateLink stores a booking link. A missing slug is generated; Step
// defaults to Duration and Type to permanent.
func (s *CatalogService) CreateLink(ctx context.Context, input domain.BookingLink) (link domain.BookingLink, err error) {
	if err = s.ready(); err != nil {
		return domain.BookingLink{}, err
	}

	logger := s.loggerWith(ctx, "CreateLink", "slug", input.Slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking link", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("link_id", link.ID, "slug", link.Slug).InfoContext(ctx, "booking link created")
	}()

	link = input
	link.Slug = strings.TrimSpace(link.Slug)
	link.ServiceID = strings.TrimSpace(link.ServiceID)
	link.ResourceIDs = uniqueStrings(link.ResourceIDs)
	link.SpentAt = nil
	link.CreatedAt = s.now().UTC()
	if link.ID == "" {
		link.ID = s.idGenerator()
	}
	if link.Slug == "" {
		link.Slug = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if link.Type == "" {
		link.Type = domain.LinkTypePermanent
	}
	if link.Step == 0 {
		link.Step = link.Duration
	}

	vErr := validateResourceIDs(link.ResourceIDs)
	if link.Type != domain.LinkTypePermanent && link.Type != domain.LinkTypeOneTime {
		vErr.add("type", "must be permanent or one_time")
	}
	if link.Duration <= 0 {
		vErr.add("duration", "must be positive")
	}
	if link.Step < 0 {
		vErr.add("step", "must not be negative")
	}
	if link.ExpiresAt != nil && !link.ExpiresAt.After(link.CreatedAt) {
		vErr.add("expires_at", "must be in the future")
	}
	if vErr.HasErrors() {
		return domain.BookingLink{}, vErr
	}

	for _, id := range link.ResourceIDs {
		if err = s.requireResource(ctx, id); err != nil {
			return domain.BookingLink{}, err
		}
	}
	if err = s.store.CreateLink(ctx, link); err != nil {
		return domain.BookingLink{}, mapRepoError(err)
	}
	return link, nil
}

// GetLink returns a booking link by slug.
func (s *CatalogService) GetLink(ctx context.Context, slug string) (domain.BookingLink, error) {
	if err := s.ready(); err != nil {
		return domain.BookingLink{}, err
	}
	link, err := s.store.GetLinkBySlug(ctx, slug)
	if err != nil {
		return domain.BookingLink{}, mapRepoError(err)
	}
	return link, nil
}

func (s *CatalogService) requireResource(ctx context.Context, id string) error {
	if _, err := s.store.GetResource(ctx, id); err != nil {
		return errors.Wrapf(mapRepoError(err), "resource %s", id)
	}
	return nil
}

func normalizeResource(input domain.Resource) domain.Resource {
	resource := input
	resource.ID = strings.TrimSpace(resource.ID)
	resource.Name = strings.TrimSpace(resource.Name)
	resource.Timezone = strings.TrimSpace(resource.Timezone)
	if resource.Kind == "" {
		resource.Kind = domain.ResourceKindRoom
	}
	if resource.Timezone == "" {
		resource.Timezone = "UTC"
	}
	resource.WorkingHours = append([]domain.WorkingHours(nil), input.WorkingHours...)
	return resource
}

func validateResource(resource domain.Resource) *ValidationError {
	vErr := &ValidationError{}
	if resource.Name == "" {
		vErr.add("name", "is required")
	}
	switch resource.Kind {
	case domain.ResourceKindPerson, domain.ResourceKindRoom, domain.ResourceKindAsset:
	default:
		vErr.add("kind", "must be person, room or asset")
	}
	if _, err := resource.Location(); err != nil {
		vErr.add("timezone", "unknown timezone")
	} else if err := resource.Validate(); err != nil {
		vErr.add("working_hours", err.Error())
	}
	return vErr
}
