package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/recurrence"
)

var (
	resourceCounter uint64
	bookingCounter  uint64
	blockedCounter  uint64
	bufferCounter   uint64
	linkCounter     uint64
)

// referenceTime is a Monday at midnight UTC so that offsets read as
// wall-clock times on the first day of a working week.
var referenceTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns the reference Monday shifted by whole days, hours and minutes.
func At(day, hour, minute int) time.Time {
	return referenceTime.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// OfficeHours returns Monday to Friday 09:00-17:00.
func OfficeHours() []domain.WorkingHours {
	hours := make([]domain.WorkingHours, 0, 5)
	for day := time.Monday; day <= time.Friday; day++ {
		hours = append(hours, domain.WorkingHours{Weekday: day, Start: domain.NewClockTime(9, 0), End: domain.NewClockTime(17, 0)})
	}
	return hours
}

// OfficeResource returns a UTC room open during OfficeHours.
func OfficeResource(id string) domain.Resource {
	return NewResourceFixture(WithResourceID(id)).Domain()
}

// ----------------------------- Resource fixtures -------------------------

// ResourceFixture represents a deterministic bookable resource.
type ResourceFixture struct {
	ID           string
	Kind         domain.ResourceKind
	Name         string
	Timezone     string
	WorkingHours []domain.WorkingHours
}

// ResourceOption configures the generated resource fixture.
type ResourceOption func(*ResourceFixture)

// NewResourceFixture returns a room open during office hours in UTC.
func NewResourceFixture(opts ...ResourceOption) ResourceFixture {
	idx := atomic.AddUint64(&resourceCounter, 1)
	fixture := ResourceFixture{
		ID:           fmt.Sprintf("resource-%03d", idx),
		Kind:         domain.ResourceKindRoom,
		Name:         fmt.Sprintf("Room %03d", idx),
		Timezone:     "UTC",
		WorkingHours: OfficeHours(),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithResourceID overrides the generated resource ID.
func WithResourceID(id string) ResourceOption {
	return func(f *ResourceFixture) {
		f.ID = id
	}
}

// WithResourceKind sets the resource kind.
func WithResourceKind(kind domain.ResourceKind) ResourceOption {
	return func(f *ResourceFixture) {
		f.Kind = kind
	}
}

// WithResourceTimezone sets the IANA timezone of the resource.
func WithResourceTimezone(tz string) ResourceOption {
	return func(f *ResourceFixture) {
		f.Timezone = tz
	}
}

// WithWorkingHours replaces the working hours.
func WithWorkingHours(hours ...domain.WorkingHours) ResourceOption {
	return func(f *ResourceFixture) {
		f.WorkingHours = append([]domain.WorkingHours(nil), hours...)
	}
}

// Domain returns the fixture as a domain.Resource.
func (f ResourceFixture) Domain() domain.Resource {
	return domain.Resource{
		ID:           f.ID,
		Kind:         f.Kind,
		Name:         f.Name,
		Timezone:     f.Timezone,
		WorkingHours: append([]domain.WorkingHours(nil), f.WorkingHours...),
	}
}

// ----------------------------- Booking fixtures --------------------------

// BookingFixture represents a deterministic confirmed booking.
type BookingFixture struct {
	ID          string
	ResourceIDs []string
	ServiceID   string
	Start       time.Time
	End         time.Time
	Recurrence  *recurrence.Rule
	Status      domain.BookingStatus
	LinkID      string
	CreatedAt   time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a one hour booking at 10:00 on the reference day.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	fixture := BookingFixture{
		ID:          fmt.Sprintf("booking-%03d", idx),
		ResourceIDs: []string{"resource-001"},
		ServiceID:   "consultation",
		Start:       At(0, 10, 0),
		End:         At(0, 11, 0),
		Status:      domain.BookingStatusConfirmed,
		CreatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingResources sets the reserved resources.
func WithBookingResources(ids ...string) BookingOption {
	return func(f *BookingFixture) {
		f.ResourceIDs = append([]string(nil), ids...)
	}
}

// WithBookingService sets the service ID.
func WithBookingService(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ServiceID = id
	}
}

// WithBookingSpan sets the first occurrence.
func WithBookingSpan(start, end time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.Start = start
		f.End = end
	}
}

// WithBookingRecurrence makes the booking recurring.
func WithBookingRecurrence(rule recurrence.Rule) BookingOption {
	return func(f *BookingFixture) {
		r := rule.Clone()
		f.Recurrence = &r
	}
}

// WithBookingStatus sets the booking status.
func WithBookingStatus(status domain.BookingStatus) BookingOption {
	return func(f *BookingFixture) {
		f.Status = status
	}
}

// WithBookingLink records the link the booking was made through.
func WithBookingLink(id string) BookingOption {
	return func(f *BookingFixture) {
		f.LinkID = id
	}
}

// Domain returns the fixture as a domain.Booking.
func (f BookingFixture) Domain() domain.Booking {
	var rule *recurrence.Rule
	if f.Recurrence != nil {
		r := f.Recurrence.Clone()
		rule = &r
	}
	return domain.Booking{
		ID:          f.ID,
		ResourceIDs: append([]string(nil), f.ResourceIDs...),
		ServiceID:   f.ServiceID,
		Start:       f.Start,
		End:         f.End,
		Recurrence:  rule,
		Status:      f.Status,
		LinkID:      f.LinkID,
		CreatedAt:   f.CreatedAt,
	}
}

// ----------------------------- Blocked date fixtures ---------------------

// NewBlockedDate returns a blocked span on the resource.
func NewBlockedDate(resourceID string, start, end time.Time) domain.BlockedDate {
	idx := atomic.AddUint64(&blockedCounter, 1)
	return domain.BlockedDate{
		ID:         fmt.Sprintf("blocked-%03d", idx),
		ResourceID: resourceID,
		Start:      start,
		End:        end,
		Reason:     "maintenance",
	}
}

// ----------------------------- Buffer rule fixtures ----------------------

// NewBufferRule returns a rule that applies on every day.
func NewBufferRule(resourceID, serviceID string, before, after time.Duration) domain.BufferRule {
	idx := atomic.AddUint64(&bufferCounter, 1)
	return domain.BufferRule{
		ID:         fmt.Sprintf("buffer-%03d", idx),
		ResourceID: resourceID,
		ServiceID:  serviceID,
		Before:     before,
		After:      after,
		AppliesTo:  domain.BufferScopeAll,
	}
}

// ----------------------------- Link fixtures -----------------------------

// LinkFixture represents a deterministic booking link.
type LinkFixture struct {
	ID          string
	Slug        string
	ServiceID   string
	ResourceIDs []string
	Type        domain.LinkType
	Duration    time.Duration
	Step        time.Duration
	ExpiresAt   *time.Time
	SpentAt     *time.Time
	CreatedAt   time.Time
}

// LinkOption configures the generated link fixture.
type LinkOption func(*LinkFixture)

// NewLinkFixture returns a permanent link offering 30 minute slots.
func NewLinkFixture(opts ...LinkOption) LinkFixture {
	idx := atomic.AddUint64(&linkCounter, 1)
	fixture := LinkFixture{
		ID:          fmt.Sprintf("link-%03d", idx),
		Slug:        fmt.Sprintf("intro-%03d", idx),
		ServiceID:   "consultation",
		ResourceIDs: []string{"resource-001"},
		Type:        domain.LinkTypePermanent,
		Duration:    30 * time.Minute,
		Step:        30 * time.Minute,
		CreatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLinkID overrides the link ID.
func WithLinkID(id string) LinkOption {
	return func(f *LinkFixture) {
		f.ID = id
	}
}

// WithLinkSlug overrides the slug.
func WithLinkSlug(slug string) LinkOption {
	return func(f *LinkFixture) {
		f.Slug = slug
	}
}

// WithLinkResources sets the resources the link books.
func WithLinkResources(ids ...string) LinkOption {
	return func(f *LinkFixture) {
		f.ResourceIDs = append([]string(nil), ids...)
	}
}

// WithLinkOneTime makes the link single-use.
func WithLinkOneTime() LinkOption {
	return func(f *LinkFixture) {
		f.Type = domain.LinkTypeOneTime
	}
}

// WithLinkExpiry sets the expiry instant.
func WithLinkExpiry(t time.Time) LinkOption {
	return func(f *LinkFixture) {
		expires := t
		f.ExpiresAt = &expires
	}
}

// WithLinkSpent marks the link as used.
func WithLinkSpent(t time.Time) LinkOption {
	return func(f *LinkFixture) {
		spent := t
		f.SpentAt = &spent
	}
}

// Domain returns the fixture as a domain.BookingLink.
func (f LinkFixture) Domain() domain.BookingLink {
	return domain.BookingLink{
		ID:          f.ID,
		Slug:        f.Slug,
		ServiceID:   f.ServiceID,
		ResourceIDs: append([]string(nil), f.ResourceIDs...),
		Type:        f.Type,
		Duration:    f.Duration,
		Step:        f.Step,
		ExpiresAt:   copyTimePtr(f.ExpiresAt),
		SpentAt:     copyTimePtr(f.SpentAt),
		CreatedAt:   f.CreatedAt,
	}
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
