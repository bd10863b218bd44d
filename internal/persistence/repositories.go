package persistence

import (
	"context"
	"time"

	"github.com/example/availability-engine/internal/domain"
)

// ResourceRepository stores resources together with their working hours.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource domain.Resource) error
	UpdateResource(ctx context.Context, resource domain.Resource) error
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	ListResources(ctx context.Context) ([]domain.Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

// BlockedDateRepository stores blackout spans.
type BlockedDateRepository interface {
	CreateBlockedDate(ctx context.Context, blocked domain.BlockedDate) error
	// ListBlockedDates returns the spans of the resource overlapping [from, to).
	ListBlockedDates(ctx context.Context, resourceID string, from, to time.Time) ([]domain.BlockedDate, error)
	DeleteBlockedDate(ctx context.Context, id string) error
}

// BookingRepository stores bookings and the resources they reserve.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking domain.Booking) error
	GetBooking(ctx context.Context, id string) (domain.Booking, error)
	// ListBookings returns the confirmed bookings of the resource whose
	// series may overlap [from, to). Recurring bookings are returned whole.
	ListBookings(ctx context.Context, resourceID string, from, to time.Time) ([]domain.Booking, error)
	CancelBooking(ctx context.Context, id string, at time.Time) error
}

// BufferRuleRepository stores buffer rules.
type BufferRuleRepository interface {
	CreateBufferRule(ctx context.Context, rule domain.BufferRule) error
	ListBufferRules(ctx context.Context, resourceID string) ([]domain.BufferRule, error)
	DeleteBufferRule(ctx context.Context, id string) error
}

// LinkRepository stores booking links.
type LinkRepository interface {
	CreateLink(ctx context.Context, link domain.BookingLink) error
	GetLinkBySlug(ctx context.Context, slug string) (domain.BookingLink, error)
	// MarkLinkSpent consumes a one-time link. It returns ErrLinkSpent when
	// the link was already consumed.
	MarkLinkSpent(ctx context.Context, id string, at time.Time) error
}

// Store groups every repository and runs units of work atomically.
type Store interface {
	ResourceRepository
	BlockedDateRepository
	BookingRepository
	BufferRuleRepository
	LinkRepository

	// WithinTx runs fn against a transactional view of the store. Resources
	// named in lock are serialised against concurrent writers first.
	WithinTx(ctx context.Context, lock []string, fn func(ctx context.Context, tx Store) error) error
}
