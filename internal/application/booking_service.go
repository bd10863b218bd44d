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
)

// BookingService turns accepted proposals into bookings.
type BookingService struct {
	store       persistence.Store
	engine      *engine.Engine
	cache       *Cache
	reach       time.Duration
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(store persistence.Store, eng *engine.Engine, cfg engine.Config, cache *Cache, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(store, eng, cfg, cache, idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(store persistence.Store, eng *engine.Engine, cfg engine.Config, cache *Cache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = newID
	}
	if now == nil {
		now = time.Now
	}
	if eng == nil {
		eng = engine.New(cfg, now)
	}
	return &BookingService{
		store:       store,
		engine:      eng,
		cache:       cache,
		reach:       lookaround(cfg),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

func (s *BookingService) ready() error {
	if s == nil {
		return errors.New("BookingService is nil")
	}
	if s.store == nil {
		return errors.New("store not configured")
	}
	return nil
}

// CreateBookingParams describes a new booking. Start and End describe the
// first occurrence when Recurrence is set.
type CreateBookingParams struct {
	ResourceIDs []string
	ServiceID   string
	Start       time.Time
	End         time.Time
	Recurrence  *recurrence.Rule
}

// CreateBooking checks the proposal against the current state of every
// resource and stores it when all of them accept. Recurring bookings are
// checked occurrence by occurrence up to the expansion horizon.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking domain.Booking, err error) {
	if err = s.ready(); err != nil {
		return domain.Booking{}, err
	}

	ctx, span := tracer.Start(ctx, "BookingService.CreateBooking", trace.WithAttributes(attribute.StringSlice("resource_ids", params.ResourceIDs)))
	logger := s.loggerWith(ctx, "CreateBooking", "resource_ids", params.ResourceIDs, "service_id", params.ServiceID)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	if vErr := validateResourceIDs(params.ResourceIDs); vErr.HasErrors() {
		return domain.Booking{}, vErr
	}

	booking = domain.Booking{
		ID:          s.idGenerator(),
		ResourceIDs: uniqueStrings(params.ResourceIDs),
		ServiceID:   strings.TrimSpace(params.ServiceID),
		Start:       params.Start.UTC(),
		End:         params.End.UTC(),
		Status:      domain.BookingStatusConfirmed,
		CreatedAt:   s.now().UTC(),
	}
	if params.Recurrence != nil {
		rule := params.Recurrence.Clone()
		booking.Recurrence = &rule
	}
	if err = booking.Validate(); err != nil {
		return domain.Booking{}, err
	}

	err = s.store.WithinTx(ctx, booking.ResourceIDs, func(ctx context.Context, tx persistence.Store) error {
		if err := s.admit(ctx, tx, booking); err != nil {
			return err
		}
		return mapRepoError(tx.CreateBooking(ctx, booking))
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.invalidate(booking.ResourceIDs)
	return booking, nil
}

// admit rejects the booking with a ConflictError unless every occurrence fits.
func (s *BookingService) admit(ctx context.Context, tx persistence.Store, booking domain.Booking) error {
	occurrences, err := s.occurrences(ctx, tx, booking)
	if err != nil {
		return err
	}
	if len(occurrences) == 0 {
		return nil
	}

	first, last := occurrences[0], occurrences[len(occurrences)-1]
	states, err := loadStates(ctx, tx, booking.ResourceIDs, first.Start, last.End, s.reach, false)
	if err != nil {
		return err
	}
	for _, occurrence := range occurrences {
		decision, err := s.engine.CheckConflict(ctx, engine.ConflictQuery{
			ResourceIDs: booking.ResourceIDs,
			Start:       occurrence.Start,
			End:         occurrence.End,
			ServiceID:   booking.ServiceID,
			States:      states,
		})
		if err != nil {
			return err
		}
		if !decision.Accepted {
			return &ConflictError{Decision: decision}
		}
	}
	return nil
}

// occurrences lists the spans a booking will occupy. Recurring bookings are
// expanded in the zone of their first resource so the wall-clock time of the
// anchor is kept.
func (s *BookingService) occurrences(ctx context.Context, tx persistence.Store, booking domain.Booking) ([]interval.Interval, error) {
	single := []interval.Interval{{Start: booking.Start, End: booking.End}}
	if booking.Recurrence == nil {
		return single, nil
	}

	loc := time.UTC
	resource, err := tx.GetResource(ctx, booking.ResourceIDs[0])
	switch {
	case err == nil:
		if loc, err = resource.Location(); err != nil {
			return nil, err
		}
	case errors.Is(err, persistence.ErrNotFound):
		// The conflict check reports the unknown resource.
		return single, nil
	default:
		return nil, mapRepoError(err)
	}

	occurrences, err := s.engine.ExpandRecurrence(*booking.Recurrence, booking.Start, booking.Duration(), recurrence.Window{}, loc)
	if err != nil && !errors.Is(err, recurrence.ErrExpansionHorizonExceeded) {
		return nil, err
	}
	return occurrences, nil
}

// GetBooking returns a stored booking.
func (s *BookingService) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	if err := s.ready(); err != nil {
		return domain.Booking{}, err
	}
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, mapRepoError(err)
	}
	return booking, nil
}

// CancelBooking releases the resources of a booking. Cancelling twice is not
// an error.
func (s *BookingService) CancelBooking(ctx context.Context, id string) (err error) {
	if err = s.ready(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "BookingService.CancelBooking", trace.WithAttributes(attribute.String("booking_id", id)))
	logger := s.loggerWith(ctx, "CancelBooking", "booking_id", id)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking cancelled")
	}()

	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return mapRepoError(err)
	}
	if err = s.store.CancelBooking(ctx, id, s.now()); err != nil {
		return mapRepoError(err)
	}
	s.invalidate(booking.ResourceIDs)
	return nil
}

// BookFromLink converts a slot offered by a booking link into a booking. The
// link is validated again right before the conversion, and a one-time link is
// consumed in the same transaction as the booking.
func (s *BookingService) BookFromLink(ctx context.Context, slug string, start time.Time) (booking domain.Booking, err error) {
	if err = s.ready(); err != nil {
		return domain.Booking{}, err
	}

	ctx, span := tracer.Start(ctx, "BookingService.BookFromLink", trace.WithAttributes(attribute.String("slug", slug)))
	logger := s.loggerWith(ctx, "BookFromLink", "slug", slug)
	defer func() {
		finishSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to book from link", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created from link")
	}()

	now := s.now()
	if start.IsZero() || start.Before(now) {
		vErr := &ValidationError{}
		vErr.add("start", "must not be in the past")
		return domain.Booking{}, vErr
	}

	link, err := s.store.GetLinkBySlug(ctx, slug)
	if err != nil {
		return domain.Booking{}, mapRepoError(err)
	}

	err = s.store.WithinTx(ctx, link.ResourceIDs, func(ctx context.Context, tx persistence.Store) error {
		current, err := tx.GetLinkBySlug(ctx, slug)
		if err != nil {
			return mapRepoError(err)
		}
		if reason := s.engine.ValidateLink(current); reason != domain.ReasonNone {
			return &LinkRefusedError{Slug: slug, Reason: reason}
		}

		booking = domain.Booking{
			ID:          s.idGenerator(),
			ResourceIDs: uniqueStrings(current.ResourceIDs),
			ServiceID:   current.ServiceID,
			Start:       start.UTC(),
			End:         start.Add(current.Duration).UTC(),
			Status:      domain.BookingStatusConfirmed,
			LinkID:      current.ID,
			CreatedAt:   now.UTC(),
		}
		if err := booking.Validate(); err != nil {
			return err
		}
		if err := s.admit(ctx, tx, booking); err != nil {
			return err
		}
		if current.Type == domain.LinkTypeOneTime {
			if err := tx.MarkLinkSpent(ctx, current.ID, now); err != nil {
				if errors.Is(err, persistence.ErrLinkSpent) {
					return &LinkRefusedError{Slug: slug, Reason: domain.ReasonLinkSpent}
				}
				return mapRepoError(err)
			}
		}
		return mapRepoError(tx.CreateBooking(ctx, booking))
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.invalidate(booking.ResourceIDs)
	return booking, nil
}

func (s *BookingService) invalidate(resourceIDs []string) {
	for _, id := range resourceIDs {
		s.cache.InvalidateResource(id)
	}
}
