package application

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/recurrence"
	"github.com/example/availability-engine/internal/testfixtures"
)

func TestBookingService_CreateBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")

	booking := env.book(t, "room-1", testfixtures.At(0, 10, 0), testfixtures.At(0, 11, 0))
	if booking.ID == "" || booking.Status != domain.BookingStatusConfirmed {
		t.Fatalf("unexpected booking: %+v", booking)
	}
	if !booking.CreatedAt.Equal(testfixtures.ReferenceTime()) {
		t.Fatalf("expected creation time from the clock, got %s", booking.CreatedAt)
	}

	stored, err := env.bookings.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if !cmp.Equal(stored.ResourceIDs, []string{"room-1"}) || !stored.Start.Equal(booking.Start) {
		t.Fatalf("unexpected stored booking: %+v", stored)
	}

	_, err = env.bookings.CreateBooking(ctx, CreateBookingParams{
		ResourceIDs: []string{"room-1"},
		ServiceID:   "consultation",
		Start:       testfixtures.At(0, 10, 30),
		End:         testfixtures.At(0, 11, 30),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	rejections := conflict.Decision.Rejections()
	if len(rejections) != 1 || rejections[0].Reason != domain.ReasonResourceBusy || !cmp.Equal(rejections[0].ConflictingBookingIDs, []string{booking.ID}) {
		t.Fatalf("unexpected rejections: %+v", rejections)
	}
	if ErrorKind(err) != "conflict" {
		t.Fatalf("expected conflict error kind, got %s", ErrorKind(err))
	}

	// Back to back bookings share the boundary instant.
	env.book(t, "room-1", testfixtures.At(0, 11, 0), testfixtures.At(0, 12, 0))
}

func TestBookingService_CreateBookingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")

	_, err := env.bookings.CreateBooking(ctx, CreateBookingParams{Start: testfixtures.At(0, 10, 0), End: testfixtures.At(0, 11, 0)})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["resource_ids"] == "" {
		t.Fatalf("expected resource_ids validation error, got %v", err)
	}

	_, err = env.bookings.CreateBooking(ctx, CreateBookingParams{ResourceIDs: []string{"room-1"}, Start: testfixtures.At(0, 11, 0), End: testfixtures.At(0, 10, 0)})
	if !errors.Is(err, domain.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}

	_, err = env.bookings.CreateBooking(ctx, CreateBookingParams{
		ResourceIDs: []string{"room-1"},
		Start:       testfixtures.At(0, 10, 0),
		End:         testfixtures.At(0, 11, 0),
		Recurrence:  &recurrence.Rule{Frequency: recurrence.FrequencyWeekly},
	})
	if !errors.Is(err, recurrence.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}

	_, err = env.bookings.CreateBooking(ctx, CreateBookingParams{ResourceIDs: []string{"ghost"}, Start: testfixtures.At(0, 10, 0), End: testfixtures.At(0, 11, 0)})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Decision.Verdicts[0].Reason != domain.ReasonUnknownResource {
		t.Fatalf("expected unknown resource rejection, got %v", err)
	}
}

func TestBookingService_RecurringBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")
	env.room(t, "room-2")

	series, err := env.bookings.CreateBooking(ctx, CreateBookingParams{
		ResourceIDs: []string{"room-1"},
		ServiceID:   "standup",
		Start:       testfixtures.At(0, 10, 0),
		End:         testfixtures.At(0, 11, 0),
		Recurrence:  &recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: 1, Count: 4},
	})
	if err != nil {
		t.Fatalf("create recurring booking: %v", err)
	}

	// The third Monday is taken by the series.
	_, err = env.bookings.CreateBooking(ctx, CreateBookingParams{
		ResourceIDs: []string{"room-1"},
		Start:       testfixtures.At(14, 10, 30),
		End:         testfixtures.At(14, 11, 0),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || !cmp.Equal(conflict.Decision.Verdicts[0].ConflictingBookingIDs, []string{series.ID}) {
		t.Fatalf("expected conflict with the series, got %v", err)
	}

	// The series ended after four weeks.
	env.book(t, "room-1", testfixtures.At(28, 10, 0), testfixtures.At(28, 11, 0))

	single := env.book(t, "room-2", testfixtures.At(14, 15, 0), testfixtures.At(14, 16, 0))
	_, err = env.bookings.CreateBooking(ctx, CreateBookingParams{
		ResourceIDs: []string{"room-2"},
		Start:       testfixtures.At(0, 15, 0),
		End:         testfixtures.At(0, 16, 0),
		Recurrence:  &recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: 1, Count: 3},
	})
	if !errors.As(err, &conflict) || !cmp.Equal(conflict.Decision.Verdicts[0].ConflictingBookingIDs, []string{single.ID}) {
		t.Fatalf("expected the third occurrence to conflict, got %v", err)
	}
}

func TestBookingService_BufferRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")
	if _, err := env.catalog.CreateBufferRule(ctx, domain.BufferRule{ResourceID: "room-1", ServiceID: "consultation", After: 15 * time.Minute}); err != nil {
		t.Fatalf("create buffer rule: %v", err)
	}
	env.book(t, "room-1", testfixtures.At(0, 10, 0), testfixtures.At(0, 11, 0))

	_, err := env.bookings.CreateBooking(ctx, CreateBookingParams{
		ResourceIDs: []string{"room-1"},
		ServiceID:   "consultation",
		Start:       testfixtures.At(0, 11, 0),
		End:         testfixtures.At(0, 11, 30),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected the buffer to reject the booking, got %v", err)
	}

	env.book(t, "room-1", testfixtures.At(0, 11, 15), testfixtures.At(0, 11, 45))
}

func TestBookingService_CancelBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")
	booking := env.book(t, "room-1", testfixtures.At(0, 10, 0), testfixtures.At(0, 11, 0))

	if _, err := env.availability.Resolve(ctx, "room-1", monday(), 0); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := env.bookings.CancelBooking(ctx, booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if env.cache.Len() != 0 {
		t.Fatalf("expected the cancellation to invalidate cached availability")
	}

	stored, err := env.bookings.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if stored.Status != domain.BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", stored.Status)
	}

	decision, err := env.availability.CheckConflict(ctx, ConflictParams{
		ResourceIDs: []string{"room-1"},
		Start:       testfixtures.At(0, 10, 0),
		End:         testfixtures.At(0, 11, 0),
	})
	if err != nil || !decision.Accepted {
		t.Fatalf("expected the released time to be accepted, got %+v, %v", decision, err)
	}

	if err := env.bookings.CancelBooking(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingService_BookFromLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")

	oneTime, err := env.catalog.CreateLink(ctx, domain.BookingLink{
		Slug:        "once",
		ServiceID:   "consultation",
		ResourceIDs: []string{"room-1"},
		Type:        domain.LinkTypeOneTime,
		Duration:    30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}

	booking, err := env.bookings.BookFromLink(ctx, "once", testfixtures.At(0, 9, 0))
	if err != nil {
		t.Fatalf("book from link: %v", err)
	}
	if booking.LinkID != oneTime.ID || !booking.End.Equal(testfixtures.At(0, 9, 30)) || booking.ServiceID != "consultation" {
		t.Fatalf("unexpected booking: %+v", booking)
	}

	_, err = env.bookings.BookFromLink(ctx, "once", testfixtures.At(0, 10, 0))
	var refused *LinkRefusedError
	if !errors.As(err, &refused) || refused.Reason != domain.ReasonLinkSpent {
		t.Fatalf("expected a spent link, got %v", err)
	}

	if _, err := env.catalog.CreateLink(ctx, domain.BookingLink{Slug: "team", ResourceIDs: []string{"room-1"}, Duration: time.Hour}); err != nil {
		t.Fatalf("create link: %v", err)
	}
	if _, err := env.bookings.BookFromLink(ctx, "team", testfixtures.At(0, 11, 0)); err != nil {
		t.Fatalf("book from permanent link: %v", err)
	}
	if _, err := env.bookings.BookFromLink(ctx, "team", testfixtures.At(0, 13, 0)); err != nil {
		t.Fatalf("book from permanent link again: %v", err)
	}
	_, err = env.bookings.BookFromLink(ctx, "team", testfixtures.At(0, 11, 30))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected a conflict, got %v", err)
	}

	env.clock.Set(testfixtures.At(0, 12, 0))
	_, err = env.bookings.BookFromLink(ctx, "team", testfixtures.At(0, 11, 0))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["start"] == "" {
		t.Fatalf("expected start validation error, got %v", err)
	}

	expires := testfixtures.At(0, 13, 0)
	if _, err := env.catalog.CreateLink(ctx, domain.BookingLink{Slug: "soon", ResourceIDs: []string{"room-1"}, Duration: time.Hour, ExpiresAt: &expires}); err != nil {
		t.Fatalf("create link: %v", err)
	}
	env.clock.Set(expires)
	_, err = env.bookings.BookFromLink(ctx, "soon", testfixtures.At(0, 15, 0))
	if !errors.As(err, &refused) || refused.Reason != domain.ReasonLinkExpired {
		t.Fatalf("expected an expired link, got %v", err)
	}

	if _, err := env.bookings.BookFromLink(ctx, "missing", testfixtures.At(0, 15, 0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
