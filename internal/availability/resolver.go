// Package availability computes free time on a resource from its working
// hours, blocked dates, bookings and buffer rules.
package availability

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	conciter "github.com/sourcegraph/conc/iter"

	"github.com/example/availability-engine/internal/buffer"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/recurrence"
)

// Input is everything the resolver needs to know about one resource.
type Input struct {
	Resource     domain.Resource
	Window       domain.Window
	BlockedDates []domain.BlockedDate
	Bookings     []domain.Booking
	BufferRules  []domain.BufferRule
	// IgnoreBookingID excludes a booking, typically the one being moved.
	IgnoreBookingID string
}

// Resolver builds resource snapshots. It holds no mutable state.
type Resolver struct {
	expander      *recurrence.Engine
	maxGoroutines int
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithMaxGoroutines bounds the parallel recurrence expansion.
func WithMaxGoroutines(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxGoroutines = n
		}
	}
}

// NewResolver constructs a Resolver. A nil expander uses recurrence defaults.
func NewResolver(expander *recurrence.Engine, opts ...Option) *Resolver {
	if expander == nil {
		expander = recurrence.NewEngine()
	}
	r := &Resolver{expander: expander, maxGoroutines: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the free intervals of the resource inside the window, in
// ascending order, dropping intervals shorter than minDuration.
func (r *Resolver) Resolve(ctx context.Context, in Input, minDuration time.Duration) ([]domain.AvailabilitySlot, error) {
	snap, err := r.Snapshot(ctx, in)
	if err != nil {
		return nil, err
	}
	free := snap.Free(minDuration)
	out := make([]domain.AvailabilitySlot, 0, len(free))
	for _, iv := range free {
		out = append(out, domain.AvailabilitySlot{ResourceIDs: []string{snap.ResourceID}, Start: iv.Start, End: iv.End})
	}
	return out, nil
}

// Snapshot evaluates the resource over the window.
//
// Recurring bookings are expanded in parallel; the resulting occurrences are
// then buffered and inserted into the interval index from this goroutine.
func (r *Resolver) Snapshot(ctx context.Context, in Input) (*Snapshot, error) {
	if err := in.Window.Validate(); err != nil {
		return nil, err
	}
	if err := in.Resource.Validate(); err != nil {
		return nil, err
	}
	loc, err := in.Resource.Location()
	if err != nil {
		return nil, err
	}

	resourceID := in.Resource.ID
	window := in.Window.Interval()
	buffers := buffer.NewResolver(in.BufferRules)
	reach := window.Expand(buffers.MaxBuffer(resourceID), buffers.MaxBuffer(resourceID))

	bookings := make([]domain.Booking, 0, len(in.Bookings))
	for _, b := range in.Bookings {
		if !b.Active() || !b.Uses(resourceID) || (in.IgnoreBookingID != "" && b.ID == in.IgnoreBookingID) {
			continue
		}
		bookings = append(bookings, b)
	}

	expander := r.expander.With(recurrence.WithLocation(loc))
	mapper := conciter.Mapper[domain.Booking, []Occupied]{MaxGoroutines: r.maxGoroutines}
	expanded, err := mapper.MapErr(bookings, func(b *domain.Booking) ([]Occupied, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return occupy(expander, buffers, resourceID, loc, *b, reach)
	})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ResourceID: resourceID,
		Location:   loc,
		Window:     window,
		open:       openIntervals(in.Resource, loc, window),
		busy:       interval.NewIndex(),
		blocked:    interval.NewIndex(),
		buffers:    buffers,
	}
	for _, occupied := range expanded {
		for _, o := range occupied {
			snap.busy.Insert(resourceID, o.Buffered)
			snap.occupied = append(snap.occupied, o)
		}
	}
	slices.SortFunc(snap.occupied, func(a, b Occupied) int { return interval.Compare(a.Buffered, b.Buffered) })

	for _, blocked := range in.BlockedDates {
		if blocked.ResourceID != "" && blocked.ResourceID != resourceID {
			continue
		}
		if err := blocked.Validate(); err != nil {
			return nil, err
		}
		snap.blocked.Insert(resourceID, blocked.Interval())
	}
	return snap, nil
}

// occupy expands one booking into buffered occurrences overlapping reach.
// Occurrences are expanded over reach widened by the largest buffer again, so
// an occurrence that ends before reach but whose after buffer extends into it
// is still found.
func occupy(expander *recurrence.Engine, buffers *buffer.Resolver, resourceID string, loc *time.Location, b domain.Booking, reach interval.Interval) ([]Occupied, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("availability: booking %s: %w", b.ID, err)
	}

	occurrences := []recurrence.Occurrence{{Start: b.Start.UTC(), End: b.End.UTC()}}
	if b.Recurrence != nil {
		pad := buffers.MaxBuffer(resourceID)
		around := reach.Expand(pad, pad)
		var err error
		occurrences, err = expander.ExpandAll(*b.Recurrence, b.Start, b.Duration(), recurrence.Window{Start: around.Start, End: around.End})
		if err != nil && !errors.Is(err, recurrence.ErrExpansionHorizonExceeded) {
			return nil, fmt.Errorf("availability: booking %s: %w", b.ID, err)
		}
	}

	out := make([]Occupied, 0, len(occurrences))
	for _, o := range occurrences {
		occurrence := interval.Interval{Start: o.Start, End: o.End}
		buffered := buffers.Apply(resourceID, b.ServiceID, occurrence, loc)
		if !buffered.Overlaps(reach) {
			continue
		}
		out = append(out, Occupied{BookingID: b.ID, Index: o.Index, Occurrence: occurrence, Buffered: buffered})
	}
	return out, nil
}

// openIntervals lays the weekly working hours over the window. Each entry on
// each local day yields its own interval; adjacent days are never joined.
func openIntervals(resource domain.Resource, loc *time.Location, window interval.Interval) []interval.Interval {
	first := window.Start.In(loc)
	last := window.End.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	open := make([]interval.Interval, 0)
	for !day.After(last) {
		y, m, d := day.Date()
		for _, wh := range resource.HoursOn(day.Weekday()) {
			start := time.Date(y, m, d, int(wh.Start)/60, int(wh.Start)%60, 0, 0, loc)
			end := time.Date(y, m, d, int(wh.End)/60, int(wh.End)%60, 0, 0, loc)
			piece := interval.Interval{Start: start.UTC(), End: end.UTC()}.Intersect(window)
			if !piece.IsEmpty() {
				open = append(open, piece)
			}
		}
		day = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return open
}
