// Package engine exposes availability resolution, conflict checking, slot
// generation and recurrence expansion behind one stateless facade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/availability-engine/internal/availability"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/recurrence"
	"github.com/example/availability-engine/internal/scheduler"
	"github.com/example/availability-engine/internal/slots"
)

// Config tunes the engine.
type Config struct {
	// Horizon caps expansion of recurring bookings that never end.
	Horizon time.Duration
	// ConflictLookaround is how far around a proposal bookings are evaluated.
	ConflictLookaround time.Duration
	// MaxOccurrences bounds a single recurrence expansion.
	MaxOccurrences int
	// MaxGoroutines bounds parallel recurrence expansion per resource.
	MaxGoroutines int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Horizon:            recurrence.DefaultHorizon,
		ConflictLookaround: scheduler.DefaultLookaround,
		MaxOccurrences:     recurrence.DefaultMaxOccurrences,
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	expander  *recurrence.Engine
	resolver  *availability.Resolver
	checker   *scheduler.Checker
	generator *slots.Generator
}

// New constructs an Engine. now feeds link validation and defaults to
// time.Now.
func New(cfg Config, now func() time.Time) *Engine {
	expander := recurrence.NewEngine(recurrence.WithHorizon(cfg.Horizon), recurrence.WithMaxOccurrences(cfg.MaxOccurrences))
	resolver := availability.NewResolver(expander, availability.WithMaxGoroutines(cfg.MaxGoroutines))
	return &Engine{
		expander:  expander,
		resolver:  resolver,
		checker:   scheduler.NewChecker(resolver, cfg.ConflictLookaround),
		generator: slots.NewGenerator(now),
	}
}

// ResourceState is everything known about one resource.
type ResourceState = scheduler.ResourceContext

// ResolveAvailability returns the free intervals of a resource inside the
// window, ascending, each at least minDuration long.
func (e *Engine) ResolveAvailability(ctx context.Context, state ResourceState, window domain.Window, minDuration time.Duration) ([]domain.AvailabilitySlot, error) {
	return e.resolver.Resolve(ctx, availability.Input{
		Resource:     state.Resource,
		Window:       window,
		BlockedDates: state.BlockedDates,
		Bookings:     state.Bookings,
		BufferRules:  state.BufferRules,
	}, minDuration)
}

// Busy returns the merged occupied time of a resource inside the window.
func (e *Engine) Busy(ctx context.Context, state ResourceState, window domain.Window) ([]interval.Interval, error) {
	snap, err := e.resolver.Snapshot(ctx, availability.Input{
		Resource:     state.Resource,
		Window:       window,
		BlockedDates: state.BlockedDates,
		Bookings:     state.Bookings,
		BufferRules:  state.BufferRules,
	})
	if err != nil {
		return nil, err
	}
	return snap.Busy(), nil
}

// ConflictQuery describes a proposed booking.
type ConflictQuery struct {
	ResourceIDs     []string
	Start           time.Time
	End             time.Time
	ServiceID       string
	States          map[string]ResourceState
	IgnoreBookingID string
}

// CheckConflict decides whether a proposal fits on every resource.
func (e *Engine) CheckConflict(ctx context.Context, q ConflictQuery) (scheduler.Decision, error) {
	return e.checker.Check(ctx, scheduler.Request{
		ResourceIDs:     q.ResourceIDs,
		Proposed:        interval.Interval{Start: q.Start, End: q.End},
		ServiceID:       q.ServiceID,
		Contexts:        q.States,
		IgnoreBookingID: q.IgnoreBookingID,
	})
}

// SlotQuery describes a slot search across resources that must all be free.
type SlotQuery struct {
	ResourceIDs []string
	States      map[string]ResourceState
	ServiceID   string
	Duration    time.Duration
	Step        time.Duration
	Window      domain.Window
	Link        *domain.BookingLink
	NotBefore   time.Time
}

// GenerateSlots prepares a lazy slot stream.
func (e *Engine) GenerateSlots(ctx context.Context, q SlotQuery) (slots.Stream, error) {
	if err := q.Window.Validate(); err != nil {
		return slots.Stream{}, err
	}
	if q.Link != nil {
		// Refused links never reach the snapshots.
		if reason := slots.ValidateLink(*q.Link, e.generator.Now()); reason != domain.ReasonNone {
			return slots.Stream{Reason: reason}, nil
		}
	}

	snapshots := make([]*availability.Snapshot, 0, len(q.ResourceIDs))
	seen := make([]string, 0, len(q.ResourceIDs))
	for _, id := range q.ResourceIDs {
		if slices.Contains(seen, id) {
			continue
		}
		seen = append(seen, id)
		state, ok := q.States[id]
		if !ok {
			return slots.Stream{}, fmt.Errorf("engine: no state for resource %s", id)
		}
		snap, err := e.resolver.Snapshot(ctx, availability.Input{
			Resource:     state.Resource,
			Window:       q.Window,
			BlockedDates: state.BlockedDates,
			Bookings:     state.Bookings,
			BufferRules:  state.BufferRules,
		})
		if err != nil {
			return slots.Stream{}, err
		}
		snapshots = append(snapshots, snap)
	}

	return e.generator.Generate(slots.Request{
		Snapshots: snapshots,
		ServiceID: q.ServiceID,
		Duration:  q.Duration,
		Step:      q.Step,
		Window:    q.Window,
		Link:      q.Link,
		NotBefore: q.NotBefore,
	})
}

// ValidateLink reports why a link is unusable right now.
func (e *Engine) ValidateLink(link domain.BookingLink) domain.Reason {
	return slots.ValidateLink(link, e.generator.Now())
}

// ExpandRecurrence lists the occurrences of rule anchored at anchor that
// overlap the window, in loc's wall-clock time, clipped to the window. An
// unset window bound leaves that side unclipped. When the expansion stopped at
// the horizon the occurrences are returned with an error matching
// recurrence.ErrExpansionHorizonExceeded.
func (e *Engine) ExpandRecurrence(rule recurrence.Rule, anchor time.Time, duration time.Duration, window recurrence.Window, loc *time.Location) ([]interval.Interval, error) {
	occurrences, err := e.expander.With(recurrence.WithLocation(loc)).ExpandAll(rule, anchor, duration, window)
	if err != nil && !errors.Is(err, recurrence.ErrExpansionHorizonExceeded) {
		return nil, err
	}
	out := make([]interval.Interval, 0, len(occurrences))
	for _, o := range occurrences {
		iv := interval.Interval{Start: o.Start, End: o.End}
		if !window.Start.IsZero() && iv.Start.Before(window.Start) {
			iv.Start = window.Start.UTC()
		}
		if !window.End.IsZero() && iv.End.After(window.End) {
			iv.End = window.End.UTC()
		}
		out = append(out, iv)
	}
	return out, err
}

// NextOccurrences returns up to n occurrences starting at or after from.
func (e *Engine) NextOccurrences(rule recurrence.Rule, anchor time.Time, duration time.Duration, from time.Time, n int, loc *time.Location) ([]interval.Interval, error) {
	x, err := e.expander.With(recurrence.WithLocation(loc)).Expand(rule, anchor, duration, recurrence.Window{Start: from})
	if err != nil {
		return nil, err
	}
	out := make([]interval.Interval, 0, max(n, 0))
	if n <= 0 {
		return out, nil
	}
	for o := range x.All() {
		if o.Start.Before(from) {
			continue
		}
		out = append(out, interval.Interval{Start: o.Start, End: o.End})
		if len(out) == n {
			break
		}
	}
	return out, nil
}
