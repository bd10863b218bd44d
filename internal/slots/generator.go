// Package slots turns free time into bookable start times for a service.
package slots

import (
	"errors"
	"iter"
	"time"

	"github.com/example/availability-engine/internal/availability"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
)

var (
	// ErrInvalidRequest indicates a non-positive duration or step.
	ErrInvalidRequest = errors.New("slots: duration and step must be positive")
	// ErrNoSnapshots indicates a request without any resource.
	ErrNoSnapshots = errors.New("slots: at least one resource snapshot is required")
)

// ValidateLink reports why a link can no longer produce bookings, or
// ReasonNone when it can. It must be called again immediately before a slot
// is converted into a booking.
func ValidateLink(link domain.BookingLink, now time.Time) domain.Reason {
	if link.ExpiresAt != nil && !now.Before(*link.ExpiresAt) {
		return domain.ReasonLinkExpired
	}
	if link.Type == domain.LinkTypeOneTime && link.SpentAt != nil {
		return domain.ReasonLinkSpent
	}
	return domain.ReasonNone
}

// Request describes a slot search. Every snapshot must cover Window.
type Request struct {
	Snapshots []*availability.Snapshot
	ServiceID string
	Duration  time.Duration
	Step      time.Duration
	Window    domain.Window
	Link      *domain.BookingLink
	// NotBefore suppresses slots starting earlier, typically "now".
	NotBefore time.Time
}

// Stream is a lazy sequence of slots. When Reason is set the link refused the
// request and the sequence is empty.
type Stream struct {
	Reason domain.Reason
	seq    iter.Seq[domain.Slot]
}

// All yields slots in ascending start order.
func (s Stream) All() iter.Seq[domain.Slot] {
	if s.seq == nil {
		return func(func(domain.Slot) bool) {}
	}
	return s.seq
}

// Take collects up to limit slots. A non-positive limit collects everything.
func (s Stream) Take(limit int) []domain.Slot {
	out := make([]domain.Slot, 0)
	for slot := range s.All() {
		out = append(out, slot)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Generator produces slot streams.
type Generator struct {
	now func() time.Time
}

// NewGenerator constructs a Generator. now defaults to time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Now returns the generator's current time.
func (g *Generator) Now() time.Time {
	return g.now()
}

// Generate prepares the slots of the request. Candidate starts are
// Window.Start + k*Step; a candidate is yielded when every resource admits
// [t, t+Duration) with its buffers for the service.
func (g *Generator) Generate(req Request) (Stream, error) {
	if req.Duration <= 0 || req.Step <= 0 {
		return Stream{}, ErrInvalidRequest
	}
	if err := req.Window.Validate(); err != nil {
		return Stream{}, err
	}
	if len(req.Snapshots) == 0 {
		return Stream{}, ErrNoSnapshots
	}
	if req.Link != nil {
		if reason := ValidateLink(*req.Link, g.now()); reason != domain.ReasonNone {
			return Stream{Reason: reason}, nil
		}
	}

	window := req.Window.Interval()
	return Stream{seq: func(yield func(domain.Slot) bool) {
		for _, piece := range commonFree(req.Snapshots, window, req.Duration) {
			for t := alignedStart(window.Start, piece.Start, req.Step); !t.Add(req.Duration).After(piece.End); t = t.Add(req.Step) {
				if t.Before(req.NotBefore) {
					continue
				}
				candidate := interval.Interval{Start: t, End: t.Add(req.Duration)}
				if !admitted(req.Snapshots, candidate, req.ServiceID) {
					continue
				}
				if !yield(domain.Slot{Start: candidate.Start, End: candidate.End}) {
					return
				}
			}
		}
	}}, nil
}

// commonFree intersects the free time of all snapshots inside the window.
func commonFree(snapshots []*availability.Snapshot, window interval.Interval, duration time.Duration) []interval.Interval {
	common := interval.Intersection(snapshots[0].Free(duration), []interval.Interval{window})
	for _, snap := range snapshots[1:] {
		common = interval.Intersection(common, snap.Free(duration))
	}
	out := common[:0]
	for _, piece := range common {
		if piece.Duration() >= duration {
			out = append(out, piece)
		}
	}
	return out
}

func admitted(snapshots []*availability.Snapshot, candidate interval.Interval, serviceID string) bool {
	for _, snap := range snapshots {
		if snap.Admits(candidate, serviceID) != domain.ReasonNone {
			return false
		}
	}
	return true
}

// alignedStart returns the first origin + k*step not before from.
func alignedStart(origin, from time.Time, step time.Duration) time.Time {
	if !from.After(origin) {
		return origin
	}
	offset := from.Sub(origin)
	k := offset / step
	if offset%step != 0 {
		k++
	}
	return origin.Add(k * step)
}
