package availability

import (
	"slices"
	"time"

	"github.com/example/availability-engine/internal/buffer"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
)

// Occupied is one booking occurrence on the resource, with and without its
// buffers.
type Occupied struct {
	BookingID  string
	Index      int
	Occurrence interval.Interval
	Buffered   interval.Interval
}

// Snapshot is the evaluated state of one resource over a window. It is
// read-only and safe for concurrent use.
type Snapshot struct {
	ResourceID string
	Location   *time.Location
	Window     interval.Interval

	open     []interval.Interval
	busy     *interval.Index
	blocked  *interval.Index
	occupied []Occupied
	buffers  *buffer.Resolver
}

// Open returns the working-hours intervals inside the window.
func (s *Snapshot) Open() []interval.Interval {
	return slices.Clone(s.open)
}

// Occupied returns every buffered booking occurrence that reaches the window.
func (s *Snapshot) Occupied() []Occupied {
	return slices.Clone(s.occupied)
}

// Busy returns the merged buffered bookings and blocked dates inside the
// window.
func (s *Snapshot) Busy() []interval.Interval {
	busy := s.busy.Intersecting(s.ResourceID, s.Window.Start, s.Window.End)
	busy = append(busy, s.blocked.Intersecting(s.ResourceID, s.Window.Start, s.Window.End)...)
	merged := interval.Merge(busy)
	for i := range merged {
		merged[i] = merged[i].Intersect(s.Window)
	}
	return merged
}

// Free returns open time not covered by buffered bookings or blocked dates,
// ascending. Intervals shorter than minDuration are dropped.
func (s *Snapshot) Free(minDuration time.Duration) []interval.Interval {
	free := make([]interval.Interval, 0, len(s.open))
	for _, open := range s.open {
		cuts := s.busy.Intersecting(s.ResourceID, open.Start, open.End)
		cuts = append(cuts, s.blocked.Intersecting(s.ResourceID, open.Start, open.End)...)
		for _, piece := range open.Subtract(interval.Merge(cuts)) {
			if piece.Duration() >= minDuration {
				free = append(free, piece)
			}
		}
	}
	return free
}

// Buffers resolves the buffers a booking of the service starting at start
// would carry on this resource.
func (s *Snapshot) Buffers(serviceID string, start time.Time) (before, after time.Duration) {
	return s.buffers.Resolve(s.ResourceID, serviceID, start.In(s.Location).Weekday())
}

// Admits decides whether the resource can take a booking of the service over
// proposed. Reasons are checked in priority order: an overlap between the
// buffered proposal and buffered bookings, an overlap with a blocked date, and
// finally whether the proposal sits inside a single working-hours interval.
func (s *Snapshot) Admits(proposed interval.Interval, serviceID string) domain.Reason {
	before, after := s.Buffers(serviceID, proposed.Start)
	return s.admits(proposed, before, after)
}

func (s *Snapshot) admits(proposed interval.Interval, before, after time.Duration) domain.Reason {
	if s.busy.Overlaps(s.ResourceID, proposed.Expand(before, after)) {
		return domain.ReasonResourceBusy
	}
	if s.blocked.Overlaps(s.ResourceID, proposed) {
		return domain.ReasonBlockedDate
	}
	if !s.withinOpen(proposed) {
		return domain.ReasonOutsideWorkingHours
	}
	return domain.ReasonNone
}

// ConflictingBookings lists, without duplicates, the bookings whose buffered
// occurrences overlap the buffered proposal.
func (s *Snapshot) ConflictingBookings(proposed interval.Interval, serviceID string) []string {
	before, after := s.Buffers(serviceID, proposed.Start)
	buffered := proposed.Expand(before, after)
	ids := make([]string, 0)
	for _, o := range s.occupied {
		if !o.Buffered.Start.Before(buffered.End) {
			break
		}
		if o.Buffered.Overlaps(buffered) && !slices.Contains(ids, o.BookingID) {
			ids = append(ids, o.BookingID)
		}
	}
	return ids
}

func (s *Snapshot) withinOpen(proposed interval.Interval) bool {
	i, _ := slices.BinarySearchFunc(s.open, proposed.Start, func(iv interval.Interval, t time.Time) int {
		if !iv.End.After(t) {
			return -1
		}
		if iv.Start.After(t) {
			return 1
		}
		return 0
	})
	return i < len(s.open) && s.open[i].Contains(proposed)
}
