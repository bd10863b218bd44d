package interval

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidInterval indicates an interval whose end does not follow its start.
var ErrInvalidInterval = errors.New("interval: end must be after start")

// Interval is a half-open span of time [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New constructs an interval normalised to UTC.
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start.UTC(), End: end.UTC()}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate reports ErrInvalidInterval when End is not strictly after Start.
func (iv Interval) Validate() error {
	if !iv.End.After(iv.Start) {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval, iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// IsEmpty reports whether the interval covers no time.
func (iv Interval) IsEmpty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps reports whether the two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Intersect returns the common part of both intervals. The result is empty
// when they do not overlap.
func (iv Interval) Intersect(other Interval) Interval {
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return Interval{}
	}
	return Interval{Start: start, End: end}
}

// Expand widens the interval by before on the left and after on the right.
func (iv Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-before), End: iv.End.Add(after)}
}

// UTC returns a copy with both bounds in UTC.
func (iv Interval) UTC() Interval {
	return Interval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

func (iv Interval) String() string {
	return "[" + iv.Start.Format(time.RFC3339) + ", " + iv.End.Format(time.RFC3339) + ")"
}

// Subtract removes every interval in cuts from iv. cuts must be sorted by
// Start; the result is sorted and excludes empty pieces.
func (iv Interval) Subtract(cuts []Interval) []Interval {
	pieces := make([]Interval, 0, 1)
	cursor := iv.Start
	for _, cut := range cuts {
		if !cut.End.After(cursor) {
			continue
		}
		if !cut.Start.Before(iv.End) {
			break
		}
		if cut.Start.After(cursor) {
			pieces = append(pieces, Interval{Start: cursor, End: cut.Start})
		}
		if cut.End.After(cursor) {
			cursor = cut.End
		}
		if !cursor.Before(iv.End) {
			return pieces
		}
	}
	if cursor.Before(iv.End) {
		pieces = append(pieces, Interval{Start: cursor, End: iv.End})
	}
	return pieces
}

// Sort orders intervals by Start, then End.
func Sort(intervals []Interval) {
	slices.SortFunc(intervals, Compare)
}

// Compare orders intervals by Start, breaking ties on End.
func Compare(a, b Interval) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return a.End.Compare(b.End)
}

// Merge returns the union of the intervals as a sorted list of disjoint
// intervals. Touching intervals are coalesced.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := slices.Clone(intervals)
	Sort(sorted)
	merged := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if !next.Start.After(current.End) {
			if next.End.After(current.End) {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// Intersection returns the instants covered by both sorted, disjoint lists.
func Intersection(a, b []Interval) []Interval {
	out := make([]Interval, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if common := a[i].Intersect(b[j]); !common.IsEmpty() {
			out = append(out, common)
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}
