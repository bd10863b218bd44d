package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

const (
	// DefaultHorizon caps expansion of rules that never end when the caller
	// also leaves the window open.
	DefaultHorizon = 366 * 24 * time.Hour
	// DefaultMaxOccurrences bounds a single expansion.
	DefaultMaxOccurrences = 50000

	// maxMisses bounds consecutive candidate dates rejected by filters, so a
	// rule whose filters can never match terminates.
	maxMisses = 20000
)

// ErrExpansionHorizonExceeded reports that an expansion stopped at the
// configured horizon or occurrence cap instead of at a natural end.
var ErrExpansionHorizonExceeded = errors.New("recurrence: expansion horizon exceeded")

// ErrInvalidDuration indicates the occurrence duration is not positive.
var ErrInvalidDuration = errors.New("recurrence: occurrence duration must be positive")

// ErrInvalidWindow indicates a window whose end precedes its start.
var ErrInvalidWindow = errors.New("recurrence: window end must be after start")

// Window bounds an expansion. A zero End leaves the window open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Occurrence is one concrete instance of a recurring booking. Index counts
// from zero at the anchor, so a booking id and an index identify it.
type Occurrence struct {
	Index int
	Start time.Time
	End   time.Time
}

// Engine expands recurrence rules into occurrences.
type Engine struct {
	location       *time.Location
	horizon        time.Duration
	maxOccurrences int
}

// Option customises an Engine.
type Option func(*Engine)

// WithLocation sets the zone whose wall clock is preserved between
// occurrences. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithHorizon overrides DefaultHorizon.
func WithHorizon(horizon time.Duration) Option {
	return func(e *Engine) {
		if horizon > 0 {
			e.horizon = horizon
		}
	}
}

// WithMaxOccurrences overrides DefaultMaxOccurrences.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOccurrences = n
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{location: time.UTC, horizon: DefaultHorizon, maxOccurrences: DefaultMaxOccurrences}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of the engine with extra options applied.
func (e *Engine) With(opts ...Option) *Engine {
	clone := *e
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// Expansion is a lazy, restartable sequence of occurrences.
type Expansion struct {
	rule     Rule
	anchor   time.Time
	duration time.Duration
	window   Window
	stopAt   time.Time
	capped   bool
	max      int
}

// Expand prepares the occurrences of rule anchored at anchor that overlap the
// window. Nothing is computed until the sequence is ranged over.
//
// Occurrences keep the anchor's wall-clock time in the engine location, so a
// 09:00 booking stays at 09:00 local across daylight saving transitions.
func (e *Engine) Expand(rule Rule, anchor time.Time, duration time.Duration, window Window) (*Expansion, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if !window.End.IsZero() && !window.Start.IsZero() && !window.End.After(window.Start) {
		return nil, ErrInvalidWindow
	}

	x := &Expansion{
		rule:     rule.Clone(),
		anchor:   anchor.In(e.location),
		duration: duration,
		window:   window,
		stopAt:   window.End,
		max:      e.maxOccurrences,
	}
	if window.End.IsZero() && !rule.Bounded() {
		from := anchor
		if window.Start.After(from) {
			from = window.Start
		}
		x.stopAt = from.Add(e.horizon)
		x.capped = true
	}
	return x, nil
}

// ExpandAll is a convenience wrapper around Expand and Collect.
func (e *Engine) ExpandAll(rule Rule, anchor time.Time, duration time.Duration, window Window) ([]Occurrence, error) {
	x, err := e.Expand(rule, anchor, duration, window)
	if err != nil {
		return nil, err
	}
	return x.Collect()
}

// Capped reports whether the expansion is bounded by the engine horizon
// rather than by the rule or the window.
func (x *Expansion) Capped() bool {
	return x.capped
}

// All yields occurrences in ascending start order. Each call restarts from
// the anchor.
func (x *Expansion) All() iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		x.run(yield)
	}
}

// Collect materialises the expansion. When the horizon or occurrence cap cut
// it short, the collected occurrences are returned together with an error
// matching ErrExpansionHorizonExceeded.
func (x *Expansion) Collect() ([]Occurrence, error) {
	out := make([]Occurrence, 0)
	truncated := x.run(func(o Occurrence) bool {
		out = append(out, o)
		return true
	})
	if truncated {
		return out, fmt.Errorf("%w: stopped at %s", ErrExpansionHorizonExceeded, x.stopAt.UTC().Format(time.RFC3339))
	}
	return out, nil
}

// Take returns at most n occurrences.
func Take(seq iter.Seq[Occurrence], n int) []Occurrence {
	out := make([]Occurrence, 0, n)
	if n <= 0 {
		return out
	}
	for o := range seq {
		out = append(out, o)
		if len(out) == n {
			break
		}
	}
	return out
}

// run drives the candidate generator and reports whether it stopped because
// of the horizon or the occurrence cap.
func (x *Expansion) run(yield func(Occurrence) bool) (truncated bool) {
	skipTo := time.Time{}
	if x.rule.Count == 0 && !x.window.Start.IsZero() {
		skipTo = x.window.Start.Add(-x.duration)
	}

	candidates, emitted := x.candidates(skipTo)
	yielded := 0
	stopped := false
	candidates(func(start time.Time) bool {
		if x.rule.Until != nil && start.After(*x.rule.Until) {
			return false
		}
		if !x.stopAt.IsZero() && !start.Before(x.stopAt) {
			truncated = x.capped
			return false
		}
		index := emitted
		emitted++
		end := start.Add(x.duration)
		if x.window.Start.IsZero() || end.After(x.window.Start) {
			yielded++
			if !yield(Occurrence{Index: index, Start: start.UTC(), End: end.UTC()}) {
				stopped = true
				return false
			}
		}
		if x.rule.Count > 0 && emitted >= x.rule.Count {
			return false
		}
		if yielded >= x.max {
			truncated = true
			return false
		}
		return true
	})
	if stopped {
		return false
	}
	return truncated
}

// candidates returns a generator of local start times not before the anchor,
// in ascending order, and the number of occurrences it skipped. Whole periods
// ending before skipTo are skipped only where that number is known without
// walking them: weekly rules and unfiltered daily rules.
func (x *Expansion) candidates(skipTo time.Time) (func(func(time.Time) bool), int) {
	switch x.rule.Frequency {
	case FrequencyDaily:
		return x.daily(skipTo)
	case FrequencyWeekly:
		return x.weekly(skipTo)
	case FrequencyMonthly:
		return x.monthly(), 0
	default:
		return x.yearly(), 0
	}
}

func (x *Expansion) at(y int, m time.Month, d int) time.Time {
	a := x.anchor
	return time.Date(y, m, d, a.Hour(), a.Minute(), a.Second(), a.Nanosecond(), a.Location())
}

func (x *Expansion) firstPeriod(periods int) int {
	k := periods/x.rule.Interval - 1
	if k < 0 {
		return 0
	}
	return k
}

func (x *Expansion) daily(skipTo time.Time) (func(func(time.Time) bool), int) {
	weekdays := x.rule.weekdaySet()
	first := 0
	if !skipTo.IsZero() && weekdays == nil && x.rule.ByMonthDay == 0 {
		first = x.firstPeriod(daysBetween(x.anchor, skipTo.In(x.anchor.Location())))
	}
	return func(yield func(time.Time) bool) {
		ay, am, ad := x.anchor.Date()
		for k, misses := first, 0; misses < maxMisses; k++ {
			c := x.at(ay, am, ad+k*x.rule.Interval)
			if !matchesWeekday(weekdays, c) || (x.rule.ByMonthDay > 0 && c.Day() != x.rule.ByMonthDay) {
				misses++
				continue
			}
			misses = 0
			if !yield(c) {
				return
			}
		}
	}, first
}

func (x *Expansion) weekly(skipTo time.Time) (func(func(time.Time) bool), int) {
	offsets := weekdayOffsets(x.rule.ByWeekday, x.anchor.Weekday())
	first, skipped := 0, 0
	if !skipTo.IsZero() {
		first = x.firstPeriod(daysBetween(x.anchor, skipTo.In(x.anchor.Location())) / 7)
	}
	if first > 0 {
		// The anchor's week only holds the selected days on or after it.
		for _, offset := range offsets {
			if offset >= mondayOffset(x.anchor.Weekday()) {
				skipped++
			}
		}
		skipped += (first - 1) * len(offsets)
	}
	return func(yield func(time.Time) bool) {
		ay, am, ad := x.anchor.Date()
		monday := ad - mondayOffset(x.anchor.Weekday())
		for k := first; ; k++ {
			weekStart := monday + k*x.rule.Interval*7
			for _, offset := range offsets {
				c := x.at(ay, am, weekStart+offset)
				if c.Before(x.anchor) {
					continue
				}
				if !yield(c) {
					return
				}
			}
		}
	}, skipped
}

func (x *Expansion) monthly() func(func(time.Time) bool) {
	return func(yield func(time.Time) bool) {
		ay, am, ad := x.anchor.Date()
		weekdays := x.rule.weekdaySet()
		for k, misses := 0, 0; misses < maxMisses; k++ {
			first := time.Date(ay, am+time.Month(k*x.rule.Interval), 1, 0, 0, 0, 0, time.UTC)
			y, m := first.Year(), first.Month()
			last := daysIn(y, m)

			if weekdays != nil && x.rule.ByMonthDay == 0 {
				found := false
				for d := 1; d <= last; d++ {
					c := x.at(y, m, d)
					if !matchesWeekday(weekdays, c) || c.Before(x.anchor) {
						continue
					}
					found = true
					if !yield(c) {
						return
					}
				}
				if found {
					misses = 0
				} else {
					misses++
				}
				continue
			}

			day := x.rule.ByMonthDay
			if day == 0 {
				day = ad
			}
			if day > last {
				misses++
				continue
			}
			c := x.at(y, m, day)
			if c.Before(x.anchor) || !matchesWeekday(weekdays, c) {
				misses++
				continue
			}
			misses = 0
			if !yield(c) {
				return
			}
		}
	}
}

func (x *Expansion) yearly() func(func(time.Time) bool) {
	return func(yield func(time.Time) bool) {
		ay, am, ad := x.anchor.Date()
		weekdays := x.rule.weekdaySet()
		day := x.rule.ByMonthDay
		if day == 0 {
			day = ad
		}
		for k, misses := 0, 0; misses < maxMisses; k++ {
			y := ay + k*x.rule.Interval
			if day > daysIn(y, am) {
				misses++
				continue
			}
			c := x.at(y, am, day)
			if c.Before(x.anchor) || !matchesWeekday(weekdays, c) {
				misses++
				continue
			}
			misses = 0
			if !yield(c) {
				return
			}
		}
	}
}

func matchesWeekday(set map[time.Weekday]struct{}, t time.Time) bool {
	if set == nil {
		return true
	}
	_, ok := set[t.Weekday()]
	return ok
}

// mondayOffset is the number of days since the Monday that starts t's week.
func mondayOffset(day time.Weekday) int {
	return (int(day) + 6) % 7
}

// weekdayOffsets returns the selected weekdays as sorted, de-duplicated
// offsets from Monday. An empty selection means the anchor's weekday.
func weekdayOffsets(days []time.Weekday, fallback time.Weekday) []int {
	var seen [7]bool
	if len(days) == 0 {
		seen[mondayOffset(fallback)] = true
	}
	for _, day := range days {
		seen[mondayOffset(day)] = true
	}
	offsets := make([]int, 0, 7)
	for offset, ok := range seen {
		if ok {
			offsets = append(offsets, offset)
		}
	}
	return offsets
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysBetween counts calendar days from a's date to b's date.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
