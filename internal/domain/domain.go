// Package domain holds the data model shared by the availability engine
// components.
package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/recurrence"
)

// ClockTime is a wall-clock time of day expressed in minutes after local
// midnight. 1440 denotes the end of the day.
type ClockTime int

// EndOfDay is the largest valid ClockTime.
const EndOfDay ClockTime = 24 * 60

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseClockTime(value string) (ClockTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("domain: invalid clock time %q", value)
	}
	ct := NewClockTime(hour, minute)
	if hour < 0 || minute < 0 || minute > 59 || ct > EndOfDay {
		return 0, fmt.Errorf("domain: invalid clock time %q", value)
	}
	return ct, nil
}

// Duration returns the offset from midnight.
func (c ClockTime) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// WorkingHours is a recurring daily availability window on one weekday.
type WorkingHours struct {
	Weekday time.Weekday
	Start   ClockTime
	End     ClockTime
}

// ResourceKind distinguishes people from things that can be booked.
type ResourceKind string

const (
	ResourceKindPerson ResourceKind = "person"
	ResourceKindRoom   ResourceKind = "room"
	ResourceKindAsset  ResourceKind = "asset"
)

// Resource is anything that can be booked.
type Resource struct {
	ID           string
	Kind         ResourceKind
	Name         string
	Timezone     string
	WorkingHours []WorkingHours
}

// Location resolves the resource timezone. An empty timezone means UTC.
func (r Resource) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("domain: resource %s: unknown timezone %q: %w", r.ID, r.Timezone, err)
	}
	return loc, nil
}

// Validate checks working hours and timezone.
func (r Resource) Validate() error {
	if _, err := r.Location(); err != nil {
		return err
	}
	byDay := make(map[time.Weekday][]WorkingHours, 7)
	for _, wh := range r.WorkingHours {
		if wh.Weekday < time.Sunday || wh.Weekday > time.Saturday {
			return fmt.Errorf("domain: resource %s: unknown weekday %d", r.ID, wh.Weekday)
		}
		if wh.Start < 0 || wh.End > EndOfDay || wh.End <= wh.Start {
			return &InvalidIntervalError{Field: "working_hours", Detail: fmt.Sprintf("%s %s-%s", wh.Weekday, wh.Start, wh.End)}
		}
		byDay[wh.Weekday] = append(byDay[wh.Weekday], wh)
	}
	for weekday, entries := range byDay {
		slices.SortFunc(entries, func(a, b WorkingHours) int { return int(a.Start - b.Start) })
		for i := 1; i < len(entries); i++ {
			if entries[i].Start < entries[i-1].End {
				return &InvalidIntervalError{Field: "working_hours", Detail: fmt.Sprintf("overlapping entries on %s", weekday)}
			}
		}
	}
	return nil
}

// HoursOn returns the working hours for a weekday ordered by start.
func (r Resource) HoursOn(day time.Weekday) []WorkingHours {
	out := make([]WorkingHours, 0, 2)
	for _, wh := range r.WorkingHours {
		if wh.Weekday == day {
			out = append(out, wh)
		}
	}
	slices.SortFunc(out, func(a, b WorkingHours) int { return int(a.Start - b.Start) })
	return out
}

// BlockedDate removes availability from a resource regardless of working hours.
type BlockedDate struct {
	ID         string
	ResourceID string
	Start      time.Time
	End        time.Time
	Reason     string
}

// Interval returns the blocked span.
func (b BlockedDate) Interval() interval.Interval {
	return interval.Interval{Start: b.Start, End: b.End}.UTC()
}

// Validate reports an InvalidIntervalError when End does not follow Start.
func (b BlockedDate) Validate() error {
	return validateSpan("blocked_date", b.Start, b.End)
}

// BookingStatus tracks whether a booking still occupies its resources.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking reserves one or more resources. Start and End describe the first
// occurrence when Recurrence is set.
type Booking struct {
	ID          string
	ResourceIDs []string
	ServiceID   string
	Start       time.Time
	End         time.Time
	Recurrence  *recurrence.Rule
	Status      BookingStatus
	LinkID      string
	CreatedAt   time.Time
}

// Active reports whether the booking occupies its resources.
func (b Booking) Active() bool {
	return b.Status != BookingStatusCancelled
}

// Uses reports whether the booking reserves the resource.
func (b Booking) Uses(resourceID string) bool {
	return slices.Contains(b.ResourceIDs, resourceID)
}

// Duration returns the length of one occurrence.
func (b Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Validate checks the booking span and recurrence rule.
func (b Booking) Validate() error {
	if err := validateSpan("booking", b.Start, b.End); err != nil {
		return err
	}
	if len(b.ResourceIDs) == 0 {
		return fmt.Errorf("domain: booking %s: at least one resource is required", b.ID)
	}
	if b.Recurrence != nil {
		return b.Recurrence.Validate()
	}
	return nil
}

// BufferScope selects which days a buffer rule applies to.
type BufferScope string

const (
	BufferScopeAll          BufferScope = "all"
	BufferScopeSpecificDays BufferScope = "specific_days"
)

// BufferRule adds padding around bookings of a service on a resource.
type BufferRule struct {
	ID         string
	ResourceID string
	ServiceID  string
	Before     time.Duration
	After      time.Duration
	AppliesTo  BufferScope
	Days       []time.Weekday
}

// Validate rejects negative buffers.
func (r BufferRule) Validate() error {
	if r.Before < 0 || r.After < 0 {
		return fmt.Errorf("domain: buffer rule %s: buffers must not be negative", r.ID)
	}
	switch r.AppliesTo {
	case "", BufferScopeAll, BufferScopeSpecificDays:
	default:
		return fmt.Errorf("domain: buffer rule %s: unknown scope %q", r.ID, r.AppliesTo)
	}
	return nil
}

// LinkType distinguishes reusable booking links from single-use ones.
type LinkType string

const (
	LinkTypePermanent LinkType = "permanent"
	LinkTypeOneTime   LinkType = "one_time"
)

// BookingLink is a shareable entry point that exposes slots for a service.
type BookingLink struct {
	ID          string
	Slug        string
	ServiceID   string
	ResourceIDs []string
	Type        LinkType
	Duration    time.Duration
	Step        time.Duration
	ExpiresAt   *time.Time
	SpentAt     *time.Time
	CreatedAt   time.Time
}

// Window is a half-open query range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Interval converts the window to an interval normalised to UTC.
func (w Window) Interval() interval.Interval {
	return interval.Interval{Start: w.Start, End: w.End}.UTC()
}

// Validate reports an InvalidIntervalError for empty or reversed windows.
func (w Window) Validate() error {
	return validateSpan("window", w.Start, w.End)
}

// AvailabilitySlot is a free interval on one or more resources.
type AvailabilitySlot struct {
	ResourceIDs []string
	Start       time.Time
	End         time.Time
}

// Slot is a bookable start time produced for a service duration.
type Slot struct {
	Start time.Time
	End   time.Time
}

func validateSpan(field string, start, end time.Time) error {
	if !end.After(start) {
		return &InvalidIntervalError{Field: field, Detail: fmt.Sprintf("[%s, %s)", start.Format(time.RFC3339), end.Format(time.RFC3339))}
	}
	return nil
}
