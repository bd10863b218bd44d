package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily repeats every Interval days.
	FrequencyDaily
	// FrequencyWeekly repeats on the selected weekdays every Interval weeks.
	FrequencyWeekly
	// FrequencyMonthly repeats on a day of the month every Interval months.
	FrequencyMonthly
	// FrequencyYearly repeats on the anchor's calendar date every Interval years.
	FrequencyYearly
)

var frequencyNames = map[Frequency]string{
	FrequencyDaily:   "DAILY",
	FrequencyWeekly:  "WEEKLY",
	FrequencyMonthly: "MONTHLY",
	FrequencyYearly:  "YEARLY",
}

func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return "UNSPECIFIED"
}

// ParseFrequency maps a case-insensitive frequency name to its constant.
func ParseFrequency(value string) (Frequency, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for freq, name := range frequencyNames {
		if name == upper {
			return freq, nil
		}
	}
	return FrequencyUnspecified, &InvalidRuleError{Field: "frequency", Reason: fmt.Sprintf("unsupported frequency %q", value)}
}

// Rule describes how a booking repeats. ByMonthDay and Count use zero for
// "not set".
type Rule struct {
	Frequency  Frequency
	Interval   int
	ByWeekday  []time.Weekday
	ByMonthDay int
	Count      int
	Until      *time.Time
}

// ErrInvalidRule is matched by every *InvalidRuleError.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// InvalidRuleError reports a structurally invalid recurrence rule.
type InvalidRuleError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("recurrence: invalid rule: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrInvalidRule.
func (e *InvalidRuleError) Is(target error) bool {
	return target == ErrInvalidRule
}

// Validate checks the rule for structural problems.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return &InvalidRuleError{Field: "frequency", Reason: "must be one of DAILY, WEEKLY, MONTHLY, YEARLY"}
	}
	if r.Interval < 1 {
		return &InvalidRuleError{Field: "interval", Reason: "must be at least 1"}
	}
	if r.ByMonthDay < 0 || r.ByMonthDay > 31 {
		return &InvalidRuleError{Field: "bymonthday", Reason: "must be within 1..31"}
	}
	if r.Count < 0 {
		return &InvalidRuleError{Field: "count", Reason: "must not be negative"}
	}
	if r.Count > 0 && r.Until != nil {
		return &InvalidRuleError{Field: "count", Reason: "count and until are mutually exclusive"}
	}
	for _, day := range r.ByWeekday {
		if day < time.Sunday || day > time.Saturday {
			return &InvalidRuleError{Field: "byweekday", Reason: fmt.Sprintf("unknown weekday %d", day)}
		}
	}
	return nil
}

// Bounded reports whether the rule itself terminates through Count or Until.
func (r Rule) Bounded() bool {
	return r.Count > 0 || r.Until != nil
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	out.ByWeekday = slices.Clone(r.ByWeekday)
	if r.Until != nil {
		until := *r.Until
		out.Until = &until
	}
	return out
}

func (r Rule) weekdaySet() map[time.Weekday]struct{} {
	if len(r.ByWeekday) == 0 {
		return nil
	}
	set := make(map[time.Weekday]struct{}, len(r.ByWeekday))
	for _, day := range r.ByWeekday {
		set[day] = struct{}{}
	}
	return set
}
