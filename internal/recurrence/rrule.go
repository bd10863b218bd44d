package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var toRRuleFreq = map[Frequency]rrule.Frequency{
	FrequencyDaily:   rrule.DAILY,
	FrequencyWeekly:  rrule.WEEKLY,
	FrequencyMonthly: rrule.MONTHLY,
	FrequencyYearly:  rrule.YEARLY,
}

var rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// ParseRRule converts an RFC 5545 RRULE value such as
// "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE" into a Rule. Parts the engine does not
// evaluate are rejected with *InvalidRuleError.
func ParseRRule(value string) (Rule, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	if value == "" {
		return Rule{}, &InvalidRuleError{Field: "rrule", Reason: "empty rule"}
	}
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return Rule{}, &InvalidRuleError{Field: "rrule", Reason: err.Error()}
	}

	switch {
	case len(opt.Bysetpos) > 0, len(opt.Bymonth) > 0, len(opt.Byyearday) > 0, len(opt.Byweekno) > 0,
		len(opt.Byhour) > 0, len(opt.Byminute) > 0, len(opt.Bysecond) > 0, len(opt.Byeaster) > 0:
		return Rule{}, &InvalidRuleError{Field: "rrule", Reason: "only FREQ, INTERVAL, BYDAY, BYMONTHDAY, COUNT and UNTIL are supported"}
	case len(opt.Bymonthday) > 1:
		return Rule{}, &InvalidRuleError{Field: "bymonthday", Reason: "a single month day is supported"}
	}

	rule := Rule{Interval: opt.Interval, Count: opt.Count}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	found := false
	for freq, rf := range toRRuleFreq {
		if rf == opt.Freq {
			rule.Frequency = freq
			found = true
			break
		}
	}
	if !found {
		return Rule{}, &InvalidRuleError{Field: "frequency", Reason: fmt.Sprintf("unsupported frequency %v", opt.Freq)}
	}
	if len(opt.Bymonthday) == 1 {
		rule.ByMonthDay = opt.Bymonthday[0]
	}
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return Rule{}, &InvalidRuleError{Field: "byweekday", Reason: "ordinal weekdays are not supported"}
		}
		rule.ByWeekday = append(rule.ByWeekday, time.Weekday((wd.Day()+1)%7))
	}
	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		rule.Until = &until
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// FormatRRule renders the rule as an RRULE value without the "RRULE:" prefix.
func FormatRRule(rule Rule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	return toROption(rule, time.Time{}).RRuleString(), nil
}

func toROption(rule Rule, dtstart time.Time) *rrule.ROption {
	opt := &rrule.ROption{
		Freq:     toRRuleFreq[rule.Frequency],
		Dtstart:  dtstart,
		Interval: rule.Interval,
		Count:    rule.Count,
	}
	if rule.ByMonthDay > 0 {
		opt.Bymonthday = []int{rule.ByMonthDay}
	}
	for _, day := range rule.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[mondayOffset(day)])
	}
	if rule.Until != nil {
		opt.Until = rule.Until.UTC()
	}
	return opt
}
