package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/teambition/rrule-go"
)

func day(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func starts(occurrences []Occurrence) []time.Time {
	out := make([]time.Time, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, o.Start)
	}
	return out
}

func TestRule_Validate(t *testing.T) {
	t.Parallel()

	until := day(2024, time.June, 1, 0, 0)
	cases := []struct {
		name  string
		rule  Rule
		field string
	}{
		{name: "missing frequency", rule: Rule{Interval: 1}, field: "frequency"},
		{name: "zero interval", rule: Rule{Frequency: FrequencyDaily}, field: "interval"},
		{name: "bymonthday too large", rule: Rule{Frequency: FrequencyMonthly, Interval: 1, ByMonthDay: 32}, field: "bymonthday"},
		{name: "count and until", rule: Rule{Frequency: FrequencyDaily, Interval: 1, Count: 3, Until: &until}, field: "count"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.rule.Validate()
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
			var ruleErr *InvalidRuleError
			if !errors.As(err, &ruleErr) || ruleErr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}

	if err := (Rule{Frequency: FrequencyWeekly, Interval: 2, ByWeekday: []time.Weekday{time.Monday}}).Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	engine := NewEngine()

	t.Run("biweekly on monday and wednesday", func(t *testing.T) {
		t.Parallel()
		rule := Rule{Frequency: FrequencyWeekly, Interval: 2, ByWeekday: []time.Weekday{time.Wednesday, time.Monday}}
		window := Window{Start: day(2024, time.January, 1, 0, 0), End: day(2024, time.February, 1, 0, 0)}

		got, err := engine.ExpandAll(rule, day(2024, time.January, 1, 10, 0), time.Hour, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []time.Time{
			day(2024, time.January, 1, 10, 0),
			day(2024, time.January, 3, 10, 0),
			day(2024, time.January, 15, 10, 0),
			day(2024, time.January, 17, 10, 0),
			day(2024, time.January, 29, 10, 0),
			day(2024, time.January, 31, 10, 0),
		}
		if diff := cmp.Diff(want, starts(got)); diff != "" {
			t.Fatalf("unexpected occurrences (-want +got):\n%s", diff)
		}
		for _, o := range got {
			if o.End.Sub(o.Start) != time.Hour {
				t.Fatalf("expected one hour occurrences, got %s", o.End.Sub(o.Start))
			}
		}
	})

	t.Run("monthly on the 31st skips short months", func(t *testing.T) {
		t.Parallel()
		rule := Rule{Frequency: FrequencyMonthly, Interval: 1, ByMonthDay: 31}
		window := Window{Start: day(2024, time.January, 1, 0, 0), End: day(2024, time.July, 1, 0, 0)}

		got, err := engine.ExpandAll(rule, day(2024, time.January, 31, 9, 0), 30*time.Minute, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []time.Time{
			day(2024, time.January, 31, 9, 0),
			day(2024, time.March, 31, 9, 0),
			day(2024, time.May, 31, 9, 0),
		}
		if diff := cmp.Diff(want, starts(got)); diff != "" {
			t.Fatalf("unexpected occurrences (-want +got):\n%s", diff)
		}
	})

	t.Run("count is measured from the anchor", func(t *testing.T) {
		t.Parallel()
		rule := Rule{Frequency: FrequencyDaily, Interval: 1, Count: 5}
		window := Window{Start: day(2024, time.January, 3, 0, 0), End: day(2024, time.February, 1, 0, 0)}

		got, err := engine.ExpandAll(rule, day(2024, time.January, 1, 9, 0), time.Hour, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []time.Time{
			day(2024, time.January, 3, 9, 0),
			day(2024, time.January, 4, 9, 0),
			day(2024, time.January, 5, 9, 0),
		}
		if diff := cmp.Diff(want, starts(got)); diff != "" {
			t.Fatalf("unexpected occurrences (-want +got):\n%s", diff)
		}
	})

	t.Run("until is inclusive", func(t *testing.T) {
		t.Parallel()
		until := day(2024, time.January, 3, 9, 0)
		rule := Rule{Frequency: FrequencyDaily, Interval: 1, Until: &until}

		got, err := engine.ExpandAll(rule, day(2024, time.January, 1, 9, 0), time.Hour, Window{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 occurrences, got %d", len(got))
		}
	})

	t.Run("occurrence straddling the window start is kept", func(t *testing.T) {
		t.Parallel()
		rule := Rule{Frequency: FrequencyDaily, Interval: 1}
		window := Window{Start: day(2024, time.March, 10, 23, 30), End: day(2024, time.March, 11, 0, 0)}

		got, err := engine.ExpandAll(rule, day(2024, time.January, 1, 23, 0), time.Hour, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []time.Time{day(2024, time.March, 10, 23, 0)}
		if diff := cmp.Diff(want, starts(got)); diff != "" {
			t.Fatalf("unexpected occurrences (-want +got):\n%s", diff)
		}
	})

	t.Run("leap day yearly rule skips common years", func(t *testing.T) {
		t.Parallel()
		rule := Rule{Frequency: FrequencyYearly, Interval: 1, Count: 3}

		got, err := engine.ExpandAll(rule, day(2024, time.February, 29, 12, 0), time.Hour, Window{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []time.Time{
			day(2024, time.February, 29, 12, 0),
			day(2028, time.February, 29, 12, 0),
			day(2032, time.February, 29, 12, 0),
		}
		if diff := cmp.Diff(want, starts(got)); diff != "" {
			t.Fatalf("unexpected occurrences (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Parallel()
		_, err := engine.Expand(Rule{Frequency: FrequencyDaily, Interval: 1}, day(2024, time.January, 1, 9, 0), 0, Window{})
		if !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration, got %v", err)
		}
	})
}

func TestEngine_ExpandIndexCountsFromAnchor(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	cases := []struct {
		name   string
		rule   Rule
		anchor time.Time
		window Window
		want   []int
	}{
		{
			name:   "daily",
			rule:   Rule{Frequency: FrequencyDaily, Interval: 1},
			anchor: day(2024, time.January, 1, 9, 0),
			window: Window{Start: day(2024, time.January, 5, 0, 0), End: day(2024, time.January, 8, 0, 0)},
			want:   []int{4, 5, 6},
		},
		{
			name:   "daily with count",
			rule:   Rule{Frequency: FrequencyDaily, Interval: 1, Count: 5},
			anchor: day(2024, time.January, 1, 9, 0),
			window: Window{Start: day(2024, time.January, 3, 0, 0), End: day(2024, time.February, 1, 0, 0)},
			want:   []int{2, 3, 4},
		},
		{
			name:   "weekly from midweek anchor",
			rule:   Rule{Frequency: FrequencyWeekly, Interval: 1, ByWeekday: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
			anchor: day(2024, time.January, 3, 9, 0),
			window: Window{Start: day(2024, time.January, 29, 0, 0), End: day(2024, time.February, 3, 0, 0)},
			want:   []int{11, 12, 13},
		},
		{
			name:   "daily on weekdays",
			rule:   Rule{Frequency: FrequencyDaily, Interval: 1, ByWeekday: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
			anchor: day(2024, time.January, 1, 9, 0),
			window: Window{Start: day(2024, time.January, 8, 0, 0), End: day(2024, time.January, 10, 0, 0)},
			want:   []int{5, 6},
		},
		{
			name:   "monthly skipping short months",
			rule:   Rule{Frequency: FrequencyMonthly, Interval: 1},
			anchor: day(2024, time.January, 31, 9, 0),
			window: Window{Start: day(2024, time.July, 1, 0, 0), End: day(2024, time.August, 1, 0, 0)},
			want:   []int{3},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := engine.ExpandAll(tc.rule, tc.anchor, time.Hour, tc.window)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			indexes := make([]int, 0, len(got))
			for _, o := range got {
				indexes = append(indexes, o.Index)
			}
			if diff := cmp.Diff(tc.want, indexes); diff != "" {
				t.Fatalf("indexes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngine_ExpandHorizon(t *testing.T) {
	t.Parallel()

	engine := NewEngine(WithHorizon(10 * 24 * time.Hour))
	rule := Rule{Frequency: FrequencyDaily, Interval: 1}
	anchor := day(2024, time.January, 1, 9, 0)

	x, err := engine.Expand(rule, anchor, time.Hour, Window{Start: anchor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !x.Capped() {
		t.Fatalf("expected unbounded expansion to be capped")
	}

	got, err := x.Collect()
	if !errors.Is(err, ErrExpansionHorizonExceeded) {
		t.Fatalf("expected ErrExpansionHorizonExceeded, got %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 occurrences before the horizon, got %d", len(got))
	}

	if first := Take(x.All(), 2); len(first) != 2 || !first[0].Start.Equal(anchor) {
		t.Fatalf("expected the sequence to restart from the anchor, got %v", first)
	}
}

func TestEngine_ExpandOccurrenceCap(t *testing.T) {
	t.Parallel()

	engine := NewEngine(WithMaxOccurrences(4))
	rule := Rule{Frequency: FrequencyDaily, Interval: 1}
	window := Window{Start: day(2024, time.January, 1, 0, 0), End: day(2024, time.February, 1, 0, 0)}

	got, err := engine.ExpandAll(rule, day(2024, time.January, 1, 9, 0), time.Hour, window)
	if !errors.Is(err, ErrExpansionHorizonExceeded) {
		t.Fatalf("expected ErrExpansionHorizonExceeded, got %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(got))
	}
}

func TestEngine_ExpandPreservesLocalTimeAcrossDST(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	engine := NewEngine(WithLocation(loc))
	anchor := time.Date(2024, time.March, 8, 9, 0, 0, 0, loc)
	rule := Rule{Frequency: FrequencyDaily, Interval: 1, Count: 4}

	got, err := engine.ExpandAll(rule, anchor, time.Hour, Window{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, o := range got {
		if local := o.Start.In(loc); local.Hour() != 9 {
			t.Fatalf("expected 09:00 local, got %s", local)
		}
	}
	if offset := got[0].Start.Sub(got[3].Start.AddDate(0, 0, -3)); offset != time.Hour {
		t.Fatalf("expected the UTC offset to shift by one hour across the transition, got %s", offset)
	}
}

func TestEngine_MatchesRRuleLibrary(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	cases := []struct {
		name   string
		rule   Rule
		anchor time.Time
	}{
		{name: "biweekly", rule: Rule{Frequency: FrequencyWeekly, Interval: 2, ByWeekday: []time.Weekday{time.Monday, time.Wednesday}, Count: 12}, anchor: day(2024, time.January, 1, 10, 0)},
		{name: "weekly anchor weekday", rule: Rule{Frequency: FrequencyWeekly, Interval: 1, Count: 8}, anchor: day(2024, time.January, 4, 8, 0)},
		{name: "every third day", rule: Rule{Frequency: FrequencyDaily, Interval: 3, Count: 10}, anchor: day(2024, time.January, 1, 7, 30)},
		{name: "daily filtered by weekday", rule: Rule{Frequency: FrequencyDaily, Interval: 1, ByWeekday: []time.Weekday{time.Monday, time.Friday}, Count: 9}, anchor: day(2024, time.January, 2, 7, 30)},
		{name: "monthly 31st", rule: Rule{Frequency: FrequencyMonthly, Interval: 1, ByMonthDay: 31, Count: 6}, anchor: day(2024, time.January, 31, 9, 0)},
		{name: "monthly tuesdays", rule: Rule{Frequency: FrequencyMonthly, Interval: 2, ByWeekday: []time.Weekday{time.Tuesday}, Count: 10}, anchor: day(2024, time.January, 10, 9, 0)},
		{name: "yearly leap day", rule: Rule{Frequency: FrequencyYearly, Interval: 1, Count: 3}, anchor: day(2024, time.February, 29, 9, 0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := engine.ExpandAll(tc.rule, tc.anchor, time.Hour, Window{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			ref, err := rrule.NewRRule(*toROption(tc.rule, tc.anchor))
			if err != nil {
				t.Fatalf("reference rule: %v", err)
			}
			want := ref.All()
			for i := range want {
				want[i] = want[i].UTC()
			}
			if diff := cmp.Diff(want, starts(got)); diff != "" {
				t.Fatalf("diverged from rrule-go (-want +got):\n%s", diff)
			}
		})
	}
}
