package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/example/availability-engine/internal/availability"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
	"github.com/example/availability-engine/internal/recurrence"
)

func mon(h, m int) time.Time {
	return time.Date(2024, time.January, 1, h, m, 0, 0, time.UTC)
}

func proposal(start, end time.Time) interval.Interval {
	return interval.Interval{Start: start, End: end}
}

func officeHours(id string) domain.Resource {
	hours := make([]domain.WorkingHours, 0, 5)
	for day := time.Monday; day <= time.Friday; day++ {
		hours = append(hours, domain.WorkingHours{Weekday: day, Start: domain.NewClockTime(9, 0), End: domain.NewClockTime(17, 0)})
	}
	return domain.Resource{ID: id, WorkingHours: hours}
}

func TestChecker_Check(t *testing.T) {
	t.Parallel()

	contexts := map[string]ResourceContext{
		"room-1": {
			Resource: officeHours("room-1"),
			BlockedDates: []domain.BlockedDate{
				{ID: "maintenance", ResourceID: "room-1", Start: mon(12, 0), End: mon(13, 0)},
			},
			Bookings: []domain.Booking{
				{ID: "b-1", ResourceIDs: []string{"room-1"}, ServiceID: "consult", Start: mon(10, 0), End: mon(10, 30)},
				{ID: "b-2", ResourceIDs: []string{"room-1"}, ServiceID: "consult", Start: mon(14, 0), End: mon(15, 0)},
			},
			BufferRules: []domain.BufferRule{
				{ResourceID: "room-1", ServiceID: "consult", After: 15 * time.Minute},
			},
		},
		"room-2": {Resource: officeHours("room-2")},
	}

	cases := []struct {
		name      string
		resources []string
		proposed  interval.Interval
		service   string
		want      []Verdict
	}{
		{
			name:      "blocked date wins over working hours",
			resources: []string{"room-1"},
			proposed:  proposal(mon(11, 50), mon(12, 20)),
			service:   "consult",
			want:      []Verdict{{ResourceID: "room-1", Reason: domain.ReasonBlockedDate}},
		},
		{
			name:      "buffer of an existing booking",
			resources: []string{"room-1"},
			proposed:  proposal(mon(10, 40), mon(11, 0)),
			service:   "other",
			want:      []Verdict{{ResourceID: "room-1", Reason: domain.ReasonResourceBusy, ConflictingBookingIDs: []string{"b-1"}}},
		},
		{
			name:      "own buffer runs into the next booking",
			resources: []string{"room-1"},
			proposed:  proposal(mon(13, 0), mon(13, 50)),
			service:   "consult",
			want:      []Verdict{{ResourceID: "room-1", Reason: domain.ReasonResourceBusy, ConflictingBookingIDs: []string{"b-2"}}},
		},
		{
			name:      "starts as the previous buffer ends",
			resources: []string{"room-1"},
			proposed:  proposal(mon(15, 15), mon(16, 0)),
			service:   "other",
			want:      []Verdict{{ResourceID: "room-1"}},
		},
		{
			name:      "past closing time",
			resources: []string{"room-2"},
			proposed:  proposal(mon(16, 30), mon(17, 30)),
			want:      []Verdict{{ResourceID: "room-2", Reason: domain.ReasonOutsideWorkingHours}},
		},
		{
			name:      "one busy resource rejects the group",
			resources: []string{"room-2", "room-1", "room-2"},
			proposed:  proposal(mon(10, 0), mon(10, 30)),
			want: []Verdict{
				{ResourceID: "room-2"},
				{ResourceID: "room-1", Reason: domain.ReasonResourceBusy, ConflictingBookingIDs: []string{"b-1"}},
			},
		},
		{
			name:      "unknown resource",
			resources: []string{"room-9"},
			proposed:  proposal(mon(10, 0), mon(10, 30)),
			want:      []Verdict{{ResourceID: "room-9", Reason: domain.ReasonUnknownResource}},
		},
	}

	checker := NewChecker(nil, 0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := Request{ResourceIDs: tc.resources, Proposed: tc.proposed, ServiceID: tc.service, Contexts: contexts}
			decision, err := checker.Check(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, decision.Verdicts); diff != "" {
				t.Fatalf("unexpected verdicts (-want +got):\n%s", diff)
			}
			if decision.Accepted != (len(decision.Rejections()) == 0) {
				t.Fatalf("accepted flag disagrees with verdicts: %+v", decision)
			}

			again, err := checker.Check(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error on repeat: %v", err)
			}
			if diff := cmp.Diff(decision, again); diff != "" {
				t.Fatalf("repeated check changed the decision (-first +second):\n%s", diff)
			}
		})
	}
}

func TestChecker_IgnoreBooking(t *testing.T) {
	t.Parallel()

	contexts := map[string]ResourceContext{
		"room-1": {
			Resource: officeHours("room-1"),
			Bookings: []domain.Booking{{ID: "b-1", ResourceIDs: []string{"room-1"}, Start: mon(10, 0), End: mon(11, 0)}},
		},
	}
	req := Request{ResourceIDs: []string{"room-1"}, Proposed: proposal(mon(10, 30), mon(11, 30)), Contexts: contexts}

	decision, err := NewChecker(nil, 0).Check(context.Background(), req)
	if err != nil || decision.Accepted {
		t.Fatalf("expected overlap to be rejected, got %+v, %v", decision, err)
	}

	req.IgnoreBookingID = "b-1"
	decision, err = NewChecker(nil, 0).Check(context.Background(), req)
	if err != nil || !decision.Accepted {
		t.Fatalf("expected moving a booking onto itself to be accepted, got %+v, %v", decision, err)
	}
}

func TestChecker_RecurringConflictOutsideQueryDay(t *testing.T) {
	t.Parallel()

	contexts := map[string]ResourceContext{
		"room-1": {
			Resource: officeHours("room-1"),
			Bookings: []domain.Booking{{
				ID:          "weekly",
				ResourceIDs: []string{"room-1"},
				Start:       mon(9, 0),
				End:         mon(10, 0),
				Recurrence:  &recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: 1},
			}},
		},
	}
	req := Request{
		ResourceIDs: []string{"room-1"},
		Proposed:    proposal(mon(24*21+9, 30), mon(24*21+10, 30)),
		Contexts:    contexts,
	}

	decision, err := NewChecker(nil, 0).Check(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Accepted || decision.Verdicts[0].Reason != domain.ReasonResourceBusy {
		t.Fatalf("expected the fourth weekly occurrence to conflict, got %+v", decision)
	}
}

func TestChecker_InvalidInput(t *testing.T) {
	t.Parallel()

	checker := NewChecker(nil, 0)
	_, err := checker.Check(context.Background(), Request{ResourceIDs: []string{"r"}, Proposed: proposal(mon(10, 0), mon(10, 0))})
	if !errors.Is(err, domain.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	_, err = checker.Check(context.Background(), Request{Proposed: proposal(mon(10, 0), mon(11, 0))})
	if !errors.Is(err, ErrNoResources) {
		t.Fatalf("expected ErrNoResources, got %v", err)
	}
}

func TestChecker_AgreesWithAvailability(t *testing.T) {
	t.Parallel()

	rc := ResourceContext{
		Resource: officeHours("room-1"),
		BlockedDates: []domain.BlockedDate{
			{ResourceID: "room-1", Start: mon(12, 0), End: mon(13, 0)},
		},
		Bookings: []domain.Booking{
			{ID: "b-1", ResourceIDs: []string{"room-1"}, Start: mon(9, 30), End: mon(10, 15)},
			{ID: "b-2", ResourceIDs: []string{"room-1"}, Start: mon(15, 0), End: mon(15, 45)},
		},
	}
	free, err := availability.NewResolver(nil).Resolve(context.Background(), availability.Input{
		Resource:     rc.Resource,
		Window:       domain.Window{Start: mon(0, 0), End: mon(24, 0)},
		BlockedDates: rc.BlockedDates,
		Bookings:     rc.Bookings,
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checker := NewChecker(nil, 0)
	contexts := map[string]ResourceContext{"room-1": rc}
	for start := mon(8, 0); start.Before(mon(18, 0)); start = start.Add(15 * time.Minute) {
		p := proposal(start, start.Add(30*time.Minute))
		insideFree := false
		for _, slot := range free {
			if (interval.Interval{Start: slot.Start, End: slot.End}).Contains(p) {
				insideFree = true
			}
		}
		decision, err := checker.Check(context.Background(), Request{ResourceIDs: []string{"room-1"}, Proposed: p, Contexts: contexts})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if decision.Accepted != insideFree {
			t.Fatalf("proposal %s: checker accepted=%v but availability contains=%v", p, decision.Accepted, insideFree)
		}
	}
}
