package testfixtures

import (
	"testing"
	"time"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/recurrence"
)

func TestReferenceTimeIsMondayMidnight(t *testing.T) {
	ref := ReferenceTime()
	if ref.Weekday() != time.Monday || ref.Hour() != 0 || ref.Minute() != 0 {
		t.Fatalf("expected Monday midnight, got %v", ref)
	}
	if got := At(2, 9, 30); got.Weekday() != time.Wednesday || got.Hour() != 9 || got.Minute() != 30 {
		t.Fatalf("unexpected offset time %v", got)
	}
}

func TestOfficeResourceValidates(t *testing.T) {
	res := OfficeResource("room-1")
	if res.ID != "room-1" {
		t.Fatalf("expected ID room-1, got %q", res.ID)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("office resource is invalid: %v", err)
	}
	if len(res.HoursOn(time.Saturday)) != 0 || len(res.HoursOn(time.Friday)) != 1 {
		t.Fatalf("expected weekday-only hours, got %+v", res.WorkingHours)
	}
}

func TestBookingFixtureCopiesRecurrence(t *testing.T) {
	rule := recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: 1, ByWeekday: []time.Weekday{time.Monday}}
	fixture := NewBookingFixture(WithBookingRecurrence(rule))

	booking := fixture.Domain()
	booking.Recurrence.ByWeekday[0] = time.Friday
	if fixture.Recurrence.ByWeekday[0] != time.Monday {
		t.Fatalf("domain conversion shared the recurrence rule")
	}
	if err := booking.Validate(); err != nil {
		t.Fatalf("booking fixture is invalid: %v", err)
	}
}

func TestLinkFixtureOptions(t *testing.T) {
	link := NewLinkFixture(WithLinkOneTime(), WithLinkSpent(At(0, 8, 0)), WithLinkSlug("demo")).Domain()
	if link.Type != domain.LinkTypeOneTime || link.SpentAt == nil || link.Slug != "demo" {
		t.Fatalf("unexpected link %+v", link)
	}
}
