package application

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/testfixtures"
)

func TestCatalogService_Resources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.catalog.CreateResource(ctx, domain.Resource{Name: "  Dr. Rivera ", Kind: domain.ResourceKindPerson, WorkingHours: testfixtures.OfficeHours()})
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	if created.ID != "id-001" || created.Name != "Dr. Rivera" || created.Timezone != "UTC" {
		t.Fatalf("unexpected resource: %+v", created)
	}

	if _, err := env.catalog.CreateResource(ctx, testfixtures.OfficeResource(created.ID)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	_, err = env.catalog.CreateResource(ctx, domain.Resource{Kind: "spaceship", Timezone: "Mars/Base"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "kind", "timezone"} {
		if vErr.FieldErrors[field] == "" {
			t.Fatalf("expected %s to be reported, got %v", field, vErr.FieldErrors)
		}
	}

	overlapping := testfixtures.OfficeResource("room-9")
	overlapping.WorkingHours = append(overlapping.WorkingHours, domain.WorkingHours{Weekday: time.Monday, Start: domain.NewClockTime(16, 0), End: domain.NewClockTime(18, 0)})
	if _, err := env.catalog.CreateResource(ctx, overlapping); !errors.As(err, &vErr) || vErr.FieldErrors["working_hours"] == "" {
		t.Fatalf("expected working hours validation error, got %v", err)
	}

	created.Name = "Dr. Rivera-Lopez"
	created.WorkingHours = created.WorkingHours[:1]
	if _, err := env.catalog.UpdateResource(ctx, created); err != nil {
		t.Fatalf("update resource: %v", err)
	}
	fetched, err := env.catalog.GetResource(ctx, created.ID)
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if fetched.Name != "Dr. Rivera-Lopez" || len(fetched.WorkingHours) != 1 {
		t.Fatalf("unexpected resource after update: %+v", fetched)
	}

	if _, err := env.catalog.UpdateResource(ctx, testfixtures.OfficeResource("ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	env.room(t, "room-1")
	resources, err := env.catalog.ListResources(ctx)
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(resources) != 2 || resources[0].ID != "id-001" || resources[1].ID != "room-1" {
		t.Fatalf("unexpected resources: %+v", resources)
	}
}

func TestCatalogService_DeleteResource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")
	env.room(t, "room-2")
	env.book(t, "room-1", testfixtures.At(0, 10, 0), testfixtures.At(0, 11, 0))

	if err := env.catalog.DeleteResource(ctx, "room-1"); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	if err := env.catalog.DeleteResource(ctx, "room-2"); err != nil {
		t.Fatalf("delete resource: %v", err)
	}
	if _, err := env.catalog.GetResource(ctx, "room-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := env.catalog.DeleteResource(ctx, "room-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCatalogService_BlockedDatesAndBufferRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")

	blocked, err := env.catalog.CreateBlockedDate(ctx, domain.BlockedDate{ResourceID: "room-1", Start: testfixtures.At(0, 12, 0), End: testfixtures.At(0, 13, 0)})
	if err != nil {
		t.Fatalf("create blocked date: %v", err)
	}
	if _, err := env.catalog.CreateBlockedDate(ctx, domain.BlockedDate{ResourceID: "ghost", Start: testfixtures.At(0, 12, 0), End: testfixtures.At(0, 13, 0)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown resource, got %v", err)
	}
	if _, err := env.catalog.CreateBlockedDate(ctx, domain.BlockedDate{ResourceID: "room-1", Start: testfixtures.At(0, 13, 0), End: testfixtures.At(0, 12, 0)}); !errors.Is(err, domain.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}

	list, err := env.catalog.ListBlockedDates(ctx, "room-1", monday())
	if err != nil {
		t.Fatalf("list blocked dates: %v", err)
	}
	if len(list) != 1 || list[0].ID != blocked.ID {
		t.Fatalf("unexpected blocked dates: %+v", list)
	}
	if err := env.catalog.DeleteBlockedDate(ctx, blocked.ID); err != nil {
		t.Fatalf("delete blocked date: %v", err)
	}
	if err := env.catalog.DeleteBlockedDate(ctx, blocked.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = env.catalog.CreateBufferRule(ctx, domain.BufferRule{ResourceID: "room-1", Before: -time.Minute, AppliesTo: "weekends"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["before"] == "" || vErr.FieldErrors["applies_to"] == "" {
		t.Fatalf("expected buffer validation errors, got %v", err)
	}

	rule, err := env.catalog.CreateBufferRule(ctx, domain.BufferRule{
		ResourceID: "room-1",
		After:      10 * time.Minute,
		AppliesTo:  domain.BufferScopeSpecificDays,
		Days:       []time.Weekday{time.Monday, time.Friday},
	})
	if err != nil {
		t.Fatalf("create buffer rule: %v", err)
	}
	rules, err := env.catalog.ListBufferRules(ctx, "room-1")
	if err != nil {
		t.Fatalf("list buffer rules: %v", err)
	}
	if len(rules) != 1 || rules[0].After != 10*time.Minute || len(rules[0].Days) != 2 {
		t.Fatalf("unexpected buffer rules: %+v", rules)
	}
	if err := env.catalog.DeleteBufferRule(ctx, rule.ID); err != nil {
		t.Fatalf("delete buffer rule: %v", err)
	}
}

func TestCatalogService_Links(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.room(t, "room-1")

	link, err := env.catalog.CreateLink(ctx, domain.BookingLink{ServiceID: "consultation", ResourceIDs: []string{"room-1", "room-1"}, Duration: 45 * time.Minute})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if len(link.Slug) != 12 || link.Type != domain.LinkTypePermanent || link.Step != 45*time.Minute || len(link.ResourceIDs) != 1 {
		t.Fatalf("unexpected defaults: %+v", link)
	}

	fetched, err := env.catalog.GetLink(ctx, link.Slug)
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if fetched.ID != link.ID || fetched.Duration != link.Duration {
		t.Fatalf("unexpected stored link: %+v", fetched)
	}

	if _, err := env.catalog.CreateLink(ctx, domain.BookingLink{Slug: link.Slug, ResourceIDs: []string{"room-1"}, Duration: time.Hour}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for a taken slug, got %v", err)
	}
	if _, err := env.catalog.CreateLink(ctx, domain.BookingLink{ResourceIDs: []string{"ghost"}, Duration: time.Hour}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown resource, got %v", err)
	}

	past := testfixtures.At(-1, 0, 0)
	_, err = env.catalog.CreateLink(ctx, domain.BookingLink{ResourceIDs: []string{"room-1"}, Type: "forever", ExpiresAt: &past})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"type", "duration", "expires_at"} {
		if vErr.FieldErrors[field] == "" {
			t.Fatalf("expected %s to be reported, got %v", field, vErr.FieldErrors)
		}
	}

	if _, err := env.catalog.GetLink(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
