package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/engine"
	"github.com/example/availability-engine/internal/testfixtures"
)

// testEnv wires the three services over one migrated SQLite store.
type testEnv struct {
	harness      *testfixtures.StoreHarness
	clock        *testfixtures.Clock
	ids          *testfixtures.IDGenerator
	cache        *Cache
	availability *AvailabilityService
	bookings     *BookingService
	catalog      *CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	h := testfixtures.NewStoreHarness(t)
	cfg := engine.DefaultConfig()
	now := h.Clock.NowFunc()
	eng := engine.New(cfg, now)
	cache := NewCache(64, time.Minute)
	ids := testfixtures.NewIDGenerator("id")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		harness:      h,
		clock:        h.Clock,
		ids:          ids,
		cache:        cache,
		availability: NewAvailabilityServiceWithLogger(h.Store, eng, cfg, cache, now, logger),
		bookings:     NewBookingServiceWithLogger(h.Store, eng, cfg, cache, ids.NextFunc(), now, logger),
		catalog:      NewCatalogServiceWithLogger(h.Store, cache, ids.NextFunc(), now, logger),
	}
}

// room creates a UTC room open Monday to Friday 09:00-17:00.
func (e *testEnv) room(t *testing.T, id string) domain.Resource {
	t.Helper()
	resource, err := e.catalog.CreateResource(context.Background(), testfixtures.OfficeResource(id))
	if err != nil {
		t.Fatalf("create resource %s: %v", id, err)
	}
	return resource
}

func (e *testEnv) book(t *testing.T, resourceID string, start, end time.Time) domain.Booking {
	t.Helper()
	booking, err := e.bookings.CreateBooking(context.Background(), CreateBookingParams{
		ResourceIDs: []string{resourceID},
		ServiceID:   "consultation",
		Start:       start,
		End:         end,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}

func monday() domain.Window {
	return domain.Window{Start: testfixtures.At(0, 0, 0), End: testfixtures.At(1, 0, 0)}
}
