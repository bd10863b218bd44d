package application

import (
	"testing"
	"time"

	"github.com/example/availability-engine/internal/domain"
)

func TestCacheStoresAndReturnsCopies(t *testing.T) {
	cache := NewCache(4, time.Minute)
	start := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

	original := []domain.AvailabilitySlot{{ResourceIDs: []string{"room-1"}, Start: start, End: start.Add(time.Hour)}}
	cache.Store("room-1|a", original)

	// Mutating the original slice should not affect the cached copy.
	original[0].ResourceIDs[0] = "mutated"

	cached, ok := cache.Get("room-1|a")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0].ResourceIDs[0] != "room-1" {
		t.Fatalf("expected cached slot to remain unchanged, got %s", cached[0].ResourceIDs[0])
	}

	cached[0].ResourceIDs[0] = "changed"
	again, _ := cache.Get("room-1|a")
	if again[0].ResourceIDs[0] != "room-1" {
		t.Fatalf("expected cache to return independent copy, got %s", again[0].ResourceIDs[0])
	}
}

func TestCacheInvalidateResource(t *testing.T) {
	cache := NewCache(8, time.Minute)
	cache.Store("room-1|a", nil)
	cache.Store("room-1|b", nil)
	cache.Store("room-10|a", nil)

	cache.InvalidateResource("room-1")
	if _, ok := cache.Get("room-1|a"); ok {
		t.Fatalf("expected room-1 entries to be dropped")
	}
	if _, ok := cache.Get("room-10|a"); !ok {
		t.Fatalf("expected room-10 entries to survive")
	}

	cache.Invalidate()
	if cache.Len() != 0 {
		t.Fatalf("expected cache to be empty after invalidation, got %d", cache.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(2, time.Minute)
	cache.Store("a|1", nil)
	cache.Store("b|1", nil)
	cache.Get("a|1")
	cache.Store("c|1", nil)

	if _, ok := cache.Get("b|1"); ok {
		t.Fatalf("expected the least recently used entry to be evicted")
	}
	if _, ok := cache.Get("a|1"); !ok {
		t.Fatalf("expected a recently read entry to survive")
	}
}

func TestNilCacheIsInert(t *testing.T) {
	var cache *Cache
	cache.Store("k", nil)
	cache.InvalidateResource("k")
	cache.Invalidate()
	if _, ok := cache.Get("k"); ok || cache.Len() != 0 {
		t.Fatalf("expected nil cache to miss")
	}
}
