package application

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/availability-engine/internal/domain"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 30 * time.Second
)

// Cache keeps recently resolved availability so repeated queries for the same
// resource and window skip the database and the engine. Writes affecting a
// resource drop its entries.
type Cache struct {
	lru *expirable.LRU[string, []domain.AvailabilitySlot]
}

// NewCache constructs a Cache. Non-positive values fall back to defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{lru: expirable.NewLRU[string, []domain.AvailabilitySlot](size, nil, ttl)}
}

func (c *Cache) Get(key string) ([]domain.AvailabilitySlot, bool) {
	if c == nil {
		return nil, false
	}
	slots, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneSlots(slots), true
}

func (c *Cache) Store(key string, slots []domain.AvailabilitySlot) {
	if c == nil {
		return
	}
	c.lru.Add(key, cloneSlots(slots))
}

// InvalidateResource drops every entry for the resource.
func (c *Cache) InvalidateResource(resourceID string) {
	if c == nil {
		return
	}
	prefix := resourceID + "|"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Invalidate drops everything.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func cloneSlots(slots []domain.AvailabilitySlot) []domain.AvailabilitySlot {
	out := make([]domain.AvailabilitySlot, len(slots))
	for i, slot := range slots {
		slot.ResourceIDs = append([]string(nil), slot.ResourceIDs...)
		out[i] = slot
	}
	return out
}

func availabilityKey(resourceID string, window domain.Window, minDuration time.Duration) string {
	var b strings.Builder
	b.WriteString(resourceID)
	b.WriteString("|")
	b.WriteString(window.Start.UTC().Format(time.RFC3339Nano))
	b.WriteString("|")
	b.WriteString(window.End.UTC().Format(time.RFC3339Nano))
	b.WriteString("|")
	b.WriteString(minDuration.String())
	return b.String()
}
