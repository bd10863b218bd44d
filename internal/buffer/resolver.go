// Package buffer resolves the padding that surrounds bookings on a resource.
package buffer

import (
	"slices"
	"time"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
)

type key struct {
	resourceID string
	serviceID  string
}

// Resolver answers buffer lookups for a fixed set of rules.
type Resolver struct {
	rules map[key][]domain.BufferRule
	max   map[string]time.Duration
}

// NewResolver indexes rules by resource and service.
func NewResolver(rules []domain.BufferRule) *Resolver {
	r := &Resolver{
		rules: make(map[key][]domain.BufferRule, len(rules)),
		max:   make(map[string]time.Duration),
	}
	for _, rule := range rules {
		k := key{resourceID: rule.ResourceID, serviceID: rule.ServiceID}
		r.rules[k] = append(r.rules[k], rule)
		r.max[rule.ResourceID] = max(r.max[rule.ResourceID], rule.Before, rule.After)
	}
	return r
}

// Resolve returns the largest before and after buffers among the rules for
// the resource and service that apply on the weekday. Without a matching rule
// both are zero.
func (r *Resolver) Resolve(resourceID, serviceID string, weekday time.Weekday) (before, after time.Duration) {
	if r == nil {
		return 0, 0
	}
	for _, rule := range r.rules[key{resourceID: resourceID, serviceID: serviceID}] {
		if !appliesOn(rule, weekday) {
			continue
		}
		before = max(before, rule.Before)
		after = max(after, rule.After)
	}
	return before, after
}

// MaxBuffer is the largest before or after buffer of any rule on the
// resource. It bounds how far outside a window bookings can still matter.
func (r *Resolver) MaxBuffer(resourceID string) time.Duration {
	if r == nil {
		return 0
	}
	return r.max[resourceID]
}

// Apply resolves the buffers for an occurrence and widens it accordingly. The
// weekday is taken from the occurrence start in loc.
func (r *Resolver) Apply(resourceID, serviceID string, occurrence interval.Interval, loc *time.Location) interval.Interval {
	if loc == nil {
		loc = time.UTC
	}
	before, after := r.Resolve(resourceID, serviceID, occurrence.Start.In(loc).Weekday())
	return occurrence.Expand(before, after)
}

// A specific_days rule with no days behaves like an all-days rule.
func appliesOn(rule domain.BufferRule, weekday time.Weekday) bool {
	if rule.AppliesTo != domain.BufferScopeSpecificDays || len(rule.Days) == 0 {
		return true
	}
	return slices.Contains(rule.Days, weekday)
}
