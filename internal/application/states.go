package application

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/engine"
	"github.com/example/availability-engine/internal/persistence"
)

// stateReader is the read side of the store the engine inputs come from.
type stateReader interface {
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	ListBufferRules(ctx context.Context, resourceID string) ([]domain.BufferRule, error)
	ListBlockedDates(ctx context.Context, resourceID string, from, to time.Time) ([]domain.BlockedDate, error)
	ListBookings(ctx context.Context, resourceID string, from, to time.Time) ([]domain.Booking, error)
}

// loadState reads everything the engine needs to judge [from, to) on one
// resource. reach widens the range the way the conflict checker widens its
// snapshot; the largest buffer of the resource is added on top so bookings
// whose padding spills into the range are seen. found is false when the
// resource does not exist.
func loadState(ctx context.Context, store stateReader, resourceID string, from, to time.Time, reach time.Duration) (state engine.ResourceState, found bool, err error) {
	resource, err := store.GetResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return engine.ResourceState{}, false, nil
		}
		return engine.ResourceState{}, false, errors.Wrapf(mapRepoError(err), "load resource %s", resourceID)
	}

	rules, err := store.ListBufferRules(ctx, resourceID)
	if err != nil {
		return engine.ResourceState{}, false, errors.Wrapf(mapRepoError(err), "load buffer rules of %s", resourceID)
	}
	margin := max(reach, maxBuffer(rules))

	blocked, err := store.ListBlockedDates(ctx, resourceID, from.Add(-margin), to.Add(margin))
	if err != nil {
		return engine.ResourceState{}, false, errors.Wrapf(mapRepoError(err), "load blocked dates of %s", resourceID)
	}
	bookings, err := store.ListBookings(ctx, resourceID, from.Add(-2*margin), to.Add(2*margin))
	if err != nil {
		return engine.ResourceState{}, false, errors.Wrapf(mapRepoError(err), "load bookings of %s", resourceID)
	}

	return engine.ResourceState{
		Resource:     resource,
		BlockedDates: blocked,
		Bookings:     bookings,
		BufferRules:  rules,
	}, true, nil
}

// loadStates loads several resources concurrently. Unknown resources are left
// out of the map so the conflict checker reports them. A transactional store
// is read one resource at a time since its connection cannot be shared.
func loadStates(ctx context.Context, store stateReader, resourceIDs []string, from, to time.Time, reach time.Duration, concurrent bool) (map[string]engine.ResourceState, error) {
	ids := uniqueStrings(resourceIDs)
	states := make([]engine.ResourceState, len(ids))
	found := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if !concurrent {
		g.SetLimit(1)
	}
	for i, id := range ids {
		g.Go(func() error {
			state, ok, err := loadState(gctx, store, id, from, to, reach)
			if err != nil {
				return err
			}
			states[i], found[i] = state, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]engine.ResourceState, len(ids))
	for i, id := range ids {
		if found[i] {
			out[id] = states[i]
		}
	}
	return out, nil
}

// requireStates fails with ErrNotFound when a resource is missing.
func requireStates(states map[string]engine.ResourceState, resourceIDs []string) error {
	for _, id := range resourceIDs {
		if _, ok := states[id]; !ok {
			return errors.Wrapf(ErrNotFound, "resource %s", id)
		}
	}
	return nil
}

func maxBuffer(rules []domain.BufferRule) time.Duration {
	var longest time.Duration
	for _, rule := range rules {
		longest = max(longest, rule.Before, rule.After)
	}
	return longest
}

func uniqueStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
