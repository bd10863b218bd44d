package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/availability-engine/internal/availability"
	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/interval"
)

// DefaultLookaround is how far around a proposal bookings are evaluated.
const DefaultLookaround = 24 * time.Hour

// ErrNoResources indicates a conflict check without any resource.
var ErrNoResources = errors.New("scheduler: at least one resource is required")

// ResourceContext is the state of one resource needed to judge a proposal.
type ResourceContext struct {
	Resource     domain.Resource
	BlockedDates []domain.BlockedDate
	Bookings     []domain.Booking
	BufferRules  []domain.BufferRule
}

// Request describes a proposed booking.
type Request struct {
	ResourceIDs []string
	Proposed    interval.Interval
	ServiceID   string
	Contexts    map[string]ResourceContext
	// IgnoreBookingID lets a booking be moved without conflicting with itself.
	IgnoreBookingID string
}

// Verdict is the outcome for one resource. An empty Reason means accepted.
type Verdict struct {
	ResourceID            string
	Reason                domain.Reason
	ConflictingBookingIDs []string
}

// Accepted reports whether the resource can take the booking.
func (v Verdict) Accepted() bool {
	return v.Reason == domain.ReasonNone
}

// Decision aggregates verdicts. The proposal is accepted only when every
// resource accepts it.
type Decision struct {
	Accepted bool
	Verdicts []Verdict
}

// Rejections returns the verdicts that refused the proposal.
func (d Decision) Rejections() []Verdict {
	out := make([]Verdict, 0)
	for _, v := range d.Verdicts {
		if !v.Accepted() {
			out = append(out, v)
		}
	}
	return out
}

// Checker decides whether proposals fit on their resources.
type Checker struct {
	resolver   *availability.Resolver
	lookaround time.Duration
}

// NewChecker constructs a Checker. Non-positive lookaround uses
// DefaultLookaround.
func NewChecker(resolver *availability.Resolver, lookaround time.Duration) *Checker {
	if resolver == nil {
		resolver = availability.NewResolver(nil)
	}
	if lookaround <= 0 {
		lookaround = DefaultLookaround
	}
	return &Checker{resolver: resolver, lookaround: lookaround}
}

// Check evaluates the proposal on every requested resource. It has no side
// effects and returns the same decision for the same request.
func (c *Checker) Check(ctx context.Context, req Request) (Decision, error) {
	if c == nil {
		return Decision{}, fmt.Errorf("scheduler: checker not initialised")
	}
	proposed := req.Proposed.UTC()
	if err := proposed.Validate(); err != nil {
		return Decision{}, &domain.InvalidIntervalError{Field: "proposed", Detail: proposed.String()}
	}
	ids := uniqueIDs(req.ResourceIDs)
	if len(ids) == 0 {
		return Decision{}, ErrNoResources
	}

	decision := Decision{Accepted: true, Verdicts: make([]Verdict, 0, len(ids))}
	for _, id := range ids {
		verdict, err := c.checkResource(ctx, id, proposed, req)
		if err != nil {
			return Decision{}, err
		}
		if !verdict.Accepted() {
			decision.Accepted = false
		}
		decision.Verdicts = append(decision.Verdicts, verdict)
	}
	return decision, nil
}

func (c *Checker) checkResource(ctx context.Context, resourceID string, proposed interval.Interval, req Request) (Verdict, error) {
	rc, ok := req.Contexts[resourceID]
	if !ok {
		return Verdict{ResourceID: resourceID, Reason: domain.ReasonUnknownResource}, nil
	}
	if rc.Resource.ID == "" {
		rc.Resource.ID = resourceID
	}

	snap, err := c.Snapshot(ctx, rc, proposed, req.IgnoreBookingID)
	if err != nil {
		return Verdict{}, fmt.Errorf("scheduler: resource %s: %w", resourceID, err)
	}

	verdict := Verdict{ResourceID: resourceID, Reason: snap.Admits(proposed, req.ServiceID)}
	if verdict.Reason == domain.ReasonResourceBusy {
		verdict.ConflictingBookingIDs = snap.ConflictingBookings(proposed, req.ServiceID)
	}
	return verdict, nil
}

// Snapshot evaluates a resource around the proposal, far enough out that
// every buffer touching it is seen.
func (c *Checker) Snapshot(ctx context.Context, rc ResourceContext, proposed interval.Interval, ignoreBookingID string) (*availability.Snapshot, error) {
	reach := c.lookaround
	for _, rule := range rc.BufferRules {
		if rule.ResourceID == rc.Resource.ID {
			reach = max(reach, rule.Before, rule.After)
		}
	}
	return c.resolver.Snapshot(ctx, availability.Input{
		Resource:        rc.Resource,
		Window:          domain.Window{Start: proposed.Start.Add(-reach), End: proposed.End.Add(reach)},
		BlockedDates:    rc.BlockedDates,
		Bookings:        rc.Bookings,
		BufferRules:     rc.BufferRules,
		IgnoreBookingID: ignoreBookingID,
	})
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
