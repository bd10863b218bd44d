package domain

import (
	"fmt"

	"github.com/example/availability-engine/internal/interval"
)

// ErrInvalidInterval is matched by every *InvalidIntervalError.
var ErrInvalidInterval = interval.ErrInvalidInterval

// InvalidIntervalError reports an interval whose end does not follow its start.
type InvalidIntervalError struct {
	Field  string
	Detail string
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("domain: invalid interval for %s: %s", e.Field, e.Detail)
}

// Is lets errors.Is match ErrInvalidInterval.
func (e *InvalidIntervalError) Is(target error) bool {
	return target == ErrInvalidInterval
}

// Reason explains why a resource cannot take a booking or why a link cannot
// produce slots. Reasons are returned as data, never as errors.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonResourceBusy        Reason = "resource_busy"
	ReasonOutsideWorkingHours Reason = "outside_working_hours"
	ReasonBlockedDate         Reason = "blocked_date"
	ReasonLinkExpired         Reason = "link_expired"
	ReasonLinkSpent           Reason = "link_spent"
	ReasonUnknownResource     Reason = "unknown_resource"
)

func (r Reason) String() string {
	if r == ReasonNone {
		return "accepted"
	}
	return string(r)
}
