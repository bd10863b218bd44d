package persistence

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned for foreign key and check failures.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrLinkSpent is returned when a one-time link was consumed concurrently.
	ErrLinkSpent = errors.New("persistence: booking link already spent")
)

// Mark attaches a persistence sentinel to err while keeping its message and
// stack, so callers can test with errors.Is.
func Mark(err error, sentinel error) error {
	if err == nil {
		return sentinel
	}
	return errors.Mark(err, sentinel)
}
