package application

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when an identifier or slug is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInUse is returned when a record is still referenced, such as a
	// resource with bookings.
	ErrInUse = errors.New("application: in use")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError rejects a booking whose proposal does not fit. The decision
// lists the reason per resource.
type ConflictError struct {
	Decision scheduler.Decision
}

func (e *ConflictError) Error() string {
	reasons := make([]string, 0, len(e.Decision.Verdicts))
	for _, v := range e.Decision.Rejections() {
		reasons = append(reasons, fmt.Sprintf("%s: %s", v.ResourceID, v.Reason))
	}
	return "booking conflicts: " + strings.Join(reasons, "; ")
}

// LinkRefusedError reports that a booking link cannot be used.
type LinkRefusedError struct {
	Slug   string
	Reason domain.Reason
}

func (e *LinkRefusedError) Error() string {
	return fmt.Sprintf("booking link %s refused: %s", e.Slug, e.Reason)
}

// mapRepoError converts persistence sentinels into application sentinels
// while keeping the original chain.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return errors.Mark(err, ErrNotFound)
	case errors.Is(err, persistence.ErrDuplicate):
		return errors.Mark(err, ErrAlreadyExists)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return errors.Mark(err, ErrInUse)
	}
	return err
}
