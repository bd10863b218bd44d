package application

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/example/availability-engine/internal/domain"
	"github.com/example/availability-engine/internal/persistence"
	"github.com/example/availability-engine/internal/scheduler"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"window": "invalid", "duration": "required"}}
	if got := withFields.Error(); got != "validation failed: duration, window" {
		t.Fatalf("expected sorted field names, got %q", got)
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	base.merge(&ValidationError{FieldErrors: map[string]string{"second": "another"}})
	base.merge(nil)
	if len(base.FieldErrors) != 2 || !base.HasErrors() {
		t.Fatalf("expected two fields after merge, got %v", base.FieldErrors)
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   error
		want error
	}{
		{in: errors.Wrap(persistence.ErrNotFound, "get"), want: ErrNotFound},
		{in: persistence.Mark(errors.New("UNIQUE constraint failed"), persistence.ErrDuplicate), want: ErrAlreadyExists},
		{in: persistence.ErrConstraintViolation, want: ErrInUse},
	}
	for _, tc := range cases {
		got := mapRepoError(tc.in)
		if !errors.Is(got, tc.want) {
			t.Fatalf("expected %v to map to %v, got %v", tc.in, tc.want, got)
		}
		if !errors.Is(got, tc.in) && !errors.Is(got, errors.UnwrapAll(tc.in)) {
			t.Fatalf("mapping lost the original error %v", tc.in)
		}
	}
	if mapRepoError(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}

func TestConflictError_ListsRejections(t *testing.T) {
	t.Parallel()

	err := &ConflictError{Decision: scheduler.Decision{Verdicts: []scheduler.Verdict{
		{ResourceID: "room-1"},
		{ResourceID: "dr-ito", Reason: domain.ReasonBlockedDate},
	}}}
	if got := err.Error(); got != "booking conflicts: dr-ito: blocked_date" {
		t.Fatalf("unexpected message %q", got)
	}
}
