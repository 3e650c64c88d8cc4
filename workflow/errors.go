/*
errors.go - Centralized error types for the workflow engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Transition errors - Illegal state changes, stale reads
  2. Validation errors - Caller input defects
  3. Numbering errors  - Document-number collisions and retry exhaustion
  4. Partial failures  - Multi-row operations that only partly applied

USAGE:
  Callers branch on sentinels:

    if errors.Is(err, workflow.ErrInvalidTransition) {
        // reject, never retry
    }
    if workflow.IsRetryable(err) {
        // re-read and retry the whole operation
    }

SEE ALSO:
  - transition.go: Returns InvalidTransitionError
  - numbering.go: Returns NumberExhaustedError
*/
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransition is returned when a target state is not reachable
	// from the current state. Never retried automatically.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrMissingRequiredField is returned for caller input defects.
	// Surfaced verbatim to the caller before any persistence call.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrNumberGenerationExhausted is returned when all numbering attempts
	// collided. The whole operation is safe to retry.
	ErrNumberGenerationExhausted = errors.New("number generation exhausted")

	// ErrConcurrentModification is returned when the observed state no longer
	// matches the persisted state. The caller must re-fetch and decide.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotFound is returned when an entity id does not resolve.
	ErrNotFound = errors.New("entity not found")

	// ErrPartialFailure is returned when some child-row writes succeeded and
	// others failed. The failed subset is always reported, never dropped.
	ErrPartialFailure = errors.New("operation partially failed")

	// ErrDuplicateNumber is returned by stores when an insert violates the
	// document-number uniqueness constraint. The number generator retries on it.
	ErrDuplicateNumber = errors.New("duplicate document number")

	// ErrDuplicateKey is returned by stores when a child-row insert violates
	// a one-row-per-key constraint (e.g. one item row per material).
	ErrDuplicateKey = errors.New("duplicate business key")

	// ErrNotEditable is returned when mutating an entity outside its editable states.
	ErrNotEditable = errors.New("entity is not in an editable state")

	// ErrInvalidSupplierCount is returned when a quotation cycle invites the
	// wrong number of suppliers for the requisition kind.
	ErrInvalidSupplierCount = errors.New("invalid supplier count")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError reports an illegal state edge with enough context
// for a human-readable message: entity, attempted transition, reason.
type InvalidTransitionError struct {
	Kind     Kind
	EntityID string
	From     State
	To       State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s %s: %s -> %s", e.Kind, e.EntityID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// StaleStateError reports a transition attempted from a state the entity
// is no longer in.
type StaleStateError struct {
	Kind     Kind
	EntityID string
	Expected State
	Actual   State
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("%s %s changed concurrently: expected state %s, found %s",
		e.Kind, e.EntityID, e.Expected, e.Actual)
}

func (e *StaleStateError) Unwrap() error { return ErrConcurrentModification }

// MissingFieldError names the field a caller failed to provide.
type MissingFieldError struct {
	Field  string
	Reason string
}

func (e *MissingFieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("missing required field %q: %s", e.Field, e.Reason)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingRequiredField }

// NumberExhaustedError wraps the final attempt's underlying error.
type NumberExhaustedError struct {
	Kind     NumberKind
	Attempts int
	Last     error
}

func (e *NumberExhaustedError) Error() string {
	return fmt.Sprintf("could not allocate %s number after %d attempts: %v", e.Kind, e.Attempts, e.Last)
}

func (e *NumberExhaustedError) Unwrap() error { return ErrNumberGenerationExhausted }

// ItemFailure records one failed child-row write within a parent operation.
type ItemFailure struct {
	Key string // business key of the failed row (material id, supplier id, ...)
	Err error
}

// PartialFailureError lists exactly which child rows failed so the caller
// can retry only the gap.
type PartialFailureError struct {
	Op        string
	Succeeded int
	Failed    []ItemFailure
}

func (e *PartialFailureError) Error() string {
	keys := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		keys[i] = f.Key
	}
	return fmt.Sprintf("%s: %d row(s) written, %d failed (%s)",
		e.Op, e.Succeeded, len(e.Failed), strings.Join(keys, ", "))
}

func (e *PartialFailureError) Unwrap() error { return ErrPartialFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if re-running the whole operation might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrNumberGenerationExhausted)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrMissingRequiredField) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrInvalidSupplierCount)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
