package repository

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the storage-facing taxonomy. Handlers translate
// these into HTTP statuses; nothing below this layer knows about HTTP.
var (
	// ErrNotFound: no signal with the given id exists.
	ErrNotFound = errors.New("signal not found")

	// ErrDuplicate: the dedup key already has a winner. Not a failure;
	// callers treat it as a successful idempotent retry.
	ErrDuplicate = errors.New("signal already exists")

	// ErrInvalidTransition: an illegal state change was attempted, e.g.
	// archiving a taken signal. State is unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError carries per-field messages for a rejected submission.
// A submission either persists with every invariant satisfied or leaves no
// trace at all.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Fields))
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// AsValidation unwraps err into a *ValidationError if possible.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
