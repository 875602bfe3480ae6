package gallery

import (
	"errors"
	"fmt"
)

// Workflow error taxonomy. Handlers map these onto HTTP statuses; anything
// outside the taxonomy surfaces as a generic failure.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("filename already exists")
)

// ValidationError reports a missing or malformed user-supplied field. No
// state is changed when one is returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UpstreamError wraps a failure of the external face detection service.
// Local state is never mutated when one is returned.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("face detection service failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
