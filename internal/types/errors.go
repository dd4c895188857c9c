// README: Error kinds shared across modules (validation, provider, persistence).
package types

import (
	"errors"
	"fmt"
)

// ValidationError blocks a submission; Field names the offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ProviderError wraps a failed geocoding, routing or roster call. It is never fatal to the
// caller; it degrades to a fallback and is reported as an advisory.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is surfaced from a backing store. Message is safe to show to a dispatcher.
type PersistenceError struct {
	Op      string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Message: "could not save changes, please try again", Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// Advisory is a non-fatal, dispatcher-facing notice (e.g. routing fell back to straight-line).
type Advisory struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
