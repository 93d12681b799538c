// Package errors consolidates error definitions for apcstore.
//
// This package provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
// - FieldErrors, a collector that reports every violated field of a reading
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Dedup errors
	//
	// ErrConflict means a reading with the same (device_sn, measurement_time)
	// key but a different payload is already stored. It is never retryable;
	// it indicates a device clock problem or sensor misbehavior and needs
	// operator attention.
	ErrConflict = errors.New("conflicting reading for dedup key")

	// Validation errors
	ErrMissingField = errors.New("missing required field")
	ErrOutOfRange   = errors.New("value out of range")
	ErrInvalidValue = errors.New("invalid value")

	// Storage errors
	//
	// ErrUnavailable is a transient backend failure. Retrying is safe:
	// ingestion is idempotent through the dedup key.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrCorrupt is a backend-reported invariant violation. Fatal, never
	// retried.
	ErrCorrupt = errors.New("storage corrupt")

	// State errors
	ErrClosed = errors.New("store is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	var fe *FieldErrors
	if errors.As(err, &fe) {
		return true
	}
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidValue)
}

// IsConflict returns true if err is a dedup conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetriable returns true if the error is potentially retriable.
// Only transient storage failures qualify; retried inserts reconcile
// through the dedup key.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewConflict creates a dedup conflict error naming the key.
func NewConflict(deviceSN, measurementTime string) error {
	return fmt.Errorf("device '%s' at %s: %w", deviceSN, measurementTime, ErrConflict)
}

// ============================================================================
// Field Errors Collection
// ============================================================================

// FieldError is a validation failure attributed to a single field.
type FieldError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// FieldErrors collects validation errors across all fields of a reading,
// so a caller gets a complete diagnosis rather than the first violation.
type FieldErrors struct {
	Errors []*FieldError
}

// NewFieldErrors creates a new FieldErrors collector.
func NewFieldErrors() *FieldErrors {
	return &FieldErrors{}
}

// Add adds an error for a field.
func (v *FieldErrors) Add(field string, err error) {
	if err != nil {
		v.Errors = append(v.Errors, &FieldError{Field: field, Err: err})
	}
}

// AddMissing adds a missing field error.
func (v *FieldErrors) AddMissing(field string) {
	v.Add(field, ErrMissingField)
}

// AddOutOfRange adds an out-of-range error with the violated bounds.
func (v *FieldErrors) AddOutOfRange(field string, value, min, max int) {
	v.Add(field, fmt.Errorf("value %d outside [%d, %d]: %w", value, min, max, ErrOutOfRange))
}

// AddInvalid adds an invalid value error with a reason.
func (v *FieldErrors) AddInvalid(field, reason string) {
	v.Add(field, fmt.Errorf("%s: %w", reason, ErrInvalidValue))
}

// HasErrors returns true if there are any errors.
func (v *FieldErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Fields returns the names of all violated fields, in collection order.
func (v *FieldErrors) Fields() []string {
	fields := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		fields[i] = e.Field
	}
	return fields
}

// Error implements the error interface.
func (v *FieldErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the FieldErrors.
func (v *FieldErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *FieldErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
