// Package apperr defines the error kinds shared by the clinicguard packages.
//
// Every error returned by an operation wraps exactly one kind, so callers
// classify failures with errors.Is rather than by string matching:
//
//	if errors.Is(err, apperr.ErrNotFound) {
//	    // 404
//	}
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for bad input: empty reason, non-positive
	// TTL, unknown category or action.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a grant, alert or role id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent write lost the race on the
	// same row or tuple. Callers should retry.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when an alert state change is not
	// allowed by the lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStorage is returned when the backend is unavailable.
	ErrStorage = errors.New("storage error")

	// ErrForbidden is returned when the actor may not administer the
	// target role.
	ErrForbidden = errors.New("not authorized")
)

var kinds = []error{ErrValidation, ErrNotFound, ErrConflict, ErrInvalidTransition, ErrStorage, ErrForbidden}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrForbidden with a formatted message.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Storage wraps a backend failure so that both ErrStorage and the
// underlying cause remain inspectable.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Classified reports whether err already wraps one of the kinds.
func Classified(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Kind returns the kind err wraps, or nil when it is unclassified.
func Kind(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
