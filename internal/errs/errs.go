// Package errs contains sentinel errors shared by the store, service and api
// layers so that failures map to stable HTTP statuses.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the caller is not authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller is authenticated but is not the actor
	// allowed to perform this step.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a referenced item, review or conversation has no
	// backing record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a missing or malformed required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates the action is not allowed in the current
	// transaction state.
	ErrConflict = errors.New("conflict of state")

	// ErrStoreFailure indicates the backing store failed or returned
	// malformed data.
	ErrStoreFailure = errors.New("store failure")
)

// Store wraps a store error for the given operation. Domain sentinels
// returned by a store (not found, conflict) pass through; anything else is
// tagged as ErrStoreFailure.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStoreFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}
