package core

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Sentinel error categories for the engine. Callers branch with errors.Is;
// the HTTP layer maps them onto status codes. Wrapped context travels via
// fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidInput covers malformed or unvetted caller input, including
	// relationship types outside the whitelist.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers references to rows that do not exist within the
	// caller's tenant scope.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers state-machine violations: re-reviewing a terminal
	// suggestion, merging an entity into itself, losing a guarded update.
	ErrConflict = errors.New("conflict")

	// ErrUpstream covers graph store and extraction service failures that
	// the relational state has been protected from.
	ErrUpstream = errors.New("upstream failure")
)

// storeErr translates a relational read error: a missing row is not-found
// within the caller's tenant scope, anything else is an upstream failure.
func storeErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}

func upstreamErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
