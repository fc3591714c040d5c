package manager

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify an error returned by the manager.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("manager: not found")

	// ErrValidation is returned for malformed ids, domain mismatches,
	// id collisions and out-of-range inputs.
	ErrValidation = errors.New("manager: validation failed")
)

// Error carries a user-facing message together with its kind.
// Error() returns only the message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func notFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func entityNotFound(entityID string) error {
	return notFoundf("Entity %s not found", entityID)
}
