package domain

import "errors"

// Error kinds. Every domain failure wraps exactly one of these so the API
// boundary can map it to a status code.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

// Error is a domain failure with a user-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewNotFound creates a NotFound-class error
func NewNotFound(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// NewUnauthorized creates an Unauthorized-class error
func NewUnauthorized(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

// NewConflict creates a Conflict-class error
func NewConflict(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// NewValidation creates a Validation-class error
func NewValidation(message string) *Error {
	return &Error{Kind: ErrValidation, Message: message}
}

// KindOf returns the kind sentinel carried by err, or nil for infrastructure errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrConflict, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
