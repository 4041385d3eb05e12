// Package apperr defines the error kinds returned by the board and ledger
// services. Handlers map a Kind to an HTTP status; the message of every kind
// except Internal is safe to show to the caller.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Auth
	NotFound
	Conflict
	InsufficientFunds
	Expired
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InsufficientFunds:
		return "insufficient_funds"
	case Expired:
		return "expired"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap marks err as an internal failure described by msg.
func Wrap(err error, msg string) error {
	return &Error{Kind: Internal, Msg: msg, Err: err}
}

// KindOf reports the Kind of err. Errors that did not originate here are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Msg
	}
	return "internal server error"
}
