// Package autherr defines the error taxonomy shared by the login surface.
//
// Every error that reaches a UI surface carries a Kind and a message that is
// safe to show to the user. None of these errors ever mutates stored session
// state.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies where an error came from and how the surface treats it.
type Kind string

const (
	// KindInput covers bad or missing credentials and missing client configuration.
	KindInput Kind = "input"
	// KindTransport covers an unreachable backend or a non-2xx response.
	KindTransport Kind = "transport"
	// KindCallback covers a failure reported by the identity provider's return trip.
	KindCallback Kind = "callback"
	// KindConfigLoad covers a failed remote configuration fetch.
	KindConfigLoad Kind = "config_load"
)

var (
	ErrMissingClientID   = errors.New("missing Google client ID")
	ErrConfigUnavailable = errors.New("app config unavailable")
	ErrNoToken           = errors.New("no bearer token stored")
	ErrInvalidSession    = errors.New("invalid session")
	ErrNotInteractive    = errors.New("login surface is not accepting input")
)

// Error is a classified error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of err, falling back to fallback
// when err carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
