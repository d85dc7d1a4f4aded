package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the API layer can pick a status code and the
// scheduler can decide whether a retry makes sense.
type Kind int

const (
	KindValidation Kind = iota + 1 // malformed input, never retried
	KindPrecondition               // record not in the required state
	KindNotFound
	KindConflict // conditional update lost a race
	KindExternal // SMS/email gateway failure
	KindServer   // persistence failure
)

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

func Validation(msg string) error   { return &Error{Kind: KindValidation, Msg: msg} }
func Precondition(msg string) error { return &Error{Kind: KindPrecondition, Msg: msg} }
func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) error     { return &Error{Kind: KindConflict, Msg: msg} }

func External(msg string, err error) error { return &Error{Kind: KindExternal, Msg: msg, Err: err} }
func Server(msg string, err error) error   { return &Error{Kind: KindServer, Msg: msg, Err: err} }

// KindOf returns the kind of err, or 0 when err carries no taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Message returns the caller-facing message without the wrapped cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
