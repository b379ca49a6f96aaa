// Package apperror carries the engine's error taxonomy. Stores and usecases
// return *Error (optionally wrapped) so transports can map a Kind to a status
// code without string matching.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindAlreadyTerminal Kind = "already_terminal"
	KindInvalidState    Kind = "invalid_state"
	KindInternal        Kind = "internal"
)

// Sentinels for errors.Is checks. An *Error matches the sentinel of its Kind.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyTerminal = errors.New("already terminal")
	ErrInvalidState    = errors.New("invalid state")
	ErrInternal        = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindValidation:      ErrValidation,
	KindNotFound:        ErrNotFound,
	KindConflict:        ErrConflict,
	KindAlreadyTerminal: ErrAlreadyTerminal,
	KindInvalidState:    ErrInvalidState,
	KindInternal:        ErrInternal,
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func AlreadyTerminal(format string, args ...any) *Error {
	return newf(KindAlreadyTerminal, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newf(KindInvalidState, format, args...)
}

// Conflict wraps the underlying serialization failure so callers can still
// inspect it.
func Conflict(err error, format string, args ...any) *Error {
	e := newf(KindConflict, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
