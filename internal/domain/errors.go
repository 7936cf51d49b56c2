package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a ledger operation was rejected.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindState
	KindAuthorization
	KindArithmetic
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrState         = &Error{Kind: KindState}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrArithmetic    = &Error{Kind: KindArithmetic}

	ErrLockHeld = errors.New("lock already held")
	ErrLockLost = errors.New("lock lost")
)

// Error is a typed ledger rejection. Every Error aborts its operation with no
// state change.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Op != "":
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	default:
		return e.Kind.String() + " error"
	}
}

// Is reports kind equality so errors.Is(err, ErrState) matches any state error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(op, format string, args ...any) error {
	return newError(KindValidation, op, format, args...)
}

func NotFoundf(op, format string, args ...any) error {
	return newError(KindNotFound, op, format, args...)
}

func Statef(op, format string, args ...any) error {
	return newError(KindState, op, format, args...)
}

func Authorizationf(op, format string, args ...any) error {
	return newError(KindAuthorization, op, format, args...)
}

func Arithmeticf(op, format string, args ...any) error {
	return newError(KindArithmetic, op, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
