// Package apperrors defines the moderation error taxonomy. Every domain
// failure carries a Kind that callers (HTTP layer, NATS consumer) map to a
// response, and a stable Code that errors.Is compares against sentinels.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so a wrapped or re-messaged
// error still satisfies errors.Is(err, ErrAlreadyBlocked).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Sentinels.
var (
	ErrAlreadyBlocked  = &Error{Kind: KindConflict, Code: "already_blocked", Message: "user is already blocked"}
	ErrNotBlocked      = &Error{Kind: KindConflict, Code: "not_blocked", Message: "user is not blocked"}
	ErrDuplicateTerm   = &Error{Kind: KindConflict, Code: "duplicate_term", Message: "banned word or variation already exists"}
	ErrCannotAppeal    = &Error{Kind: KindState, Code: "cannot_appeal", Message: "only active warnings can be appealed"}
	ErrCannotResolve   = &Error{Kind: KindState, Code: "cannot_resolve", Message: "only active or appealed warnings can be resolved"}
	ErrUserNotFound    = &Error{Kind: KindNotFound, Code: "user_not_found", Message: "user not found"}
	ErrTermNotFound    = &Error{Kind: KindNotFound, Code: "term_not_found", Message: "banned word not found"}
	ErrWarningNotFound = &Error{Kind: KindNotFound, Code: "warning_not_found", Message: "warning not found"}
)

// Validation returns a validation error with a formatted message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "validation", Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a conflict error sharing the sentinel's code but carrying
// a more specific message.
func Conflict(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
