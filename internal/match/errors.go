// internal/match/errors.go
package match

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected action. Every kind is recoverable.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindInvalidState   Kind = "invalid_state"
	KindForbidden      Kind = "forbidden"
	KindAlreadyActed   Kind = "already_acted"
	KindStaleReference Kind = "stale_reference"
	KindInvalidInput   Kind = "invalid_input"
	KindUnavailable    Kind = "unavailable"
)

// Error is a structured rejection returned by Engine entry points.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches on kind so errors.Is(err, ErrNotFound) works for any message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "no session for player"}
	ErrInvalidState   = &Error{Kind: KindInvalidState, Message: "action not allowed in this phase"}
	ErrForbidden      = &Error{Kind: KindForbidden, Message: "not your turn"}
	ErrAlreadyActed   = &Error{Kind: KindAlreadyActed, Message: "already acted"}
	ErrStaleReference = &Error{Kind: KindStaleReference, Message: "question is no longer current"}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrUnavailable    = &Error{Kind: KindUnavailable, Message: "dependency unavailable"}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the rejection kind, or "" for errors that are not rejections.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
