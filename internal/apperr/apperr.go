// Package apperr carries business-rule failures to the HTTP boundary without
// altering their message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalid Kind = iota
	KindNotFound
	KindForbidden
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Invalid marks a validation or business-rule violation (HTTP 400).
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// NotFound marks a missing account, medicine, order or category (HTTP 404).
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden marks a role, ownership or ban violation (HTTP 403).
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind. ok is false for errors that did not
// originate from this package; those are treated as internal failures.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInvalid, false
}
