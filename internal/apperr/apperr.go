// Package apperr holds the errors shared across the editor and the text shown
// to the user for them.
package apperr

import (
	"context"
	"errors"
	"strings"
)

// ErrCancelled is returned when the user aborts a long operation. It is not
// shown to the user.
var ErrCancelled = errors.New("operation cancelled")

// UserError is implemented by errors that carry their own user-facing text
type UserError interface {
	error
	UserMessage() string
}

// Cancelled reports whether err is a user or context cancellation
func Cancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Message returns a sentence describing err for the user, or "" when
// nothing should be shown.
func Message(err error) string {
	if err == nil || Cancelled(err) {
		return ""
	}
	var ue UserError
	if errors.As(err, &ue) {
		if msg := ue.UserMessage(); msg != "" {
			return msg
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The operation timed out."
	}
	return sentence(err.Error())
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Something went wrong."
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
