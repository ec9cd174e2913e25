package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind represents the type of error
type Kind int

const (
	ErrInternal Kind = iota
	ErrNotFound
	ErrTransport
	ErrAuth
	ErrDataIntegrity
	ErrPersistence
	ErrConflict
)

// Error is an application-level error with a kind for classification
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err (or any error in its chain) is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Constructor functions for common error types

func NotFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Transport(msg string) *Error {
	return &Error{Kind: ErrTransport, Message: msg}
}

func Transportf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrTransport, Message: fmt.Sprintf(format, args...)}
}

func Auth(msg string) *Error {
	return &Error{Kind: ErrAuth, Message: msg}
}

func Authf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrAuth, Message: fmt.Sprintf(format, args...)}
}

func DataIntegrity(msg string) *Error {
	return &Error{Kind: ErrDataIntegrity, Message: msg}
}

func DataIntegrityf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrDataIntegrity, Message: fmt.Sprintf(format, args...)}
}

func Persistence(msg string, err error) *Error {
	return &Error{Kind: ErrPersistence, Message: msg, Err: err}
}

func Conflict(msg string) *Error {
	return &Error{Kind: ErrConflict, Message: msg}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func Internal(err error) *Error {
	return &Error{Kind: ErrInternal, Message: "internal error", Err: err}
}

func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
