package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks unknown sites, chats and visitors.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed payloads.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks state conflicts such as writing to a closed chat.
	ErrConflict = errors.New("conflict")
	// ErrTransientIO marks storage failures; the caller may retry.
	ErrTransientIO = errors.New("storage unavailable")
	// ErrUnauthorized marks missing or invalid operator credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(code string, format string, args ...any) *Error {
	return New(http.StatusNotFound, code, wrap(ErrNotFound, format, args...))
}

func Validation(code string, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, wrap(ErrValidation, format, args...))
}

func Conflict(code string, format string, args ...any) *Error {
	return New(http.StatusConflict, code, wrap(ErrConflict, format, args...))
}

func Unauthorized(format string, args ...any) *Error {
	return New(http.StatusUnauthorized, "unauthorized", wrap(ErrUnauthorized, format, args...))
}

// Transient wraps a storage error. Errors that already carry an *Error pass through.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return New(http.StatusServiceUnavailable, "storage_unavailable", fmt.Errorf("%w: %s: %v", ErrTransientIO, op, err))
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status, ae.Code
	}
	return http.StatusInternalServerError, "internal_error"
}

func wrap(sentinel error, format string, args ...any) error {
	if format == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
