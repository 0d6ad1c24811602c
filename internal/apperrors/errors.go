package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for the boundary layer
type Kind string

const (
	KindValidation   Kind = "VALIDATION_ERROR"
	KindConflict     Kind = "CONFLICT"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindLocked       Kind = "LOCKED"
	KindRateLimited  Kind = "RATE_LIMITED"
	KindInternal     Kind = "INTERNAL_ERROR"
)

// MsgInvalidCredentials is shared by every anti-enumeration failure
const MsgInvalidCredentials = "Invalid credentials"

// AppError is a typed failure carrying its HTTP status and user-facing message
type AppError struct {
	Kind    Kind
	Message string
	Err     error // underlying error for wrapping
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindLocked:
		return http.StatusLocked
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause without changing the user-facing message
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *AppError   { return New(KindValidation, message) }
func Conflict(message string) *AppError     { return New(KindConflict, message) }
func Unauthorized(message string) *AppError { return New(KindUnauthorized, message) }
func Forbidden(message string) *AppError    { return New(KindForbidden, message) }
func Locked(message string) *AppError       { return New(KindLocked, message) }
func RateLimited(message string) *AppError  { return New(KindRateLimited, message) }

// UnauthorizedUniform is the only constructor for failures that must not
// reveal whether the account, the password, or the code was wrong.
func UnauthorizedUniform() *AppError {
	return New(KindUnauthorized, MsgInvalidCredentials)
}

// As extracts the application error from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ToHTTPStatus maps any error to an HTTP status code.
// Unknown errors are internal.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if appErr, ok := As(err); ok {
		return appErr.Status()
	}
	return http.StatusInternalServerError
}
