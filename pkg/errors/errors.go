package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrUnavailable    = errors.New("service unavailable")
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// BadRequest, Unauthorized, Forbidden, NotFound, Validation, Conflict and Unavailable wrap
// the matching sentinel with a detail message. errors.Is still reports the
// category, and Error() returns only the detail.

func BadRequest(format string, args ...any) error {
	return wrap(ErrBadRequest, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return wrap(ErrUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

// Unavailable keeps cause in the chain so callers can still inspect the
// driver error.
func Unavailable(cause error, format string, args ...any) error {
	return &categoryError{
		category: ErrUnavailable,
		msg:      fmt.Sprintf(format, args...),
		cause:    cause,
	}
}

type categoryError struct {
	category error
	msg      string
	cause    error
}

func (e *categoryError) Error() string {
	return e.msg
}

func (e *categoryError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.category}
	}
	return []error{e.category, e.cause}
}

func wrap(category error, format string, args ...any) error {
	return &categoryError{category: category, msg: fmt.Sprintf(format, args...)}
}

// IsCategorized reports whether err already carries one of the categories
// above.
func IsCategorized(err error) bool {
	for _, c := range []error{ErrNotFound, ErrUnauthorized, ErrForbidden, ErrValidation, ErrConflict, ErrUnavailable, ErrBadRequest} {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
