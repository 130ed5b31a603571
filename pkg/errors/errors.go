package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeBadGateway         ErrorCode = "BAD_GATEWAY"
	ErrCodeUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamRejected   ErrorCode = "UPSTREAM_REJECTED"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Retryable reports whether the failure is worth retrying against an upstream.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case ErrCodeServiceUnavailable, ErrCodeBadGateway, ErrCodeUpstreamTimeout, ErrCodeRateLimit:
		return true
	}
	return false
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

func NewBadGatewayError(message string) *AppError {
	return NewAppError(ErrCodeBadGateway, message, http.StatusBadGateway)
}

// FromUpstreamStatus maps a non-2xx status returned by an upstream API to an AppError.
func FromUpstreamStatus(status int, endpoint string) *AppError {
	var err *AppError
	switch {
	case status == http.StatusNotFound:
		err = NewNotFoundError(endpoint)
	case status == http.StatusTooManyRequests:
		err = NewRateLimitError()
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		err = NewAppError(ErrCodeUpstreamTimeout, fmt.Sprintf("%s timed out", endpoint), http.StatusGatewayTimeout)
	case status >= 500:
		err = NewServiceUnavailableError(fmt.Sprintf("%s unavailable", endpoint))
	case status >= 400:
		err = NewAppError(ErrCodeUpstreamRejected, fmt.Sprintf("%s rejected request", endpoint), http.StatusBadGateway)
	default:
		err = NewBadGatewayError(fmt.Sprintf("%s returned unexpected status", endpoint))
	}
	return err.WithContext("upstream_status", status)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
