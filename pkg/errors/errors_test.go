package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())

	wrapped := WrapError(errors.New("original error"), ErrCodeInternal, "wrapped error", 500)
	assert.Contains(t, wrapped.Error(), "original error")
	assert.ErrorIs(t, wrapped, wrapped.Cause)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	assert.Equal(t, "value", err.Context["field"])
	assert.Equal(t, 42, err.Context["count"])
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{name: "invalid input", err: NewInvalidInputError("bad"), code: ErrCodeInvalidInput, status: http.StatusBadRequest},
		{name: "not found", err: NewNotFoundError("probe"), code: ErrCodeNotFound, status: http.StatusNotFound},
		{name: "rate limit", err: NewRateLimitError(), code: ErrCodeRateLimit, status: http.StatusTooManyRequests},
		{name: "internal", err: NewInternalError("boom"), code: ErrCodeInternal, status: http.StatusInternalServerError},
		{name: "unavailable", err: NewServiceUnavailableError("down"), code: ErrCodeServiceUnavailable, status: http.StatusServiceUnavailable},
		{name: "bad gateway", err: NewBadGatewayError("upstream"), code: ErrCodeBadGateway, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestFromUpstreamStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{status: http.StatusNotFound, code: ErrCodeNotFound, retryable: false},
		{status: http.StatusTooManyRequests, code: ErrCodeRateLimit, retryable: true},
		{status: http.StatusGatewayTimeout, code: ErrCodeUpstreamTimeout, retryable: true},
		{status: http.StatusInternalServerError, code: ErrCodeServiceUnavailable, retryable: true},
		{status: http.StatusForbidden, code: ErrCodeUpstreamRejected, retryable: false},
		{status: http.StatusMovedPermanently, code: ErrCodeBadGateway, retryable: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromUpstreamStatus(tt.status, "probes")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable())
			assert.Equal(t, tt.status, err.Context["upstream_status"])
		})
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("network")

	assert.Same(t, appErr, GetAppError(appErr))

	wrapped := fmt.Errorf("failed to load: %w", appErr)
	require.True(t, IsAppError(wrapped))
	assert.Same(t, appErr, GetAppError(wrapped))

	assert.Nil(t, GetAppError(errors.New("regular error")))
	assert.Nil(t, GetAppError(nil))
	assert.False(t, IsAppError(errors.New("regular error")))
}
