package middleware

import (
	"context"
	stderrors "errors"
	"net/http"

	"probewatch/internal/core/domain"
	"probewatch/pkg/circuitbreaker"
	"probewatch/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns the last error recorded by a handler into a JSON
// body {error, message, details, request_id}. Errors that are not AppErrors are
// classified first, so engine shutdown and upstream outages surface as 503.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := classifyError(c.Errors.Last().Err)
		requestID := c.Writer.Header().Get(RequestIDHeader)

		fields := []interface{}{
			"code", appErr.Code,
			"message", appErr.Message,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", requestID,
		}
		if appErr.Cause != nil {
			fields = append(fields, "error", appErr.Cause.Error())
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed", fields...)
		} else {
			logger.Warnw("request rejected", fields...)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
			"details": appErr.Context,
		}
		if requestID != "" {
			body["request_id"] = requestID
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// classifyError maps err onto the AppError the client sees.
func classifyError(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}
	switch {
	case stderrors.Is(err, domain.ErrEngineStopped):
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "engine is shutting down", http.StatusServiceUnavailable)
	case stderrors.Is(err, circuitbreaker.ErrOpen):
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "Atlas API temporarily unavailable", http.StatusServiceUnavailable)
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "request timed out", http.StatusServiceUnavailable)
	}
	return errors.WrapError(err, errors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
