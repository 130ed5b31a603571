package reliability

import (
	"context"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"
	"probewatch/pkg/circuitbreaker"
	"probewatch/pkg/retry"

	"go.uber.org/zap"
)

// SinkWrapper wraps an AlertSink with retry logic and a circuit breaker.
// An open breaker is not retried.
type SinkWrapper struct {
	sink   ports.AlertSink
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewSinkWrapper creates a new wrapper with retry and circuit breaker
func NewSinkWrapper(
	sink ports.AlertSink,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SinkWrapper {
	retryConfig.NonRetryableErrors = append(retryConfig.NonRetryableErrors, circuitbreaker.ErrOpen)

	wrapper := &SinkWrapper{
		sink:           sink,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(sink.Name(), cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Infow("sink circuit breaker state changed",
			"sink", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

// Dispatch delivers the alert with retry logic
func (w *SinkWrapper) Dispatch(ctx context.Context, alert domain.Alert) error {
	if !w.retryConfig.Enabled {
		return w.circuitBreaker.Execute(ctx, func() error {
			return w.sink.Dispatch(ctx, alert)
		})
	}

	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, func() error {
			return w.sink.Dispatch(ctx, alert)
		})
	})
}

func (w *SinkWrapper) Name() string { return w.sink.Name() }

// CircuitBreakerStats returns circuit breaker statistics
func (w *SinkWrapper) CircuitBreakerStats() circuitbreaker.Stats {
	return w.circuitBreaker.Stats()
}

// CircuitBreakerState returns the breaker state for readiness checks
func (w *SinkWrapper) CircuitBreakerState() circuitbreaker.State {
	return w.circuitBreaker.State()
}
