package sink

import (
	"context"
	"errors"
	"fmt"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"

	"go.uber.org/zap"
)

// FailureRecorder counts failed dispatches per sink.
type FailureRecorder interface {
	RecordDispatchFailure(sink string)
}

// Multi fans an alert out to every sink. A failing sink does not keep the
// alert from the others, and Dispatch succeeds once any sink accepted it.
// Partial failures are logged and counted per sink only.
type Multi struct {
	sinks    []ports.AlertSink
	failures FailureRecorder
	logger   *zap.SugaredLogger
}

func NewMulti(failures FailureRecorder, logger *zap.SugaredLogger, sinks ...ports.AlertSink) *Multi {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Multi{sinks: sinks, failures: failures, logger: logger}
}

func (m *Multi) Dispatch(ctx context.Context, alert domain.Alert) error {
	var errs []error
	delivered := 0
	for _, s := range m.sinks {
		if err := s.Dispatch(ctx, alert); err != nil {
			if m.failures != nil {
				m.failures.RecordDispatchFailure(s.Name())
			}
			m.logger.Warnw("alert sink failed",
				"sink", s.Name(),
				"kind", alert.Kind,
				"correlation_key", alert.CorrelationKey,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		delivered++
	}
	if delivered > 0 {
		return nil
	}
	return errors.Join(errs...)
}

func (m *Multi) Name() string { return "fanout" }

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }
