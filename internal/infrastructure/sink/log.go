package sink

import (
	"context"

	"probewatch/internal/core/domain"

	"go.uber.org/zap"
)

// LogSink writes every alert as a structured log line.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Dispatch(_ context.Context, alert domain.Alert) error {
	s.logger.Infow("alert raised",
		"kind", alert.Kind,
		"correlation_key", alert.CorrelationKey,
		"occurred_at", alert.OccurredAt,
		"payload", alert.Payload,
	)
	return nil
}

func (s *LogSink) Name() string { return "log" }
