package sink

import (
	"context"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"
	"probewatch/pkg/cache"
)

// DedupeSink drops alerts whose correlation key was already dispatched within ttl.
type DedupeSink struct {
	next ports.AlertSink
	seen *cache.Cache[struct{}]
}

func NewDedupeSink(next ports.AlertSink, ttl time.Duration) *DedupeSink {
	return &DedupeSink{
		next: next,
		seen: cache.New[struct{}](ttl, ttl),
	}
}

func (s *DedupeSink) Dispatch(ctx context.Context, alert domain.Alert) error {
	if alert.CorrelationKey == "" {
		return s.next.Dispatch(ctx, alert)
	}
	if !s.seen.SetIfAbsent(alert.CorrelationKey, struct{}{}) {
		return nil
	}
	if err := s.next.Dispatch(ctx, alert); err != nil {
		// Let a later retry of the same alert through.
		s.seen.Delete(alert.CorrelationKey)
		return err
	}
	return nil
}

func (s *DedupeSink) Name() string { return s.next.Name() }

// Close stops the cache janitor.
func (s *DedupeSink) Close() {
	s.seen.Stop()
}
