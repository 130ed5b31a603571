package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"probewatch/internal/core/domain"
)

// WriterSink writes alerts to w as JSON lines.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Dispatch(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(alert); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

func (s *WriterSink) Name() string { return "writer" }
