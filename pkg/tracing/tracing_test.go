package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "probewatch", cfg.ServiceName)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerURL)
	assert.Equal(t, 0.1, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	tp, err := Init(DefaultConfig(), "test")
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()

	ctx, span := TraceProbeEvent(ctx, 1001, "disconnect")
	require.NotNil(t, span)
	AddSpanAttributes(ctx, attribute.Int("alerts.count", 2))
	RecordError(ctx, errors.New("boom"))
	MeasureDuration(ctx, time.Now(), "tracker.handle_event")
	span.End()

	_, span = TraceSnapshot(context.Background(), 1001, 5001)
	require.NotNil(t, span)
	span.End()

	_, span = TraceDispatch(context.Background(), "redis", "NetworkOffline")
	require.NotNil(t, span)
	span.End()

	_, span = TraceHTTPRequest(context.Background(), "GET", "/api/v1/probes/:id")
	require.NotNil(t, span)
	span.End()
}
