package atlas

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"probewatch/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStreamMetrics struct {
	connected  atomic.Bool
	reconnects atomic.Int32
}

func (m *fakeStreamMetrics) SetStreamConnected(connected bool) { m.connected.Store(connected) }
func (m *fakeStreamMetrics) RecordStreamReconnect()            { m.reconnects.Add(1) }

// fakeAtlasStream reads the subscription frames, then sends frames and
// optionally drops the connection.
type fakeAtlasStream struct {
	t        *testing.T
	upgrader websocket.Upgrader
	frames   []string
	drop     bool

	mu            sync.Mutex
	subscriptions [][]byte
	sessions      int
}

func (f *fakeAtlasStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.sessions++
	first := f.sessions == 1
	f.mu.Unlock()

	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.subscriptions = append(f.subscriptions, data)
		f.mu.Unlock()
	}

	for _, frame := range f.frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}
	if f.drop && first {
		return
	}
	// Hold the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestStream(t *testing.T, srv *httptest.Server, sink *recordingEventSink, metrics StreamMetrics) *StreamClient {
	cfg := DefaultStreamConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.Measurements = []domain.MeasurementID{5001}
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PongTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.ReconnectInitial = 10 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond

	log := zaptest.NewLogger(t).Sugar()
	return NewStreamClient(cfg, NewFrameRouter(sink, nil, log), metrics, log)
}

func TestStreamClient_SubscribesAndRoutes(t *testing.T) {
	fake := &fakeAtlasStream{t: t, frames: []string{
		`["atlas_subscribed", {}]`,
		`["atlas_probestatus", {"prb_id": 7, "event": "connect", "timestamp": 1700000000, "probe": {"asn_v4": 3333}}]`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	sink := newRecordingEventSink()
	metrics := &fakeStreamMetrics{}
	client := newTestStream(t, srv, sink, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	sink.wait(t)
	assert.Eventually(t, client.Connected, time.Second, 5*time.Millisecond)
	assert.True(t, metrics.connected.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream client did not stop")
	}
	assert.False(t, client.Connected())
	assert.False(t, metrics.connected.Load())

	sink.mu.Lock()
	require.Len(t, sink.statuses, 1)
	assert.Equal(t, domain.ProbeID(7), sink.statuses[0].ProbeID)
	sink.mu.Unlock()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.subscriptions, 2)
	assert.JSONEq(t, `["atlas_subscribe", {"stream_type": "probestatus", "enrichProbes": true}]`, string(fake.subscriptions[0]))
	assert.JSONEq(t, `["atlas_subscribe", {"stream_type": "result", "msm": 5001}]`, string(fake.subscriptions[1]))
}

func TestStreamClient_ReconnectsAfterDrop(t *testing.T) {
	fake := &fakeAtlasStream{t: t, drop: true, frames: []string{
		`["atlas_probestatus", {"prb_id": 7, "event": "disconnect", "timestamp": 1700000000, "probe": {"asn_v4": 3333}}]`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	sink := newRecordingEventSink()
	metrics := &fakeStreamMetrics{}
	client := newTestStream(t, srv, sink, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	sink.wait(t)
	sink.wait(t)
	assert.Eventually(t, func() bool { return metrics.reconnects.Load() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestStreamClient_StopsWhenEngineStopped(t *testing.T) {
	fake := &fakeAtlasStream{t: t, frames: []string{
		`["atlas_probestatus", {"prb_id": 7, "event": "connect", "timestamp": 1700000000, "probe": {}}]`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	sink := newRecordingEventSink()
	sink.err = domain.ErrEngineStopped
	client := newTestStream(t, srv, sink, nil)

	err := client.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrEngineStopped)
}

func TestStreamClient_RetriesUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := newTestStream(t, srv, newRecordingEventSink(), nil)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, client.Run(ctx))
	assert.False(t, client.Connected())
}
