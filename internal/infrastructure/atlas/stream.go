package atlas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamConfig configures the Atlas websocket stream.
type StreamConfig struct {
	URL              string
	Measurements     []domain.MeasurementID
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	MaxMessageSize   int64
	UserAgent        string
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:              "wss://atlas-stream.ripe.net/stream/?client=probewatch",
		PingInterval:     30 * time.Second,
		PongTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReconnectInitial: time.Second,
		ReconnectMax:     time.Minute,
		MaxMessageSize:   1 << 20,
		UserAgent:        "probewatch",
	}
}

// StreamMetrics receives connection state changes.
type StreamMetrics interface {
	SetStreamConnected(connected bool)
	RecordStreamReconnect()
}

type noopStreamMetrics struct{}

func (noopStreamMetrics) SetStreamConnected(bool) {}
func (noopStreamMetrics) RecordStreamReconnect()  {}

// StreamClient keeps a subscription to the Atlas stream alive and feeds
// every frame to a FrameRouter.
type StreamClient struct {
	cfg       StreamConfig
	dialer    *websocket.Dialer
	router    *FrameRouter
	metrics   StreamMetrics
	logger    *zap.SugaredLogger
	connected atomic.Bool
}

func NewStreamClient(cfg StreamConfig, router *FrameRouter, metrics StreamMetrics, logger *zap.SugaredLogger) *StreamClient {
	if metrics == nil {
		metrics = noopStreamMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StreamClient{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.WriteTimeout,
		},
		router:  router,
		metrics: metrics,
		logger:  logger,
	}
}

// Connected reports whether a subscribed connection is currently up.
func (s *StreamClient) Connected() bool {
	return s.connected.Load()
}

// Run connects, subscribes and reads until ctx is done, reconnecting with
// exponential backoff. The backoff restarts after every established session.
func (s *StreamClient) Run(ctx context.Context) error {
	backoff := retry.Forever(s.cfg.ReconnectInitial, s.cfg.ReconnectMax)

	for reconnect := false; ; reconnect = true {
		if reconnect {
			s.metrics.RecordStreamReconnect()
		}

		conn, err := retry.RetryWithResult(ctx, backoff, func() (*websocket.Conn, error) {
			conn, err := s.connect(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warnw("stream connect failed", "url", s.cfg.URL, "error", err)
			}
			return conn, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		started := time.Now()
		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrEngineStopped) {
			return err
		}
		s.logger.Warnw("stream connection lost", "error", err, "session", time.Since(started))

		// A server that drops us right after subscribing must not cause a hot loop.
		if time.Since(started) < s.cfg.ReconnectInitial {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.ReconnectInitial):
			}
		}
	}
}

func (s *StreamClient) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.UserAgent != "" {
		header.Set("User-Agent", s.cfg.UserAgent)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}

	frames, err := subscriptionFrames(s.cfg.Measurements)
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, frame := range frames {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	s.logger.Infow("stream subscribed", "url", s.cfg.URL, "measurements", len(s.cfg.Measurements))
	return conn, nil
}

// serve owns conn until it fails or ctx is done.
func (s *StreamClient) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	s.connected.Store(true)
	s.metrics.SetStreamConnected(true)
	defer func() {
		s.connected.Store(false)
		s.metrics.SetStreamConnected(false)
	}()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pingTicker := time.NewTicker(s.cfg.PingInterval)
		defer pingTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblocks ReadMessage below.
				conn.Close()
				return
			case <-done:
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(s.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					s.logger.Infow("error sending stream ping", "error", err)
					conn.Close()
					return
				}
			}
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read stream frame: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if err := s.router.Route(ctx, data); err != nil {
			if errors.Is(err, domain.ErrEngineStopped) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warnw("failed to route stream frame", "error", err)
		}
	}
}
