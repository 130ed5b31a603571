package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"probewatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type HubConfig struct {
	BufferSize   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:   256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

type hubClient struct {
	id   string
	send chan []byte
}

// Hub broadcasts alerts as JSON to connected websocket clients. A client that
// falls BufferSize messages behind is disconnected.
type Hub struct {
	cfg    HubConfig
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*hubClient
}

func NewHub(cfg HubConfig, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*hubClient),
	}
}

func (h *Hub) Dispatch(_ context.Context, alert domain.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	h.Broadcast(data)
	return nil
}

func (h *Hub) Name() string { return "websocket" }

// Broadcast queues data for every client.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warnw("dropping slow alert subscriber", "client_id", id)
			delete(h.clients, id)
			close(c.send)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register() *hubClient {
	c := &hubClient{id: uuid.NewString(), send: make(chan []byte, h.cfg.BufferSize)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// HandleWebSocket upgrades the request and streams alerts until the client
// goes away. Incoming messages are ignored.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := h.register()
	defer h.unregister(client)
	h.logger.Infow("alert subscriber connected", "client_id", client.id, "remote", r.RemoteAddr)

	readTimeout := 2 * h.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case data, ok := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Infow("error writing alert", "client_id", client.id, "error", err)
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Infow("error sending ping", "client_id", client.id, "error", err)
				return
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("alert subscriber read error", "client_id", client.id, "error", err)
			}
			h.logger.Infow("alert subscriber disconnected", "client_id", client.id)
			return
		}
	}
}
