package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/gorilla/websocket"
)

// Event is one message on the /ws stream
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Marshal converts an event to JSON bytes
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	clientBuffer = 256
)

// Client is one websocket subscriber. A client opened with ?run=<id>
// receives only that run's events.
type Client struct {
	ID       string
	RunID    string
	conn     *websocket.Conn
	messages chan []byte
}

func (c *Client) wants(ev Event) bool {
	if c.RunID == "" {
		return true
	}
	id, _ := ev.Data["run_id"].(string)
	return id == c.RunID
}

// WebSocketHub fans run events out to connected dashboards
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, clientBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run owns the client set until ctx is done
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered",
				logger.String("client_id", client.ID),
				logger.String("run_id", client.RunID))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				delete(h.clients, client)
				close(client.messages)
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered",
				logger.String("client_id", client.ID))

		case event := <-h.broadcast:
			h.deliver(event)

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.messages)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

func (h *WebSocketHub) deliver(event Event) {
	data, err := event.Marshal()
	if err != nil {
		h.logger.Error("Failed to marshal event", logger.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.messages <- data:
		default:
			// slow dashboard, drop rather than stall the run
			h.logger.Warn("Client message buffer full, skipping",
				logger.String("client_id", client.ID),
				logger.String("event_type", event.Type))
		}
	}
}

// Broadcast queues an event for all interested clients without blocking
func (h *WebSocketHub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			logger.String("event_type", event.Type))
	}
}

// Handler upgrades /ws requests and serves the client until it goes away
func (h *WebSocketHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("WebSocket upgrade failed", logger.Error(err))
			return
		}
		client := &Client{
			ID:       r.RemoteAddr,
			RunID:    r.URL.Query().Get("run"),
			conn:     conn,
			messages: make(chan []byte, clientBuffer),
		}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go h.readPump(client)
		go h.writePump(client)
	})
}

// readPump discards client messages and notices when the peer is gone
func (h *WebSocketHub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued events and keepalive pings
func (h *WebSocketHub) writePump(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.messages:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Event types
const (
	EventDecodeProgress = "decode.progress"
	EventBERPoint       = "ber.point"
	EventRunFinished    = "run.finished"
)

// BroadcastDecodeProgress reports the counters of a running decode
func (h *WebSocketHub) BroadcastDecodeProgress(runID string, blocks, bytesIn, bytesOut uint64) {
	h.Broadcast(Event{
		Type:      EventDecodeProgress,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":    runID,
			"blocks":    blocks,
			"bytes_in":  bytesIn,
			"bytes_out": bytesOut,
		},
	})
}

// BroadcastBERPoint reports one simulated Eb/N0 point
func (h *WebSocketHub) BroadcastBERPoint(runID string, ebn0dB float64, bits, errors uint64, bound float64) {
	ber := 0.0
	if bits > 0 {
		ber = float64(errors) / float64(bits)
	}
	h.Broadcast(Event{
		Type:      EventBERPoint,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":      runID,
			"ebn0_db":     ebn0dB,
			"bits":        bits,
			"errors":      errors,
			"ber":         ber,
			"union_bound": bound,
		},
	})
}

// BroadcastRunFinished reports the end of a run
func (h *WebSocketHub) BroadcastRunFinished(runID, kind string, err error) {
	data := map[string]interface{}{
		"run_id": runID,
		"kind":   kind,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	h.Broadcast(Event{
		Type:      EventRunFinished,
		Timestamp: time.Now(),
		Data:      data,
	})
}
