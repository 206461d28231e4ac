package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/gorilla/websocket"
)

func TestWebSocketHub_New(t *testing.T) {
	log := logger.New(logger.Config{Level: "info"})
	hub := NewWebSocketHub(log)

	if hub == nil {
		t.Fatal("NewWebSocketHub returned nil")
	}
}

func TestWebSocketHub_Run(t *testing.T) {
	log := logger.New(logger.Config{Level: "info"})
	hub := NewWebSocketHub(log)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	// Start hub in goroutine
	go hub.Run(ctx)

	// Wait for hub to start
	time.Sleep(50 * time.Millisecond)

	// Cancel context to stop hub
	cancel()

	// Wait a bit for hub to stop
	time.Sleep(50 * time.Millisecond)
}

func TestWebSocketHub_Broadcast(t *testing.T) {
	log := logger.New(logger.Config{Level: "info"})
	hub := NewWebSocketHub(log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Start hub
	go hub.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast should not panic even with no clients
	hub.BroadcastDecodeProgress("run-1", 1, 1504, 188)

	// Give time for broadcast to process
	time.Sleep(50 * time.Millisecond)
}

func TestWebSocketHandler_ReceivesEvents(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	hub := NewWebSocketHub(log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastBERPoint("sim-1", 4, 100000, 2, 1.8e-5)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if ev.Type != EventBERPoint {
		t.Errorf("Expected %s event, got %s", EventBERPoint, ev.Type)
	}
	if ev.Data["run_id"] != "sim-1" || ev.Data["ber"] != 2e-5 {
		t.Errorf("Unexpected event data %v", ev.Data)
	}
}

func TestEvent_Marshal(t *testing.T) {
	event := Event{
		Type:      EventDecodeProgress,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id": "run-7",
			"blocks": 12,
		},
	}

	data, err := event.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	if len(data) == 0 {
		t.Error("Marshaled data is empty")
	}

	// Should contain the type
	if !strings.Contains(string(data), EventDecodeProgress) {
		t.Error("Marshaled data doesn't contain event type")
	}
}

func TestBroadcastRunFinished_IncludesError(t *testing.T) {
	hub := NewWebSocketHub(logger.New(logger.Config{Level: "error"}))

	hub.BroadcastRunFinished("run-9", "decode", errors.New("short read"))

	select {
	case ev := <-hub.broadcast:
		if ev.Type != EventRunFinished || ev.Data["error"] != "short read" {
			t.Errorf("Unexpected event %+v", ev)
		}
	default:
		t.Fatal("Expected event queued on broadcast channel")
	}
}

func TestWebSocketHandler_RunFilter(t *testing.T) {
	hub := NewWebSocketHub(logger.New(logger.Config{Level: "error"}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"?run=wanted", nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastDecodeProgress("other", 1, 1, 1)
	hub.BroadcastDecodeProgress("wanted", 2, 2, 2)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if ev.Data["run_id"] != "wanted" {
		t.Errorf("Expected only the subscribed run, got %v", ev.Data)
	}
}

func TestClient_Wants(t *testing.T) {
	ev := Event{Type: EventRunFinished, Data: map[string]interface{}{"run_id": "a"}}
	tests := []struct {
		run  string
		want bool
	}{
		{"", true},
		{"a", true},
		{"b", false},
	}
	for _, tt := range tests {
		c := &Client{RunID: tt.run}
		if got := c.wants(ev); got != tt.want {
			t.Errorf("Client{RunID: %q}.wants = %v, want %v", tt.run, got, tt.want)
		}
	}
}
