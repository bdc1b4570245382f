package realtime

import (
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var event Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func TestHubWelcomesClients(t *testing.T) {
	hub := NewHub("")
	conn := dialHub(t, hub)

	if event := readEvent(t, conn); event.Type != "connected" {
		t.Errorf("first event = %q, want connected", event.Type)
	}
}

func TestHubAnswersPingAndStatus(t *testing.T) {
	hub := NewHub("")
	conn := dialHub(t, hub)
	readEvent(t, conn)

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if event := readEvent(t, conn); event.Type != "pong" {
		t.Errorf("got %q, want pong", event.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": "getStatus"}); err != nil {
		t.Fatalf("write getStatus: %v", err)
	}
	event := readEvent(t, conn)
	if event.Type != "status" {
		t.Errorf("got %q, want status", event.Type)
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub("")
	conn := dialHub(t, hub)
	readEvent(t, conn)

	// Wait for the hub to register the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast("request_created", map[string]any{"id": 42})
	event := readEvent(t, conn)
	if event.Type != "request_created" {
		t.Errorf("got %q, want request_created", event.Type)
	}
	if event.Timestamp.IsZero() {
		t.Error("broadcast should stamp the event")
	}
}

func TestHubReleasesPingLoopOnDisconnect(t *testing.T) {
	hub := NewHub("")
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.Close()
	}

	// Give the handlers time to notice the closes and unwind.
	deadline := time.Now().Add(3 * time.Second)
	after := runtime.NumGoroutine()
	for time.Now().Before(deadline) {
		after = runtime.NumGoroutine()
		if hub.ClientCount() == 0 && after <= before+5 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("client count = %d after all disconnects, want 0", count)
	}
	if after > before+5 {
		t.Errorf("goroutines before = %d, after = %d; per-connection loops did not exit", before, after)
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub("http://app.local")
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := map[string][]string{"Origin": {"http://evil.local"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("expected dial to fail for foreign origin")
	}
}
