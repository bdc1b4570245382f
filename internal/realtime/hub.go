// Package realtime pushes request events to connected browsers over a
// websocket channel.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Event is the wire shape for every server-to-client message.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// Hub tracks the connected clients and fans events out to them.
type Hub struct {
	allowedOrigin string

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		allowedOrigin: allowedOrigin,
		clients:       make(map[*websocket.Conn]bool),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the event to every connected client. Failed connections
// are dropped.
func (h *Hub) Broadcast(eventType string, data any) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.drop(conn)
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("realtime: broadcast failed: %v", err)
			h.drop(conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// ServeHTTP upgrades the connection and runs the client read loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if h.allowedOrigin == "" || h.allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == h.allowedOrigin
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer h.drop(conn)

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := conn.WriteJSON(Event{Type: "connected", Timestamp: time.Now().UTC()}); err != nil {
		log.Printf("realtime: welcome failed: %v", err)
		return
	}

	// The ping loop owns its ticker and exits when the read loop returns.
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			break
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("realtime: read failed: %v", err)
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		var reply *Event
		switch msg.Type {
		case "ping":
			reply = &Event{Type: "pong", Timestamp: time.Now().UTC()}
		case "getStatus":
			reply = &Event{Type: "status", Data: map[string]int{"clients": h.ClientCount()}, Timestamp: time.Now().UTC()}
		case "subscribe":
			// All clients receive every event; subscribe is acknowledged only.
			reply = &Event{Type: "subscribed", Timestamp: time.Now().UTC()}
		}
		if reply == nil {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			break
		}
		if err := conn.WriteJSON(reply); err != nil {
			break
		}
	}
}
