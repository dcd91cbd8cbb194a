package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taskboard.com/taskboard/internal/events"
	"taskboard.com/taskboard/internal/push"
)

const (
	pingInterval = 25 * time.Second
	pingTimeout  = 20 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 16
)

// SocketHub serves the Socket.IO websocket endpoint and broadcasts task
// events to every connected client. Only the websocket transport is served.
type SocketHub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pingTimeout  time.Duration

	mu      sync.RWMutex
	clients map[string]*socketClient
	closed  bool
}

type socketClient struct {
	sid       string
	conn      *websocket.Conn
	send      chan []byte
	connected bool
	closeOnce sync.Once
}

func NewSocketHub() *SocketHub {
	return &SocketHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		clients:      make(map[string]*socketClient),
	}
}

func (h *SocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, `{"message":"only the websocket transport is supported"}`, http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("socket upgrade failed: %v", err)
		return
	}

	client := &socketClient{
		sid:  uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	open, _ := json.Marshal(map[string]interface{}{
		"sid":          client.sid,
		"upgrades":     []string{},
		"pingInterval": h.pingInterval.Milliseconds(),
		"pingTimeout":  h.pingTimeout.Milliseconds(),
		"maxPayload":   1000000,
	})
	client.send <- append([]byte("0"), open...)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.sid] = client
	h.mu.Unlock()
	log.Printf("socket %s connected from %s", client.sid, r.RemoteAddr)

	go h.writePump(client)
	h.readPump(client)
}

// Publish sends the event to every client that joined the default
// namespace. Clients whose buffer is full miss the event.
func (h *SocketHub) Publish(ctx context.Context, event events.Event) error {
	var payload interface{}
	if len(event.Payload) > 0 {
		payload = json.RawMessage(event.Payload)
	}
	frame, err := push.EncodeEvent(event.Name, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Name, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return events.ErrPublisherClosed
	}
	for _, client := range h.clients {
		if !client.connected {
			continue
		}
		select {
		case client.send <- frame:
		default:
			log.Printf("socket %s is slow, dropping %s", client.sid, event.Name)
		}
	}
	return nil
}

// Clients returns the number of open sockets.
func (h *SocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Later publishes fail with
// events.ErrPublisherClosed.
func (h *SocketHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*socketClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *SocketHub) readPump(client *socketClient) {
	defer h.unregister(client)

	deadline := h.pingInterval + h.pingTimeout
	client.conn.SetReadDeadline(time.Now().Add(deadline))
	for {
		_, msg, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(deadline))
		switch {
		case len(msg) >= 2 && msg[0] == '4' && msg[1] == '0':
			ack, _ := json.Marshal(map[string]string{"sid": uuid.NewString()})
			h.mu.Lock()
			client.connected = true
			h.mu.Unlock()
			h.enqueue(client, append([]byte("40"), ack...))
		case len(msg) >= 2 && msg[0] == '4' && msg[1] == '1':
			return
		case len(msg) == 1 && msg[0] == '1':
			return
		}
	}
}

func (h *SocketHub) writePump(client *socketClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, []byte("2")); err != nil {
				return
			}
		}
	}
}

func (h *SocketHub) enqueue(client *socketClient, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.sid]; !ok {
		return
	}
	select {
	case client.send <- msg:
	default:
	}
}

func (h *SocketHub) unregister(client *socketClient) {
	h.mu.Lock()
	delete(h.clients, client.sid)
	h.mu.Unlock()
	client.closeOnce.Do(func() { close(client.send) })
	log.Printf("socket %s disconnected", client.sid)
}
