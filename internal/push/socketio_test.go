package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"taskboard.com/taskboard/pkg/constants"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantEvent   string
		wantPayload string
		wantErr     bool
	}{
		{"name only", `["task:created"]`, "task:created", "", false},
		{"with payload", `["task:updated",{"id":4}]`, "task:updated", `{"id":4}`, false},
		{"with ack id", `12["task:deleted",{"id":9}]`, "task:deleted", `{"id":9}`, false},
		{"with namespace", `/admin,["task:created",1]`, "task:created", "1", false},
		{"not an array", `{"event":"x"}`, "", "", true},
		{"empty array", `[]`, "", "", true},
		{"garbage before array", `ab["x"]`, "", "", true},
		{"non string name", `[42]`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, payload, err := DecodeEvent([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got event %q", event)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if event != tt.wantEvent || string(payload) != tt.wantPayload {
				t.Errorf("got (%q, %q), want (%q, %q)", event, payload, tt.wantEvent, tt.wantPayload)
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	frame, err := EncodeEvent(constants.EventTaskUpdated, map[string]int64{"id": 3})
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != `42["task:updated",{"id":3}]` {
		t.Errorf("unexpected frame %s", frame)
	}
	event, payload, err := DecodeEvent(frame[2:])
	if err != nil || event != constants.EventTaskUpdated || string(payload) != `{"id":3}` {
		t.Errorf("round trip failed: %q %s %v", event, payload, err)
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:4000", "ws://localhost:4000/socket.io/?EIO=4&transport=websocket", false},
		{"https://tasks.example.com/", "wss://tasks.example.com/socket.io/?EIO=4&transport=websocket", false},
		{"ws://localhost:4000/custom/", "ws://localhost:4000/custom/?EIO=4&transport=websocket", false},
		{"redis://localhost:6379", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SocketURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

// socketServer is a minimal Socket.IO peer: it completes the handshake,
// sends one ping and then the frames it is given.
func socketServer(t *testing.T, frames ...string) (*httptest.Server, <-chan string) {
	t.Helper()
	received := make(chan string, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/socket.io/" || r.URL.Query().Get("transport") != "websocket" {
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`))
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		ws.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"def"}`))
		ws.WriteMessage(websocket.TextMessage, []byte("2"))
		for _, frame := range frames {
			ws.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- string(msg)
		}
	}))
	return srv, received
}

func TestSocketIOTransport_DeliversEvents(t *testing.T) {
	srv, received := socketServer(t,
		`42["task:created",{"id":1}]`,
		`42["task:updated"]`,
	)
	defer srv.Close()

	events := make(chan string, 4)
	m := NewManager(srv.URL)
	defer m.Close()
	m.Rebind(constants.EventTaskCreated, func([]byte) { events <- constants.EventTaskCreated })
	m.Rebind(constants.EventTaskUpdated, func([]byte) { events <- constants.EventTaskUpdated })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.EnsureConnected(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	expectFrame(t, received, "40")
	expectFrame(t, received, "3")
	for _, want := range []string{constants.EventTaskCreated, constants.EventTaskUpdated} {
		select {
		case got := <-events:
			if got != want {
				t.Errorf("got event %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestSocketIOTransport_AnnouncesReconnect(t *testing.T) {
	srv, _ := socketServer(t, "1")
	defer srv.Close()

	reconnected := make(chan struct{}, 4)
	m := NewManager(srv.URL)
	defer m.Close()
	m.Rebind(EventReconnected, func([]byte) { reconnected <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.EnsureConnected(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case <-reconnected:
	case <-time.After(minBackoff + 2*time.Second):
		t.Fatal("expected a reconnect after the server closed the session")
	}
}

func TestSocketIOTransport_ConnectRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`))
		ws.ReadMessage()
		ws.WriteMessage(websocket.TextMessage, []byte(`44{"message":"not allowed"}`))
		ws.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewSocketIOTransport(nil).Dial(ctx, srv.URL, func(string, []byte) {})
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func expectFrame(t *testing.T, received <-chan string, want string) {
	t.Helper()
	select {
	case got := <-received:
		if got != want {
			t.Errorf("got frame %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame %q", want)
	}
}
