package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
)

type staticSnapshots []event.Snapshot

func (s staticSnapshots) Snapshots() []event.Snapshot { return s }

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(server.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) models.WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_CreatesHub(t *testing.T) {
	hub := New(logger.New())

	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Fatal("expected hub channels and client map to be initialized")
	}
	if cap(hub.broadcast) != broadcastBuffer {
		t.Errorf("broadcast buffer = %d", cap(hub.broadcast))
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := New(logger.New())

	// Not started: the queue fills and further messages are dropped.
	done := make(chan bool)
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.BroadcastMessage("test", i)
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastMessage blocked")
	}
	if len(hub.broadcast) != broadcastBuffer {
		t.Errorf("queued %d messages", len(hub.broadcast))
	}
}

func TestHub_DisplayMessages(t *testing.T) {
	hub := New(logger.New())

	hub.ShowCountdown("e1", "Ready", time.Second)
	hub.ShowTimeAndLap("e1", "p1", "00:01", "Lap: 1/2")
	hub.ShowTimeAndLap("e1", "p1", "00:01", "Lap: 1/2")
	hub.ShowTimeAndLap("e1", "p1", "00:02", "Lap: 1/2")
	hub.ShowState(event.Snapshot{ID: "e1", State: event.Forming})
	hub.Hide("e1")
	hub.ShowTimeAndLap("e1", "p1", "00:02", "Lap: 1/2")

	want := []string{
		models.MsgCountdown,
		models.MsgTimeAndLap,
		models.MsgTimeAndLap,
		models.MsgEventState,
		models.MsgHide,
		models.MsgTimeAndLap,
	}
	if len(hub.broadcast) != len(want) {
		t.Fatalf("queued %d messages, want %d", len(hub.broadcast), len(want))
	}
	for i, typ := range want {
		msg := <-hub.broadcast
		if msg.Type != typ {
			t.Errorf("message %d type = %s, want %s", i, msg.Type, typ)
		}
		if i == 0 {
			p := msg.Payload.(models.CountdownPayload)
			if p.Text != "Ready" || p.DurationMS != 1000 || p.EventID != "e1" {
				t.Errorf("unexpected countdown payload %+v", p)
			}
		}
	}
}

func TestServeWs_SendsInitialState(t *testing.T) {
	hub := New(logger.New())
	hub.SetSnapshotSource(staticSnapshots{
		{ID: "e1", Name: "Sunday Trial", State: event.Inactive},
		{ID: "e2", Name: "Harbour Race", State: event.Forming},
	})
	hub.Start()

	ws := dial(t, hub)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg := readMessage(t, ws)
		if msg.Type != models.MsgEventState {
			t.Fatalf("expected event_state, got %s", msg.Type)
		}
		payload := msg.Payload.(map[string]any)
		seen[payload["id"].(string)] = true
	}
	if !seen["e1"] || !seen["e2"] {
		t.Errorf("missing snapshots: %v", seen)
	}
}

func TestServeWs_BroadcastToClients(t *testing.T) {
	hub := New(logger.New())
	hub.Start()

	a := dial(t, hub)
	b := dial(t, hub)
	waitForClients(t, hub, 2)

	hub.ShowCountdown("e1", "Start!", time.Second)

	for _, ws := range []*websocket.Conn{a, b} {
		msg := readMessage(t, ws)
		if msg.Type != models.MsgCountdown {
			t.Errorf("expected countdown, got %s", msg.Type)
		}
		payload := msg.Payload.(map[string]any)
		if payload["text"] != "Start!" {
			t.Errorf("unexpected payload %v", payload)
		}
	}
}

func TestServeWs_ClientDisconnect(t *testing.T) {
	hub := New(logger.New())
	hub.Start()

	ws := dial(t, hub)
	waitForClients(t, hub, 1)

	ws.Close()
	waitForClients(t, hub, 0)
}

func TestServeWs_IgnoresClientMessages(t *testing.T) {
	hub := New(logger.New())
	hub.Start()

	ws := dial(t, hub)
	waitForClients(t, hub, 1)

	if err := ws.WriteJSON(models.WSMessage{Type: "hello"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	hub.BroadcastMessage(models.MsgResult, map[string]string{"id": "r1"})
	if msg := readMessage(t, ws); msg.Type != models.MsgResult {
		t.Errorf("expected result, got %s", msg.Type)
	}
	if hub.ClientCount() != 1 {
		t.Error("client should stay connected")
	}
}

func TestServeWs_UpgradeError(t *testing.T) {
	hub := New(logger.New())
	hub.Start()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	hub.ServeWs(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for plain HTTP request, got %d", rec.Code)
	}
}
