package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/services"
)

const (
	broadcastBuffer = 1024
	clientBuffer    = 256
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // live boards are served from LAN addresses
	},
}

// SnapshotSource provides the live state sent to newly connected boards.
type SnapshotSource interface {
	Snapshots() []event.Snapshot
}

// Hub maintains the set of active clients and broadcasts messages to the clients.
// It is the display sink for every event, so sending never blocks the caller.
type Hub struct {
	log        logger.Logger
	clients    map[*Client]bool
	broadcast  chan models.WSMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	sourceMu sync.RWMutex
	source   SnapshotSource

	// last time/lap text per event and participant; unchanged lines are not resent
	lapMu    sync.Mutex
	lastLaps map[string]string
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan models.WSMessage
}

var (
	_ event.Display        = (*Hub)(nil)
	_ services.Broadcaster = (*Hub)(nil)
)

// New creates a new Hub instance
func New(log logger.Logger) *Hub {
	return &Hub{
		log:        log.With("component", "hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.WSMessage, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		lastLaps:   make(map[string]string),
	}
}

// SetSnapshotSource sets where connecting clients get their initial event state.
func (h *Hub) SetSnapshotSource(src SnapshotSource) {
	h.sourceMu.Lock()
	h.source = src
	h.sourceMu.Unlock()
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// run handles client registration/unregistration and message broadcasting
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client connected", "total_clients", total)

			go h.sendInitialState(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client disconnected", "total_clients", total)

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, unregister
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

func (h *Hub) sendInitialState(client *Client) {
	h.sourceMu.RLock()
	src := h.source
	h.sourceMu.RUnlock()
	if src == nil {
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.clients[client] {
		return
	}
	for _, snap := range src.Snapshots() {
		select {
		case client.send <- models.WSMessage{Type: models.MsgEventState, Payload: snap}:
		default:
			return
		}
	}
}

// BroadcastMessage queues a message for all connected clients. Messages are dropped
// when the queue is full.
func (h *Hub) BroadcastMessage(msgType string, payload any) {
	select {
	case h.broadcast <- models.WSMessage{Type: msgType, Payload: payload}:
	default:
		h.log.Warn("Broadcast queue full, dropping message", "type", msgType)
	}
}

// ShowTimeAndLap sends a participant's running time and lap.
func (h *Hub) ShowTimeAndLap(eventID, participantID, timeText, lapText string) {
	key := eventID + "/" + participantID
	line := timeText + " " + lapText

	h.lapMu.Lock()
	if h.lastLaps[key] == line {
		h.lapMu.Unlock()
		return
	}
	h.lastLaps[key] = line
	h.lapMu.Unlock()

	h.BroadcastMessage(models.MsgTimeAndLap, models.TimeAndLapPayload{
		EventID:       eventID,
		ParticipantID: participantID,
		Time:          timeText,
		Lap:           lapText,
	})
}

// ShowCountdown sends a countdown or stats banner shown for d.
func (h *Hub) ShowCountdown(eventID, text string, d time.Duration) {
	h.BroadcastMessage(models.MsgCountdown, models.CountdownPayload{
		EventID:    eventID,
		Text:       text,
		DurationMS: d.Milliseconds(),
	})
}

// Hide clears an event's banners.
func (h *Hub) Hide(eventID string) {
	h.lapMu.Lock()
	prefix := eventID + "/"
	for key := range h.lastLaps {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(h.lastLaps, key)
		}
	}
	h.lapMu.Unlock()

	h.BroadcastMessage(models.MsgHide, map[string]string{"event_id": eventID})
}

// ShowState sends an event's state after a transition.
func (h *Hub) ShowState(s event.Snapshot) {
	h.BroadcastMessage(models.MsgEventState, s)
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		// Boards are receive-only.
		var msg models.WSMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.hub.log.Debug("Ignoring client message", "type", msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from clients
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan models.WSMessage, clientBuffer),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
