// Package realtime is the Session Channel: authenticated websocket clients
// grouped into rooms, with server-side fan-out of change events.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
)

// AdminRoom receives events meant for every connected administrator.
const AdminRoom = "admin-room"

// UserRoom is the personal room every connection of userID joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Message is the wire format in both directions.
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type envelope struct {
	room    string // "" means every client
	exclude *Client
	data    []byte
}

// Hub tracks connected clients and their rooms.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			for _, room := range client.initialRooms() {
				h.joinLocked(client, room)
			}
			h.mu.Unlock()
			h.logger.Info(ctx, "client connected", "client_id", client.id, "user_id", client.user.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			h.logger.Info(ctx, "client disconnected", "client_id", client.id, "user_id", client.user.UserID)

		case env := <-h.broadcast:
			h.deliver(ctx, env)

		case <-ticker.C:
			h.mu.RLock()
			count, roomCount := len(h.clients), len(h.rooms)
			h.mu.RUnlock()
			h.logger.Debug(ctx, "hub stats", "clients", count, "rooms", roomCount)
		}
	}
}

// Emit sends event to everyone in room, or to every client when room is "".
func (h *Hub) Emit(room, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.publish(envelope{room: room}, &Message{Event: event, Data: raw})
}

func (h *Hub) publish(env envelope, msg *Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	env.data = data
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
	return nil
}

// attach hands a new client to Run. It reports false once the hub stopped.
func (h *Hub) attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) deliver(ctx context.Context, env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if env.room != "" {
		targets = h.rooms[env.room]
	}
	for client := range targets {
		if client == env.exclude {
			continue
		}
		select {
		case client.send <- env.data:
		default:
			h.logger.Warn(ctx, "client send buffer full", "client_id", client.id)
		}
	}
}

func (h *Hub) joinLocked(client *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	for room, clients := range h.rooms {
		if clients[client] {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

// Stats reports the number of clients and the size of each room.
func (h *Hub) Stats() (clients int, rooms map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		rooms[room] = len(members)
	}
	return len(h.clients), rooms
}

// EventSessionRevoked tells a user their refresh tokens were revoked.
const EventSessionRevoked = "session:revoked"

// SessionsRevoked notifies every connection of userID.
func (h *Hub) SessionsRevoked(userID string, revoked int64) {
	if err := h.Emit(UserRoom(userID), EventSessionRevoked, map[string]any{"userId": userID, "revoked": revoked}); err != nil {
		h.logger.Warn(context.Background(), "emit failed", "event", EventSessionRevoked, "error", err)
	}
}

// ProfileUpdated sends p to the admins and to p's owner.
func (h *Hub) ProfileUpdated(p *models.Profile) {
	for _, room := range []string{AdminRoom, UserRoom(p.ID)} {
		if err := h.Emit(room, EventProfileUpdated, p); err != nil {
			h.logger.Warn(context.Background(), "emit failed", "event", EventProfileUpdated, "error", err)
		}
	}
}
