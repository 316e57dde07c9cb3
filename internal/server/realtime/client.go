package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client events the channel relays.
const (
	EventAreaCreated    = "area:created"
	EventAreaUpdated    = "area:updated"
	EventAreaDeleted    = "area:deleted"
	EventProfileUpdated = "profile:updated"
)

// Client is one authenticated websocket connection.
type Client struct {
	id     string
	user   models.TokenPayload
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, user models.TokenPayload, logger logging.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		user:   user,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: logger,
	}
}

func (c *Client) initialRooms() []string {
	rooms := []string{UserRoom(c.user.UserID)}
	if c.user.IsAdmin {
		rooms = append(rooms, AdminRoom)
	}
	return rooms
}

// ReadPump reads client events until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn(context.Background(), "websocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn(context.Background(), "invalid message format", "client_id", c.id, "error", err)
			continue
		}
		msg.Timestamp = time.Now()

		c.handleMessage(&msg)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn(context.Background(), "websocket write error", "client_id", c.id, "error", err)
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

func (c *Client) handleMessage(msg *Message) {
	ctx := context.Background()

	switch msg.Event {
	case EventAreaCreated, EventAreaUpdated, EventAreaDeleted:
		// Everyone but the sender.
		if err := c.hub.publish(envelope{exclude: c}, msg); err != nil {
			c.logger.Error(ctx, "publish failed", "event", msg.Event, "error", err)
		}

	case EventProfileUpdated:
		var profile struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(msg.Data, &profile); err != nil || profile.ID == "" {
			c.logger.Warn(ctx, "profile event without id", "client_id", c.id)
			return
		}
		for _, room := range []string{AdminRoom, UserRoom(profile.ID)} {
			if err := c.hub.publish(envelope{room: room}, msg); err != nil {
				c.logger.Error(ctx, "publish failed", "event", msg.Event, "error", err)
			}
		}

	default:
		c.logger.Debug(ctx, "ignoring event", "client_id", c.id, "event", msg.Event)
	}
}
