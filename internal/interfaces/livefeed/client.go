package livefeed

import (
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/fplive/fplive/internal/platform/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 16
)

// clientMessage is the only inbound frame the feed understands.
type clientMessage struct {
	Type   string `json:"type"`
	TeamID string `json:"teamId"`
}

// Client is one live WebSocket connection. A connection starts unbound
// and begins receiving updates once it registers a team id.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu          sync.Mutex
	teamID      string
	needInitial bool

	closeOnce sync.Once
	logger    *logging.Logger
}

func newClient(id string, conn *websocket.Conn, hub *Hub, logger *logging.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		logger: logger,
	}
}

func (c *Client) team() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teamID
}

func (c *Client) setTeam(teamID string) {
	c.mu.Lock()
	c.teamID = teamID
	c.needInitial = true
	c.mu.Unlock()
}

// needsInitial reports whether the client is still owed the one-time
// initial snapshot for its team.
func (c *Client) needsInitial() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needInitial
}

func (c *Client) markInitialSent() {
	c.mu.Lock()
	c.needInitial = false
	c.mu.Unlock()
}

// trySend queues a frame without blocking. A full buffer means the
// client is too slow to keep up.
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close shuts the outbound channel exactly once; safe to call from both
// pumps and the hub.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump consumes inbound frames until the connection drops, handling
// register messages and ignoring everything else. Malformed frames never
// close the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected connection close", "connection_id", c.id, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("ignoring malformed frame", "connection_id", c.id, "error", err)
			continue
		}
		if msg.Type != "register" || msg.TeamID == "" {
			c.logger.Debug("ignoring unsupported frame", "connection_id", c.id, "type", msg.Type)
			continue
		}
		c.hub.bind(c, msg.TeamID)
	}
}

// writePump drains the outbound buffer and keeps the connection alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("connection write failed", "connection_id", c.id, "error", err)
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
