package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	authWait       = 10 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Authenticator resolves a session token to the user ID it belongs to, per
// spec §4.5's duplex auth handshake.
type Authenticator interface {
	ValidateSession(ctx context.Context, token string) (string, error)
}

// Client is one connected socket session, single-writer per connection via
// the writePump goroutine; readPump only drains control frames and routes
// app-level ones.
type Client struct {
	id     string
	userID string
	hub    *Hub
	svc    *Service
	auth   Authenticator
	conn   *websocket.Conn
	send   chan Message
	logger *slog.Logger
}

// Upgrade accepts a WebSocket handshake. The returned Client is not yet
// associated with a user - the caller must invoke Run, which blocks until
// the client authenticates (or the handshake times out) and then drives
// the connection until it disconnects.
func Upgrade(hub *Hub, svc *Service, auth Authenticator, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		id:     uuid.NewString(),
		hub:    hub,
		svc:    svc,
		auth:   auth,
		conn:   conn,
		send:   make(chan Message, sendBufferSize),
		logger: logger,
	}
	return c, nil
}

// Run blocks the calling goroutine: it waits for the client's authenticate
// frame, registers with the hub and runs the on-connect flush on success,
// then drives the read/write pumps until the connection closes.
func (c *Client) Run(ctx context.Context) {
	defer c.conn.Close()

	if !c.authenticate(ctx) {
		return
	}

	go c.writePump()
	c.readPump()
}

// authenticate waits for the client's first frame, expecting an
// authenticate message, and resolves it to a user ID via the session
// service. It replies auth:success/auth:error over the raw connection
// before the write pump starts; on success the client is registered with
// the hub just before auth:success is written.
func (c *Client) authenticate(ctx context.Context) bool {
	c.conn.SetReadDeadline(time.Now().Add(authWait))
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.logger.Warn("socket auth handshake failed", slog.String("error", err.Error()))
		return false
	}
	if msg.Type != MsgAuthenticate {
		c.writeAuthError("expected authenticate frame")
		return false
	}

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.writeAuthError("malformed authenticate payload")
		return false
	}
	var payload authenticatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.writeAuthError("malformed authenticate payload")
		return false
	}

	userID, err := c.auth.ValidateSession(ctx, payload.SessionToken)
	if err != nil {
		c.writeAuthError("invalid session")
		return false
	}

	c.userID = userID
	c.hub.register <- c

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(Message{Type: MsgAuthSuccess, Payload: authSuccessPayload{UserID: userID}}); err != nil {
		return false
	}

	if c.svc != nil {
		c.svc.Flush(ctx, userID)
	}
	return true
}

func (c *Client) writeAuthError(reason string) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(Message{Type: MsgAuthError, Payload: authErrorPayload{Message: reason}})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("socket read error", slog.String("user_id", c.userID), slog.String("error", err.Error()))
			}
			return
		}
		c.handleClientMessage(msg)
	}
}

// handleClientMessage routes application-level frames. notification:ack and
// notification:markRead are accounting-only from the transport's
// perspective (the worker does not wait on them, spec §4.5) so there is
// nothing further to persist here beyond the ping/pong keepalive.
func (c *Client) handleClientMessage(msg Message) {
	switch msg.Type {
	case MsgPing:
		select {
		case c.send <- Message{Type: MsgPong}:
		default:
		}
	case MsgNotificationAck, MsgNotificationRead:
		// acknowledged client-side; no server-side state transition required.
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
