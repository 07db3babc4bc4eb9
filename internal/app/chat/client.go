/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the websocket Client, the transport side of a connection:
read/write pumps with ping/pong heartbeats, the outbound send queue, and
the Conn implementation the hub and session coordinate through.
*/
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
)

const (
	// timeout for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong from the client.
	pongWait = 60 * time.Second

	// frequency of server Ping messages.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a client message.
	maxMessageSize = 8192

	// wsCloseCodeSessionReplaced is a custom close code (4000-4999 range)
	// signalling that a newer connection superseded this one.
	wsCloseCodeSessionReplaced = 4001
)

// Client is an active websocket connection.
type Client struct {
	conn *websocket.Conn

	userID   string
	socketID string

	// send queues outbound frames; a full queue drops the frame rather
	// than blocking the emitting goroutine.
	send chan []byte

	logger zerolog.Logger
}

// NewClient wraps an upgraded websocket connection for the given user.
// Each connection gets its own socket id.
func NewClient(conn *websocket.Conn, userID string) *Client {
	socketID := uuid.NewString()

	return &Client{
		conn:     conn,
		userID:   userID,
		socketID: socketID,
		send:     make(chan []byte, 256),
		logger: logx.Logger().With().
			Str("component", "Client").
			Str("user_id", userID).
			Str("socket_id", socketID).
			Logger(),
	}
}

// UserID returns the stable opaque user id supplied at connect time.
func (c *Client) UserID() string {
	return c.userID
}

// SocketID identifies this particular connection.
func (c *Client) SocketID() string {
	return c.socketID
}

// SendEvent queues a server event for delivery without blocking.
func (c *Client) SendEvent(ev ServerEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event", ev.Event).Msg("Error marshaling event for client.")
		return
	}

	select {
	case c.send <- raw:
	default:
		c.logger.Warn().Str("event", ev.Event).Msg("Client send queue full, dropping event.")
	}
}

// Kick closes the connection because a newer one superseded it. The read
// pump then unwinds and the stale disconnect is ignored by the hub.
func (c *Client) Kick(reason string) {
	closeMsg := websocket.FormatCloseMessage(wsCloseCodeSessionReplaced, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Writing kick close frame failed.")
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Closing kicked connection failed.")
	}
}

// Run drives the connection: it starts the write pump, runs the session's
// connect path, and then blocks reading client events until the connection
// drops, at which point the session is torn down.
func (c *Client) Run(sess *Session) {
	go c.writePump()

	sess.HandleConnect(context.Background())
	c.readPump(sess)
}

// readPump reads client events and dispatches them into the session.
// Handlers never crash the pump; a bad event is logged and skipped.
func (c *Client) readPump(sess *Session) {
	defer func() {
		sess.HandleDisconnect(context.Background())
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close on read pump exit.")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline.")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Unexpected connection close.")
			}
			return
		}

		sess.Dispatch(context.Background(), raw)
	}
}

// writePump drains the send queue onto the wire and keeps the heartbeat
// alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close on write pump exit.")
		}
	}()

	for {
		select {
		case raw, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline.")
				return
			}

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing message.")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping.")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
