/*
Package live connects browser sessions to feeds over WebSocket.

This file defines the Client struct, representing an active WebSocket
connection. It runs the read and write loops, turns subscribe commands into
feeds whose views stream back as frames, and refreshes the session token
before it expires.
*/
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livechat/internal/app/feed"
	"livechat/internal/app/user"
	"livechat/internal/app/view"
	"livechat/internal/pkg/auth/jwt"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a command sent by the client.
	maxMessageSize = 4096

	// sendBuffer is the number of frames queued per connection.
	sendBuffer = 256

	// WsCloseCodeSessionKicked is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that the session was replaced by a new connection.
	WsCloseCodeSessionKicked = 4001

	// TokenRefreshWindow defines how much time before the token expires we should attempt to refresh it.
	TokenRefreshWindow = 2 * time.Minute
)

// Client represents an active WebSocket connection and its associated user.
type Client struct {
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// connID distinguishes connections of the same user.
	connID string

	user user.User

	// tokenExpiry records the expiration time of the current JWT used by the client.
	tokenExpiry time.Time

	// ctx scopes subscriptions; it is cancelled when the connection ends.
	ctx    context.Context
	cancel context.CancelFunc

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// mu guards closed and subs; frames from in-flight feed batches may race
	// the close or a resubscription.
	mu     sync.Mutex
	closed bool

	// subs holds the current subscription number of each scope. Views of
	// replaced or dropped subscriptions no longer match and are muted.
	subs map[feed.Scope]uint64
	seq  uint64

	logger zerolog.Logger
}

// newClient constructs a Client for conn owned by hub.
func newClient(hub *Hub, conn *websocket.Conn, u user.User, expiry time.Time) *Client {
	connID := randx.ConnectionID()
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		hub:         hub,
		conn:        conn,
		connID:      connID,
		user:        u,
		tokenExpiry: expiry,
		ctx:         ctx,
		cancel:      cancel,
		send:        make(chan []byte, sendBuffer),
		subs:        make(map[feed.Scope]uint64),
		logger: logx.Component("live").With().
			Str("client_id", u.ID).
			Str("conn_id", connID).
			Logger(),
	}
}

// ConnID returns the connection identifier.
func (c *Client) ConnID() string {
	return c.connID
}

// User returns the session identity of the connection.
func (c *Client) User() user.User {
	return c.user
}

// feedKey is the feed manager target of scope on this connection.
func (c *Client) feedKey(scope feed.Scope) string {
	return c.connID + "/" + string(scope)
}

// ReadPump handles reading commands from the WebSocket connection.
// It handles heartbeats (Pong), command parsing, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processCommand(messageBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processCommand handles raw command bytes received from the client.
func (c *Client) processCommand(messageBytes []byte) {
	var cmd Command
	if err := json.Unmarshal(messageBytes, &cmd); err != nil {
		c.logger.Warn().Err(err).
			Bytes("message_bytes", messageBytes).
			Msg("Client sent invalid JSON")
		c.SendError(errs.Wrap(errs.ErrInvalidJSONFormat, err))
		return
	}

	switch cmd.Type {
	case CmdSubscribeRoom:
		if !randx.IsValidIdentifier(cmd.RoomID) {
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.subscribe(feed.ScopeRoom, func(sink view.Sink) *feed.Feed {
			return feed.NewRoomFeed(c.hub.store, c.hub.resolver, sink, cmd.RoomID, c.hub.debounce)
		})

	case CmdSubscribePrivate:
		if !randx.IsValidIdentifier(cmd.PeerID) || cmd.PeerID == c.user.ID {
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.subscribe(feed.ScopePrivate, func(sink view.Sink) *feed.Feed {
			return feed.NewPrivateFeed(c.hub.store, sink, c.user.ID, cmd.PeerID)
		})

	case CmdUnsubscribe:
		if cmd.Target != feed.ScopeRoom && cmd.Target != feed.ScopePrivate {
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.retire(cmd.Target)
		c.hub.feeds.Close(c.feedKey(cmd.Target))

	default:
		c.logger.Warn().Str("cmd_type", cmd.Type).Msg("Client sent unsupported command type")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
	}
}

// subscribe replaces the feed of scope with a new one rendering into a fresh
// list. Mutations of the list stream to the browser as frames tagged with the
// subscription number; a replaced feed finishing its last batch stays silent.
func (c *Client) subscribe(scope feed.Scope, build func(view.Sink) *feed.Feed) {
	sub := c.claim(scope)
	list := view.NewList(c.hub.visibleRows, func(op view.Op) {
		c.sendOp(scope, sub, op)
	})

	if err := c.hub.feeds.Open(c.ctx, c.feedKey(scope), build(list)); err != nil {
		c.logger.Warn().Err(err).Str("scope", string(scope)).Msg("Subscription failed")
		c.SendError(err)
	}
}

// claim makes a new subscription number current for scope.
func (c *Client) claim(scope feed.Scope) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.subs[scope] = c.seq
	return c.seq
}

// retire mutes whatever subscription is current for scope.
func (c *Client) retire(scope feed.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.subs, scope)
}

// closeFeeds drops every feed of the connection.
func (c *Client) closeFeeds() {
	c.hub.feeds.Close(c.feedKey(feed.ScopeRoom))
	c.hub.feeds.Close(c.feedKey(feed.ScopePrivate))
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

			c.checkAndRefreshToken()
		}
	}
}

// writeQueuedMessage handles frames pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// checkAndRefreshToken checks if the current JWT is close to expiry and sends a new one if necessary.
func (c *Client) checkAndRefreshToken() {
	if c.hub.jwtSecret == "" || c.tokenExpiry.IsZero() {
		return
	}
	if time.Now().Before(c.tokenExpiry.Add(-TokenRefreshWindow)) {
		return
	}

	c.logger.Info().
		Time("current_expiry", c.tokenExpiry).
		Dur("refresh_window", TokenRefreshWindow).
		Msg("JWT token is nearing expiry, attempting refresh.")

	payload := &jwt.Payload{
		ID:       c.user.ID,
		Nickname: c.user.Nickname,
		Avatar:   c.user.Avatar,
		UserType: c.user.UserType,
	}

	tokenString, err := jwt.GenerateToken(payload, c.hub.jwtSecret, jwt.SessionExpiration)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate new token. Aborting refresh.")
		return
	}

	if !c.sendFrame(Frame{Type: FrameTokenUpdate, Token: tokenString}) {
		c.logger.Error().Msg("Failed to send token update to client.")
		return
	}

	c.tokenExpiry = time.Now().Add(jwt.SessionExpiration)
}

// sendOp forwards a view mutation of subscription sub. Mutations of a
// subscription that is no longer current for scope are dropped.
func (c *Client) sendOp(scope feed.Scope, sub uint64, op view.Op) bool {
	f := opFrame(scope, sub, op)
	return c.queue(f, func() bool { return c.subs[scope] == sub })
}

// sendFrame marshals f and queues it without blocking. It reports whether
// the frame was queued.
func (c *Client) sendFrame(f Frame) bool {
	return c.queue(f, nil)
}

// queue marshals f and enqueues it without blocking. It reports whether the
// frame was queued; current, when set, is checked under mu.
func (c *Client) queue(f Frame, current func() bool) bool {
	messageBytes, err := json.Marshal(f)
	if err != nil {
		c.logger.Error().Err(err).Str("frame_type", f.Type).Msg("Error marshaling frame for client")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if current != nil && !current() {
		return false
	}

	select {
	case c.send <- messageBytes:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Str("frame_type", f.Type).Msg("Client send channel full, dropping frame")
		return false
	}
}

// SendAlert queues a user-visible alert.
func (c *Client) SendAlert(message string) {
	c.sendFrame(Frame{Type: FrameAlert, Message: message})
}

// SendError queues an error frame built from err.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	c.sendFrame(Frame{Type: FrameError, Code: code, Message: message})
}

// closeSend stops frame delivery and lets WritePump send the close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Kick closes the client's connection with a custom WebSocket Close Frame
// (Code 4001) indicating that the session was replaced.
func (c *Client) Kick(reason string) {
	c.logger.Warn().
		Int("close_code", WsCloseCodeSessionKicked).
		Str("reason", reason).
		Msg("Sending WS Kick message and closing connection.")

	closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionKicked, reason)

	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send WS 4001 Close Message.")
	}

	c.cancel()
	c.closeFeeds()
	c.closeSend()
}
