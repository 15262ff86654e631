/*
Package live connects browser sessions to feeds over WebSocket.

This file defines the Hub, the registry of connected sessions. It keeps one
connection per user, replacing an older session when the same user connects
again, delivers alerts by user id and owns the feed manager shared by all
connections.
*/
package live

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livechat/internal/app/docstore"
	"livechat/internal/app/feed"
	"livechat/internal/app/user"
	"livechat/internal/app/view"
	"livechat/internal/metrics"
	"livechat/internal/pkg/logx"
)

// Options configures a Hub.
type Options struct {
	// ScrollDebounce delays the scroll check of room feeds.
	ScrollDebounce time.Duration

	// VisibleRows is the number of elements a view shows without scrolling.
	VisibleRows int

	// JWTSecret signs refreshed session tokens. Refresh is disabled when empty.
	JWTSecret string
}

// Hub tracks the connected sessions.
type Hub struct {
	store       docstore.Store
	resolver    *user.Resolver
	feeds       *feed.Manager
	debounce    time.Duration
	visibleRows int
	jwtSecret   string

	// a map of currently connected clients, keyed by their user ID.
	clients map[string]*Client

	// a channel for clients requesting to join.
	register chan *Client

	// a channel for clients requesting to leave.
	unregister chan *Client

	// used to signal the Hub to stop its Run loop.
	stopChan chan struct{}

	// closed once the Run loop returned.
	doneChan chan struct{}

	// mu protects access to the clients map.
	mu sync.RWMutex

	logger zerolog.Logger
}

var _ view.Alerter = (*Hub)(nil)

// NewHub creates a Hub. Run must be started before clients attach.
func NewHub(store docstore.Store, resolver *user.Resolver, opts Options) *Hub {
	if opts.VisibleRows <= 0 {
		opts.VisibleRows = view.DefaultVisibleRows
	}

	return &Hub{
		store:       store,
		resolver:    resolver,
		feeds:       feed.NewManager(),
		debounce:    opts.ScrollDebounce,
		visibleRows: opts.VisibleRows,
		jwtSecret:   opts.JWTSecret,
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		logger:      logx.Component("hub"),
	}
}

// Feeds returns the feed manager of the hub.
func (h *Hub) Feeds() *feed.Manager {
	return h.feeds
}

// Attach wraps conn into a Client and queues its registration. The caller
// runs WritePump and ReadPump.
func (h *Hub) Attach(conn *websocket.Conn, u user.User, expiry time.Time) *Client {
	client := newClient(h, conn, u, expiry)

	select {
	case h.register <- client:
	case <-h.stopChan:
		client.closeSend()
	}

	return client
}

// Unregister queues the removal of client. Unregistering a replaced client
// only releases its own resources.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopChan:
		client.cancel()
		client.closeFeeds()
		client.closeSend()
	}
}

// Client returns the connected client of userID, or nil.
func (h *Hub) Client(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Alert implements view.Alerter by pushing an alert frame to the user's
// connection. Alerts for users without a connection are dropped.
func (h *Hub) Alert(userID, message string) {
	client := h.Client(userID)
	if client == nil {
		h.logger.Debug().Str("client_id", userID).Msg("Dropping alert for disconnected user")
		return
	}
	client.SendAlert(message)
}

// Run handles registration and deregistration until Stop.
func (h *Hub) Run() {
	defer func() {
		h.mu.Lock()
		clients := h.clients
		h.clients = make(map[string]*Client)
		h.mu.Unlock()

		for _, client := range clients {
			client.cancel()
			client.closeSend()
			metrics.WebSocketConnections.Dec()
		}
		h.feeds.Shutdown()

		close(h.doneChan)
		h.logger.Info().Msg("Hub Run loop finished.")
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			existing, ok := h.clients[client.user.ID]
			h.clients[client.user.ID] = client
			total := len(h.clients)
			h.mu.Unlock()

			if ok {
				h.logger.Warn().
					Str("client_id", client.user.ID).
					Msg("Client ID already connected. Closing old connection for replacement.")
				existing.Kick("Session replaced by new connection. Check other tabs.")
			} else {
				metrics.WebSocketConnections.Inc()
			}

			h.logger.Info().
				Str("client_id", client.user.ID).
				Int("total_users", total).
				Msg("Client connected.")

		case client := <-h.unregister:
			client.cancel()
			client.closeFeeds()
			client.closeSend()

			h.mu.Lock()
			current, ok := h.clients[client.user.ID]
			if ok && current == client {
				delete(h.clients, client.user.ID)
				metrics.WebSocketConnections.Dec()
				h.logger.Info().
					Str("client_id", client.user.ID).
					Int("total_users", len(h.clients)).
					Msg("Client disconnected.")
			} else if ok {
				h.logger.Info().
					Str("stale_client_id", client.user.ID).
					Msg("Ignoring unregister for STALE connection.")
			}
			h.mu.Unlock()

		case <-h.stopChan:
			h.logger.Info().Msg("Hub forced stop initiated.")
			return
		}
	}
}

// Stop terminates the Run loop, closes every connection and stops all
// feeds. It blocks until Run returned.
func (h *Hub) Stop() {
	select {
	case <-h.stopChan:
	default:
		close(h.stopChan)
	}
	<-h.doneChan
}
