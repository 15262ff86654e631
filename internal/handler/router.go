/*
Package handler provides the HTTP handlers and routing setup for the chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
metrics and IP-based rate limiting before delegating requests to specific handlers
(API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"livechat/internal/pkg/auth/jwt"
	"livechat/internal/pkg/limiter"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/resp"
)

const (
	SendRate   = 1
	SendBurst  = 5
	JoinRate   = 0.2
	JoinBurst  = 5
	healthWait = 2 * time.Second
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	sendLimiter := limiter.NewIPRateLimiter(rate.Limit(SendRate), SendBurst)
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	r.Get("/health", HandleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/rooms/{roomID}", func(room chi.Router) {
			// Senders without identity get an alert-backed unauthorized error from the composer.
			room.With(sendLimiter.Middleware).Post("/messages", HandleSendPublic(deps))

			room.Group(func(quote chi.Router) {
				quote.Use(jwt.RequireIdentity)
				quote.Put("/quote", HandleSetQuote(deps))
				quote.Delete("/quote", HandleClearQuote(deps))
			})
		})

		api.Route("/private", func(private chi.Router) {
			private.Use(jwt.RequireIdentity)
			private.With(sendLimiter.Middleware).Post("/{peerID}/messages", HandleSendPrivate(deps))
			private.Get("/contacts", HandleContacts(deps))
		})

		api.Route("/users", func(users chi.Router) {
			users.Get("/", HandleListUsers(deps))

			users.Group(func(me chi.Router) {
				me.Use(jwt.RequireIdentity)
				me.Patch("/me", HandleUpdateProfile(deps))
				me.Post("/me/avatar/presign", HandlePresignImage(deps))
				me.Post("/{userID}/level", HandleSetLevel(deps))
			})

			users.Get("/{userID}", HandleGetUser(deps))
		})
	})

	r.With(joinLimiter.Middleware).Get("/ws", HandleWebSocket(deps, wsUpgrader))

	return r
}

// HandleHealth reports liveness together with the document store status.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthWait)
		defer cancel()

		data := map[string]string{
			"status":  "ok",
			"service": "livechat",
			"store":   "ok",
			"backend": deps.Config.DocstoreBackend,
		}

		if err := deps.Store.Ping(ctx); err != nil {
			logx.Warn("Health check: document store unreachable", "error", err.Error())
			data["status"] = "degraded"
			data["store"] = "unreachable"
			resp.RespondStatus(w, r, http.StatusServiceUnavailable, "degraded", data)
			return
		}

		resp.RespondSuccess(w, r, data)
	}
}
