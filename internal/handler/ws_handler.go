/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for validating the session
token, upgrading the HTTP connection to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"livechat/internal/app/user"
	"livechat/internal/pkg/auth/jwt"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/randx"
	"livechat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The session token travels in the token query parameter; browsers cannot set headers on
// the handshake.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get(jwt.QueryTokenKey)
		if tokenString == "" {
			logx.Warn("WebSocket request rejected: Missing token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		payload, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket request rejected: Invalid token", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if !randx.IsValidIdentifier(payload.ID) {
			logx.Warn("WebSocket request rejected: Invalid identity in token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		currentUser := user.User{
			ID:       payload.ID,
			Nickname: payload.Nickname,
			Avatar:   payload.Avatar,
			UserType: payload.UserType,
		}

		logx.Info("Attempting to upgrade connection", "user_id", currentUser.ID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := deps.Hub.Attach(conn, currentUser, time.Unix(payload.ExpiresAt, 0))

		go client.WritePump()

		logx.Info("WebSocket connection established and client registered", "client_id", currentUser.ID, "conn_id", client.ConnID())

		client.ReadPump()
	}
}
