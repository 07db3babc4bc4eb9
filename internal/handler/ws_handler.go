/*
Package handler provides the HTTP handlers and routing for the ConnectMatch
server.

This file contains the websocket upgrade handler: rate limiting, user id
validation, the upgrade itself, and the hand-off into the per-connection
session lifecycle.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"connectmatch/internal/app/chat"
	"connectmatch/internal/pkg/limiter"
	"connectmatch/internal/pkg/logx"
	"connectmatch/internal/pkg/resp"
)

// HandleWebSocket creates the HandlerFunc that turns an HTTP request into a
// live chat connection. The transport contract requires a stable user id,
// supplied via the userID query parameter.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		userID := r.URL.Query().Get("userID")
		if userID == "" {
			logx.Warn("WebSocket request rejected: missing userID query parameter")
			resp.RespondError(w, r, http.StatusBadRequest, "userID query parameter is required")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(conn, userID)
		sess := chat.NewSession(deps.Chat, client)

		logx.Info("WebSocket connection established", "user_id", userID, "socket_id", client.SocketID())

		// Blocks on the read pump until the connection drops.
		client.Run(sess)
	}
}
