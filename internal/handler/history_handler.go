/*
Package handler provides the HTTP handlers and routing for the ConnectMatch
server.

This file contains the REST endpoint that exposes a room's retained message
log, the shared-log view without any per-user filtering.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"connectmatch/internal/pkg/logx"
	"connectmatch/internal/pkg/resp"
)

// HandleRoomHistory serves the bounded message log of one room.
func HandleRoomHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			resp.RespondError(w, r, http.StatusBadRequest, "roomID is required")
			return
		}

		messages, err := deps.Chat.History.History(r.Context(), roomID)
		if err != nil {
			logx.Error(err, "Reading room history failed", "room_id", roomID)
			resp.RespondError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomID":   roomID,
			"messages": messages,
		})
	}
}
