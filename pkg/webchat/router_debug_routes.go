package webchat

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

func (r *Router) registerDebugAPIHandlers(mux *http.ServeMux) {
	logger := log.With().Str("component", "webchat").Logger()

	mux.HandleFunc("/api/debug/sessions", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		type sessionSummary struct {
			SessionID     string `json:"sessionId"`
			Turns         int    `json:"turns"`
			ActiveSockets int    `json:"activeSockets"`
		}
		responder := r.chatService.Responder()
		ids, err := responder.Sessions(req.Context())
		if err != nil {
			logger.Error().Err(err).Msg("list sessions failed")
			writeError(w, http.StatusInternalServerError, "internal", "list sessions failed")
			return
		}
		items := make([]sessionSummary, 0, len(ids))
		for _, id := range ids {
			turns, err := responder.Transcript(req.Context(), id)
			if err != nil {
				logger.Error().Err(err).Str("session_id", id).Msg("read transcript failed")
				writeError(w, http.StatusInternalServerError, "internal", "read transcript failed")
				return
			}
			items = append(items, sessionSummary{SessionID: id, Turns: len(turns), ActiveSockets: r.streamHub.Connections(id)})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})

	mux.HandleFunc("/api/debug/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := req.PathValue("id")
		if strings.TrimSpace(id) == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}
		turns, err := r.chatService.Responder().Transcript(req.Context(), id)
		if err != nil {
			logger.Error().Err(err).Str("session_id", id).Msg("read transcript failed")
			writeError(w, http.StatusInternalServerError, "internal", "read transcript failed")
			return
		}
		if len(turns) == 0 {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "turns": turns})
	})
}
