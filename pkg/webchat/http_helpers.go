package webchat

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/travel-agent/pkg/agentcard"
	"github.com/go-go-golems/travel-agent/pkg/upstream"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "webchat").Msg("response write failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func decodeChatRequest(w http.ResponseWriter, req *http.Request) (ChatRequest, error) {
	var in ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	if err := dec.Decode(&in); err != nil {
		return ChatRequest{}, err
	}
	return in, nil
}

func NewHealthHandler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: serviceName})
	}
}

// NewAgentCardHandler serves card. The url field is filled from the request
// host when the card leaves it empty.
func NewAgentCardHandler(card *agentcard.Card) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if card == nil {
			writeJSON(w, http.StatusOK, errorResponse{Error: "agent card not initialized"})
			return
		}
		scheme := "http"
		if req.TLS != nil {
			scheme = "https"
		}
		writeJSON(w, http.StatusOK, card.WithBaseURL(scheme+"://"+req.Host))
	}
}

func NewChatHTTPHandler(svc *ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		in, err := decodeChatRequest(w, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "request body must be JSON with a message field")
			return
		}
		resp, err := svc.SendMessage(req.Context(), in.Message, in.SessionID)
		if err != nil {
			log.Error().Err(err).Str("component", "webchat").Msg("chat message failed")
			writeError(w, http.StatusInternalServerError, "internal", "could not process the message")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewStreamHTTPHandler starts a streamed reply and answers at once with the
// session and run ids. Frames go only to websockets attached to the session
// at publish time; with none attached they are dropped and counted. Clients
// without a websocket should use message/stream on /a2a, which streams the
// reply as server-sent events on the same response.
func NewStreamHTTPHandler(svc *ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		in, err := decodeChatRequest(w, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "request body must be JSON with a message field")
			return
		}
		writeJSON(w, http.StatusAccepted, svc.StartStream(in.Message, in.SessionID))
	}
}

// NewWSHTTPHandler upgrades to a websocket bound to the sessionId query
// parameter (generated when absent) and starts a streaming run per inbound message.
func NewWSHTTPHandler(hub *StreamHub, svc *ChatService, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if hub == nil || svc == nil {
			http.Error(w, "stream service not initialized", http.StatusServiceUnavailable)
			return
		}
		sessionID := ensureSessionID(req.URL.Query().Get("sessionId"))
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		err = hub.AttachWebSocket(sessionID, conn, func(sessionID, text string) {
			svc.StartStream(text, sessionID)
		})
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":"failed to attach websocket"}`))
			_ = conn.Close()
		}
	}
}

// NewAuthTestHandler probes the upstream model. Failure payloads carry the
// error kind and a fixed message, never the underlying error text.
func NewAuthTestHandler(p Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if p == nil {
			writeJSON(w, http.StatusInternalServerError, authTestResponse{
				Error:     upstream.SafeMessage(upstream.KindConfigMissing),
				ErrorType: string(upstream.KindConfigMissing),
			})
			return
		}
		settings := p.Settings()
		res, err := p.Probe(req.Context())
		if err != nil {
			kind := upstream.KindOf(err)
			log.Error().Err(err).Str("component", "webchat").Str("kind", string(kind)).Msg("authentication test failed")
			writeJSON(w, statusForKind(kind), authTestResponse{
				Error:      upstream.SafeMessage(kind),
				ErrorType:  string(kind),
				Endpoint:   settings.Endpoint,
				Deployment: settings.Deployment,
			})
			return
		}
		writeJSON(w, http.StatusOK, authTestResponse{
			Success:    true,
			Message:    "Authentication successful",
			Response:   res.Response,
			Endpoint:   res.Endpoint,
			Deployment: res.Deployment,
		})
	}
}

func statusForKind(kind upstream.Kind) int {
	switch kind {
	case upstream.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
