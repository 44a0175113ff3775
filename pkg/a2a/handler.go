package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/travel-agent/pkg/agent"
	"github.com/go-go-golems/travel-agent/pkg/agentcard"
)

// Responder is the part of *agent.Responder the protocol handler drives.
type Responder interface {
	Respond(ctx context.Context, userInput, sessionID string) (agent.Reply, error)
	RespondStream(ctx context.Context, userInput, sessionID string) iter.Seq2[agent.Reply, error]
}

// Handler answers A2A requests. It expects paths relative to its mount point:
// GET / and GET /.well-known/agent.json return the card, POST / takes JSON-RPC.
// The A2A contextId is the chat session id.
type Handler struct {
	responder Responder
	card      *agentcard.Card
	log       zerolog.Logger
}

func NewHandler(responder Responder, card *agentcard.Card) *Handler {
	return &Handler{
		responder: responder,
		card:      card,
		log:       log.With().Str("component", "a2a").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	switch {
	case req.Method == http.MethodGet && (path == "" || path == "/" ||
		path == "/.well-known/agent.json" || path == "/.well-known/agent-card.json"):
		h.serveCard(w, req)
	case req.Method == http.MethodPost && (path == "" || path == "/"):
		h.serveRPC(w, req)
	case path == "" || path == "/":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, req)
	}
}

func (h *Handler) serveCard(w http.ResponseWriter, req *http.Request) {
	if h.card == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent card not initialized"})
		return
	}
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, h.card.WithBaseURL(scheme+"://"+req.Host))
}

func (h *Handler) serveRPC(w http.ResponseWriter, req *http.Request) {
	var rpc Request
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(&rpc); err != nil {
		writeRPCError(w, nil, CodeParseError, "parse error")
		return
	}
	if rpc.JSONRPC != jsonRPCVersion || strings.TrimSpace(rpc.Method) == "" {
		writeRPCError(w, rpc.ID, CodeInvalidRequest, "invalid request")
		return
	}
	if rpc.Method != MethodSend && rpc.Method != MethodStream {
		writeRPCError(w, rpc.ID, CodeMethodNotFound, "method not found: "+rpc.Method)
		return
	}

	var params MessageSendParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil || !params.Message.hasText() {
		writeRPCError(w, rpc.ID, CodeInvalidParams, "params.message needs at least one text part")
		return
	}
	contextID := params.Message.ContextID
	if strings.TrimSpace(contextID) == "" {
		contextID = uuid.NewString()
	}
	userMsg := params.Message
	userMsg.Kind = "message"
	userMsg.ContextID = contextID
	if userMsg.MessageID == "" {
		userMsg.MessageID = uuid.NewString()
	}
	taskID := uuid.NewString()
	userMsg.TaskID = taskID

	if rpc.Method == MethodSend {
		h.send(req.Context(), w, rpc.ID, taskID, userMsg)
		return
	}
	h.stream(req.Context(), w, rpc.ID, taskID, userMsg)
}

func (h *Handler) send(ctx context.Context, w http.ResponseWriter, id json.RawMessage, taskID string, userMsg Message) {
	reply, err := h.responder.Respond(ctx, userMsg.text(), userMsg.ContextID)
	if err != nil {
		h.log.Error().Err(err).Str("context_id", userMsg.ContextID).Msg("message/send failed")
		writeRPCError(w, id, CodeInternalError, "could not process the message")
		return
	}
	agentMsg := agentMessage(reply.Content, userMsg.ContextID, taskID)
	writeJSON(w, http.StatusOK, Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result: Task{
			Kind:      "task",
			ID:        taskID,
			ContextID: userMsg.ContextID,
			Status:    TaskStatus{State: finalState(reply), Message: &agentMsg, Timestamp: now()},
			History:   []Message{userMsg, agentMsg},
		},
	})
}

// stream writes one SSE event per JSON-RPC response: the submitted task, then a
// status update per emission, the last one final.
func (h *Handler) stream(ctx context.Context, w http.ResponseWriter, id json.RawMessage, taskID string, userMsg Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRPCError(w, id, CodeInternalError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(result any, rpcErr *RPCError) bool {
		b, err := json.Marshal(Response{JSONRPC: jsonRPCVersion, ID: id, Result: result, Error: rpcErr})
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	contextID := userMsg.ContextID
	if !emit(Task{
		Kind:      "task",
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: StateSubmitted, Timestamp: now()},
		History:   []Message{userMsg},
	}, nil) {
		return
	}

	for reply, err := range h.responder.RespondStream(ctx, userMsg.text(), contextID) {
		if err != nil {
			h.log.Warn().Err(err).Str("context_id", contextID).Msg("message/stream interrupted")
			emit(nil, &RPCError{Code: CodeInternalError, Message: "stream interrupted"})
			return
		}
		msg := agentMessage(reply.Content, contextID, taskID)
		state := StateWorking
		if reply.IsTaskComplete {
			state = finalState(reply)
		}
		if !emit(TaskStatusUpdateEvent{
			Kind:      "status-update",
			TaskID:    taskID,
			ContextID: contextID,
			Status:    TaskStatus{State: state, Message: &msg, Timestamp: now()},
			Final:     reply.IsTaskComplete,
		}, nil) {
			return
		}
	}
}

func agentMessage(text, contextID, taskID string) Message {
	return Message{
		Kind:      "message",
		MessageID: uuid.NewString(),
		Role:      "agent",
		Parts:     []Part{{Kind: "text", Text: text}},
		ContextID: contextID,
		TaskID:    taskID,
	}
}

func finalState(r agent.Reply) string {
	if r.RequireUserInput {
		return StateInputRequired
	}
	return StateCompleted
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "a2a").Msg("response write failed")
	}
}

// JSON-RPC errors travel with HTTP 200.
func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	writeJSON(w, http.StatusOK, Response{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: msg}})
}
