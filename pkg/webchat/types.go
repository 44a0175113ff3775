package webchat

import (
	"github.com/go-go-golems/travel-agent/pkg/agent"
)

const (
	FrameTypeHello = "hello"
	FrameTypePong  = "pong"
	FrameTypeReply = "reply"
	FrameTypeError = "error"

	// DefaultReplyTopic carries streamed reply frames for all sessions.
	DefaultReplyTopic = "travel-agent.replies"

	metadataSessionID = "session_id"
	metadataRunID     = "run_id"
)

// ChatRequest is the body of /api/chat/message and /api/chat/stream.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatResponse flattens the reply next to the session id.
type ChatResponse struct {
	agent.Reply
	SessionID string `json:"sessionId"`
}

type StreamStarted struct {
	SessionID string `json:"sessionId"`
	RunID     string `json:"runId"`
}

// Frame is a websocket payload. Reply is only set for reply frames.
type Frame struct {
	Type       string       `json:"type"`
	SessionID  string       `json:"sessionId"`
	RunID      string       `json:"runId,omitempty"`
	Seq        int          `json:"seq,omitempty"`
	Reply      *agent.Reply `json:"reply,omitempty"`
	Error      string       `json:"error,omitempty"`
	ServerTime int64        `json:"serverTime,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type authTestResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
	Endpoint   string `json:"endpoint"`
	Deployment string `json:"deployment"`
}
