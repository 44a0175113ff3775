package webchat

import (
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/travel-agent/pkg/agentcard"
	"github.com/go-go-golems/travel-agent/pkg/telemetry"
)

// RouterOption configures optional dependencies for a Router.
type RouterOption func(*Router) error

func WithServiceName(name string) RouterOption {
	return func(r *Router) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("service name is empty")
		}
		r.serviceName = name
		return nil
	}
}

// WithAgentCard sets the descriptor served at /agent-card. Without it the
// endpoint answers with an error payload.
func WithAgentCard(card *agentcard.Card) RouterOption {
	return func(r *Router) error {
		if card == nil {
			return errors.New("agent card is nil")
		}
		r.card = card
		return nil
	}
}

func WithProber(p Prober) RouterOption {
	return func(r *Router) error {
		if p == nil {
			return errors.New("prober is nil")
		}
		r.prober = p
		return nil
	}
}

func WithWebSocketUpgrader(u websocket.Upgrader) RouterOption {
	return func(r *Router) error {
		r.upgrader = u
		return nil
	}
}

func WithMetrics(m *telemetry.Metrics) RouterOption {
	return func(r *Router) error {
		r.metrics = m
		return nil
	}
}

// WithAccessLog writes one line per request to logger in addition to the debug request log.
func WithAccessLog(logger zerolog.Logger) RouterOption {
	return func(r *Router) error {
		r.accessLog = &logger
		return nil
	}
}

// WithReplyTopic overrides the topic carrying streamed reply frames.
func WithReplyTopic(topic string) RouterOption {
	return func(r *Router) error {
		if strings.TrimSpace(topic) == "" {
			return errors.New("reply topic is empty")
		}
		r.topic = topic
		return nil
	}
}

// WithIdleTimeout forgets a session's sockets this long after its last websocket left.
func WithIdleTimeout(d time.Duration) RouterOption {
	return func(r *Router) error {
		r.idleTimeout = d
		return nil
	}
}

// WithDebugRoutesEnabled toggles registration of /api/debug/* endpoints.
func WithDebugRoutesEnabled(enabled bool) RouterOption {
	return func(r *Router) error {
		r.enableDebugRoutes = enabled
		return nil
	}
}

// WithSocketLimits bounds how many frames a websocket may have queued and how
// long one write may take before the socket is dropped.
func WithSocketLimits(queue int, writeTimeout time.Duration) RouterOption {
	return func(r *Router) error {
		if queue < 0 || writeTimeout < 0 {
			return errors.New("socket limits must not be negative")
		}
		r.socketLimits = socketLimits{queue: queue, writeTimeout: writeTimeout}
		return nil
	}
}
