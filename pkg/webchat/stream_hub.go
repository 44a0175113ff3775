package webchat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/travel-agent/pkg/telemetry"
)

type StreamHubConfig struct {
	Subscriber  message.Subscriber
	Topic       string
	IdleTimeout time.Duration
	// Prepare runs once before subscribing (consumer group creation for Redis).
	Prepare func(ctx context.Context, topic string) error
	// QueueSize and WriteTimeout bound each websocket's backlog; zero picks defaults.
	QueueSize    int
	WriteTimeout time.Duration
	Metrics      *telemetry.Metrics
}

// StreamHub fans reply frames out to the websocket connections of their session.
type StreamHub struct {
	subscriber  message.Subscriber
	topic       string
	idleTimeout time.Duration
	prepare     func(ctx context.Context, topic string) error
	limits      socketLimits
	metrics     *telemetry.Metrics

	mu       sync.Mutex
	sessions map[string]*SessionSockets

	started bool
	done    chan struct{}
}

// MessageHandler receives the chat text of an inbound websocket frame.
type MessageHandler func(sessionID, text string)

func NewStreamHub(cfg StreamHubConfig) (*StreamHub, error) {
	if cfg.Subscriber == nil {
		return nil, errors.New("stream hub subscriber is nil")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultReplyTopic
	}
	return &StreamHub{
		subscriber:  cfg.Subscriber,
		topic:       topic,
		idleTimeout: cfg.IdleTimeout,
		prepare:     cfg.Prepare,
		limits:      socketLimits{queue: cfg.QueueSize, writeTimeout: cfg.WriteTimeout}.withDefaults(),
		metrics:     cfg.Metrics,
		sessions:    map[string]*SessionSockets{},
		done:        make(chan struct{}),
	}, nil
}

// Start subscribes to the reply topic and dispatches frames until ctx ends.
// The subscription is in place when Start returns. Dispatch only queues
// frames, so a stalled websocket never delays the ack of a frame.
func (h *StreamHub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("stream hub already started")
	}
	h.started = true
	h.mu.Unlock()

	if h.prepare != nil {
		if err := h.prepare(ctx, h.topic); err != nil {
			return errors.Wrap(err, "prepare reply topic")
		}
	}
	ch, err := h.subscriber.Subscribe(ctx, h.topic)
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", h.topic)
	}
	go func() {
		defer close(h.done)
		for msg := range ch {
			h.dispatch(msg)
			msg.Ack()
		}
		log.Debug().Str("component", "webchat").Str("topic", h.topic).Msg("stream hub subscription closed")
	}()
	return nil
}

// Done is closed once the subscription channel has been drained.
func (h *StreamHub) Done() <-chan struct{} { return h.done }

func (h *StreamHub) dispatch(msg *message.Message) {
	sessionID := msg.Metadata.Get(metadataSessionID)
	if sessionID == "" {
		log.Warn().Str("component", "webchat").Str("message_uuid", msg.UUID).Msg("reply frame without session id")
		return
	}
	h.mu.Lock()
	sockets := h.sessions[sessionID]
	h.mu.Unlock()
	if sockets.Publish(msg.Payload) == 0 {
		h.metrics.RecordDroppedFrames(msg.Context(), telemetry.DropNoSocket, 1)
	}
}

// Connections reports how many websockets are attached to sessionID.
func (h *StreamHub) Connections(sessionID string) int {
	h.mu.Lock()
	sockets := h.sessions[sessionID]
	h.mu.Unlock()
	return sockets.Len()
}

func (h *StreamHub) addConn(sessionID string, conn wsConn) *SessionSockets {
	h.mu.Lock()
	defer h.mu.Unlock()
	sockets, ok := h.sessions[sessionID]
	if !ok {
		var created *SessionSockets
		created = newSessionSockets(sessionID, h.limits, h.metrics, h.idleTimeout, func() { h.forget(sessionID, created) })
		sockets = created
		h.sessions[sessionID] = sockets
	}
	sockets.Attach(conn)
	return sockets
}

func (h *StreamHub) forget(sessionID string, sockets *SessionSockets) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[sessionID]; ok && cur == sockets && sockets.Len() == 0 {
		delete(h.sessions, sessionID)
		log.Debug().Str("component", "webchat").Str("session_id", sessionID).Msg("forgot idle session sockets")
	}
}

// CloseAll closes every attached websocket.
func (h *StreamHub) CloseAll() {
	h.mu.Lock()
	all := make([]*SessionSockets, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.sessions = map[string]*SessionSockets{}
	h.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

// AttachWebSocket registers conn for sessionID, sends a hello frame and starts
// the read loop. Text frames carrying {"message": ...} are passed to onMessage;
// "ping" (plain or {"type":"ping"}) is answered with a pong frame.
func (h *StreamHub) AttachWebSocket(sessionID string, conn *websocket.Conn, onMessage MessageHandler) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("missing sessionID")
	}
	if conn == nil {
		return errors.New("websocket connection is nil")
	}

	sockets := h.addConn(sessionID, conn)
	wsLog := log.With().
		Str("component", "webchat").
		Str("remote", conn.RemoteAddr().String()).
		Str("session_id", sessionID).
		Logger()
	wsLog.Info().Msg("ws connected")

	if b, err := json.Marshal(Frame{Type: FrameTypeHello, SessionID: sessionID, ServerTime: time.Now().UnixMilli()}); err == nil {
		sockets.SendTo(conn, b)
	}

	go func() {
		defer sockets.Detach(conn)
		defer wsLog.Info().Msg("ws disconnected")
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if msgType != websocket.TextMessage || len(data) == 0 {
				continue
			}
			in, ok := parseInbound(data)
			if !ok {
				wsLog.Debug().Msg("ignoring unrecognized ws frame")
				continue
			}
			if in.ping {
				if b, err := json.Marshal(Frame{Type: FrameTypePong, SessionID: sessionID, ServerTime: time.Now().UnixMilli()}); err == nil {
					sockets.SendTo(conn, b)
				}
				continue
			}
			if onMessage != nil {
				onMessage(sessionID, in.message)
			}
		}
	}()
	return nil
}

type inbound struct {
	ping    bool
	message string
}

func parseInbound(data []byte) (inbound, bool) {
	if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
		return inbound{ping: true}, true
	}
	var v struct {
		Type    string  `json:"type"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return inbound{}, false
	}
	if strings.EqualFold(v.Type, "ping") {
		return inbound{ping: true}, true
	}
	if v.Message == nil {
		return inbound{}, false
	}
	return inbound{message: *v.Message}, true
}
