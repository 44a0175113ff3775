package webchat

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/travel-agent/pkg/a2a"
	"github.com/go-go-golems/travel-agent/pkg/agent"
	"github.com/go-go-golems/travel-agent/pkg/agentcard"
	"github.com/go-go-golems/travel-agent/pkg/redisstream"
	"github.com/go-go-golems/travel-agent/pkg/telemetry"
	"github.com/go-go-golems/travel-agent/pkg/upstream"
)

const DefaultServiceName = "semantic-kernel-travel-agent"

// RouterSettings are exposed via the serve command flags.
type RouterSettings struct {
	Addr               string `glazed:"addr"`
	ServiceName        string `glazed:"service-name"`
	Debug              bool   `glazed:"debug"`
	TranscriptStore    string `glazed:"transcript-store"`
	ThinkingDelayMs    int    `glazed:"thinking-delay-ms"`
	ChunkDelayMs       int    `glazed:"chunk-delay-ms"`
	IdleTimeoutSeconds int    `glazed:"idle-timeout-seconds"`
	AgentCard          string `glazed:"agent-card"`
	PublicURL          string `glazed:"public-url"`
	AccessLog          string `glazed:"access-log"`
	TelemetryDir       string `glazed:"telemetry-dir"`
}

// Prober checks upstream model authentication for /api/test-auth.
type Prober interface {
	Probe(ctx context.Context) (upstream.ProbeResult, error)
	Settings() upstream.Settings
}

// Router wires HTTP endpoints, the chat service and the stream hub.
type Router struct {
	baseCtx   context.Context
	cancel    context.CancelFunc
	mux       *http.ServeMux
	staticFS  fs.FS
	pubsub    *redisstream.PubSub
	responder *agent.Responder

	chatService *ChatService
	streamHub   *StreamHub

	card         *agentcard.Card
	prober       Prober
	metrics      *telemetry.Metrics
	upgrader     websocket.Upgrader
	accessLog    *zerolog.Logger
	serviceName  string
	topic        string
	idleTimeout  time.Duration
	socketLimits socketLimits

	// enableDebugRoutes controls registration of /api/debug/* handlers.
	enableDebugRoutes bool
}

// NewRouter builds the chat service and stream hub over pubsub and registers
// all HTTP handlers. Call Start before serving so streamed replies reach websockets.
func NewRouter(ctx context.Context, responder *agent.Responder, pubsub *redisstream.PubSub, staticFS fs.FS, opts ...RouterOption) (*Router, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if responder == nil {
		return nil, errors.New("responder is nil")
	}
	if pubsub == nil {
		return nil, errors.New("pubsub is nil")
	}
	baseCtx, cancel := context.WithCancel(ctx)
	r := &Router{
		baseCtx:     baseCtx,
		cancel:      cancel,
		mux:         http.NewServeMux(),
		staticFS:    staticFS,
		pubsub:      pubsub,
		responder:   responder,
		serviceName: DefaultServiceName,
		topic:       DefaultReplyTopic,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			cancel()
			return nil, err
		}
	}

	chatService, err := NewChatService(ChatServiceConfig{
		BaseCtx:   baseCtx,
		Responder: responder,
		Publisher: pubsub.Publisher,
		Topic:     r.topic,
		Metrics:   r.metrics,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "new chat service")
	}
	r.chatService = chatService

	hub, err := NewStreamHub(StreamHubConfig{
		Subscriber:   pubsub.Subscriber,
		Topic:        r.topic,
		IdleTimeout:  r.idleTimeout,
		Prepare:      pubsub.Prepare,
		QueueSize:    r.socketLimits.queue,
		WriteTimeout: r.socketLimits.writeTimeout,
		Metrics:      r.metrics,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "new stream hub")
	}
	r.streamHub = hub

	r.registerHTTPHandlers()
	return r, nil
}

// Start subscribes the stream hub to the reply topic.
func (r *Router) Start(ctx context.Context) error {
	return r.streamHub.Start(ctx)
}

// Close cancels running streams and waits for them, then closes websockets
// and the transport.
func (r *Router) Close() error {
	r.cancel()
	r.chatService.Wait()
	r.streamHub.CloseAll()
	return r.pubsub.Close()
}

func (r *Router) ChatService() *ChatService { return r.chatService }

func (r *Router) StreamHub() *StreamHub { return r.streamHub }

// Handler returns the mux wrapped in CORS, request logging and tracing middleware.
func (r *Router) Handler() http.Handler {
	return chainMiddlewares(r.mux,
		withTracing(r.serviceName),
		withRequestLogging(r.accessLog),
		withCORS,
	)
}

// BuildHTTPServer returns an http.Server for addr serving Handler.
func (r *Router) BuildHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (r *Router) registerHTTPHandlers() {
	r.registerUIHandlers(r.mux)
	r.registerAPIHandlers(r.mux)
}

func (r *Router) registerUIHandlers(mux *http.ServeMux) {
	logger := log.With().Str("component", "webchat").Logger()

	if r.staticFS == nil {
		logger.Warn().Msg("static FS not configured; UI handler disabled")
		return
	}

	if staticSub, err := fs.Sub(r.staticFS, "static"); err == nil {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	} else {
		logger.Warn().Err(err).Msg("failed to mount /static/ asset handler")
	}
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := fs.ReadFile(r.staticFS, "static/index.html")
		if err != nil {
			logger.Error().Err(err).Msg("index not found in embedded FS")
			http.Error(w, "index not found", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})
}

func (r *Router) registerAPIHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", NewHealthHandler(r.serviceName))
	mux.HandleFunc("/agent-card", NewAgentCardHandler(r.card))
	mux.HandleFunc("/api/chat/message", NewChatHTTPHandler(r.chatService))
	mux.HandleFunc("/api/chat/stream", NewStreamHTTPHandler(r.chatService))
	mux.HandleFunc("/api/chat/ws", NewWSHTTPHandler(r.streamHub, r.chatService, r.upgrader))
	mux.HandleFunc("/api/test-auth", NewAuthTestHandler(r.prober))

	a2aHandler := http.StripPrefix("/a2a", a2a.NewHandler(r.responder, r.card))
	mux.Handle("/a2a", a2aHandler)
	mux.Handle("/a2a/", a2aHandler)

	if r.enableDebugRoutes {
		r.registerDebugAPIHandlers(mux)
	}
}
