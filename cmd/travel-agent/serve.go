package main

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-go-golems/travel-agent/pkg/agent"
	"github.com/go-go-golems/travel-agent/pkg/agentcard"
	"github.com/go-go-golems/travel-agent/pkg/persistence/transcripts"
	"github.com/go-go-golems/travel-agent/pkg/redisstream"
	"github.com/go-go-golems/travel-agent/pkg/telemetry"
	"github.com/go-go-golems/travel-agent/pkg/upstream"
	"github.com/go-go-golems/travel-agent/pkg/webchat"
)

type ServeSettings struct {
	webchat.RouterSettings
	Redis redisstream.Settings
}

type ServeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = &ServeCommand{}

// defaultAddr honours HOST and PORT so container deployments need no flags.
func defaultAddr(lookup func(string) (string, bool)) string {
	host, port := "0.0.0.0", "8000"
	if v, ok := lookup("HOST"); ok && strings.TrimSpace(v) != "" {
		host = strings.TrimSpace(v)
	}
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port = strings.TrimSpace(v)
	}
	return net.JoinHostPort(host, port)
}

func debugFromEnv(lookup func(string) (string, bool)) bool {
	v, _ := lookup("DEBUG")
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func NewServeCommand() (*ServeCommand, error) {
	redisLayer, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, errors.Wrap(err, "create redis section")
	}

	desc := cmds.NewCommandDescription(
		"serve",
		cmds.WithShort("Serve the travel assistant chat API and web UI"),
		cmds.WithLong(`Serve the travel assistant.

Endpoints: /health, /agent-card, /api/chat/message, /api/chat/stream,
/api/chat/ws, /api/test-auth and the A2A JSON-RPC endpoint /a2a/. Streamed replies travel over an in-process
channel, or over Redis Streams with --redis-enabled.`),
		cmds.WithFlags(
			fields.New("addr", fields.TypeString, fields.WithDefault(defaultAddr(os.LookupEnv)), fields.WithHelp("HTTP listen address (defaults from HOST and PORT)")),
			fields.New("service-name", fields.TypeString, fields.WithDefault(webchat.DefaultServiceName), fields.WithHelp("Service name reported by /health and traces")),
			fields.New("debug", fields.TypeBool, fields.WithDefault(debugFromEnv(os.LookupEnv)), fields.WithHelp("Enable debug logging and /api/debug routes (defaults from DEBUG)")),
			fields.New("transcript-store", fields.TypeString, fields.WithDefault("memory"), fields.WithHelp("Transcript store kind (memory, sqlite)")),
			fields.New("thinking-delay-ms", fields.TypeInteger, fields.WithDefault(500), fields.WithHelp("Pause before the first streamed reply")),
			fields.New("chunk-delay-ms", fields.TypeInteger, fields.WithDefault(200), fields.WithHelp("Pause between streamed chunks")),
			fields.New("idle-timeout-seconds", fields.TypeInteger, fields.WithDefault(60), fields.WithHelp("Forget a session this long after its last socket left")),
			fields.New("agent-card", fields.TypeString, fields.WithDefault(""), fields.WithHelp("YAML agent card file (built-in card when empty)")),
			fields.New("public-url", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Public base URL advertised in the agent card")),
			fields.New("access-log", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Rotated access log file (disabled when empty)")),
			fields.New("telemetry-dir", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Directory for trace and metric exports (disabled when empty)")),
		),
		cmds.WithSections(redisLayer),
	)
	return &ServeCommand{CommandDescription: desc}, nil
}

func (c *ServeCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &ServeSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, &s.RouterSettings); err != nil {
		return errors.Wrap(err, "decode serve settings")
	}
	if err := parsedLayers.DecodeSectionInto(redisstream.SectionSlug, &s.Redis); err != nil {
		return errors.Wrap(err, "decode redis settings")
	}
	if s.Debug && zerolog.GlobalLevel() > zerolog.DebugLevel {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return serve(ctx, s)
}

// releaseList holds cleanup for resources acquired while starting up.
type releaseList []func(context.Context) error

func (l *releaseList) add(f func(context.Context) error) { *l = append(*l, f) }

// run calls every entry in reverse order and returns the first error.
func (l releaseList) run(ctx context.Context) error {
	var first error
	for i := len(l) - 1; i >= 0; i-- {
		if err := l[i](ctx); err != nil {
			if first == nil {
				first = err
			}
			log.Warn().Err(err).Msg("release failed")
		}
	}
	return first
}

func serve(ctx context.Context, s *ServeSettings) error {
	providers, err := telemetry.Init(ctx, telemetry.Settings{
		Dir:            s.TelemetryDir,
		ServiceName:    s.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return errors.Wrap(err, "init telemetry")
	}

	var release releaseList
	release.add(providers.Shutdown)
	// closeTransport closes the pubsub until the router owns it.
	var closeTransport func() error
	fail := func(err error) error {
		if closeTransport != nil {
			if cerr := closeTransport(); cerr != nil {
				log.Warn().Err(cerr).Msg("close reply transport")
			}
		}
		_ = release.run(context.WithoutCancel(ctx))
		return err
	}

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return fail(err)
	}

	store, err := transcripts.New(s.TranscriptStore)
	if err != nil {
		return fail(err)
	}
	release.add(func(context.Context) error { return store.Close() })
	responder := agent.NewResponder(store,
		agent.WithThinkingDelay(time.Duration(s.ThinkingDelayMs)*time.Millisecond),
		agent.WithChunkDelay(time.Duration(s.ChunkDelayMs)*time.Millisecond),
	)

	pubsub, err := redisstream.BuildPubSub(s.Redis, redisstream.NewWatermillLogger(log.Logger))
	if err != nil {
		return fail(errors.Wrap(err, "build reply transport"))
	}
	closeTransport = pubsub.Close

	card, err := agentcard.Load(s.AgentCard)
	if err != nil {
		return fail(err)
	}
	advertised := card.WithBaseURL(s.PublicURL)

	opts := []webchat.RouterOption{
		webchat.WithServiceName(s.ServiceName),
		webchat.WithAgentCard(&advertised),
		webchat.WithProber(upstream.NewProber(upstream.SettingsFromEnv(nil))),
		webchat.WithMetrics(metrics),
		webchat.WithIdleTimeout(time.Duration(s.IdleTimeoutSeconds) * time.Second),
		webchat.WithDebugRoutesEnabled(s.Debug),
	}
	if s.AccessLog != "" {
		accessFile := &lumberjack.Logger{
			Filename:   s.AccessLog,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		}
		release.add(func(context.Context) error { return accessFile.Close() })
		opts = append(opts, webchat.WithAccessLog(zerolog.New(accessFile).With().Timestamp().Logger()))
	}

	r, err := webchat.NewRouter(ctx, responder, pubsub, staticFS, opts...)
	if err != nil {
		return fail(errors.Wrap(err, "new router"))
	}
	closeTransport = r.Close
	srv, err := webchat.NewServer(r, s.Addr)
	if err != nil {
		return fail(err)
	}
	// The server closes the router itself, then runs these hooks.
	srv.OnShutdown(release.run)

	log.Info().
		Str("addr", s.Addr).
		Str("service", s.ServiceName).
		Bool("redis", pubsub.Redis()).
		Str("redis_group", pubsub.Group()).
		Str("transcripts", s.TranscriptStore).
		Msg("starting travel agent")
	return srv.Run(ctx)
}
