package webchat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-go-golems/travel-agent/pkg/agent"
	"github.com/go-go-golems/travel-agent/pkg/telemetry"
)

type ChatServiceConfig struct {
	BaseCtx   context.Context
	Responder *agent.Responder
	Publisher message.Publisher
	Topic     string
	Metrics   *telemetry.Metrics
}

// ChatService answers chat messages and runs streaming replies in the background.
type ChatService struct {
	baseCtx   context.Context
	responder *agent.Responder
	publisher message.Publisher
	topic     string
	metrics   *telemetry.Metrics
	tracer    trace.Tracer

	wg sync.WaitGroup
}

func NewChatService(cfg ChatServiceConfig) (*ChatService, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("chat service base context is nil")
	}
	if cfg.Responder == nil {
		return nil, errors.New("chat service responder is nil")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("chat service publisher is nil")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultReplyTopic
	}
	return &ChatService{
		baseCtx:   cfg.BaseCtx,
		responder: cfg.Responder,
		publisher: cfg.Publisher,
		topic:     topic,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer(telemetry.InstrumentationName),
	}, nil
}

func (s *ChatService) Responder() *agent.Responder { return s.responder }

// SendMessage answers text synchronously. An empty sessionID gets a fresh one.
func (s *ChatService) SendMessage(ctx context.Context, text, sessionID string) (ChatResponse, error) {
	sessionID = ensureSessionID(sessionID)
	ctx, span := s.tracer.Start(ctx, "chat.message", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	reply, err := s.responder.Respond(ctx, text, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "respond failed")
		return ChatResponse{}, errors.Wrap(err, "respond")
	}
	s.metrics.RecordReply(ctx, string(s.responder.Category(text)), "message")
	return ChatResponse{Reply: reply, SessionID: sessionID}, nil
}

// StartStream launches a streaming reply detached from the caller and returns
// its identifiers. Frames are published on the reply topic.
func (s *ChatService) StartStream(text, sessionID string) StreamStarted {
	started := StreamStarted{SessionID: ensureSessionID(sessionID), RunID: uuid.NewString()}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStream(s.baseCtx, started, text)
	}()
	return started
}

// Wait blocks until every started stream has finished.
func (s *ChatService) Wait() { s.wg.Wait() }

func (s *ChatService) runStream(ctx context.Context, run StreamStarted, text string) {
	ctx, span := s.tracer.Start(ctx, "chat.stream", trace.WithAttributes(
		attribute.String("session.id", run.SessionID),
		attribute.String("run.id", run.RunID),
	))
	defer span.End()

	runLog := log.With().Str("component", "webchat").Str("session_id", run.SessionID).Str("run_id", run.RunID).Logger()
	runLog.Debug().Msg("stream run started")

	seq := 0
	for reply, err := range s.responder.RespondStream(ctx, text, run.SessionID) {
		seq++
		frame := Frame{Type: FrameTypeReply, SessionID: run.SessionID, RunID: run.RunID, Seq: seq}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream interrupted")
			runLog.Warn().Err(err).Msg("stream run interrupted")
			frame.Type = FrameTypeError
			frame.Error = "stream interrupted"
			// the run context may be gone; the frame still has to reach the client
			_ = s.publish(context.WithoutCancel(ctx), frame)
			return
		}
		r := reply
		frame.Reply = &r
		if err := s.publish(ctx, frame); err != nil {
			runLog.Error().Err(err).Int("seq", seq).Msg("publish reply frame failed")
			return
		}
		s.metrics.RecordEmission(ctx)
		if reply.IsTaskComplete {
			s.metrics.RecordReply(ctx, string(s.responder.Category(text)), "stream")
		}
	}
	span.SetAttributes(attribute.Int("stream.emissions", seq))
	runLog.Debug().Int("emissions", seq).Msg("stream run finished")
}

func (s *ChatService) publish(ctx context.Context, frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "marshal frame")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataSessionID, frame.SessionID)
	msg.Metadata.Set(metadataRunID, frame.RunID)
	msg.SetContext(ctx)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", s.topic)
	}
	return nil
}

func ensureSessionID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}
