package webchat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/go-go-golems/travel-agent/pkg/agent"
	"github.com/go-go-golems/travel-agent/pkg/redisstream"
	"github.com/go-go-golems/travel-agent/pkg/telemetry"
)

func newTestPubSub(t *testing.T) *redisstream.PubSub {
	t.Helper()
	ps, err := redisstream.BuildPubSub(redisstream.Settings{}, watermill.NopLogger{})
	require.NoError(t, err)
	return ps
}

func TestNewStreamHub_ValidatesRequiredDependencies(t *testing.T) {
	_, err := NewStreamHub(StreamHubConfig{})
	require.ErrorContains(t, err, "subscriber is nil")
}

func TestStreamHub_AttachWebSocketValidatesArguments(t *testing.T) {
	ps := newTestPubSub(t)
	defer func() { _ = ps.Close() }()
	hub, err := NewStreamHub(StreamHubConfig{Subscriber: ps.Subscriber})
	require.NoError(t, err)

	err = hub.AttachWebSocket("", nil, nil)
	require.ErrorContains(t, err, "missing sessionID")

	err = hub.AttachWebSocket("s1", nil, nil)
	require.ErrorContains(t, err, "websocket connection is nil")
}

func TestStreamHub_DispatchesBySession(t *testing.T) {
	ps := newTestPubSub(t)
	defer func() { _ = ps.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub, err := NewStreamHub(StreamHubConfig{Subscriber: ps.Subscriber, Topic: "t"})
	require.NoError(t, err)
	require.NoError(t, hub.Start(ctx))
	require.ErrorContains(t, hub.Start(ctx), "already started")

	a, b := &stubConn{}, &stubConn{}
	hub.addConn("a", a)
	hub.addConn("b", b)
	require.Equal(t, 1, hub.Connections("a"))

	for _, p := range []struct{ session, payload string }{{"a", "1"}, {"b", "2"}, {"a", "3"}, {"", "orphan"}} {
		msg := message.NewMessage(watermill.NewUUID(), []byte(p.payload))
		if p.session != "" {
			msg.Metadata.Set(metadataSessionID, p.session)
		}
		require.NoError(t, ps.Publisher.Publish("t", msg))
	}

	require.Eventually(t, func() bool { return len(a.written()) == 2 && len(b.written()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"1", "3"}, a.written())
	require.Equal(t, []string{"2"}, b.written())

	hub.CloseAll()
	require.True(t, a.isClosed())
	require.Equal(t, 0, hub.Connections("a"))
}

func TestStreamHub_IdleSessionIsForgotten(t *testing.T) {
	ps := newTestPubSub(t)
	defer func() { _ = ps.Close() }()
	hub, err := NewStreamHub(StreamHubConfig{Subscriber: ps.Subscriber, IdleTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	conn := &stubConn{}
	sockets := hub.addConn("s", conn)
	sockets.Detach(conn)

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.sessions["s"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStreamHub_StalledSessionDoesNotDelayOthers(t *testing.T) {
	ps := newTestPubSub(t)
	defer func() { _ = ps.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub, err := NewStreamHub(StreamHubConfig{Subscriber: ps.Subscriber, QueueSize: 2})
	require.NoError(t, err)
	require.NoError(t, hub.Start(ctx))
	defer hub.CloseAll()

	stalled, healthy := newStalledConn(), &stubConn{}
	hub.addConn("slow", stalled)
	hub.addConn("fast", healthy)

	svc, err := NewChatService(ChatServiceConfig{BaseCtx: ctx, Responder: newFastResponder(), Publisher: ps.Publisher})
	require.NoError(t, err)

	svc.StartStream("plan a trip to Lisbon and tell me about the local food", "slow")
	svc.StartStream("hello there", "fast")

	final := agent.ReplyFor("hello there")
	want := (len(strings.Fields(final))+2)/3 + 2
	require.Eventually(t, func() bool { return len(healthy.written()) == want }, 2*time.Second, 5*time.Millisecond)
	svc.Wait()

	var last Frame
	w := healthy.written()
	require.NoError(t, json.Unmarshal([]byte(w[len(w)-1]), &last))
	require.True(t, last.Reply.IsTaskComplete)
	require.Equal(t, final, last.Reply.Content)

	require.Eventually(t, func() bool { return stalled.isClosed() }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, hub.Connections("slow"))
}

func TestStreamHub_FramesWithoutSocketAreCounted(t *testing.T) {
	ps := newTestPubSub(t)
	defer func() { _ = ps.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := sdkmetric.NewManualReader()
	m, err := telemetry.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)
	hub, err := NewStreamHub(StreamHubConfig{Subscriber: ps.Subscriber, Topic: "t", Metrics: m})
	require.NoError(t, err)
	require.NoError(t, hub.Start(ctx))
	defer hub.CloseAll()

	for _, payload := range []string{"1", "2"} {
		msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
		msg.Metadata.Set(metadataSessionID, "nobody")
		require.NoError(t, ps.Publisher.Publish("t", msg))
	}

	require.Eventually(t, func() bool {
		return droppedFrames(t, reader)[telemetry.DropNoSocket] == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, hub.Connections("nobody"))
}

func TestParseInbound(t *testing.T) {
	in, ok := parseInbound([]byte(" PING "))
	require.True(t, ok)
	require.True(t, in.ping)

	in, ok = parseInbound([]byte(`{"type":"ping"}`))
	require.True(t, ok)
	require.True(t, in.ping)

	in, ok = parseInbound([]byte(`{"message":""}`))
	require.True(t, ok)
	require.False(t, in.ping)
	require.Equal(t, "", in.message)

	in, ok = parseInbound([]byte(`{"message":"trip to Rome"}`))
	require.True(t, ok)
	require.Equal(t, "trip to Rome", in.message)

	_, ok = parseInbound([]byte(`{"other":1}`))
	require.False(t, ok)
	_, ok = parseInbound([]byte(`not json`))
	require.False(t, ok)
}
