package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	tok Token
	err error
}

func (f fakeTokens) Token(context.Context) (Token, error) { return f.tok, f.err }

type fakeClient struct {
	answer string
	err    error
}

func (f fakeClient) Complete(_ context.Context, prompt string, maxTokens int) (string, error) {
	if prompt != probePrompt || maxTokens != probeMaxTokens {
		return "", errors.New("unexpected probe request")
	}
	return f.answer, f.err
}

func testSettings() Settings {
	return Settings{Endpoint: "https://example.openai.azure.com", Deployment: "gpt-4.1-mini", APIVersion: DefaultAPIVersion, Scope: DefaultScope}
}

func TestSettingsFromEnv(t *testing.T) {
	env := map[string]string{"AZURE_OPENAI_ENDPOINT": " https://x.openai.azure.com "}
	s := SettingsFromEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Equal(t, "https://x.openai.azure.com", s.Endpoint)
	require.Equal(t, DefaultDeployment, s.Deployment)
	require.Equal(t, DefaultAPIVersion, s.APIVersion)
	require.Equal(t, DefaultScope, s.Scope)

	s = SettingsFromEnv(func(string) (string, bool) { return "", false })
	require.Equal(t, KindConfigMissing, KindOf(s.Validate()))
}

func TestProbe_Success(t *testing.T) {
	var gotBearer string
	p := NewProber(testSettings(),
		WithTokenProvider(fakeTokens{tok: Token{Value: "secret-token", ExpiresOn: time.Now().Add(time.Hour)}}),
		WithClientFactory(func(_ Settings, bearer string) ChatClient {
			gotBearer = bearer
			return fakeClient{answer: "Hello"}
		}),
	)
	res, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello", res.Response)
	require.Equal(t, "gpt-4.1-mini", res.Deployment)
	require.Equal(t, "secret-token", gotBearer)
}

func TestProbe_ErrorKinds(t *testing.T) {
	ok := fakeTokens{tok: Token{Value: "t"}}

	_, err := NewProber(Settings{Deployment: "d"}, WithTokenProvider(ok)).Probe(context.Background())
	require.ErrorIs(t, err, ErrConfigMissing)
	require.Equal(t, KindConfigMissing, KindOf(err))

	_, err = NewProber(testSettings(), WithTokenProvider(fakeTokens{err: errors.New("no identity")})).Probe(context.Background())
	require.Equal(t, KindAuthFailed, KindOf(err))
	require.Contains(t, err.Error(), "no identity")

	_, err = NewProber(testSettings(), WithTokenProvider(fakeTokens{tok: Token{Value: " "}})).Probe(context.Background())
	require.Equal(t, KindAuthFailed, KindOf(err))

	_, err = NewProber(testSettings(), WithTokenProvider(ok), WithClientFactory(func(Settings, string) ChatClient {
		return fakeClient{err: errors.New("dial tcp: refused")}
	})).Probe(context.Background())
	require.Equal(t, KindUpstreamUnavailable, KindOf(err))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(nil))
	require.Equal(t, KindInternal, KindOf(errors.New("x")))
	require.Equal(t, KindAuthFailed, KindOf(errors.Wrap(tag(ErrAuthentication, errors.New("c")), "outer")))
	for _, k := range []Kind{KindConfigMissing, KindAuthFailed, KindUpstreamUnavailable, KindInternal} {
		require.NotEmpty(t, SafeMessage(k))
	}
}

func TestOpenAIClient_AgainstFakeAzure(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/chat/completions") || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"denied","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	s := testSettings()
	s.Endpoint = srv.URL
	c := NewOpenAIClient(s, "tok")

	answer, err := c.Complete(context.Background(), probePrompt, probeMaxTokens)
	require.NoError(t, err)
	require.Equal(t, "Hello", answer)

	status = http.StatusUnauthorized
	_, err = c.Complete(context.Background(), probePrompt, probeMaxTokens)
	require.Equal(t, KindAuthFailed, KindOf(err))

	status = http.StatusServiceUnavailable
	_, err = c.Complete(context.Background(), probePrompt, probeMaxTokens)
	require.Equal(t, KindUpstreamUnavailable, KindOf(err))
}
