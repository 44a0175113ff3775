// Package upstream checks that the service can authenticate against its Azure
// OpenAI deployment and get an answer back.
package upstream

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const (
	probePrompt    = "Say hello in one word!"
	probeMaxTokens = 10
)

// Token is a bearer token with its expiry.
type Token struct {
	Value     string
	ExpiresOn time.Time
}

type TokenProvider interface {
	Token(ctx context.Context) (Token, error)
}

// ChatClient sends a single user prompt to the deployment and returns the answer text.
type ChatClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ClientFactory builds a ChatClient authenticated with a bearer token.
type ClientFactory func(s Settings, bearer string) ChatClient

// AzureTokenProvider uses the default Azure credential chain
// (environment, workload identity, managed identity, CLI).
type AzureTokenProvider struct {
	scope string

	once sync.Once
	cred azcore.TokenCredential
	err  error
}

func NewAzureTokenProvider(scope string) *AzureTokenProvider {
	if scope == "" {
		scope = DefaultScope
	}
	return &AzureTokenProvider{scope: scope}
}

func (p *AzureTokenProvider) Token(ctx context.Context) (Token, error) {
	p.once.Do(func() {
		p.cred, p.err = azidentity.NewDefaultAzureCredential(nil)
	})
	if p.err != nil {
		return Token{}, tag(ErrAuthentication, p.err)
	}
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		return Token{}, tag(ErrAuthentication, err)
	}
	return Token{Value: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}

type openAIClient struct {
	client     *openai.Client
	deployment string
}

// NewOpenAIClient returns a go-openai client speaking the Azure AD flavour of the API.
func NewOpenAIClient(s Settings, bearer string) ChatClient {
	cfg := openai.DefaultAzureConfig(bearer, s.Endpoint)
	cfg.APIType = openai.APITypeAzureAD
	cfg.APIVersion = s.APIVersion
	deployment := s.Deployment
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &openAIClient{client: openai.NewClientWithConfig(cfg), deployment: deployment}
}

func (c *openAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", classifyAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", tag(ErrUpstreamUnavailable, errors.New("completion returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyAPIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return tag(ErrAuthentication, err)
	}
	return tag(ErrUpstreamUnavailable, err)
}

// ProbeResult is what a successful probe reports. It carries no credentials.
type ProbeResult struct {
	Response   string
	Endpoint   string
	Deployment string
	ExpiresOn  time.Time
}

type Prober struct {
	settings  Settings
	tokens    TokenProvider
	newClient ClientFactory
}

type ProberOption func(*Prober)

func WithTokenProvider(tp TokenProvider) ProberOption {
	return func(p *Prober) { p.tokens = tp }
}

func WithClientFactory(f ClientFactory) ProberOption {
	return func(p *Prober) { p.newClient = f }
}

func NewProber(s Settings, opts ...ProberOption) *Prober {
	p := &Prober{settings: s}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokens == nil {
		p.tokens = NewAzureTokenProvider(s.Scope)
	}
	if p.newClient == nil {
		p.newClient = NewOpenAIClient
	}
	return p
}

func (p *Prober) Settings() Settings { return p.settings }

// Probe acquires a token and asks the deployment for a one word greeting.
func (p *Prober) Probe(ctx context.Context) (ProbeResult, error) {
	if err := p.settings.Validate(); err != nil {
		return ProbeResult{}, err
	}
	logger := log.With().Str("component", "upstream").Str("endpoint", p.settings.Endpoint).Str("deployment", p.settings.Deployment).Logger()
	logger.Info().Msg("testing upstream authentication")

	tok, err := p.tokens.Token(ctx)
	if err != nil {
		if !errors.Is(err, ErrAuthentication) {
			err = tag(ErrAuthentication, err)
		}
		return ProbeResult{}, err
	}
	if strings.TrimSpace(tok.Value) == "" {
		return ProbeResult{}, tag(ErrAuthentication, errors.New("empty token"))
	}
	logger.Debug().Time("expires_on", tok.ExpiresOn).Msg("token acquired")

	answer, err := p.newClient(p.settings, tok.Value).Complete(ctx, probePrompt, probeMaxTokens)
	if err != nil {
		if KindOf(err) == KindInternal {
			err = tag(ErrUpstreamUnavailable, err)
		}
		return ProbeResult{}, err
	}
	logger.Info().Str("response", answer).Msg("upstream authentication succeeded")

	return ProbeResult{
		Response:   answer,
		Endpoint:   p.settings.Endpoint,
		Deployment: p.settings.Deployment,
		ExpiresOn:  tok.ExpiresOn,
	}, nil
}
