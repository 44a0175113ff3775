package upstream

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultDeployment = "gpt-4.1-mini"
	DefaultAPIVersion = "2024-09-01-preview"
	DefaultScope      = "https://cognitiveservices.azure.com/.default"
)

// Settings locate the Azure OpenAI deployment probed by /api/test-auth.
type Settings struct {
	Endpoint   string
	Deployment string
	APIVersion string
	Scope      string
}

// SettingsFromEnv reads AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT_NAME and
// AZURE_OPENAI_API_VERSION through lookup (os.LookupEnv when nil).
func SettingsFromEnv(lookup func(string) (string, bool)) Settings {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	return Settings{
		Endpoint:   get("AZURE_OPENAI_ENDPOINT", ""),
		Deployment: get("AZURE_OPENAI_DEPLOYMENT_NAME", DefaultDeployment),
		APIVersion: get("AZURE_OPENAI_API_VERSION", DefaultAPIVersion),
		Scope:      DefaultScope,
	}
}

func (s Settings) Validate() error {
	if s.Endpoint == "" {
		return tag(ErrConfigMissing, errors.New("AZURE_OPENAI_ENDPOINT is not set"))
	}
	if s.Deployment == "" {
		return tag(ErrConfigMissing, errors.New("AZURE_OPENAI_DEPLOYMENT_NAME is empty"))
	}
	return nil
}
