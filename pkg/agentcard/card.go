// Package agentcard holds the agent discovery descriptor served at /agent-card.
package agentcard

import (
	_ "embed"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCard []byte

type Capabilities struct {
	Streaming         bool `yaml:"streaming" json:"streaming"`
	PushNotifications bool `yaml:"pushNotifications" json:"pushNotifications"`
}

type Skill struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags" json:"tags"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
}

// Card is the discovery document: who the agent is and what it can do.
type Card struct {
	Name               string       `yaml:"name" json:"name"`
	Description        string       `yaml:"description" json:"description"`
	URL                string       `yaml:"url" json:"url"`
	Version            string       `yaml:"version" json:"version"`
	Capabilities       Capabilities `yaml:"capabilities" json:"capabilities"`
	DefaultInputModes  []string     `yaml:"defaultInputModes" json:"defaultInputModes"`
	DefaultOutputModes []string     `yaml:"defaultOutputModes" json:"defaultOutputModes"`
	Skills             []Skill      `yaml:"skills" json:"skills"`
}

// Default returns the embedded card.
func Default() (*Card, error) {
	return Parse(defaultCard)
}

// Load reads a card from path, or the embedded default when path is empty.
func Load(path string) (*Card, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read agent card %s", path)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "agent card %s", path)
	}
	return c, nil
}

func Parse(b []byte) (*Card, error) {
	var c Card
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "parse agent card")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("agent card: name is required")
	}
	seen := map[string]struct{}{}
	for i, s := range c.Skills {
		if strings.TrimSpace(s.ID) == "" {
			return errors.Errorf("agent card: skill %d has no id", i)
		}
		if _, ok := seen[s.ID]; ok {
			return errors.Errorf("agent card: duplicate skill id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// EndpointPath is where the A2A endpoint the card advertises is mounted.
const EndpointPath = "/a2a/"

// WithBaseURL returns a copy whose URL is the A2A endpoint under baseURL when
// the card leaves it empty.
func (c Card) WithBaseURL(baseURL string) Card {
	if strings.TrimSpace(c.URL) == "" && baseURL != "" {
		c.URL = strings.TrimRight(baseURL, "/") + EndpointPath
	}
	return c
}
