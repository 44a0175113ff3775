package redisstream

import (
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/google/uuid"
)

// SectionSlug is the glazed section holding the transport settings.
const SectionSlug = "redis"

const groupPrefix = "travel-agent-"

// Settings configure the Redis Streams reply transport.
//
// Every serving instance must read the reply stream through its own consumer
// group: consumers sharing a group split the stream between them, and a frame
// delivered to an instance that does not hold the session's websocket is lost.
// Group and Consumer are therefore derived per process unless set explicitly.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled"`
	Addr     string `glazed:"redis-addr"`
	Group    string `glazed:"redis-group"`
	Consumer string `glazed:"redis-consumer"`
}

// NewParameterLayer returns the "redis" section.
func NewParameterLayer() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Redis Streams transport for streamed replies",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool, fields.WithDefault(false),
				fields.WithHelp("Carry streamed replies over Redis Streams so several instances can serve one session's sockets")),
			fields.New("redis-addr", fields.TypeString, fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address host:port")),
			fields.New("redis-group", fields.TypeString, fields.WithDefault(""),
				fields.WithHelp("Consumer group of this instance; must differ between instances (derived from host and process when empty)")),
			fields.New("redis-consumer", fields.TypeString, fields.WithDefault(""),
				fields.WithHelp("Consumer name inside the group (derived from host and process when empty)")),
		),
	)
}

// instanceName identifies this process: hostname plus a random suffix, so
// restarts and replicas on one host never share a group.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "travel-agent"
	}
	return host + "-" + uuid.NewString()[:8]
}

// resolved fills an empty Group or Consumer from instance.
func (s Settings) resolved(instance string) Settings {
	if strings.TrimSpace(s.Group) == "" {
		s.Group = groupPrefix + instance
	}
	if strings.TrimSpace(s.Consumer) == "" {
		s.Consumer = instance
	}
	return s
}
