package transcripts

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Role tags a Turn as coming from the user or the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session transcript. Turns are immutable once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store holds append-only transcripts keyed by an opaque session id.
// Implementations must be safe for concurrent use; only single Append calls are atomic.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	Sessions(ctx context.Context) ([]string, error)
	Close() error
}

func validateTurn(turn Turn) error {
	switch turn.Role {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return errors.Errorf("transcripts: invalid role %q", turn.Role)
	}
}

// New builds a store from its kind name (memory|sqlite).
func New(kind string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewInMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore("")
	default:
		return nil, errors.Errorf("transcripts: unknown store kind %q", kind)
	}
}
