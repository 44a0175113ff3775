package transcripts

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryStore keeps transcripts in a mutex-guarded map for the lifetime of the process.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: map[string][]Turn{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	if s == nil {
		return errors.New("in-memory transcript store: nil store")
	}
	if err := validateTurn(turn); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turn)
	return nil
}

func (s *InMemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	if s == nil {
		return nil, errors.New("in-memory transcript store: nil store")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *InMemoryStore) Sessions(_ context.Context) ([]string, error) {
	if s == nil {
		return nil, errors.New("in-memory transcript store: nil store")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
