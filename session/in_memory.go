package session

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hupe1980/agentcore/core"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a volatile Store keeping histories in a process local
// map. It is safe for concurrent access and best suited for tests or
// ephemeral servers. Loaded histories are copies; callers cannot mutate
// stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Message
	limit    int
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// MaxMessages caps the retained messages per session (0 = unbounded).
	// The oldest messages are dropped first.
	MaxMessages int
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{
		sessions: make(map[string][]core.Message),
		limit:    opts.MaxMessages,
	}
}

// Load implements Store.
func (s *InMemoryStore) Load(ctx context.Context, sessionID string) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.sessions[sessionID]), nil
}

// Append implements Store.
func (s *InMemoryStore) Append(ctx context.Context, sessionID string, msgs ...core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.sessions[sessionID], msgs...)
	if s.limit > 0 && len(h) > s.limit {
		h = slices.Clone(h[len(h)-s.limit:])
	}
	s.sessions[sessionID] = h

	return nil
}

// Delete removes a session. It reports whether the session existed.
func (s *InMemoryStore) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)

	return ok
}

// Sessions returns the known session IDs, sorted.
func (s *InMemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// WithMaxMessages caps retained messages per session.
func WithMaxMessages(n int) func(o *InMemoryOptions) {
	return func(o *InMemoryOptions) { o.MaxMessages = n }
}
