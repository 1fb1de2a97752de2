package inmemory

import (
	"context"
	"sync"

	"github.com/leofalp/chatkeeper/providers/ai"
	"github.com/leofalp/chatkeeper/providers/memory"
)

// Store is a simple, concurrency-safe in-memory session store.
// It uses RWMutex to guard access and is efficient for read-heavy workloads.
// Sequences are copied on the way in and on the way out, so callers never
// share backing arrays with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]ai.Message
}

// New returns a new, empty [Store] ready for immediate use.
func New() *Store {
	return &Store{
		sessions: make(map[string][]ai.Message),
	}
}

// Ensure Store implements memory.Backend at compile time.
var _ memory.Backend = (*Store)(nil)

// Load returns a copy of the sequence stored for id.
// The returned error is always nil.
func (s *Store) Load(_ context.Context, id string) ([]ai.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sessions[id]
	out := make([]ai.Message, len(stored))
	copy(out, stored)
	return out, nil
}

// Save replaces the sequence stored for id with a copy of messages.
// It fails only when ctx is already done.
func (s *Store) Save(ctx context.Context, id string, messages []ai.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := make([]ai.Message, len(messages))
	copy(cp, messages)

	s.mu.Lock()
	s.sessions[id] = cp
	s.mu.Unlock()
	return nil
}

// Clear forgets the session. The returned error is always nil.
func (s *Store) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of sessions currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
