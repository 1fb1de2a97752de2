// Package redismemory provides a Redis-backed implementation of the
// [memory.Backend] interface. Each session is one Redis list of
// JSON-encoded messages under "{prefix}{id}"; saves replace the list inside
// a MULTI/EXEC block and optionally refresh its TTL.
package redismemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leofalp/chatkeeper/providers/ai"
	"github.com/leofalp/chatkeeper/providers/memory"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "chatkeeper:session:"

// Store implements [memory.Backend] on Redis lists.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ memory.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides [DefaultKeyPrefix]. A missing trailing ":" is added.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" && !strings.HasSuffix(prefix, ":") {
			prefix += ":"
		}
		s.keyPrefix = prefix
	}
}

// WithTTL expires idle sessions. Every save refreshes the TTL. Zero keeps
// sessions forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, keyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding session id.
func (s *Store) Key(id string) string {
	return s.keyPrefix + id
}

// Load returns the session list decoded in order. A missing key yields an
// empty, non-nil slice.
func (s *Store) Load(ctx context.Context, id string) ([]ai.Message, error) {
	raw, err := s.client.LRange(ctx, s.Key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redismemory: load: %w", err)
	}

	messages := make([]ai.Message, 0, len(raw))
	for i, entry := range raw {
		var m ai.Message
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			return nil, fmt.Errorf("redismemory: decode entry %d: %w", i, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Save replaces the session list with messages atomically.
func (s *Store) Save(ctx context.Context, id string, messages []ai.Message) error {
	values := make([]any, 0, len(messages))
	for i, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redismemory: encode entry %d: %w", i, err)
		}
		values = append(values, b)
	}

	key := s.Key(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			if s.ttl > 0 {
				pipe.PExpire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redismemory: save: %w", err)
	}
	return nil
}

// Clear deletes the session list.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.Key(id)).Err(); err != nil {
		return fmt.Errorf("redismemory: clear: %w", err)
	}
	return nil
}
