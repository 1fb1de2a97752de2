// Package session owns the per-session message history: creation, bounded
// appends, snapshots and resets, on top of a pluggable [memory.Backend].
//
// All mutations of one session are serialized by a per-session lock; distinct
// sessions never contend. [Store.Exclusive] exposes that lock so a caller can
// run several steps (append, generate, append) as one unit.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/leofalp/chatkeeper/core/chaterr"
	"github.com/leofalp/chatkeeper/core/retention"
	"github.com/leofalp/chatkeeper/providers/ai"
	"github.com/leofalp/chatkeeper/providers/memory"
)

// Session is a snapshot of one conversation.
type Session struct {
	ID                string
	SystemInstruction string
	History           []ai.Message
	RetentionLimit    int
}

// Store is the session store. It is safe for concurrent use.
type Store struct {
	backend            memory.Backend
	limit              int
	lazyInit           bool
	defaultInstruction string
	now                func() time.Time
	logger             *slog.Logger
	locks              *keyedLock
}

// Option configures a Store.
type Option func(*Store)

// WithRetentionLimit sets the number of non-system messages kept per session.
func WithRetentionLimit(n int) Option {
	return func(s *Store) {
		s.limit = n
	}
}

// WithLazyInit makes Append create unknown sessions with instruction as
// their system message instead of failing with a not-found error.
func WithLazyInit(instruction string) Option {
	return func(s *Store) {
		s.lazyInit = true
		s.defaultInstruction = instruction
	}
}

// WithClock overrides the clock used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store persisting through backend.
func New(backend memory.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		limit:   retention.DefaultLimit,
		now:     time.Now,
		logger:  slog.Default(),
		locks:   newKeyedLock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limit < 1 {
		s.limit = 1
	}
	return s
}

// RetentionLimit returns the configured limit.
func (s *Store) RetentionLimit() int {
	return s.limit
}

// Initialize creates session id, or resets it, with systemInstruction as its
// only message.
func (s *Store) Initialize(ctx context.Context, id, systemInstruction string) (*Session, error) {
	const op = "session.initialize"
	if err := validateID(op, id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(systemInstruction) == "" {
		return nil, chaterr.Validation(op, id, "system instruction is empty")
	}

	var sess *Session
	err := s.locked(ctx, op, id, func() error {
		history := []ai.Message{ai.NewMessage(ai.RoleSystem, systemInstruction, s.now())}
		if err := s.backend.Save(ctx, id, history); err != nil {
			return chaterr.New(chaterr.KindPersistence, op, id, err)
		}
		sess = s.snapshot(id, history)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "session initialized", "session_id", id)
	return sess, nil
}

// Append adds one user or assistant message to session id and trims the
// history to the retention limit.
func (s *Store) Append(ctx context.Context, id string, role ai.MessageRole, content string) error {
	return s.Exclusive(ctx, id, func(tx *Tx) error {
		return tx.Append(ctx, role, content)
	})
}

// History returns a copy of the history of session id.
func (s *Store) History(ctx context.Context, id string) ([]ai.Message, error) {
	const op = "session.history"
	if err := validateID(op, id); err != nil {
		return nil, err
	}
	return s.load(ctx, op, id)
}

// Get returns a snapshot of session id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	const op = "session.get"
	if err := validateID(op, id); err != nil {
		return nil, err
	}
	history, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(id, history), nil
}

// Clear resets session id to its system instruction.
func (s *Store) Clear(ctx context.Context, id string) error {
	const op = "session.clear"
	if err := validateID(op, id); err != nil {
		return err
	}

	return s.locked(ctx, op, id, func() error {
		history, err := s.load(ctx, op, id)
		if err != nil {
			return err
		}
		if err := s.backend.Save(ctx, id, []ai.Message{s.anchor(history)}); err != nil {
			return chaterr.New(chaterr.KindPersistence, op, id, err)
		}
		return nil
	})
}

// Delete removes session id from the backend.
func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "session.delete"
	if err := validateID(op, id); err != nil {
		return err
	}

	return s.locked(ctx, op, id, func() error {
		if _, err := s.load(ctx, op, id); err != nil {
			return err
		}
		if err := s.backend.Clear(ctx, id); err != nil {
			return chaterr.New(chaterr.KindPersistence, op, id, err)
		}
		return nil
	})
}

// Exclusive runs fn holding the lock of session id. Waiting for the lock
// honours ctx.
func (s *Store) Exclusive(ctx context.Context, id string, fn func(*Tx) error) error {
	const op = "session.exclusive"
	if err := validateID(op, id); err != nil {
		return err
	}
	return s.locked(ctx, op, id, func() error {
		return fn(&Tx{store: s, id: id})
	})
}

func (s *Store) locked(ctx context.Context, op, id string, fn func() error) error {
	release, err := s.locks.acquire(ctx, id)
	if err != nil {
		return chaterr.New(chaterr.KindPersistence, op, id, err)
	}
	defer release()
	return fn()
}

// load returns the stored history, failing with not-found when it is empty.
func (s *Store) load(ctx context.Context, op, id string) ([]ai.Message, error) {
	history, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, chaterr.New(chaterr.KindPersistence, op, id, err)
	}
	if len(history) == 0 {
		return nil, chaterr.New(chaterr.KindNotFound, op, id, nil)
	}
	return history, nil
}

func (s *Store) snapshot(id string, history []ai.Message) *Session {
	sess := &Session{
		ID:             id,
		History:        append([]ai.Message(nil), history...),
		RetentionLimit: s.limit,
	}
	if len(history) > 0 && history[0].Role == ai.RoleSystem {
		sess.SystemInstruction = history[0].Content
	}
	return sess
}

// anchor returns the system message of history, synthesizing one from the
// default instruction when none is stored.
func (s *Store) anchor(history []ai.Message) ai.Message {
	for _, m := range history {
		if m.Role == ai.RoleSystem {
			return m
		}
	}
	return ai.NewMessage(ai.RoleSystem, s.defaultInstruction, s.now())
}

func validateID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return chaterr.Validation(op, id, "session id is empty")
	}
	return nil
}

// Tx is the view of one session while its lock is held. It must not be
// used after the Exclusive callback returns.
type Tx struct {
	store *Store
	id    string
}

// ID returns the session id.
func (tx *Tx) ID() string {
	return tx.id
}

// History returns a copy of the session history.
func (tx *Tx) History(ctx context.Context) ([]ai.Message, error) {
	return tx.store.load(ctx, "session.history", tx.id)
}

// Append stamps a message, appends it, trims and saves. The new sequence is
// built in a fresh slice, so a failed save leaves the stored one untouched.
func (tx *Tx) Append(ctx context.Context, role ai.MessageRole, content string) error {
	const op = "session.append"
	s := tx.store

	if role != ai.RoleUser && role != ai.RoleAssistant {
		return chaterr.Validation(op, tx.id, "unsupported role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return chaterr.Validation(op, tx.id, "message content is empty")
	}

	history, err := s.load(ctx, op, tx.id)
	if err != nil {
		if !s.lazyInit || !errors.Is(err, chaterr.ErrNotFound) {
			return err
		}
		if strings.TrimSpace(s.defaultInstruction) == "" {
			return chaterr.Validation(op, tx.id, "no system instruction configured for new sessions")
		}
		history = []ai.Message{ai.NewMessage(ai.RoleSystem, s.defaultInstruction, s.now())}
		s.logger.DebugContext(ctx, "session created lazily", "session_id", tx.id)
	}

	next := make([]ai.Message, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, ai.NewMessage(role, content, s.now()))
	trimmed := retention.Trim(next, s.defaultInstruction, s.limit)

	if evicted := len(next) - len(trimmed); evicted > 0 {
		s.logger.DebugContext(ctx, "history trimmed", "session_id", tx.id, "evicted", evicted)
	}

	if err := s.backend.Save(ctx, tx.id, trimmed); err != nil {
		return chaterr.New(chaterr.KindPersistence, op, tx.id, err)
	}
	return nil
}
