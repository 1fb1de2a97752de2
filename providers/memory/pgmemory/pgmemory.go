package pgmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/chatkeeper/providers/ai"
	"github.com/leofalp/chatkeeper/providers/memory"
)

// DefaultTableName is the PostgreSQL table used when no custom name is provided.
// It matches the table created by the embedded migrations.
const DefaultTableName = "chat_messages"

// Querier abstracts the pgx query methods needed by Store.
// Both *pgxpool.Pool and pgx.Tx satisfy this interface, allowing
// callers to inject either a connection pool or a single transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxQuerier extends Querier with transaction support. *pgxpool.Pool satisfies
// this interface but pgx.Tx does not. Save opens its own transaction when the
// db is a TxQuerier; otherwise it runs inside the caller's transaction.
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements [memory.Backend] with PostgreSQL persistence.
// Thread safety is handled by the underlying pgx connection pool; no
// application-level mutex is needed.
type Store struct {
	db        Querier
	tableName string
}

// Compile-time check: Store must implement memory.Backend.
var _ memory.Backend = (*Store)(nil)

// Option configures optional Store behavior.
type Option func(*Store)

// WithTableName overrides the default table name ("chat_messages").
// The name is sanitized via pgx.Identifier to prevent SQL injection,
// since it is interpolated into queries via fmt.Sprintf.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
	}
}

// New creates a PostgreSQL-backed session backend. The db parameter must be
// a pgx-compatible query executor (typically *pgxpool.Pool).
func New(db Querier, opts ...Option) *Store {
	s := &Store{
		db:        db,
		tableName: DefaultTableName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the messages stored for id ordered by seq.
// Returns an empty non-nil slice when the session has no rows.
func (s *Store) Load(ctx context.Context, id string) ([]ai.Message, error) {
	query := fmt.Sprintf(`SELECT role, content, created_at
		FROM %s WHERE session_id = $1 ORDER BY seq ASC`, s.tableName)

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("pgmemory: load: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Save replaces the rows of id with messages. With a TxQuerier the delete
// and the inserts run in one transaction that is rolled back on any error.
func (s *Store) Save(ctx context.Context, id string, messages []ai.Message) error {
	txDB, ok := s.db.(TxQuerier)
	if !ok {
		return s.replace(ctx, s.db, id, messages)
	}

	tx, err := txDB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgmemory: save begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := s.replace(ctx, tx, id, messages); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgmemory: save commit tx: %w", err)
	}
	return nil
}

func (s *Store) replace(ctx context.Context, q Querier, id string, messages []ai.Message) error {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, s.tableName)
	if _, err := q.Exec(ctx, deleteQuery, id); err != nil {
		return fmt.Errorf("pgmemory: save delete: %w", err)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s (session_id, seq, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`, s.tableName)
	for seq, m := range messages {
		if _, err := q.Exec(ctx, insertQuery, id, seq, string(m.Role), m.Content, createdAt(m)); err != nil {
			return fmt.Errorf("pgmemory: save insert seq %d: %w", seq, err)
		}
	}
	return nil
}

// Clear deletes all rows for id.
func (s *Store) Clear(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, s.tableName)
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("pgmemory: clear: %w", err)
	}
	return nil
}

// Count returns the number of messages stored for id.
func (s *Store) Count(ctx context.Context, id string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE session_id = $1`, s.tableName)

	var count int
	if err := s.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgmemory: count: %w", err)
	}
	return count, nil
}

// scanMessages iterates over pgx.Rows and returns a slice of ai.Message.
// Returns an empty non-nil slice when no rows are present.
func scanMessages(rows pgx.Rows) ([]ai.Message, error) {
	messages := []ai.Message{}

	for rows.Next() {
		var role, content string
		var at time.Time
		if err := rows.Scan(&role, &content, &at); err != nil {
			return nil, fmt.Errorf("pgmemory: scan row: %w", err)
		}
		messages = append(messages, ai.NewMessage(ai.MessageRole(role), content, at.UTC()))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgmemory: iterate rows: %w", err)
	}
	return messages, nil
}

// createdAt maps a zero timestamp to now so the NOT NULL column is always set.
func createdAt(m ai.Message) time.Time {
	if m.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return m.Timestamp
}
