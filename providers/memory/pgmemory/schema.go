package pgmemory

import (
	"context"
	"fmt"
)

// createTableSQL mirrors the embedded migration for an arbitrary table name.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    session_id TEXT        NOT NULL,
    seq        INTEGER     NOT NULL,
    role       TEXT        NOT NULL,
    content    TEXT        NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session_id, seq)
)`

// EnsureSchema creates the store's table if it does not already exist.
// Deployments using the default table should prefer [Migrate].
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createTableSQL, s.tableName)); err != nil {
		return fmt.Errorf("pgmemory: create table: %w", err)
	}
	return nil
}
