package pgmemory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/leofalp/chatkeeper/providers/ai"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

// TestNew_Defaults verifies that New applies the default table name.
func TestNew_Defaults(t *testing.T) {
	store := New(newMock(t))
	if store.tableName != DefaultTableName {
		t.Fatalf("expected default table name %q, got %q", DefaultTableName, store.tableName)
	}
}

// TestNew_WithTableName verifies that WithTableName overrides the default
// and sanitizes the name via pgx.Identifier.
func TestNew_WithTableName(t *testing.T) {
	store := New(newMock(t), WithTableName("custom_table"))

	// pgx.Identifier.Sanitize() quotes the name: "custom_table"
	expected := `"custom_table"`
	if store.tableName != expected {
		t.Fatalf("expected table name %q, got %q", expected, store.tableName)
	}
}

// TestLoad_OrderedRows verifies that Load selects by session ordered by seq
// and maps each row to a message.
func TestLoad_OrderedRows(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("SELECT role, content, created_at").
		WithArgs("session-1").
		WillReturnRows(
			pgxmock.NewRows([]string{"role", "content", "created_at"}).
				AddRow("system", "S", at).
				AddRow("user", "hi", at.Add(time.Second)),
		)

	got, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Role != ai.RoleSystem || got[1].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if !got[1].Timestamp.Equal(at.Add(time.Second)) {
		t.Fatalf("unexpected timestamp: %v", got[1].Timestamp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestLoad_UnknownSessionIsEmpty verifies the empty non-nil slice contract.
func TestLoad_UnknownSessionIsEmpty(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("SELECT role, content, created_at").
		WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}))

	got, err := store.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

// TestLoad_QueryError verifies that query failures are wrapped.
func TestLoad_QueryError(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("SELECT role").WillReturnError(fmt.Errorf("connection reset"))

	_, err := store.Load(context.Background(), "session-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestSave_Transaction verifies the delete-then-insert sequence inside one
// transaction, with seq following slice order.
func TestSave_Transaction(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	messages := []ai.Message{
		ai.NewMessage(ai.RoleSystem, "S", at),
		ai.NewMessage(ai.RoleUser, "hi", at.Add(time.Second)),
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("session-1", 0, "system", "S", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("session-1", 1, "user", "hi", at.Add(time.Second)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := store.Save(context.Background(), "session-1", messages); err != nil {
		t.Fatalf("Save returned unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestSave_InsertErrorRollsBack verifies that a failed insert rolls the
// transaction back, leaving the previous rows in place.
func TestSave_InsertErrorRollsBack(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO chat_messages").
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), "session-1", []ai.Message{ai.NewMessage(ai.RoleSystem, "S", at)})
	if err == nil {
		t.Fatal("expected error from insert, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestSave_BeginError verifies that a Begin failure is returned before any statement runs.
func TestSave_BeginError(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectBegin().WillReturnError(fmt.Errorf("begin failed"))

	if err := store.Save(context.Background(), "session-1", nil); err == nil {
		t.Fatal("expected error from Begin, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestSave_CommitError verifies that a Commit failure is surfaced.
func TestSave_CommitError(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit().WillReturnError(fmt.Errorf("commit failed"))

	err := store.Save(context.Background(), "session-1", nil)
	if err == nil {
		t.Fatal("expected error from Commit, got nil")
	}
	if !strings.Contains(err.Error(), "commit failed") {
		t.Errorf("expected 'commit failed' error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestSave_WithoutTxQuerier verifies that Save runs the statements directly
// on a plain Querier, such as a caller-owned pgx.Tx.
func TestSave_WithoutTxQuerier(t *testing.T) {
	q := &onlyQuerier{}
	store := New(q)

	err := store.Save(context.Background(), "session-1", []ai.Message{
		ai.NewMessage(ai.RoleSystem, "S", at),
		ai.NewMessage(ai.RoleUser, "hi", at),
	})
	if err != nil {
		t.Fatalf("Save returned unexpected error: %v", err)
	}
	if q.execCalls != 3 {
		t.Fatalf("expected 1 delete and 2 inserts, got %d exec calls", q.execCalls)
	}

	q.execErr = errors.New("boom")
	if err := store.Save(context.Background(), "session-1", nil); err == nil {
		t.Fatal("expected exec error to be returned")
	}
}

// TestClear_ExecutesDelete verifies that Clear issues a DELETE for the session.
func TestClear_ExecutesDelete(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	if err := store.Clear(context.Background(), "session-1"); err != nil {
		t.Fatalf("Clear returned unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestCount verifies the COUNT query wiring.
func TestCount(t *testing.T) {
	mock := newMock(t)
	store := New(mock)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("session-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))

	n, err := store.Count(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Count returned unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
}

// TestEnsureSchema verifies that EnsureSchema uses the configured table name.
func TestEnsureSchema(t *testing.T) {
	mock := newMock(t)
	store := New(mock, WithTableName("alt_messages"))

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "alt_messages"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema returned unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// onlyQuerier is a hand-written stub that implements Querier but NOT TxQuerier
// (no Begin method).
type onlyQuerier struct {
	execCalls int
	execErr   error
}

func (q *onlyQuerier) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	q.execCalls++
	return pgconn.CommandTag{}, q.execErr
}

func (q *onlyQuerier) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *onlyQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}
