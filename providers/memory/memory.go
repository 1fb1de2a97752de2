package memory

import (
	"context"

	"github.com/leofalp/chatkeeper/providers/ai"
)

// Backend persists the message sequence of each session.
//
// Implementations hold no session semantics of their own: retention,
// locking and validation live in the session store above them.
type Backend interface {
	// Load returns the stored sequence for id, in order. An unknown id
	// yields an empty, non-nil slice and no error.
	Load(ctx context.Context, id string) ([]ai.Message, error)

	// Save replaces the stored sequence for id. The replacement is atomic:
	// on error the previous sequence is still the stored one.
	Save(ctx context.Context, id string, messages []ai.Message) error

	// Clear removes every message stored for id. Clearing an unknown id is
	// not an error.
	Clear(ctx context.Context, id string) error
}
