package middleware

import (
	"context"
	"time"

	"github.com/leofalp/chatkeeper/core/client"
	"github.com/leofalp/chatkeeper/providers/ai"
)

// NewTimeoutMiddleware creates a Middleware that enforces a per-request
// deadline on provider calls.
//
// The implementation wraps the context with context.WithTimeout and defers
// cancel(): the context is canceled once the provider returns or the deadline
// expires. If the caller supplies a context that already has a shorter
// deadline, that shorter deadline wins as per normal context semantics.
// A non-positive timeout disables the middleware.
func NewTimeoutMiddleware(timeout time.Duration) client.Middleware {
	return func(next client.SendFunc) client.SendFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next(ctx, request)
		}
	}
}
