package client

import (
	"context"

	"github.com/leofalp/chatkeeper/providers/ai"
)

// SendFunc is a function that sends a chat request to the generation provider
// and returns the completed response. It is the base unit threaded through the
// middleware chain.
type SendFunc func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error)

// Middleware intercepts and optionally transforms send requests and responses.
// Each Middleware receives the next SendFunc in the chain and returns a new
// SendFunc that wraps it.
type Middleware func(next SendFunc) SendFunc

// Chain wraps base with middlewares. Middlewares are applied in reverse so
// that middlewares[0] is the outermost wrapper, i.e. the first to execute on
// an incoming request. Nil entries are skipped.
func Chain(base SendFunc, middlewares ...Middleware) SendFunc {
	chain := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			chain = middlewares[i](chain)
		}
	}
	return chain
}
