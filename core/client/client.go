package client

import (
	"context"
	"errors"

	"github.com/leofalp/chatkeeper/providers/ai"
)

// ErrNilProvider is returned by New when no provider is given.
var ErrNilProvider = errors.New("client: provider is nil")

// Client sends single generation requests through a middleware chain.
// It holds no conversation state; history lives in the session store.
type Client struct {
	provider     ai.Provider
	middlewares  []Middleware
	defaultModel string
	send         SendFunc
}

// Option configures a Client.
type Option func(*Client)

// WithMiddleware appends middlewares to the chain. The first one given is
// the outermost.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, middlewares...)
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) Option {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// New builds a Client over provider.
func New(provider ai.Provider, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}

	c := &Client{provider: provider}
	for _, opt := range opts {
		opt(c)
	}

	c.send = Chain(provider.SendMessage, c.middlewares...)
	return c, nil
}

// SendMessage sends request through the chain.
func (c *Client) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	if request.Model == "" {
		request.Model = c.defaultModel
	}
	return c.send(ctx, request)
}

// Send returns SendMessage as a SendFunc, ready to hand to the orchestrator.
func (c *Client) Send() SendFunc {
	return c.SendMessage
}
