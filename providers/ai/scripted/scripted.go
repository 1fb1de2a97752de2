// Package scripted provides an [ai.Provider] that replays canned replies.
// It backs the offline chat mode of the CLI and the turn tests.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/leofalp/chatkeeper/providers/ai"
)

// ErrNoScript is returned when no script is left and no fallback is set.
var ErrNoScript = errors.New("scripted: no script matches the request")

// Script is one scripted reaction to a request.
type Script struct {
	Reply string        // Reply content
	Err   error         // Error returned instead of a reply
	Delay time.Duration // Wait before answering; cut short by context cancellation

	// Repeatable scripts are never consumed.
	Repeatable bool
}

// Provider replays scripts in order. It is safe for concurrent use.
type Provider struct {
	mu       sync.Mutex
	scripts  []Script
	next     int
	fallback *Script
	calls    []ai.ChatRequest
}

// Option configures a Provider.
type Option func(*Provider)

// WithFallback sets the script used once the queue is exhausted.
func WithFallback(s Script) Option {
	return func(p *Provider) {
		p.fallback = &s
	}
}

// WithEcho makes the fallback repeat the last requester turn.
func WithEcho() Option {
	return func(p *Provider) {
		p.fallback = &Script{Repeatable: true}
	}
}

// New returns a provider answering with the given scripts.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add appends a script to the queue.
func (p *Provider) Add(s Script) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, s)
	return p
}

// AddReply queues a plain text reply.
func (p *Provider) AddReply(reply string) *Provider {
	return p.Add(Script{Reply: reply})
}

// AddError queues a failure.
func (p *Provider) AddError(err error) *Provider {
	return p.Add(Script{Err: err})
}

// Calls returns a copy of every request received so far.
func (p *Provider) Calls() []ai.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ai.ChatRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// SendMessage implements ai.Provider.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	script, fromFallback, err := p.pick(request)
	if err != nil {
		return nil, err
	}

	if script.Delay > 0 {
		timer := time.NewTimer(script.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if script.Err != nil {
		return nil, script.Err
	}

	reply := script.Reply
	if reply == "" && fromFallback {
		reply = echo(request)
	}

	return &ai.ChatResponse{
		Id:           fmt.Sprintf("scripted-%d", time.Now().UnixNano()),
		Model:        "scripted",
		Content:      reply,
		FinishReason: "stop",
	}, nil
}

// pick records the call and returns the script to play.
func (p *Provider) pick(request ai.ChatRequest) (Script, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, request)

	if p.next < len(p.scripts) {
		s := p.scripts[p.next]
		if !s.Repeatable {
			p.next++
		}
		return s, false, nil
	}
	if p.fallback != nil {
		return *p.fallback, true, nil
	}
	return Script{}, false, ErrNoScript
}

func echo(request ai.ChatRequest) string {
	for i := len(request.Turns) - 1; i >= 0; i-- {
		if request.Turns[i].Party == ai.PartyRequester {
			return request.Turns[i].Text
		}
	}
	return ""
}

// WithAPIKey is a no-op.
func (p *Provider) WithAPIKey(string) ai.Provider { return p }

// WithBaseURL is a no-op.
func (p *Provider) WithBaseURL(string) ai.Provider { return p }

// WithHttpClient is a no-op.
func (p *Provider) WithHttpClient(*http.Client) ai.Provider { return p }
