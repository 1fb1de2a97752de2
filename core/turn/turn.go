// Package turn runs one conversational turn: the user message is recorded,
// the history is formatted and sent to the generation capability, and the
// reply is recorded.
//
// A generation failure never fails the turn. The caller gets a Reply with
// StatusError, the configured fallback text and the upstream cause, and the
// history keeps the user message without an assistant answer.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/leofalp/chatkeeper/core/chaterr"
	"github.com/leofalp/chatkeeper/core/client"
	"github.com/leofalp/chatkeeper/core/format"
	"github.com/leofalp/chatkeeper/core/session"
	"github.com/leofalp/chatkeeper/internal/metrics"
	"github.com/leofalp/chatkeeper/providers/ai"
)

// DefaultFallback is returned as the reply text when generation fails.
const DefaultFallback = "Sorry, I encountered an error while processing your request."

// Status tags the outcome of a turn.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrEmptyReply is the upstream cause recorded when the capability answers
// with no content.
var ErrEmptyReply = errors.New("turn: generation returned an empty reply")

// Reply is the result of one turn.
type Reply struct {
	Status  Status
	Message string

	// Err is set when Status is StatusError.
	Err *chaterr.Error
}

// Orchestrator runs turns against a session store.
type Orchestrator struct {
	store     *session.Store
	formatter *format.Formatter
	send      client.SendFunc

	fallback    string
	model       string
	maxTokens   int
	temperature *float32

	logger  *slog.Logger
	metrics *metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFallback sets the reply text used when generation fails.
func WithFallback(text string) Option {
	return func(o *Orchestrator) {
		if text != "" {
			o.fallback = text
		}
	}
}

// WithModel sets the model requested from the capability. When empty the
// client default applies.
func WithModel(model string) Option {
	return func(o *Orchestrator) {
		o.model = model
	}
}

// WithMaxOutputTokens bounds the length of generated replies.
func WithMaxOutputTokens(n int) Option {
	return func(o *Orchestrator) {
		o.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature. Zero is sent as is.
func WithTemperature(t float32) Option {
	return func(o *Orchestrator) {
		o.temperature = &t
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records turn outcomes on recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = recorder
	}
}

// New returns an Orchestrator. send is usually client.Client.Send(), so the
// middleware chain (timeout, logging, metrics) applies to every call.
func New(store *session.Store, formatter *format.Formatter, send client.SendFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		formatter: formatter,
		send:      send,
		fallback:  DefaultFallback,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the session store the orchestrator writes to.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// SendMessage runs one turn for session id. The session lock is held for the
// whole turn, so turns of one session are serialized while turns of
// different sessions run concurrently.
//
// The returned error is non-nil only for validation, not-found and
// persistence failures. Generation failures are reported in the Reply.
func (o *Orchestrator) SendMessage(ctx context.Context, id, text string) (Reply, error) {
	const op = "turn.send"

	var reply Reply
	err := o.store.Exclusive(ctx, id, func(tx *session.Tx) error {
		if err := tx.Append(ctx, ai.RoleUser, text); err != nil {
			return err
		}

		history, err := tx.History(ctx)
		if err != nil {
			return err
		}
		conv, err := o.formatter.Format(history)
		if err != nil {
			return err
		}

		start := time.Now()
		content, genErr := o.generate(ctx, conv)
		if genErr != nil {
			reply = o.failed(ctx, op, id, genErr, time.Since(start))
			return nil
		}

		if err := tx.Append(ctx, ai.RoleAssistant, content); err != nil {
			return err
		}
		reply = Reply{Status: StatusSuccess, Message: content}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	o.metrics.ObserveTurn(string(reply.Status))
	return reply, nil
}

func (o *Orchestrator) generate(ctx context.Context, conv format.Conversation) (string, error) {
	request := ai.ChatRequest{
		Model:       o.model,
		Instruction: conv.Instruction,
		Turns:       conv.Turns,
	}
	if o.maxTokens > 0 || o.temperature != nil {
		request.GenerationConfig = &ai.GenerationConfig{
			MaxOutputTokens: o.maxTokens,
			Temperature:     o.temperature,
		}
	}

	response, err := o.send(ctx, request)
	if err != nil {
		return "", err
	}
	// A reply that arrives after cancellation is discarded.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyReply
	}
	return response.Content, nil
}

func (o *Orchestrator) failed(ctx context.Context, op, id string, cause error, elapsed time.Duration) Reply {
	e := chaterr.New(chaterr.KindUpstream, op, id, cause)
	o.logger.WarnContext(ctx, "generation failed",
		slog.String("session_id", id),
		slog.String("kind", string(e.Kind)),
		slog.Duration("duration", elapsed),
		slog.String("error", cause.Error()),
	)
	return Reply{Status: StatusError, Message: o.fallback, Err: e}
}
