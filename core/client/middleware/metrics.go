package middleware

import (
	"context"
	"time"

	"github.com/leofalp/chatkeeper/core/client"
	"github.com/leofalp/chatkeeper/internal/metrics"
	"github.com/leofalp/chatkeeper/providers/ai"
)

// Outcome labels recorded by the metrics middleware.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// NewMetricsMiddleware creates a Middleware that records the outcome, latency
// and token usage of every provider call on recorder. A nil recorder makes
// the middleware a pass-through.
func NewMetricsMiddleware(recorder *metrics.Recorder) client.Middleware {
	return func(next client.SendFunc) client.SendFunc {
		if recorder == nil {
			return next
		}
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			start := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(start)

			var prompt, completion int
			if response != nil && response.Usage != nil {
				prompt = response.Usage.PromptTokens
				completion = response.Usage.CompletionTokens
			}
			recorder.ObserveGeneration(request.Model, outcome(ctx, err), elapsed, prompt, completion)

			return response, err
		}
	}
}

func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case ctx.Err() != nil:
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
