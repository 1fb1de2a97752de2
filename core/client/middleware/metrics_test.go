package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leofalp/chatkeeper/internal/metrics"
	"github.com/leofalp/chatkeeper/providers/ai"
)

func scrape(t *testing.T, recorder *metrics.Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestMetricsMiddleware_Success(t *testing.T) {
	recorder := metrics.New()
	send := NewMetricsMiddleware(recorder)(okNext)

	if _, err := send(context.Background(), ai.ChatRequest{Model: "test-model"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := scrape(t, recorder)
	for _, want := range []string{
		`chatkeeper_generation_requests_total{model="test-model",outcome="success"} 1`,
		`chatkeeper_generation_tokens_total{kind="prompt",model="test-model"} 10`,
		`chatkeeper_generation_tokens_total{kind="completion",model="test-model"} 5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition:\n%s", want, body)
		}
	}
}

func TestMetricsMiddleware_ErrorAndTimeout(t *testing.T) {
	recorder := metrics.New()
	next := func(ctx context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New("boom")
	}
	send := NewMetricsMiddleware(recorder)(next)

	if _, err := send(context.Background(), ai.ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if _, err := send(ctx, ai.ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected error")
	}

	body := scrape(t, recorder)
	for _, want := range []string{
		`chatkeeper_generation_requests_total{model="m",outcome="error"} 1`,
		`chatkeeper_generation_requests_total{model="m",outcome="timeout"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition:\n%s", want, body)
		}
	}
}

func TestMetricsMiddleware_NilRecorder(t *testing.T) {
	called := false
	next := func(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
		called = true
		return &ai.ChatResponse{}, nil
	}
	if _, err := NewMetricsMiddleware(nil)(next)(context.Background(), ai.ChatRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected next to be called")
	}
}
