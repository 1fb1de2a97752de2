package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/chatkeeper/core/chaterr"
	"github.com/leofalp/chatkeeper/core/format"
	"github.com/leofalp/chatkeeper/core/session"
	"github.com/leofalp/chatkeeper/core/turn"
	"github.com/leofalp/chatkeeper/internal/metrics"
	"github.com/leofalp/chatkeeper/providers/ai"
	"github.com/leofalp/chatkeeper/providers/ai/scripted"
	"github.com/leofalp/chatkeeper/providers/memory/inmemory"
	"github.com/leofalp/chatkeeper/providers/messaging/line"
)

type relayCall struct {
	token string
	text  string
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []relayCall
	err   error
}

func (r *fakeRelay) ReplyText(_ context.Context, token, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, relayCall{token: token, text: text})
	return r.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fixture struct {
	server   *Server
	store    *session.Store
	provider *scripted.Provider
	relay    *fakeRelay
	metrics  *metrics.Recorder
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.New(inmemory.New(), session.WithLazyInit("You are a helpful assistant."))
	formatter, err := format.New(format.Structured)
	require.NoError(t, err)
	provider := scripted.New()
	recorder := metrics.New()
	relay := &fakeRelay{}

	opts := Options{
		Orchestrator:       turn.New(store, formatter, provider.SendMessage, turn.WithMetrics(recorder)),
		DefaultInstruction: "You are a helpful assistant.",
		DefaultSession:     "default",
		Relay:              relay,
		Metrics:            recorder,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := New(opts)
	require.NoError(t, err)

	return &fixture{server: srv, store: store, provider: provider, relay: relay, metrics: recorder}
}

func (f *fixture) do(method, path string, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNew_RequiresOrchestrator(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestChat(t *testing.T) {
	t.Run("Should return the generated reply", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.AddReply("Three noodles coming up.")

		w := f.do(http.MethodPost, "/chat", `{"session_id":"s1","message":"order 3 noodles"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "Three noodles coming up.", body["response"])
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("Should return the fallback when generation fails", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.AddError(errors.New("upstream down"))

		w := f.do(http.MethodPost, "/chat", `{"session_id":"s1","message":"order 3 noodles"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, turn.DefaultFallback, body["message"])

		history, err := f.store.History(context.Background(), "s1")
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, ai.RoleUser, last.Role)
		assert.Equal(t, "order 3 noodles", last.Content)
	})

	t.Run("Should reject a missing message", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(http.MethodPost, "/chat", `{"session_id":"s1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "error", decode(t, w)["status"])
	})

	t.Run("Should use the default session when none is named", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.AddReply("Hello!")

		w := f.do(http.MethodPost, "/chat", `{"message":"hi"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "Hello!", body["response"])

		history, err := f.store.History(context.Background(), "default")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "hi", history[1].Content)
	})

	t.Run("Should reject a missing session id without a default", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.DefaultSession = "" })
		w := f.do(http.MethodPost, "/chat", `{"message":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should return 404 for unknown sessions without lazy init", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		store := session.New(inmemory.New())
		formatter, _ := format.New(format.Structured)
		srv, err := New(Options{Orchestrator: turn.New(store, formatter, scripted.New(scripted.WithEcho()).SendMessage)})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"session_id":"nope","message":"hi"}`))
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWebhook(t *testing.T) {
	payload := `{"events":[{"type":"message","replyToken":"tok-1","source":{"type":"user","userId":"U1"},"message":{"id":"1","type":"text","text":"hello"}}]}`

	t.Run("Should run a turn and relay the reply", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.AddReply("Hi from the bot")

		w := f.do(http.MethodPost, "/webhook", payload)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "Webhook received", body["message"])
		require.Len(t, f.relay.calls, 1)
		assert.Equal(t, relayCall{token: "tok-1", text: "Hi from the bot"}, f.relay.calls[0])

		history, err := f.store.History(context.Background(), "line:U1")
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})

	t.Run("Should relay the turn fallback on generation failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.AddError(errors.New("down"))

		w := f.do(http.MethodPost, "/webhook", payload)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, f.relay.calls, 1)
		assert.Equal(t, turn.DefaultFallback, f.relay.calls[0].text)
	})

	t.Run("Should relay the webhook fallback when the turn is rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		blank := `{"events":[{"type":"message","replyToken":"tok-2","source":{"userId":"U2"},"message":{"type":"text","text":"  "}}]}`

		w := f.do(http.MethodPost, "/webhook", blank)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, f.relay.calls, 1)
		assert.Equal(t, RelayFallback, f.relay.calls[0].text)
	})

	t.Run("Should skip non-text events", func(t *testing.T) {
		f := newFixture(t, nil)
		follow := `{"events":[{"type":"follow","replyToken":"tok-3","source":{"userId":"U3"}}]}`

		w := f.do(http.MethodPost, "/webhook", follow)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, f.relay.calls)
		assert.Empty(t, f.provider.Calls())
	})

	t.Run("Should verify the signature when a secret is set", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.ChannelSecret = "secret" })
		f.provider.AddReply("ok")

		bad := f.do(http.MethodPost, "/webhook", payload, line.SignatureHeader, "bm9wZQ==")
		assert.Equal(t, http.StatusUnauthorized, bad.Code)
		assert.Empty(t, f.relay.calls)

		good := f.do(http.MethodPost, "/webhook", payload, line.SignatureHeader, line.Sign("secret", []byte(payload)))
		assert.Equal(t, http.StatusOK, good.Code)
		assert.Len(t, f.relay.calls, 1)
	})

	t.Run("Should reject malformed bodies", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(http.MethodPost, "/webhook", `{"events":[`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should not register the route without a relay", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Relay = nil })
		w := f.do(http.MethodPost, "/webhook", payload)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSessions(t *testing.T) {
	t.Run("Should initialize with the default instruction", func(t *testing.T) {
		f := newFixture(t, nil)

		w := f.do(http.MethodPut, "/sessions/s1", "")

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, "s1", body["session_id"])
		assert.Equal(t, "You are a helpful assistant.", body["system_instruction"])
		assert.Len(t, body["messages"], 1)
	})

	t.Run("Should initialize with a custom instruction", func(t *testing.T) {
		f := newFixture(t, nil)

		w := f.do(http.MethodPut, "/sessions/s1", `{"system_instruction":"Be terse."}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Be terse.", decode(t, w)["system_instruction"])
	})

	t.Run("Should reject a blank instruction without a default", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.DefaultInstruction = "" })

		w := f.do(http.MethodPut, "/sessions/s1", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		_, err := f.store.History(context.Background(), "s1")
		assert.ErrorIs(t, err, chaterr.ErrNotFound)
	})

	t.Run("Should return history, clear and delete", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		_, err := f.store.Initialize(ctx, "s1", "Be terse.")
		require.NoError(t, err)
		require.NoError(t, f.store.Append(ctx, "s1", ai.RoleUser, "hi"))

		history := f.do(http.MethodGet, "/sessions/s1/history", "")
		require.Equal(t, http.StatusOK, history.Code)
		messages := decode(t, history)["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "user", messages[1].(map[string]any)["role"])

		cleared := f.do(http.MethodPost, "/sessions/s1/clear", "")
		require.Equal(t, http.StatusOK, cleared.Code)
		after, err := f.store.History(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, after, 1)

		deleted := f.do(http.MethodDelete, "/sessions/s1", "")
		assert.Equal(t, http.StatusNoContent, deleted.Code)

		missing := f.do(http.MethodGet, "/sessions/s1/history", "")
		assert.Equal(t, http.StatusNotFound, missing.Code)
	})

	t.Run("Should return 404 for unknown sessions", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/sessions/ghost/clear", "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/sessions/ghost", "").Code)
	})

	t.Run("Should reject invalid bodies", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(http.MethodPut, "/sessions/s1", `{"system_instruction":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	t.Run("Should report healthy", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Health = fakePinger{} })
		w := f.do(http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should report an unreachable backend", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Health = fakePinger{err: errors.New("redis down")} })
		w := f.do(http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "redis down")
	})

	t.Run("Should expose request and turn metrics", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.AddReply("ok")
		f.do(http.MethodPost, "/chat", `{"session_id":"s1","message":"hi"}`)

		w := f.do(http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `chatkeeper_http_requests_total{code="200",method="POST",route="/chat"} 1`)
		assert.Contains(t, w.Body.String(), `chatkeeper_turns_total{status="success"} 1`)
	})

	t.Run("Should propagate a caller request id", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(http.MethodGet, "/healthz", "", RequestIDHeader, "req-42")
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: chaterr.Validation("op", "s1", "bad"), want: http.StatusBadRequest},
		{name: "not found", err: chaterr.New(chaterr.KindNotFound, "op", "s1", nil), want: http.StatusNotFound},
		{name: "persistence", err: chaterr.New(chaterr.KindPersistence, "op", "s1", errors.New("db")), want: http.StatusServiceUnavailable},
		{name: "upstream", err: chaterr.New(chaterr.KindUpstream, "op", "s1", errors.New("llm")), want: http.StatusInternalServerError},
		{name: "wrapped", err: fmt.Errorf("outer: %w", chaterr.New(chaterr.KindNotFound, "op", "s1", nil)), want: http.StatusNotFound},
		{name: "plain", err: errors.New("plain"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
