package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/leofalp/chatkeeper/core/client"
	"github.com/leofalp/chatkeeper/core/client/middleware"
	"github.com/leofalp/chatkeeper/core/format"
	"github.com/leofalp/chatkeeper/core/session"
	"github.com/leofalp/chatkeeper/core/turn"
	"github.com/leofalp/chatkeeper/internal/config"
	"github.com/leofalp/chatkeeper/internal/logging"
	"github.com/leofalp/chatkeeper/internal/metrics"
	"github.com/leofalp/chatkeeper/internal/storage"
	"github.com/leofalp/chatkeeper/providers/ai"
	"github.com/leofalp/chatkeeper/providers/ai/gemini"
	"github.com/leofalp/chatkeeper/providers/ai/scripted"
)

// Provider names accepted by chat.provider.
const (
	providerGemini   = "gemini"
	providerScripted = "scripted"
)

var errMissingAPIKey = errors.New("gemini.api_key is required (set CHATKEEPER_GEMINI_API_KEY or GEMINI_API_KEY)")

// app is the wired object graph shared by the serve and chat commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	storage *storage.Storage
	store   *session.Store
	turns   *turn.Orchestrator
}

func newLogger(cfg *config.Config, out io.Writer) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: out,
	})
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	var recorder *metrics.Recorder
	if cfg.Server.Metrics {
		recorder = metrics.New()
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	c, err := client.New(provider,
		client.WithDefaultModel(cfg.Gemini.Model),
		client.WithMiddleware(
			middleware.NewTimeoutMiddleware(cfg.Chat.GenerationTimeout),
			middleware.NewMetricsMiddleware(recorder),
			middleware.NewLoggingMiddleware(logger, middleware.LogLevelStandard),
		),
	)
	if err != nil {
		return nil, err
	}

	strategy, err := format.ParseStrategy(cfg.Chat.FormatStrategy)
	if err != nil {
		return nil, err
	}
	formatter, err := format.New(strategy)
	if err != nil {
		return nil, err
	}

	st, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithRetentionLimit(cfg.Chat.RetentionLimit),
		session.WithLogger(logger),
	}
	if cfg.Chat.LazyInit {
		opts = append(opts, session.WithLazyInit(cfg.Chat.SystemInstruction))
	}
	store := session.New(st, opts...)

	turns := turn.New(store, formatter, c.Send(),
		turn.WithModel(cfg.Gemini.Model),
		turn.WithMaxOutputTokens(cfg.Chat.MaxOutputTokens),
		turn.WithTemperature(float32(cfg.Chat.Temperature)),
		turn.WithFallback(cfg.Chat.Fallback),
		turn.WithLogger(logger),
		turn.WithMetrics(recorder),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: recorder,
		storage: st,
		store:   store,
		turns:   turns,
	}, nil
}

func newProvider(cfg *config.Config) (ai.Provider, error) {
	switch cfg.Chat.Provider {
	case providerScripted:
		return scripted.New(scripted.WithEcho()), nil
	case providerGemini, "":
		if cfg.Gemini.APIKey == "" {
			return nil, errMissingAPIKey
		}
		p := gemini.New().WithAPIKey(cfg.Gemini.APIKey)
		if cfg.Gemini.BaseURL != "" {
			p = p.WithBaseURL(cfg.Gemini.BaseURL)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Chat.Provider)
}

func (a *app) Close() {
	a.storage.Close()
}
