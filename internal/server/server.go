// Package server exposes the chat orchestrator over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leofalp/chatkeeper/core/session"
	"github.com/leofalp/chatkeeper/core/turn"
	"github.com/leofalp/chatkeeper/internal/metrics"
)

// Relay delivers a reply to a messaging platform.
type Relay interface {
	ReplyText(ctx context.Context, replyToken, text string) error
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server dependencies. Orchestrator is required.
type Options struct {
	Orchestrator *turn.Orchestrator

	// DefaultInstruction is used by PUT /sessions/:id when the body names none.
	DefaultInstruction string

	// DefaultSession is used by POST /chat when the body names no session.
	DefaultSession string

	// Relay and ChannelSecret serve POST /webhook. A nil Relay disables the route.
	Relay         Relay
	ChannelSecret string

	Metrics *metrics.Recorder
	Health  Pinger
	Logger  *slog.Logger
}

// Server holds the gin engine and its dependencies.
type Server struct {
	engine *gin.Engine

	turns              *turn.Orchestrator
	sessions           *session.Store
	defaultInstruction string
	defaultSession     string
	relay              Relay
	channelSecret      string
	metrics            *metrics.Recorder
	health             Pinger
	logger             *slog.Logger
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		turns:              opts.Orchestrator,
		sessions:           opts.Orchestrator.Store(),
		defaultInstruction: opts.DefaultInstruction,
		defaultSession:     opts.DefaultSession,
		relay:              opts.Relay,
		channelSecret:      opts.ChannelSecret,
		metrics:            opts.Metrics,
		health:             opts.Health,
		logger:             logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	s.routes(r)
	s.engine = r
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.POST("/chat", s.chat)
	if s.relay != nil {
		r.POST("/webhook", s.webhook)
	}

	sessions := r.Group("/sessions/:id")
	sessions.PUT("", s.initializeSession)
	sessions.GET("/history", s.sessionHistory)
	sessions.POST("/clear", s.clearSession)
	sessions.DELETE("", s.deleteSession)
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
