// Package storage opens the persistence backend selected by configuration
// and owns the connections behind it.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/leofalp/chatkeeper/internal/config"
	"github.com/leofalp/chatkeeper/providers/memory"
	"github.com/leofalp/chatkeeper/providers/memory/inmemory"
	"github.com/leofalp/chatkeeper/providers/memory/pgmemory"
	"github.com/leofalp/chatkeeper/providers/memory/redismemory"
)

// Backend names accepted by storage.backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const baseBackoff = 200 * time.Millisecond

// Storage is an opened persistence backend.
type Storage struct {
	memory.Backend

	name  string
	ping  func(ctx context.Context) error
	close func()
}

// Name returns the backend name.
func (s *Storage) Name() string {
	return s.name
}

// Ping checks that the backend is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend connections.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects the configured backend. Connection attempts are retried with
// exponential backoff for up to cfg.ConnectTimeout.
func Open(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return &Storage{Backend: inmemory.New(), name: BackendMemory}, nil
	case BackendPostgres:
		return openPostgres(ctx, cfg, logger)
	case BackendRedis:
		return openRedis(ctx, cfg, logger)
	}
	return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
}

func openPostgres(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres dsn: %w", err)
	}
	if cfg.PostgresMaxConns > 0 {
		poolCfg.MaxConns = cfg.PostgresMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: new postgres pool: %w", err)
	}
	if err := waitReady(ctx, cfg.ConnectTimeout, logger, BackendPostgres, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}

	store := pgmemory.New(pool, pgmemory.WithTableName(cfg.PostgresTable))
	if cfg.AutoMigrate {
		if err := migrate(ctx, cfg, store); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.InfoContext(ctx, "storage ready",
		slog.String("backend", BackendPostgres),
		slog.String("table", cfg.PostgresTable),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return &Storage{Backend: store, name: BackendPostgres, ping: pool.Ping, close: pool.Close}, nil
}

// migrate applies the versioned migrations for the default table, and
// creates a custom table in place.
func migrate(ctx context.Context, cfg config.Storage, store *pgmemory.Store) error {
	if cfg.PostgresTable == "" || cfg.PostgresTable == pgmemory.DefaultTableName {
		if err := pgmemory.Migrate(ctx, cfg.PostgresDSN); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		return nil
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

func openRedis(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*Storage, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	ping := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	if err := waitReady(ctx, cfg.ConnectTimeout, logger, BackendRedis, ping); err != nil {
		client.Close()
		return nil, err
	}

	opts := []redismemory.Option{redismemory.WithTTL(cfg.RedisTTL)}
	if cfg.RedisKeyPrefix != "" {
		opts = append(opts, redismemory.WithKeyPrefix(cfg.RedisKeyPrefix))
	}

	logger.InfoContext(ctx, "storage ready",
		slog.String("backend", BackendRedis),
		slog.Int("db", client.Options().DB),
		slog.Duration("ttl", cfg.RedisTTL),
	)
	return &Storage{
		Backend: redismemory.New(client, opts...),
		name:    BackendRedis,
		ping:    ping,
		close:   func() { client.Close() },
	}, nil
}

// NewRedisClient builds a client from a host:port address or a redis:// URL.
// A URL that names no database selects cfg.RedisDB; one that does keeps its own.
func NewRedisClient(cfg config.Storage) (*redis.Client, error) {
	if strings.HasPrefix(cfg.RedisAddr, "redis://") || strings.HasPrefix(cfg.RedisAddr, "rediss://") {
		opt, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("storage: parse redis url: %w", err)
		}
		if cfg.RedisPassword != "" {
			opt.Password = cfg.RedisPassword
		}
		if !urlNamesDB(cfg.RedisAddr) {
			opt.DB = cfg.RedisDB
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}), nil
}

func urlNamesDB(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Trim(u.Path, "/") != "" || u.Query().Has("db")
}

// waitReady pings until success, ctx cancellation, or timeout.
func waitReady(ctx context.Context, timeout time.Duration, logger *slog.Logger, backend string, ping func(context.Context) error) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := retry.WithMaxDuration(timeout, retry.NewExponential(baseBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := ping(pingCtx); err != nil {
			logger.WarnContext(ctx, "storage not ready",
				slog.String("backend", backend),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: %s unreachable after %d attempts: %w", backend, attempt, err)
	}
	return nil
}
