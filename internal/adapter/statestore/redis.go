package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 10 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
	defaultOpTimeout     time.Duration = 500 * time.Millisecond
)

// kv is the subset of the Redis client the store needs.
type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// clientAdapter wraps a go-redis client to implement kv.
type clientAdapter struct {
	client *goredis.Client
}

func (c *clientAdapter) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *clientAdapter) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, 0).Err()
}

func (c *clientAdapter) Close() error { return c.client.Close() }

// RedisStore is the shared state store backed by Redis. Calls pass through a
// circuit breaker: once Redis has failed repeatedly, reads and writes fail
// fast with ErrStateUnavailable instead of stalling the polling loops.
type RedisStore struct {
	client  kv
	breaker *gobreaker.CircuitBreaker[string]
	timeout time.Duration
	logger  *slog.Logger
}

var _ domain.StateStore = (*RedisStore)(nil)

// DialRedis connects to the configured Redis URL and verifies it with PING.
func DialRedis(ctx context.Context, cfg config.StateConfig, logger *slog.Logger) (*RedisStore, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse state redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, domain.NewSubSystemError("state", "DialRedis", domain.ErrStateUnavailable, err.Error())
	}
	return newRedisStore(&clientAdapter{client: rdb}, cfg, logger), nil
}

func newRedisStore(client kv, cfg config.StateConfig, logger *slog.Logger) *RedisStore {
	maxFailures := cfg.CircuitBreaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.CircuitBreaker.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.CircuitBreaker.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}
	opTimeout := cfg.Timeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	enabled := cfg.CircuitBreaker.Enabled

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "state:redis",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return enabled && counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A missing key is an answer, not an outage.
			return err == nil || errors.Is(err, goredis.Nil)
		},
	})

	return &RedisStore{client: client, breaker: cb, timeout: opTimeout, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.breaker.Execute(func() (string, error) {
		return s.client.Get(ctx, key)
	})
	return v, s.mapErr("RedisStore.Get", key, err)
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.breaker.Execute(func() (string, error) {
		return "", s.client.Set(ctx, key, value)
	})
	return s.mapErr("RedisStore.Set", key, err)
}

func (s *RedisStore) mapErr(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.Nil):
		return domain.NewSubSystemError("state", op, domain.ErrNotFound, key)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.NewSubSystemError("state", op, domain.ErrStateUnavailable, "circuit open")
	default:
		return domain.NewSubSystemError("state", op, domain.ErrStateUnavailable, fmt.Sprintf("%s: %v", key, err))
	}
}

// State returns the breaker state for diagnostics.
func (s *RedisStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
