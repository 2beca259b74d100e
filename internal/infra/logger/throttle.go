package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttled rate-limits repeated log records per key. Polling loops use it so a
// line that fails every sample cannot flood the log.
type Throttled struct {
	logger *slog.Logger
	every  time.Duration
	burst  int

	mu       sync.Mutex
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	limiter    *rate.Limiter
	suppressed int
}

// NewThrottled returns a Throttled logger allowing burst records per key and
// then one record per interval.
func NewThrottled(logger *slog.Logger, every time.Duration, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		logger:   logger,
		every:    every,
		burst:    burst,
		limiters: make(map[string]*throttleEntry),
	}
}

// Warn logs at warn level unless key has exceeded its rate. When a record is
// emitted after suppression, a "suppressed" attribute carries the skipped count.
func (t *Throttled) Warn(key, msg string, args ...any) {
	t.log(slog.LevelWarn, key, msg, args...)
}

// Error is Warn at error level.
func (t *Throttled) Error(key, msg string, args ...any) {
	t.log(slog.LevelError, key, msg, args...)
}

func (t *Throttled) log(level slog.Level, key, msg string, args ...any) {
	t.mu.Lock()
	e, ok := t.limiters[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.every), t.burst)}
		t.limiters[key] = e
	}
	if !e.limiter.Allow() {
		e.suppressed++
		t.mu.Unlock()
		return
	}
	suppressed := e.suppressed
	e.suppressed = 0
	t.mu.Unlock()

	if suppressed > 0 {
		args = append(args, "suppressed", suppressed)
	}
	t.logger.Log(context.Background(), level, msg, args...)
}

// Suppressed returns the number of records dropped for key since the last emitted one.
func (t *Throttled) Suppressed(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.limiters[key]; ok {
		return e.suppressed
	}
	return 0
}
