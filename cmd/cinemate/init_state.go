package main

import (
	"context"
	"log/slog"
	"time"

	"cinemate/internal/adapter/statestore"
	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
)

// openStateStore connects the shared state store. An unreachable Redis
// server degrades to a process-local store.
func openStateStore(ctx context.Context, cfg config.StateConfig, log *slog.Logger) (domain.StateStore, func() error) {
	if cfg.Backend == "memory" {
		log.Info("state store: memory")
		return statestore.NewMemoryStore(), func() error { return nil }
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rs, err := statestore.DialRedis(dialCtx, cfg, log)
	if err != nil {
		log.Error("state store unavailable, using memory store", "url", cfg.URL, "error", err, "code", domain.ErrorCodeOf(err))
		return statestore.NewMemoryStore(), func() error { return nil }
	}
	log.Info("state store: redis", "url", cfg.URL)
	return rs, rs.Close
}
