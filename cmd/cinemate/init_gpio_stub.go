//go:build !edge

package main

import (
	"log/slog"

	"cinemate/internal/adapter/gpio"
	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
)

// openLineProvider always returns the mock provider in non-edge builds.
func openLineProvider(cfg config.GPIOConfig, log *slog.Logger) domain.LineProvider {
	if cfg.Backend != "mock" {
		log.Warn("gpio backend needs an edge build, using mock backend", "backend", cfg.Backend)
	}
	return gpio.NewMockProvider()
}
