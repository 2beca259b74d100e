//go:build edge

package main

import (
	"log/slog"

	"cinemate/internal/adapter/gpio"
	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
)

// openLineProvider opens the configured GPIO backend. If the hardware cannot
// be initialised the rig runs on the mock provider so the rest of the
// process still comes up.
func openLineProvider(cfg config.GPIOConfig, log *slog.Logger) domain.LineProvider {
	var (
		p   domain.LineProvider
		err error
	)
	switch cfg.Backend {
	case "mock":
		log.Info("gpio backend: mock")
		return gpio.NewMockProvider()
	case "cdev":
		p, err = gpio.NewCdevProvider(cfg.Chip)
	default:
		p, err = gpio.NewPeriphProvider()
	}
	if err != nil {
		log.Warn("gpio init failed, using mock backend", "backend", cfg.Backend, "error", err)
		return gpio.NewMockProvider()
	}
	log.Info("gpio backend ready", "backend", cfg.Backend, "chip", cfg.Chip)
	return p
}
