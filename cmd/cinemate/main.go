package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cinemate/internal/infra/config"
	"cinemate/internal/infra/logger"
	"cinemate/internal/infra/tracer"
	"cinemate/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`cinemate - hardware sync and input engine for cinema cameras

USAGE:
    cinemate [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./cinemate.yaml)

CONFIGURATION:
    Config file: ./cinemate.yaml (missing file uses built-in defaults)
    Environment: CINEMATE_* variables override config

BUILD:
    Real GPIO backends (periph, cdev) need the edge build tag:
        go build -tags edge ./cmd/cinemate`)
}

// configPath resolves --config, then CINEMATE_CONFIG, then the default.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("CINEMATE_CONFIG"); p != "" {
		return p
	}
	return "cinemate.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Hardware
	provider := openLineProvider(cfg.GPIO, log)
	defer provider.Close()

	// 5. Shared state
	store, storeCloser := openStateStore(ctx, cfg.State, log)
	defer storeCloser()

	// 6. Event bus
	bus := eventbus.New(log, cfg.EventBus.QueueSize)
	defer bus.Close()

	// 7. Components
	r, err := buildRig(ctx, cfg, rigDeps{Provider: provider, Store: store, Bus: bus, Logger: log})
	if err != nil {
		return fmt.Errorf("rig: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.Shutdown(shutdownCtx)
	}()

	log.Info("cinemate starting",
		"gpio", cfg.GPIO.Backend,
		"state", cfg.State.Backend,
		"sensor", cfg.Sensor.Model,
		"inputs", len(r.inputs.Lines()),
		"encoders", len(r.encoders),
		"system_button", r.gesture != nil,
		"camera", r.bridge != nil,
	)

	return r.Run(ctx)
}
