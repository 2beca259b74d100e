package main

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cinemate/internal/adapter/statestore"
	"cinemate/internal/adapter/system"
	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
	"cinemate/internal/infra/logger"
	"cinemate/internal/usecase/camera"
	"cinemate/internal/usecase/encoder"
	"cinemate/internal/usecase/framerate"
	"cinemate/internal/usecase/gesture"
	"cinemate/internal/usecase/health"
	"cinemate/internal/usecase/indicator"
	"cinemate/internal/usecase/input"
	"cinemate/internal/usecase/process"
	"cinemate/internal/usecase/trigger"
)

// resetFPS is the frame rate left in the store on exit.
const resetFPS = 24

// rigDeps holds what buildRig needs from the process root. Params defaults
// to the sysfs writer.
type rigDeps struct {
	Provider domain.LineProvider
	Store    domain.StateStore
	Bus      domain.EventBus
	Params   domain.ParamWriter
	Logger   *slog.Logger
}

// rig holds every running component.
type rig struct {
	store  domain.StateStore
	logger *slog.Logger

	trigger  *trigger.Controller
	camera   *camera.Controller
	guard    *framerate.Guard
	tally    *indicator.Tally
	inputs   *input.Engine
	encoders []*encoder.Decoder
	gesture  *gesture.Recognizer // nil when no system button is fitted
	health   *health.Monitor     // nil when disabled
	bridge   *process.Bridge     // nil when disabled
}

// buildRig wires the components. Lines that cannot be claimed disable the
// feature that needed them; only an invalid trigger configuration fails.
func buildRig(ctx context.Context, cfg *config.Config, deps rigDeps) (*rig, error) {
	log := deps.Logger
	r := &rig{store: deps.Store, logger: logger.Component(log, "rig")}

	// 1. Trigger/PWM
	params := deps.Params
	if params == nil {
		params = system.NewParamWriter(cfg.System)
	}
	trigLog := logger.Component(log, "trigger")
	trig, err := trigger.New(ctx, trigger.Config{
		Pin:          cfg.PWM.Pin,
		Frequency:    cfg.PWM.Frequency,
		ShutterAngle: cfg.PWM.ShutterAngle,
		TriggerMode:  cfg.PWM.TriggerMode,
		Profiles:     trigger.Profiles(cfg.PWM.Profiles),
	}, trigger.ControllerDeps{
		PWM:    trigger.ClaimPWM(deps.Provider, cfg.PWM.Pin, trigLog),
		Sensor: system.StaticSensor(cfg.Sensor.Model),
		Params: params,
		Bus:    deps.Bus,
		Logger: trigLog,
	})
	if err != nil {
		return nil, err
	}
	r.trigger = trig

	// 2. Tally lights and camera settings
	r.tally = indicator.New(deps.Provider, cfg.Recording.TallyPins, log)
	r.camera = camera.New(ctx, camera.Config{
		ISOSteps:      cfg.Settings.ISOSteps,
		ShutterASteps: cfg.Settings.ShutterASteps,
		FPSSteps:      cfg.Settings.FPSSteps,
		FPSMax:        cfg.Settings.FPSMax,
		DefaultFPS:    cfg.Settings.DefaultFPS,
	}, camera.ControllerDeps{Store: deps.Store, Trigger: trig, Tally: r.tally, Logger: log})
	r.guard = framerate.NewGuard(r.camera, logger.Component(log, "framerate"))

	// 3. Buttons and switches
	r.inputs = input.New(input.ConfigFrom(cfg), input.EngineDeps{
		Provider:   deps.Provider,
		Controller: r.camera,
		Guard:      r.guard,
		Store:      deps.Store,
		Bus:        deps.Bus,
		Logger:     log,
	})

	// 4. Encoders
	for _, ec := range cfg.Encoders {
		d, err := r.buildEncoder(ec, cfg, deps.Provider, log)
		if err != nil {
			r.logger.Error("encoder disabled", "setting", ec.Setting, "clk", ec.Clk, "dt", ec.Dt,
				"error", err, "code", domain.ErrorCodeOf(err))
			continue
		}
		r.encoders = append(r.encoders, d)
	}

	// 5. System button
	if cfg.SystemButton.Enabled() {
		rec, err := gesture.New(gesture.Config{
			Pin:           cfg.SystemButton.Pin,
			Inverted:      cfg.SystemButton.Inverted,
			Poll:          cfg.Timing.ButtonPoll,
			ClickWindow:   cfg.Timing.ClickWindow,
			HoldThreshold: cfg.Timing.HoldThreshold,
		}, deps.Provider, gesture.Actions{
			Controller: r.camera,
			Store:      deps.Store,
			Storage:    system.NewUnmounter(cfg.Storage, cfg.System, log),
			System:     system.NewCommander(cfg.System, log),
		}, log, gesture.WithBus(deps.Bus))
		if err != nil {
			r.logger.Error("system button disabled", "pin", cfg.SystemButton.Pin, "error", err, "code", domain.ErrorCodeOf(err))
		} else {
			r.gesture = rec
		}
	}

	// 6. Kernel log health
	if cfg.Health.Enabled {
		r.health = health.New(health.Config{
			LogFile:      cfg.Health.LogFile,
			PollInterval: cfg.Health.PollInterval,
			StorageName:  cfg.Health.StorageName,
		}, deps.Bus, log)
	}

	// 7. Capture process
	if cfg.Camera.Enabled {
		r.bridge = process.NewBridge(process.BridgeConfig{
			Command:   cfg.Camera.Command,
			Args:      cfg.Camera.Args,
			TailLines: cfg.Camera.TailLines,
		}, deps.Bus, log)
	}

	return r, nil
}

func (r *rig) buildEncoder(ec config.EncoderConfig, cfg *config.Config, p domain.LineProvider, log *slog.Logger) (*encoder.Decoder, error) {
	setting, err := encoder.ParseSetting(ec.Setting)
	if err != nil {
		return nil, err
	}
	actions, err := encoder.Bind(setting, r.camera, r.guard)
	if err != nil {
		return nil, err
	}
	return encoder.New(encoder.Config{
		Setting: setting,
		Clk:     ec.Clk,
		Dt:      ec.Dt,
		Poll:    cfg.Timing.EncoderPoll,
	}, p, actions, log)
}

// Run starts the capture process and runs every loop until ctx is cancelled
// or one of them fails.
func (r *rig) Run(ctx context.Context) error {
	if r.bridge != nil {
		if _, err := r.bridge.Start(ctx); err != nil {
			r.logger.Error("failed to start camera process", "error", err, "code", domain.ErrorCodeOf(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.inputs.Run(ctx) })
	for _, d := range r.encoders {
		d := d
		g.Go(func() error { return d.Run(ctx) })
	}
	if r.gesture != nil {
		g.Go(func() error { return r.gesture.Run(ctx) })
	}
	if r.health != nil {
		g.Go(func() error { return r.health.Run(ctx) })
		g.Go(func() error { return r.stopOnDetach(ctx) })
	}
	return g.Wait()
}

// stopOnDetach stops recording when the recording media disappears.
func (r *rig) stopOnDetach(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.health.DiskDetached():
			if r.camera.Recording() {
				r.logger.Warn("recording media detached, stopping recording")
				r.camera.StopRecording()
			}
		}
	}
}

// Shutdown leaves the rig in a safe state: waveform off with the sensor back
// in free-run, recording flags cleared, the default frame rate published,
// tally lights off and the capture process stopped.
func (r *rig) Shutdown(ctx context.Context) {
	r.trigger.Stop(ctx)

	reset := []struct{ key, value string }{
		{domain.KeyIsRecording, "0"},
		{domain.KeyIsWriting, "0"},
		{domain.KeyFPS, statestore.FormatFloat(resetFPS)},
	}
	for _, kv := range reset {
		if err := r.store.Set(ctx, kv.key, kv.value); err != nil {
			r.logger.Error("failed to reset state", "key", kv.key, "error", err, "code", domain.ErrorCodeOf(err))
		}
	}

	r.tally.Close()

	if r.bridge != nil {
		if err := r.bridge.Stop(ctx); err != nil && !errors.Is(err, domain.ErrNotRunning) {
			r.logger.Error("failed to stop camera process", "error", err)
		}
	}
	r.logger.Info("cinemate stopped")
}
