// Package input is the debounced input engine: it samples the rig's buttons
// and switches every poll period and routes logical edges to the camera
// controller.
//
// Edges are detected between consecutive samples, so a press shorter than one
// poll period (10 ms by default) can go unseen.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
	"cinemate/internal/infra/logger"
	"cinemate/internal/usecase/framerate"
	"cinemate/internal/usecase/hwline"
)

// Config configures the engine.
type Config struct {
	Inputs       config.InputsConfig
	Poll         time.Duration
	RampStep     time.Duration
	RampMaxSteps int
	DefaultFPS   float64
	FPSMax       float64
}

// ConfigFrom extracts the engine settings from the root config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Inputs:       cfg.Inputs,
		Poll:         cfg.Timing.ButtonPoll,
		RampStep:     cfg.Timing.RampStep,
		RampMaxSteps: cfg.Timing.RampMaxSteps,
		DefaultFPS:   cfg.Settings.DefaultFPS,
		FPSMax:       cfg.Settings.FPSMax,
	}
}

// EngineDeps holds the engine's collaborators.
type EngineDeps struct {
	Provider   domain.LineProvider
	Controller domain.CameraController
	Guard      *framerate.Guard
	Store      domain.StateStore
	Bus        domain.EventBus
	Logger     *slog.Logger
}

type binding struct {
	line   *hwline.Line
	handle func(ctx context.Context, active bool)
}

// Engine owns its lines for the life of the process. Poll must only be called
// from one goroutine at a time; Run does that.
type Engine struct {
	cfg      Config
	ctrl     domain.CameraController
	guard    *framerate.Guard
	store    domain.StateStore
	bus      domain.EventBus
	logger   *slog.Logger
	throttle *logger.Throttled

	bindings []binding

	fpsPressed bool
	ramp       *rampSession

	// Last fps_switch level, held for replay when a ramp dropped it.
	switchMu      sync.Mutex
	switchLevel   bool
	switchPending bool

	wg         sync.WaitGroup
	sleep      func(ctx context.Context, d time.Duration) error
}

// New claims every configured line. Lines that cannot be claimed are logged
// and left out of the poll set.
func New(cfg Config, deps EngineDeps) *Engine {
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	if cfg.RampStep <= 0 {
		cfg.RampStep = 100 * time.Millisecond
	}
	if cfg.RampMaxSteps <= 0 {
		cfg.RampMaxSteps = 200
	}
	if cfg.FPSMax <= 0 {
		cfg.FPSMax = domain.MaxFrequencyHz
	}
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = 24
	}
	log := logger.Component(deps.Logger, "input")

	e := &Engine{
		cfg:      cfg,
		ctrl:     deps.Controller,
		guard:    deps.Guard,
		store:    deps.Store,
		bus:      deps.Bus,
		logger:   log,
		throttle: logger.NewThrottled(log, 5*time.Second, 1),
		ramp:     &rampSession{fpsTemp: cfg.DefaultFPS},
		sleep:    sleepCtx,
	}

	in := cfg.Inputs
	for i, l := range in.RecButtons {
		e.bind(deps.Provider, l, fmt.Sprintf("rec_button_%d", i), e.onRecord)
	}
	e.bind(deps.Provider, in.ISOInc, "iso_inc_button", e.onISOInc)
	e.bind(deps.Provider, in.ISODec, "iso_dec_button", e.onISODec)
	e.bind(deps.Provider, in.Resolution, "res_switch", e.onResolution)
	e.bind(deps.Provider, in.PWMSwitch, "pwm_switch", e.onPWMSwitch)
	e.bind(deps.Provider, in.ShutterSync, "shutter_a_sync_switch", e.onShutterSync)
	e.bind(deps.Provider, in.FPSButton, "fps_button", e.onFPSButton)
	e.bind(deps.Provider, in.FPSSwitch, "fps_switch", e.onFPSSwitch)
	e.bind(deps.Provider, in.PotLock, "pot_lock_switch", e.onPotLock)
	return e
}

func (e *Engine) bind(p domain.LineProvider, lc config.LineConfig, name string, h func(context.Context, bool)) {
	if !lc.Enabled() {
		return
	}
	line, err := hwline.Claim(p, hwline.Spec{Pin: lc.Pin, Name: name, Pull: domain.PullUp, Inverted: lc.Inverted})
	if err != nil {
		e.logger.Warn("failed to set up input, skipping", "name", name, "pin", lc.Pin, "error", err)
		return
	}
	e.bindings = append(e.bindings, binding{line: line, handle: h})
	e.logger.Info("input instantiated", "name", name, "pin", lc.Pin, "inverted", lc.Inverted)
}

// Lines returns the names of the lines in the poll set.
func (e *Engine) Lines() []string {
	names := make([]string, 0, len(e.bindings))
	for _, b := range e.bindings {
		names = append(names, b.line.Name())
	}
	return names
}

// Run samples every line once per poll period until ctx is cancelled, then
// waits for any running ramp and releases the lines.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Poll)
	defer ticker.Stop()
	defer e.close()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return nil
		case <-ticker.C:
			e.Poll(ctx)
		}
	}
}

// Poll takes one sample of every line and dispatches changed states in line
// order. A failed read skips that line for this cycle only.
func (e *Engine) Poll(ctx context.Context) {
	for _, b := range e.bindings {
		active, changed, err := b.line.Sample()
		if err != nil {
			e.throttle.Warn(b.line.Name(), "error reading input", "name", b.line.Name(), "pin", b.line.Pin(), "error", err)
			continue
		}
		if changed {
			e.dispatch(ctx, b, active)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, b binding, active bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("input handler panicked", "name", b.line.Name(), "panic", r)
		}
	}()
	b.handle(ctx, active)
}

// Wait blocks until every ramp started so far has finished.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) close() {
	for _, b := range e.bindings {
		_ = b.line.Close()
	}
}

func (e *Engine) onRecord(_ context.Context, active bool) {
	if active {
		e.ctrl.RecButtonPushed()
	}
}

func (e *Engine) onISOInc(_ context.Context, active bool) {
	if active {
		e.ctrl.IncISO()
	}
}

func (e *Engine) onISODec(_ context.Context, active bool) {
	if active {
		e.ctrl.DecISO()
	}
}

func (e *Engine) onResolution(_ context.Context, active bool) {
	e.ctrl.SetResolutionMode(active)
	e.logger.Info("res_switch state", "state", active)
}

func (e *Engine) onPWMSwitch(_ context.Context, active bool) {
	e.ctrl.SetPWMMode(active)
	e.logger.Info("pwm_switch state", "state", active)
}

func (e *Engine) onShutterSync(_ context.Context, active bool) {
	e.ctrl.SetShutterSync(active)
	e.logger.Info("shutter_a_sync_switch state", "state", active)
}

func (e *Engine) onPotLock(_ context.Context, active bool) {
	e.ctrl.SetParametersLock(active)
	e.logger.Info("pot_lock_switch state", "state", active)
}

// onFPSSwitch selects the doubled rate while the switch is released. An edge
// that lands during a ramp is applied once the ramp ends.
func (e *Engine) onFPSSwitch(_ context.Context, active bool) {
	e.switchMu.Lock()
	e.switchLevel = active
	e.switchPending = !e.guard.Do("switch_fps", func() { e.ctrl.SwitchFPS(!active) })
	e.switchMu.Unlock()
	e.logger.Info("fps_switch state", "state", active)
}

func (e *Engine) replayFPSSwitch() {
	e.switchMu.Lock()
	defer e.switchMu.Unlock()
	if !e.switchPending {
		return
	}
	level := e.switchLevel
	if e.guard.Do("switch_fps", func() { e.ctrl.SwitchFPS(!level) }) {
		e.switchPending = false
		e.logger.Info("fps_switch applied after ramp", "state", level)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
