// Package trigger owns the genlock signal: the hardware PWM waveform that
// clocks sensor exposures and the sensor driver's trigger-mode parameter.
// Nothing else in the process writes either of them.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"cinemate/internal/domain"
	"cinemate/internal/infra/tracer"
)

// Config holds the controller's start-up parameters.
type Config struct {
	Pin          int
	Frequency    float64
	ShutterAngle float64
	TriggerMode  int
	Profiles     map[string]domain.TriggerProfile
}

// ControllerDeps holds the collaborators of a Controller. PWM may be nil when
// no channel could be claimed; the controller then tracks state without
// emitting a waveform.
type ControllerDeps struct {
	PWM    domain.PWMOutput
	Sensor domain.SensorProvider
	Params domain.ParamWriter
	Bus    domain.EventBus
	Logger *slog.Logger
}

// Controller is the Trigger/PWM controller. All methods are safe for
// concurrent use; frequency, shutter angle and the derived values change
// together under one lock.
type Controller struct {
	mu    sync.Mutex
	state domain.PWMState

	// modeMu serializes trigger-mode writes, which shell out and may be slow.
	modeMu sync.Mutex

	pin      int
	pwm      domain.PWMOutput
	sensor   domain.SensorProvider
	params   domain.ParamWriter
	profiles map[string]domain.TriggerProfile
	bus      domain.EventBus
	logger   *slog.Logger
}

// Option adjusts a parameter as part of Start or Apply.
type Option func(*pending)

type pending struct {
	freq  *float64
	angle *float64
	mode  *int
}

func WithFrequency(hz float64) Option { return func(p *pending) { p.freq = &hz } }

func WithShutterAngle(deg float64) Option { return func(p *pending) { p.angle = &deg } }

// WithTriggerMode only has an effect on Start.
func WithTriggerMode(mode int) Option { return func(p *pending) { p.mode = &mode } }

// New builds a controller, applies the configured frequency and shutter
// angle, and sets the initial trigger mode.
func New(ctx context.Context, cfg Config, deps ControllerDeps) (*Controller, error) {
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = Profiles(nil)
	}
	c := &Controller{
		pin:      cfg.Pin,
		pwm:      deps.PWM,
		sensor:   deps.Sensor,
		params:   deps.Params,
		profiles: profiles,
		bus:      deps.Bus,
		logger:   deps.Logger,
	}
	c.state.FrequencyHz = clamp(cfg.Frequency, domain.MinFrequencyHz, domain.MaxFrequencyHz)
	c.state.ShutterAngleDeg = clamp(cfg.ShutterAngle, domain.MinShutterAngle, domain.MaxShutterAngle)
	c.recompute()

	if err := c.SetTriggerMode(ctx, cfg.TriggerMode); err != nil {
		return nil, err
	}
	return c, nil
}

// ClaimPWM claims the PWM channel on pin. Only GPIO18 and GPIO19 carry the
// hardware PWM channel the sensor trigger is wired to; other pins are warned
// about and still attempted. A failed claim is logged and yields nil.
func ClaimPWM(p domain.LineProvider, pin int, logger *slog.Logger) domain.PWMOutput {
	if pin <= 0 {
		logger.Warn("no PWM pin configured, trigger output disabled")
		return nil
	}
	if pin != 18 && pin != 19 {
		logger.Warn("PWM pin is not a hardware PWM channel", "pin", pin, "want", "18 or 19")
	}
	out, err := p.ClaimPWM(pin)
	if err != nil {
		logger.Error("failed to claim PWM pin, trigger output disabled", "pin", pin, "error", err, "code", domain.ErrorCodeOf(err))
		return nil
	}
	logger.Info("PWM controller claimed pin", "pin", pin)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}

// recompute derives period, exposure and duty from frequency and angle.
// Caller holds c.mu.
func (c *Controller) recompute() {
	s := &c.state
	s.PeriodS = 1.0 / s.FrequencyHz
	s.ExposureTimeS = (s.ShutterAngleDeg / 360.0) * s.PeriodS
	s.DutyCycle = 1 - s.ExposureTimeS/s.PeriodS
}

// emit reprograms the waveform if it is running. Caller holds c.mu.
func (c *Controller) emit() {
	if !c.state.Active || c.pwm == nil {
		return
	}
	if err := c.pwm.SetPWM(c.state.FrequencyHz, c.state.DutyCycle); err != nil {
		c.logger.Error("failed to update PWM", "pin", c.pin, "error", err)
		return
	}
	c.logger.Debug("PWM updated",
		"frequency_hz", c.state.FrequencyHz,
		"duty_pct", c.state.DutyCycle*100,
		"shutter_angle", c.state.ShutterAngleDeg,
	)
}

// SetFrequency clamps hz to [1,50] and re-emits the waveform if running.
func (c *Controller) SetFrequency(hz float64) {
	c.Apply(WithFrequency(hz))
}

// SetShutterAngle clamps deg to [1,360] and re-emits the waveform if running.
func (c *Controller) SetShutterAngle(deg float64) {
	c.Apply(WithShutterAngle(deg))
}

// Apply changes frequency and/or shutter angle in one step, so the waveform is
// reprogrammed at most once and no reader sees a half-applied change.
func (c *Controller) Apply(opts ...Option) {
	var p pending
	for _, o := range opts {
		o(&p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(p)
}

func (c *Controller) applyLocked(p pending) {
	if p.freq == nil && p.angle == nil {
		return
	}
	if p.freq != nil {
		c.state.FrequencyHz = clamp(*p.freq, domain.MinFrequencyHz, domain.MaxFrequencyHz)
	}
	if p.angle != nil {
		c.state.ShutterAngleDeg = clamp(*p.angle, domain.MinShutterAngle, domain.MaxShutterAngle)
	}
	c.recompute()
	c.emit()
}

// Start applies the given options and starts the waveform. Without a claimed
// PWM channel it logs and leaves the controller inactive. The only error is an
// illegal trigger mode, in which case nothing is changed.
func (c *Controller) Start(ctx context.Context, opts ...Option) error {
	var p pending
	for _, o := range opts {
		o(&p)
	}
	if p.mode != nil {
		if err := validateMode(*p.mode); err != nil {
			return err
		}
	}

	ctx, span := tracer.StartSpan(ctx, "trigger.start", tracer.IntAttr("pin", c.pin))
	defer span.End()

	c.mu.Lock()
	c.applyLocked(p)
	c.mu.Unlock()

	if p.mode != nil {
		_ = c.SetTriggerMode(ctx, *p.mode)
	}

	c.mu.Lock()
	if c.pwm == nil {
		c.mu.Unlock()
		c.logger.Warn("no PWM pin available, PWM not started")
		tracer.SetOK(span)
		return nil
	}
	s := c.state
	if err := c.pwm.SetPWM(s.FrequencyHz, s.DutyCycle); err != nil {
		c.mu.Unlock()
		c.logger.Error("failed to start PWM", "pin", c.pin, "error", err)
		tracer.RecordError(span, err)
		return nil
	}
	c.state.Active = true
	snap := c.state
	c.mu.Unlock()

	c.logger.Info("PWM started",
		"pin", c.pin,
		"frequency_hz", snap.FrequencyHz,
		"duty_pct", fmt.Sprintf("%.1f", snap.DutyCycle*100),
	)
	span.SetAttributes(tracer.FloatAttr("frequency_hz", snap.FrequencyHz), tracer.FloatAttr("duty", snap.DutyCycle))
	tracer.SetOK(span)
	c.publish(ctx, domain.EventTriggerStarted, snap)
	return nil
}

// Stop halts the waveform and always returns the sensor to free-run, so a
// stopped controller never leaves the sensor waiting for trigger pulses.
func (c *Controller) Stop(ctx context.Context) {
	ctx, span := tracer.StartSpan(ctx, "trigger.stop", tracer.IntAttr("pin", c.pin))
	defer span.End()

	c.mu.Lock()
	if c.state.Active && c.pwm != nil {
		if err := c.pwm.Halt(); err != nil {
			c.logger.Error("failed to stop PWM", "pin", c.pin, "error", err)
			tracer.RecordError(span, err)
		} else {
			c.logger.Info("PWM stopped", "pin", c.pin)
		}
	}
	c.state.Active = false
	snap := c.state
	c.mu.Unlock()

	_ = c.SetTriggerMode(ctx, domain.TriggerFreeRun)
	c.publish(ctx, domain.EventTriggerStopped, snap)
}

func validateMode(mode int) error {
	if mode != domain.TriggerFreeRun && mode != domain.TriggerExternal {
		return domain.NewSubSystemError("trigger.mode", "Controller.SetTriggerMode", domain.ErrInvalidParameter,
			fmt.Sprintf("trigger mode %d (want 0 or 2)", mode))
	}
	return nil
}

// SetTriggerMode writes the sensor's trigger-mode parameter. Modes other than
// 0 and 2 are rejected with ErrInvalidParameter. Unknown sensors and failed
// writes are logged and leave the recorded mode unchanged.
func (c *Controller) SetTriggerMode(ctx context.Context, mode int) error {
	if err := validateMode(mode); err != nil {
		c.logger.Error("rejected trigger mode", "mode", mode, "code", domain.ErrorCodeOf(err))
		return err
	}

	model := ""
	if c.sensor != nil {
		model = c.sensor.Model()
	}
	ctx, span := tracer.StartSpan(ctx, "trigger.set_mode",
		tracer.IntAttr("mode", mode),
		tracer.StringAttr("sensor", model),
	)
	defer span.End()

	profile, ok := c.profiles[model]
	if !ok {
		err := domain.NewSubSystemError("trigger", "Controller.SetTriggerMode", domain.ErrUnsupportedSensor, model)
		c.logger.Warn("unsupported camera model, trigger mode unchanged", "sensor", model, "code", domain.ErrorCodeOf(err))
		tracer.RecordError(span, err)
		return nil
	}

	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	value := strconv.Itoa(profile.Value(mode))
	if err := c.params.WriteParam(ctx, profile.ParamPath, value); err != nil {
		c.logger.Error("failed to set trigger mode", "mode", mode, "path", profile.ParamPath, "error", err)
		tracer.RecordError(span, err)
		return nil
	}

	c.mu.Lock()
	c.state.TriggerMode = mode
	snap := c.state
	c.mu.Unlock()

	c.logger.Info("trigger mode set", "mode", mode, "sensor", model, "value", value)
	tracer.SetOK(span)
	c.publish(ctx, domain.EventTriggerMode, snap)
	return nil
}

// RampMode maps the legacy ramp selector onto the waveform: 2 and 3 start
// it and arm external triggering, 0 stops it. The sensor is only armed when
// the waveform is actually running.
func (c *Controller) RampMode(ctx context.Context, mode int) error {
	switch mode {
	case 2, 3:
		if err := c.Start(ctx); err != nil {
			return err
		}
		if !c.Active() {
			c.logger.Warn("PWM not running, sensor left in free-run", "pin", c.pin, "ramp_mode", mode)
			return nil
		}
		return c.SetTriggerMode(ctx, domain.TriggerExternal)
	case 0:
		c.Stop(ctx)
		return nil
	default:
		return domain.NewSubSystemError("trigger.ramp", "Controller.RampMode", domain.ErrInvalidParameter,
			fmt.Sprintf("ramp mode %d (want 0, 2 or 3)", mode))
	}
}

// Snapshot returns a consistent copy of the controller state.
func (c *Controller) Snapshot() domain.PWMState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the waveform is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active
}

func (c *Controller) publish(ctx context.Context, t domain.EventType, s domain.PWMState) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, domain.NewEvent(t, "trigger", s))
}
