// Package camera is the camera-settings aggregate the input engines drive.
// It publishes every setting to the shared state store, where the capture
// process picks it up, and keeps the genlock trigger in step with the frame
// rate while pwm mode is on.
package camera

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"cinemate/internal/adapter/statestore"
	"cinemate/internal/domain"
	"cinemate/internal/infra/logger"
)

// Ramp selectors understood by the trigger controller.
const (
	rampOff = 0
	rampOn  = 2
)

// Config holds the step tables.
type Config struct {
	ISOSteps      []int
	ShutterASteps []float64
	FPSSteps      []float64
	FPSMax        float64
	DefaultFPS    float64
}

// Trigger is the part of the trigger controller the camera drives.
type Trigger interface {
	RampMode(ctx context.Context, mode int) error
	SetFrequency(hz float64)
	SetShutterAngle(deg float64)
}

// Tally shows the recording state.
type Tally interface {
	SetRecording(on bool)
}

// ControllerDeps holds the collaborators of a Controller. Trigger and Tally
// are optional.
type ControllerDeps struct {
	Store   domain.StateStore
	Trigger Trigger
	Tally   Tally
	Logger  *slog.Logger
}

// Controller implements domain.CameraController. It is safe for concurrent
// use; each call holds the controller lock for its whole read-modify-write.
type Controller struct {
	mu      sync.Mutex
	store   domain.StateStore
	trigger Trigger
	tally   Tally
	logger  *slog.Logger

	iso      stepTable
	shutter  stepTable
	fpsSteps stepTable
	fpsMax   float64

	fps          float64
	fpsSaved     float64
	shutterAngle float64
	recording    bool
	resHigh      bool
	pwmMode      bool
	shutterSync  bool
	locked       bool
}

var _ domain.CameraController = (*Controller)(nil)

// New builds a controller seeded from the values already in the store.
func New(ctx context.Context, cfg Config, deps ControllerDeps) *Controller {
	if cfg.FPSMax <= 0 {
		cfg.FPSMax = domain.MaxFrequencyHz
	}
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = 24
	}
	iso := make([]float64, 0, len(cfg.ISOSteps))
	for _, v := range cfg.ISOSteps {
		iso = append(iso, float64(v))
	}
	fpsSteps := cfg.FPSSteps
	if len(fpsSteps) == 0 {
		fpsSteps = rangeSteps(1, cfg.FPSMax)
	}

	c := &Controller{
		store:    deps.Store,
		trigger:  deps.Trigger,
		tally:    deps.Tally,
		logger:   logger.Component(deps.Logger, "camera"),
		iso:      newStepTable(iso),
		shutter:  newStepTable(append(rangeSteps(domain.MinShutterAngle, domain.MaxShutterAngle), cfg.ShutterASteps...)),
		fpsSteps: newStepTable(fpsSteps),
		fpsMax:   cfg.FPSMax,
	}
	c.fps = statestore.GetFloat(ctx, c.store, domain.KeyFPS, cfg.DefaultFPS)
	c.fpsSaved = c.fps
	c.shutterAngle = statestore.GetFloat(ctx, c.store, domain.KeyShutterA, 180)
	c.recording = statestore.GetBool(ctx, c.store, domain.KeyIsRecording)
	c.pwmMode = statestore.GetBool(ctx, c.store, domain.KeyPWMMode)
	return c
}

func (c *Controller) set(key, value string) {
	if err := c.store.Set(context.Background(), key, value); err != nil {
		c.logger.Warn("failed to publish setting", "key", key, "value", value, "error", err, "code", domain.ErrorCodeOf(err))
	}
}

func (c *Controller) setFloat(key string, v float64) { c.set(key, statestore.FormatFloat(v)) }

func (c *Controller) setBool(key string, on bool) {
	if err := statestore.SetBool(context.Background(), c.store, key, on); err != nil {
		c.logger.Warn("failed to publish setting", "key", key, "value", on, "error", err, "code", domain.ErrorCodeOf(err))
	}
}

// RecButtonPushed toggles recording.
func (c *Controller) RecButtonPushed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = statestore.GetBool(context.Background(), c.store, domain.KeyIsRecording)
	c.setRecordingLocked(!c.recording)
}

// StopRecording stops recording if it is running.
func (c *Controller) StopRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setRecordingLocked(false)
}

func (c *Controller) setRecordingLocked(on bool) {
	c.recording = on
	c.setBool(domain.KeyIsRecording, on)
	if c.tally != nil {
		c.tally.SetRecording(on)
	}
	if on {
		c.logger.Info("recording started")
	} else {
		c.logger.Info("recording stopped")
	}
}

// Recording reports the recording state last published.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) IncISO() { c.stepISO(c.iso.next) }

func (c *Controller) DecISO() { c.stepISO(c.iso.prev) }

func (c *Controller) stepISO(step func(float64) float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked || len(c.iso) == 0 {
		return
	}
	cur := statestore.GetFloat(context.Background(), c.store, domain.KeyISO, c.iso[0])
	v := step(cur)
	c.set(domain.KeyISO, strconv.Itoa(int(v)))
	c.logger.Info("iso set", "iso", int(v))
}

func (c *Controller) IncShutterAngleNom() { c.stepShutter(c.shutter.next) }

func (c *Controller) DecShutterAngleNom() { c.stepShutter(c.shutter.prev) }

func (c *Controller) stepShutter(step func(float64) float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return
	}
	c.setShutterLocked(step(c.shutterAngle))
}

func (c *Controller) setShutterLocked(angle float64) {
	angle = math.Max(domain.MinShutterAngle, math.Min(domain.MaxShutterAngle, angle))
	c.shutterAngle = angle
	c.setFloat(domain.KeyShutterA, angle)
	if c.pwmMode && c.trigger != nil {
		c.trigger.SetShutterAngle(angle)
	}
	c.logger.Info("shutter angle set", "shutter_a", angle)
}

// ShutterAngle returns the current nominal shutter angle.
func (c *Controller) ShutterAngle() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutterAngle
}

func (c *Controller) IncFPS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return
	}
	c.setFPSLocked(c.fpsSteps.next(c.fps))
}

func (c *Controller) DecFPS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return
	}
	c.setFPSLocked(c.fpsSteps.prev(c.fps))
}

// SetFPS sets the frame rate, clamped to [1, fps_max]. The parameters lock
// does not apply.
func (c *Controller) SetFPS(fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setFPSLocked(fps)
}

// setFPSLocked publishes fps and, in pwm mode, retunes the trigger. With
// shutter sync on, the shutter angle is rescaled so exposure time stays
// constant across the change.
func (c *Controller) setFPSLocked(fps float64) {
	if math.IsNaN(fps) {
		return
	}
	fps = math.Max(1, math.Min(c.fpsMax, fps))
	old := c.fps
	c.fps = fps
	c.setFloat(domain.KeyFPS, fps)
	if c.shutterSync && old > 0 && old != fps {
		c.setShutterLocked(c.shutterAngle * fps / old)
	}
	if c.pwmMode && c.trigger != nil {
		c.trigger.SetFrequency(fps)
	}
	c.logger.Info("fps set", "fps", fps)
}

// FPS returns the frame rate last set.
func (c *Controller) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// SwitchResolution toggles between the two sensor modes.
func (c *Controller) SwitchResolution() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setResolutionLocked(!c.resHigh)
}

// SetResolutionMode selects the high (true) or low sensor mode. The capture
// process is asked to reinitialise only when the mode changes.
func (c *Controller) SetResolutionMode(high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if high == c.resHigh {
		c.setBool(domain.KeyResolution, high)
		return
	}
	c.setResolutionLocked(high)
}

func (c *Controller) setResolutionLocked(high bool) {
	c.resHigh = high
	c.setBool(domain.KeyResolution, high)
	c.set(domain.KeyCamInit, "1")
	c.logger.Info("resolution switched", "high", high)
}

// SwitchFPS engages (double) or leaves the doubled frame rate.
func (c *Controller) SwitchFPS(double bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if double {
		c.fpsSaved = c.fps
		c.setFPSLocked(math.Min(c.fps*2, c.fpsMax))
		return
	}
	if c.fpsSaved > 0 {
		c.setFPSLocked(c.fpsSaved)
	}
}

// SetPWMMode turns the genlock trigger on (ramp mode 2) or off (ramp mode 0).
func (c *Controller) SetPWMMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pwmMode = on
	c.setBool(domain.KeyPWMMode, on)
	if c.trigger == nil {
		return
	}
	if on {
		c.trigger.SetFrequency(c.fps)
		c.trigger.SetShutterAngle(c.shutterAngle)
		if err := c.trigger.RampMode(context.Background(), rampOn); err != nil {
			c.logger.Error("failed to enable pwm mode", "error", err)
		}
		return
	}
	if err := c.trigger.RampMode(context.Background(), rampOff); err != nil {
		c.logger.Error("failed to disable pwm mode", "error", err)
	}
}

func (c *Controller) PWMMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pwmMode
}

func (c *Controller) SetShutterSync(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutterSync = on
	c.logger.Info("shutter sync", "on", on)
}

// SetParametersLock freezes the iso, shutter and fps step controls.
func (c *Controller) SetParametersLock(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = on
	c.logger.Info("parameters lock", "on", on)
}
