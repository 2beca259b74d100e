package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateGPIO(cfg, ve)
	validatePWM(cfg, ve)
	validateEncoders(cfg, ve)
	validatePins(cfg, ve)
	validateTiming(cfg, ve)
	validateSettings(cfg, ve)
	validateState(cfg, ve)
	validateHealth(cfg, ve)
	validateCamera(cfg, ve)
	if cfg.EventBus.QueueSize <= 0 {
		ve.Add("event_bus.queue_size must be > 0")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogFormats = map[string]bool{"text": true, "json": true, "": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

var validGPIOBackends = map[string]bool{"periph": true, "cdev": true, "mock": true}

func validateGPIO(cfg *Config, ve *ValidationError) {
	if !validGPIOBackends[cfg.GPIO.Backend] {
		ve.Add("gpio.backend %q is invalid (want: periph, cdev, mock)", cfg.GPIO.Backend)
	}
	if cfg.GPIO.Backend == "cdev" && cfg.GPIO.Chip == "" {
		ve.Add("gpio.chip is required for the cdev backend")
	}
}

func validatePWM(cfg *Config, ve *ValidationError) {
	if cfg.PWM.Pin < 0 {
		ve.Add("pwm.pin must be >= 0")
	}
	if cfg.PWM.TriggerMode != 0 && cfg.PWM.TriggerMode != 2 {
		ve.Add("pwm.trigger_mode %d is invalid (want: 0, 2)", cfg.PWM.TriggerMode)
	}
	seen := make(map[string]bool)
	for i, p := range cfg.PWM.Profiles {
		if p.Model == "" {
			ve.Add("pwm.profiles[%d].model must not be empty", i)
			continue
		}
		if seen[p.Model] {
			ve.Add("pwm.profiles[%d]: duplicate model %q", i, p.Model)
		}
		seen[p.Model] = true
		if p.ParamPath == "" {
			ve.Add("pwm.profiles[%d] (%s): param_path must not be empty", i, p.Model)
		}
	}
}

var validEncoderSettings = map[string]bool{"iso": true, "shutter_a_nom": true, "fps": true}

func validateEncoders(cfg *Config, ve *ValidationError) {
	for i, e := range cfg.Encoders {
		if !validEncoderSettings[e.Setting] {
			ve.Add("encoders[%d].setting %q is invalid (want: iso, shutter_a_nom, fps)", i, e.Setting)
		}
		if e.Clk <= 0 || e.Dt <= 0 {
			ve.Add("encoders[%d]: clk and dt must be > 0", i)
		}
	}
}

// validatePins rejects configurations where two components would claim the
// same GPIO line.
func validatePins(cfg *Config, ve *ValidationError) {
	owners := make(map[int]string)
	claim := func(pin int, owner string) {
		if pin <= 0 {
			return
		}
		if prev, ok := owners[pin]; ok {
			ve.Add("pin %d is claimed by both %s and %s", pin, prev, owner)
			return
		}
		owners[pin] = owner
	}

	claim(cfg.PWM.Pin, "pwm.pin")
	for i, l := range cfg.Inputs.RecButtons {
		claim(l.Pin, fmt.Sprintf("inputs.rec_buttons[%d]", i))
	}
	claim(cfg.Inputs.ISOInc.Pin, "inputs.iso_inc")
	claim(cfg.Inputs.ISODec.Pin, "inputs.iso_dec")
	claim(cfg.Inputs.Resolution.Pin, "inputs.resolution")
	claim(cfg.Inputs.PWMSwitch.Pin, "inputs.pwm_switch")
	claim(cfg.Inputs.ShutterSync.Pin, "inputs.shutter_sync")
	claim(cfg.Inputs.FPSButton.Pin, "inputs.fps_button")
	claim(cfg.Inputs.FPSSwitch.Pin, "inputs.fps_switch")
	claim(cfg.Inputs.PotLock.Pin, "inputs.pot_lock")
	claim(cfg.SystemButton.Pin, "system_button")
	for i, e := range cfg.Encoders {
		claim(e.Clk, fmt.Sprintf("encoders[%d].clk", i))
		claim(e.Dt, fmt.Sprintf("encoders[%d].dt", i))
	}
	for i, p := range cfg.Recording.TallyPins {
		claim(p, fmt.Sprintf("recording.tally_pins[%d]", i))
	}
}

func validateTiming(cfg *Config, ve *ValidationError) {
	t := cfg.Timing
	if t.ButtonPoll <= 0 {
		ve.Add("timing.button_poll must be > 0")
	}
	if t.EncoderPoll <= 0 {
		ve.Add("timing.encoder_poll must be > 0")
	}
	if t.ClickWindow <= 0 {
		ve.Add("timing.click_window must be > 0")
	}
	if t.HoldThreshold <= 0 {
		ve.Add("timing.hold_threshold must be > 0")
	}
	if t.RampStep <= 0 {
		ve.Add("timing.ramp_step must be > 0")
	}
	if t.RampMaxSteps <= 0 {
		ve.Add("timing.ramp_max_steps must be > 0")
	}
}

func validateSettings(cfg *Config, ve *ValidationError) {
	s := cfg.Settings
	if len(s.ISOSteps) == 0 {
		ve.Add("settings.iso_steps must not be empty")
	}
	if s.FPSMax < 1 || s.FPSMax > 50 {
		ve.Add("settings.fps_max must be within [1, 50]")
	}
	if s.DefaultFPS < 1 || s.DefaultFPS > s.FPSMax {
		ve.Add("settings.default_fps must be within [1, fps_max]")
	}
}

func validateState(cfg *Config, ve *ValidationError) {
	switch cfg.State.Backend {
	case "memory":
	case "redis":
		if cfg.State.URL == "" {
			ve.Add("state.url is required for the redis backend")
		} else if u, err := url.Parse(cfg.State.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			ve.Add("state.url %q must be a redis:// URL", cfg.State.URL)
		}
		if cfg.State.CircuitBreaker.Enabled && cfg.State.CircuitBreaker.MaxFailures == 0 {
			ve.Add("state.circuit_breaker.max_failures must be > 0 when enabled")
		}
	default:
		ve.Add("state.backend %q is invalid (want: redis, memory)", cfg.State.Backend)
	}
}

func validateHealth(cfg *Config, ve *ValidationError) {
	if !cfg.Health.Enabled {
		return
	}
	if cfg.Health.LogFile == "" {
		ve.Add("health.log_file must not be empty when health is enabled")
	}
	if cfg.Health.PollInterval <= 0 {
		ve.Add("health.poll_interval must be > 0")
	}
}

func validateCamera(cfg *Config, ve *ValidationError) {
	if !cfg.Camera.Enabled {
		return
	}
	if cfg.Camera.Command == "" {
		ve.Add("camera.command must not be empty when camera is enabled")
	}
	if cfg.Camera.TailLines <= 0 {
		ve.Add("camera.tail_lines must be > 0")
	}
}
