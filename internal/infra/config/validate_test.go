package config

import (
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateTriggerMode(t *testing.T) {
	cfg := Defaults()
	cfg.PWM.TriggerMode = 1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "pwm.trigger_mode 1 is invalid")
}

func TestValidateGPIOBackend(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO.Backend = "lgpio"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `gpio.backend "lgpio" is invalid`)
}

func TestValidateCdevNeedsChip(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO.Backend = "cdev"
	cfg.GPIO.Chip = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "gpio.chip is required")
}

func TestValidateDuplicatePins(t *testing.T) {
	cfg := Defaults()
	cfg.Inputs.FPSButton = LineConfig{Pin: 19}
	cfg.Encoders = []EncoderConfig{{Setting: "iso", Clk: 4, Dt: 22}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "pin 19 is claimed by both pwm.pin and inputs.fps_button")
	assertContains(t, err.Error(), "pin 4 is claimed by both inputs.rec_buttons[0] and encoders[0].clk")
}

func TestValidateDisabledPinsDoNotConflict(t *testing.T) {
	cfg := Defaults()
	cfg.PWM.Pin = 0
	cfg.Inputs.ISOInc = LineConfig{Pin: 0}
	cfg.Inputs.ISODec = LineConfig{Pin: 0}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEncoderSetting(t *testing.T) {
	cfg := Defaults()
	cfg.Encoders = []EncoderConfig{{Setting: "wb", Clk: 9, Dt: 11}, {Setting: "fps"}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `encoders[0].setting "wb" is invalid`)
	assertContains(t, err.Error(), "encoders[1]: clk and dt must be > 0")
}

func TestValidateTiming(t *testing.T) {
	cfg := Defaults()
	cfg.Timing.ButtonPoll = 0
	cfg.Timing.RampStep = -time.Millisecond
	cfg.Timing.RampMaxSteps = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "timing.button_poll must be > 0")
	assertContains(t, err.Error(), "timing.ramp_step must be > 0")
	assertContains(t, err.Error(), "timing.ramp_max_steps must be > 0")
}

func TestValidateSettings(t *testing.T) {
	cfg := Defaults()
	cfg.Settings.FPSMax = 60
	cfg.Settings.ISOSteps = nil
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "settings.fps_max must be within [1, 50]")
	assertContains(t, err.Error(), "settings.iso_steps must not be empty")
}

func TestValidateStateBackend(t *testing.T) {
	cfg := Defaults()
	cfg.State.Backend = "etcd"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `state.backend "etcd" is invalid`)
}

func TestValidateStateURL(t *testing.T) {
	cfg := Defaults()
	cfg.State.URL = "http://localhost:6379"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "must be a redis:// URL")
}

func TestValidateProfiles(t *testing.T) {
	cfg := Defaults()
	cfg.PWM.Profiles = []TriggerProfileConfig{
		{Model: "imx519", ParamPath: "/sys/module/imx519/parameters/trigger_mode", ExternalValue: 1},
		{Model: "imx519", ParamPath: "/x"},
		{Model: "imx708"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `duplicate model "imx519"`)
	assertContains(t, err.Error(), "pwm.profiles[2] (imx708): param_path must not be empty")
}

func TestValidateHealthDisabledSkipsChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Health.Enabled = false
	cfg.Health.LogFile = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("new ValidationError should be empty")
	}
	ve.Add("first %d", 1)
	ve.Add("second")
	if len(ve.Errors) != 2 {
		t.Fatalf("Errors = %v", ve.Errors)
	}
	assertContains(t, ve.Error(), "  - first 1\n  - second")
}
