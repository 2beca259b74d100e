package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.PWM.Frequency != 24 {
		t.Errorf("PWM.Frequency = %v, want 24", cfg.PWM.Frequency)
	}
	if cfg.PWM.ShutterAngle != 180 {
		t.Errorf("PWM.ShutterAngle = %v, want 180", cfg.PWM.ShutterAngle)
	}
	if cfg.Timing.ButtonPoll != 10*time.Millisecond {
		t.Errorf("Timing.ButtonPoll = %v, want 10ms", cfg.Timing.ButtonPoll)
	}
	if cfg.Timing.EncoderPoll != time.Millisecond {
		t.Errorf("Timing.EncoderPoll = %v, want 1ms", cfg.Timing.EncoderPoll)
	}
	if cfg.Timing.ClickWindow != 1500*time.Millisecond {
		t.Errorf("Timing.ClickWindow = %v, want 1.5s", cfg.Timing.ClickWindow)
	}
	if cfg.Timing.HoldThreshold != 3*time.Second {
		t.Errorf("Timing.HoldThreshold = %v, want 3s", cfg.Timing.HoldThreshold)
	}
	if cfg.Timing.RampStep != 100*time.Millisecond {
		t.Errorf("Timing.RampStep = %v, want 100ms", cfg.Timing.RampStep)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensor.Model != "imx477" {
		t.Errorf("expected defaults, got Sensor.Model=%q", cfg.Sensor.Model)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cinemate.yaml")
	content := `
gpio:
  backend: mock
pwm:
  pin: 18
  frequency: 25
  shutter_angle: 172.8
sensor:
  model: imx296
inputs:
  rec_buttons:
    - pin: 4
    - pin: 5
      inverted: true
  fps_button:
    pin: 12
encoders:
  - setting: iso
    clk: 9
    dt: 11
state:
  backend: memory
logger:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PWM.Pin != 18 {
		t.Errorf("PWM.Pin = %d, want 18", cfg.PWM.Pin)
	}
	if cfg.PWM.ShutterAngle != 172.8 {
		t.Errorf("PWM.ShutterAngle = %v, want 172.8", cfg.PWM.ShutterAngle)
	}
	if cfg.Sensor.Model != "imx296" {
		t.Errorf("Sensor.Model = %q, want imx296", cfg.Sensor.Model)
	}
	if len(cfg.Inputs.RecButtons) != 2 || !cfg.Inputs.RecButtons[1].Inverted {
		t.Errorf("RecButtons = %+v", cfg.Inputs.RecButtons)
	}
	if !cfg.Inputs.FPSButton.Enabled() {
		t.Error("fps button should be enabled")
	}
	if cfg.Inputs.ISOInc.Enabled() {
		t.Error("iso_inc should be disabled")
	}
	if len(cfg.Encoders) != 1 || cfg.Encoders[0].Setting != "iso" {
		t.Errorf("Encoders = %+v", cfg.Encoders)
	}
	// Unset sections keep their defaults.
	if cfg.Timing.HoldThreshold != 3*time.Second {
		t.Errorf("Timing.HoldThreshold = %v, want default", cfg.Timing.HoldThreshold)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("pwm: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinemate.yaml")
	content := `
pwm:
  trigger_mode: 1
state:
  backend: memory
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("error type = %T, want *ValidationError", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CINEMATE_LOGGER_LEVEL", "debug")
	t.Setenv("CINEMATE_GPIO_BACKEND", "cdev")
	t.Setenv("CINEMATE_PWM_PIN", "18")
	t.Setenv("CINEMATE_SENSOR_MODEL", "IMX296")
	t.Setenv("CINEMATE_STATE_URL", "redis://camera.local:6379/1")
	t.Setenv("CINEMATE_CAMERA_ARGS", "--mode 2 --width 2028")
	t.Setenv("CINEMATE_SYSTEM_USE_SUDO", "false")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if cfg.GPIO.Backend != "cdev" {
		t.Errorf("GPIO.Backend = %q", cfg.GPIO.Backend)
	}
	if cfg.PWM.Pin != 18 {
		t.Errorf("PWM.Pin = %d", cfg.PWM.Pin)
	}
	if cfg.Sensor.Model != "imx296" {
		t.Errorf("Sensor.Model = %q", cfg.Sensor.Model)
	}
	if cfg.State.URL != "redis://camera.local:6379/1" {
		t.Errorf("State.URL = %q", cfg.State.URL)
	}
	if len(cfg.Camera.Args) != 4 {
		t.Errorf("Camera.Args = %v", cfg.Camera.Args)
	}
	if cfg.System.UseSudo {
		t.Error("System.UseSudo should be false")
	}
}

func TestApplyEnvOverridesIgnoresBadPin(t *testing.T) {
	t.Setenv("CINEMATE_PWM_PIN", "eighteen")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.PWM.Pin != 19 {
		t.Errorf("PWM.Pin = %d, want default 19", cfg.PWM.Pin)
	}
}
