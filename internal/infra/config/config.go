package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of cinemate.yaml.
type Config struct {
	Logger       LoggerConfig    `yaml:"logger"`
	Tracer       TracerConfig    `yaml:"tracer"`
	GPIO         GPIOConfig      `yaml:"gpio"`
	PWM          PWMConfig       `yaml:"pwm"`
	Inputs       InputsConfig    `yaml:"inputs"`
	SystemButton LineConfig      `yaml:"system_button"`
	Encoders     []EncoderConfig `yaml:"encoders"`
	Sensor       SensorConfig    `yaml:"sensor"`
	Health       HealthConfig    `yaml:"health"`
	Camera       CameraConfig    `yaml:"camera"`
	Settings     SettingsConfig  `yaml:"settings"`
	State        StateConfig     `yaml:"state"`
	Storage      StorageConfig   `yaml:"storage"`
	System       SystemConfig    `yaml:"system"`
	Timing       TimingConfig    `yaml:"timing"`
	Recording    RecordingConfig `yaml:"recording"`
	EventBus     EventBusConfig  `yaml:"event_bus"`
}

// GPIOConfig selects the line provider.
type GPIOConfig struct {
	Backend string `yaml:"backend"` // "periph", "cdev", "mock"
	Chip    string `yaml:"chip"`    // character device, e.g. "gpiochip0" (cdev only)
}

// PWMConfig holds trigger/PWM controller settings.
type PWMConfig struct {
	Pin          int                    `yaml:"pin"` // 0 disables the PWM output
	Frequency    float64                `yaml:"frequency"`
	ShutterAngle float64                `yaml:"shutter_angle"`
	TriggerMode  int                    `yaml:"trigger_mode"`
	Profiles     []TriggerProfileConfig `yaml:"profiles,omitempty"`
}

// TriggerProfileConfig adds a sensor model that is not built in.
// ExternalValue is written for trigger mode 2; mode 0 always writes 0.
type TriggerProfileConfig struct {
	Model         string `yaml:"model"`
	ParamPath     string `yaml:"param_path"`
	ExternalValue int    `yaml:"external_value"`
}

// LineConfig describes one discrete input line. Pin 0 means "not fitted".
type LineConfig struct {
	Pin      int  `yaml:"pin"`
	Inverted bool `yaml:"inverted"`
}

// Enabled reports whether a pin is configured.
func (l LineConfig) Enabled() bool { return l.Pin > 0 }

// InputsConfig lists the debounced input engine's lines.
type InputsConfig struct {
	RecButtons  []LineConfig `yaml:"rec_buttons"`
	ISOInc      LineConfig   `yaml:"iso_inc"`
	ISODec      LineConfig   `yaml:"iso_dec"`
	Resolution  LineConfig   `yaml:"resolution"`
	PWMSwitch   LineConfig   `yaml:"pwm_switch"`
	ShutterSync LineConfig   `yaml:"shutter_sync"`
	FPSButton   LineConfig   `yaml:"fps_button"`
	FPSSwitch   LineConfig   `yaml:"fps_switch"`
	PotLock     LineConfig   `yaml:"pot_lock"`
}

// EncoderConfig binds a quadrature encoder to a camera setting.
type EncoderConfig struct {
	Setting string `yaml:"setting"` // iso, shutter_a_nom, fps
	Clk     int    `yaml:"clk"`
	Dt      int    `yaml:"dt"`
}

// SensorConfig names the fitted sensor.
type SensorConfig struct {
	Model string `yaml:"model"`
}

// HealthConfig configures the kernel log monitor.
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	LogFile      string        `yaml:"log_file"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StorageName  string        `yaml:"storage_name"` // kernel block device name, e.g. "sda"
}

// CameraConfig configures the capture subprocess.
type CameraConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args,omitempty"`
	TailLines int      `yaml:"tail_lines"`
}

// SettingsConfig holds the step tables used by the camera controller.
type SettingsConfig struct {
	ISOSteps      []int     `yaml:"iso_steps"`
	ShutterASteps []float64 `yaml:"shutter_a_steps,omitempty"` // merged with 1..360
	FPSSteps      []float64 `yaml:"fps_steps,omitempty"`       // defaults to 1..fps_max
	FPSMax        float64   `yaml:"fps_max"`
	DefaultFPS    float64   `yaml:"default_fps"`
}

// StateConfig selects the shared state store.
type StateConfig struct {
	Backend        string               `yaml:"backend"` // "redis" or "memory"
	URL            string               `yaml:"url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the state store.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StorageConfig describes the recording media.
type StorageConfig struct {
	MountPoint string `yaml:"mount_point"`
}

// SystemConfig holds privileged OS command settings.
type SystemConfig struct {
	UseSudo         bool          `yaml:"use_sudo"`
	RebootCommand   []string      `yaml:"reboot_command"`
	ShutdownCommand []string      `yaml:"shutdown_command"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
}

// TimingConfig carries every polling and gesture constant.
type TimingConfig struct {
	ButtonPoll    time.Duration `yaml:"button_poll"`
	EncoderPoll   time.Duration `yaml:"encoder_poll"`
	ClickWindow   time.Duration `yaml:"click_window"`
	HoldThreshold time.Duration `yaml:"hold_threshold"`
	RampStep      time.Duration `yaml:"ramp_step"`
	RampMaxSteps  int           `yaml:"ramp_max_steps"`
}

// RecordingConfig lists the tally-light output pins.
type RecordingConfig struct {
	TallyPins []int `yaml:"tally_pins"`
}

// EventBusConfig sizes the per-subscriber queues.
type EventBusConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with the rig's stock wiring.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		GPIO: GPIOConfig{
			Backend: "periph",
			Chip:    "gpiochip0",
		},
		PWM: PWMConfig{
			Pin:          19,
			Frequency:    24,
			ShutterAngle: 180,
			TriggerMode:  0,
		},
		Inputs: InputsConfig{
			RecButtons: []LineConfig{{Pin: 4}, {Pin: 5}},
		},
		Sensor: SensorConfig{Model: "imx477"},
		Health: HealthConfig{
			Enabled:      true,
			LogFile:      "/var/log/kern.log",
			PollInterval: 2 * time.Second,
			StorageName:  "sda",
		},
		Camera: CameraConfig{
			Enabled:   true,
			Command:   "cinepi-raw",
			TailLines: 200,
		},
		Settings: SettingsConfig{
			ISOSteps:   []int{100, 200, 400, 640, 800, 1200, 1600, 2500, 3200},
			FPSMax:     50,
			DefaultFPS: 24,
		},
		State: StateConfig{
			Backend: "redis",
			URL:     "redis://localhost:6379/0",
			Timeout: 500 * time.Millisecond,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     10 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Storage: StorageConfig{MountPoint: "/media/RAW"},
		System: SystemConfig{
			UseSudo:         true,
			RebootCommand:   []string{"reboot"},
			ShutdownCommand: []string{"shutdown", "-h", "now"},
			CommandTimeout:  10 * time.Second,
		},
		Timing: TimingConfig{
			ButtonPoll:    10 * time.Millisecond,
			EncoderPoll:   time.Millisecond,
			ClickWindow:   1500 * time.Millisecond,
			HoldThreshold: 3 * time.Second,
			RampStep:      100 * time.Millisecond,
			RampMaxSteps:  200,
		},
		EventBus: EventBusConfig{QueueSize: 256},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CINEMATE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CINEMATE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CINEMATE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CINEMATE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CINEMATE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CINEMATE_GPIO_BACKEND"); v != "" {
		cfg.GPIO.Backend = v
	}
	if v := os.Getenv("CINEMATE_GPIO_CHIP"); v != "" {
		cfg.GPIO.Chip = v
	}
	if v := os.Getenv("CINEMATE_PWM_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PWM.Pin = n
		}
	}
	if v := os.Getenv("CINEMATE_SENSOR_MODEL"); v != "" {
		cfg.Sensor.Model = strings.ToLower(v)
	}
	if v := os.Getenv("CINEMATE_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("CINEMATE_STATE_URL"); v != "" {
		cfg.State.URL = v
	}
	if v := os.Getenv("CINEMATE_HEALTH_LOG_FILE"); v != "" {
		cfg.Health.LogFile = v
	}
	if v := os.Getenv("CINEMATE_CAMERA_COMMAND"); v != "" {
		cfg.Camera.Command = v
	}
	if v := os.Getenv("CINEMATE_CAMERA_ARGS"); v != "" {
		cfg.Camera.Args = strings.Fields(v)
	}
	if v := os.Getenv("CINEMATE_SYSTEM_USE_SUDO"); v != "" {
		cfg.System.UseSudo = v == "true"
	}
	if v := os.Getenv("CINEMATE_STORAGE_MOUNT_POINT"); v != "" {
		cfg.Storage.MountPoint = v
	}
}
