package domain

import "context"

// Keys published to or read from the shared state store.
const (
	KeyFPSActual   = "fps_actual"
	KeyFPSMax      = "fps_max"
	KeyFPS         = "fps"
	KeyISO         = "iso"
	KeyShutterA    = "shutter_a"
	KeyIsRecording = "is_recording"
	KeyIsWriting   = "is_writing"
	KeyCamInit     = "cam_init"
	KeyPWMMode     = "pwm_mode"
	KeyResolution  = "resolution"
)

// StateStore is the shared key/value store used to publish and read camera
// parameters. It is eventually consistent: a Set is not guaranteed to be
// visible to a concurrent Get.
type StateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// CameraController aggregates camera settings. The input engines call into it
// and never inspect its internals.
type CameraController interface {
	RecButtonPushed()
	StopRecording()

	IncISO()
	DecISO()
	IncShutterAngleNom()
	DecShutterAngleNom()
	IncFPS()
	DecFPS()
	SetFPS(fps float64)

	SwitchResolution()
	SetResolutionMode(high bool)
	SwitchFPS(double bool)
	SetPWMMode(on bool)
	PWMMode() bool
	SetShutterSync(on bool)
	SetParametersLock(on bool)
}

// SensorProvider returns the detected sensor model (e.g. "imx477").
type SensorProvider interface {
	Model() string
}

// StorageMonitor owns the recording media.
type StorageMonitor interface {
	UnmountDrive()
}

// SystemCommander issues privileged power commands.
type SystemCommander interface {
	Reboot(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ParamWriter writes a single scalar system parameter (a sysfs module parameter).
type ParamWriter interface {
	WriteParam(ctx context.Context, path, value string) error
}
