package encoder

import (
	"fmt"
	"strings"

	"cinemate/internal/domain"
	"cinemate/internal/usecase/framerate"
)

// Setting is the camera parameter a rotary control adjusts.
type Setting int

const (
	SettingISO Setting = iota + 1
	SettingShutterAngleNom
	SettingFPS
)

var settingNames = map[Setting]string{
	SettingISO:             "iso",
	SettingShutterAngleNom: "shutter_a_nom",
	SettingFPS:             "fps",
}

func (s Setting) String() string {
	if n, ok := settingNames[s]; ok {
		return n
	}
	return fmt.Sprintf("setting(%d)", int(s))
}

// ParseSetting maps a config label to a Setting.
func ParseSetting(label string) (Setting, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	for s, n := range settingNames {
		if n == l {
			return s, nil
		}
	}
	return 0, domain.NewSubSystemError("encoder", "ParseSetting", domain.ErrInvalidInput,
		fmt.Sprintf("unknown setting %q", label))
}

// Actions are the step functions a decoder calls on each tick.
type Actions struct {
	Inc func()
	Dec func()
}

// Bind resolves the step functions for s once. Frame-rate steps go through
// guard so they are dropped while a ramp holds it.
func Bind(s Setting, ctrl domain.CameraController, guard *framerate.Guard) (Actions, error) {
	switch s {
	case SettingISO:
		return Actions{Inc: ctrl.IncISO, Dec: ctrl.DecISO}, nil
	case SettingShutterAngleNom:
		return Actions{Inc: ctrl.IncShutterAngleNom, Dec: ctrl.DecShutterAngleNom}, nil
	case SettingFPS:
		if guard == nil {
			return Actions{}, domain.NewSubSystemError("encoder", "Bind", domain.ErrInvalidInput, "fps encoder needs a frame rate guard")
		}
		return Actions{
			Inc: func() { guard.IncFPS() },
			Dec: func() { guard.DecFPS() },
		}, nil
	}
	return Actions{}, domain.NewSubSystemError("encoder", "Bind", domain.ErrInvalidInput, s.String())
}
