package domain

// Trigger modes understood by the sensor drivers.
const (
	TriggerFreeRun  = 0
	TriggerExternal = 2
)

// Frequency and shutter-angle limits enforced by the trigger controller.
const (
	MinFrequencyHz  = 1.0
	MaxFrequencyHz  = 50.0
	MinShutterAngle = 1.0
	MaxShutterAngle = 360.0
	DutyScale       = 1_000_000
)

// PWMState is a consistent snapshot of the trigger controller.
// ExposureTimeS never exceeds PeriodS.
type PWMState struct {
	FrequencyHz     float64 `json:"frequency_hz"`
	ShutterAngleDeg float64 `json:"shutter_angle_deg"`
	PeriodS         float64 `json:"period_s"`
	ExposureTimeS   float64 `json:"exposure_time_s"`
	DutyCycle       float64 `json:"duty_cycle_fraction"`
	TriggerMode     int     `json:"trigger_mode"`
	Active          bool    `json:"active"`
}

// DutyPPM returns the duty cycle on the 0..1 000 000 scale used by the PWM peripheral.
func (s PWMState) DutyPPM() int {
	return int(s.DutyCycle * DutyScale)
}

// TriggerProfile maps a sensor model to its trigger-mode parameter.
type TriggerProfile struct {
	Model     string
	ParamPath string
	// Value converts a logical trigger mode (0 or 2) into the value the driver expects.
	Value func(mode int) int
}
