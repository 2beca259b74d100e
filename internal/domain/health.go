package domain

import "time"

// HealthKind classifies a kernel log line.
type HealthKind string

const (
	HealthUndervoltage      HealthKind = "undervoltage_detected"
	HealthVoltageNormalised HealthKind = "voltage_normalised"
	HealthDiskAttached      HealthKind = "disk_attached"
	HealthDiskDetached      HealthKind = "disk_detached"
)

// EventType returns the bus event type for the kind.
func (k HealthKind) EventType() EventType {
	switch k {
	case HealthUndervoltage:
		return EventUndervoltageDetected
	case HealthVoltageNormalised:
		return EventVoltageNormalised
	case HealthDiskAttached:
		return EventDiskAttached
	default:
		return EventDiskDetached
	}
}

// HealthEvent is emitted at most once per distinct underlying log line.
type HealthEvent struct {
	ID         string     `json:"id"`
	Kind       HealthKind `json:"kind"`
	RawMessage string     `json:"raw_message"`
	ObservedAt time.Time  `json:"observed_at"`
}
