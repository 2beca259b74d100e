package health

import (
	"strings"

	"cinemate/internal/domain"
)

type marker int

const (
	markerUndervoltage marker = iota
	markerNormalised
	markerStorage
	markerCount
)

func (m marker) String() string {
	switch m {
	case markerUndervoltage:
		return "undervoltage"
	case markerNormalised:
		return "voltage_normalised"
	default:
		return "storage"
	}
}

// matches reports which marker line contains. storage is the block device
// name, e.g. "sda".
func matches(line, storage string) [markerCount]bool {
	var out [markerCount]bool
	out[markerUndervoltage] = strings.Contains(line, "Undervoltage")
	out[markerNormalised] = strings.Contains(line, "Voltage_normalised") || strings.Contains(line, "Voltage normalised")
	out[markerStorage] = storage != "" && strings.Contains(line, storage)
	return out
}

// message strips the syslog prefix: "Mon DD HH:MM:SS host kernel: [t] msg"
// splits into more than four ':' fields and keeps everything after the fourth.
func message(line string) string {
	parts := strings.SplitN(line, ":", 5)
	if len(parts) > 4 {
		return parts[4]
	}
	return line
}

// storageKind classifies a storage line. Any line mentioning the device that
// is not an attach and contains "failed" counts as a detach.
func storageKind(msg, storage string) (domain.HealthKind, bool) {
	if strings.Contains(msg, "["+storage+"] Attached SCSI disk") {
		return domain.HealthDiskAttached, true
	}
	if strings.Contains(msg, "failed") {
		return domain.HealthDiskDetached, true
	}
	return "", false
}
