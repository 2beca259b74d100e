package domain

import "time"

// ProcessStatus represents the lifecycle state of the capture subprocess.
type ProcessStatus string

const (
	ProcessStatusRunning   ProcessStatus = "running"
	ProcessStatusCompleted ProcessStatus = "completed"
	ProcessStatusFailed    ProcessStatus = "failed"
	ProcessStatusKilled    ProcessStatus = "killed"
)

// OutputStream names the subprocess stream a line came from.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// CameraRun describes the single capture subprocess owned by the bridge.
type CameraRun struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	PID       int           `json:"pid"`
	Status    ProcessStatus `json:"status"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// CameraOutput is one decoded line of subprocess output.
type CameraOutput struct {
	RunID  string       `json:"run_id"`
	Stream OutputStream `json:"stream"`
	Line   string       `json:"line"`
}

// GestureDispatch is the payload of gesture events.
type GestureDispatch struct {
	Clicks int    `json:"clicks"`
	Action string `json:"action"`
}
