package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// Sentinel errors for the hardware/control layer.
var (
	// ErrClaimFailed reports that a GPIO or PWM line could not be claimed.
	// Always recovered locally by disabling the feature that needed the line.
	ErrClaimFailed = fmt.Errorf("hardware line claim failed")
	// ErrUnsupportedSensor reports a trigger-mode request for an unknown sensor model.
	ErrUnsupportedSensor = fmt.Errorf("unsupported sensor model")
	// ErrInvalidParameter is a caller contract violation (illegal trigger or ramp mode).
	// It is the only error the trigger controller surfaces to its callers.
	ErrInvalidParameter = fmt.Errorf("invalid parameter")
	// ErrTransientRead reports a single failed sample of an input line.
	ErrTransientRead = fmt.Errorf("transient line read failure")
	// ErrLogSourceUnavailable reports that the health monitor's log file is missing.
	ErrLogSourceUnavailable = fmt.Errorf("log source unavailable")
	// ErrStateUnavailable reports that the shared state store cannot be reached.
	ErrStateUnavailable = fmt.Errorf("state store unavailable")
	// ErrNotRunning reports an operation on a process that is not running.
	ErrNotRunning = fmt.Errorf("not running")
	// ErrRampInProgress reports that a frame-rate ramp already holds the guard.
	ErrRampInProgress = fmt.Errorf("frame rate ramp in progress")

	ErrConfigLoad = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Trigger.SetMode")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "trigger", "gpio"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRecoverable reports whether err belongs to the locally recovered error classes
// (claim failures, unsupported sensors, transient reads, missing log source,
// unreachable state store). Callers log these and continue degraded.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrClaimFailed) ||
		errors.Is(err, ErrUnsupportedSensor) ||
		errors.Is(err, ErrTransientRead) ||
		errors.Is(err, ErrLogSourceUnavailable) ||
		errors.Is(err, ErrStateUnavailable)
}

// ErrorCode is a machine-parseable error category for logs.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeClaimFailed       ErrorCode = "CLAIM_FAILED"
	CodeUnsupportedSensor ErrorCode = "UNSUPPORTED_SENSOR"
	CodeInvalidParameter  ErrorCode = "INVALID_PARAMETER"
	CodeTransientRead     ErrorCode = "TRANSIENT_READ"
	CodeLogSourceMissing  ErrorCode = "LOG_SOURCE_UNAVAILABLE"
	CodeStateUnavailable  ErrorCode = "STATE_UNAVAILABLE"
	CodeNotRunning        ErrorCode = "NOT_RUNNING"
	CodeRampInProgress    ErrorCode = "RAMP_IN_PROGRESS"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeTriggerMode       ErrorCode = "TRIGGER_MODE_INVALID"
	CodeRampMode          ErrorCode = "RAMP_MODE_INVALID"
	CodePWMClaim          ErrorCode = "PWM_CLAIM_FAILED"
	CodeCameraNotRunning  ErrorCode = "CAMERA_NOT_RUNNING"
	CodeCameraDuplicate   ErrorCode = "CAMERA_ALREADY_STARTED"
	CodeStateKeyNotFound  ErrorCode = "STATE_KEY_NOT_FOUND"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeLimitReached      ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeDisabled          ErrorCode = "DISABLED"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,

	ErrClaimFailed:          CodeClaimFailed,
	ErrUnsupportedSensor:    CodeUnsupportedSensor,
	ErrInvalidParameter:     CodeInvalidParameter,
	ErrTransientRead:        CodeTransientRead,
	ErrLogSourceUnavailable: CodeLogSourceMissing,
	ErrStateUnavailable:     CodeStateUnavailable,
	ErrNotRunning:           CodeNotRunning,
	ErrRampInProgress:       CodeRampInProgress,
	ErrConfigLoad:           CodeConfigLoad,
}

// subSystemCodeMap maps (sentinel, subsystem) pairs to more specific codes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrInvalidParameter: {
		"trigger.mode": CodeTriggerMode,
		"trigger.ramp": CodeRampMode,
	},
	ErrClaimFailed: {
		"pwm": CodePWMClaim,
	},
	ErrNotRunning: {
		"camera": CodeCameraNotRunning,
	},
	ErrDuplicate: {
		"camera": CodeCameraDuplicate,
	},
	ErrNotFound: {
		"state": CodeStateKeyNotFound,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
