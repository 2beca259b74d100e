package domain

// Direction of a claimed GPIO line.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionOutput {
		return "output"
	}
	return "input"
}

// Pull is the bias applied to an input line.
type Pull int

const (
	PullUp Pull = iota
	PullDown
	PullNone
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// Tristate is the last observed logical state of a line.
type Tristate int

const (
	StateUnknown Tristate = iota
	StateLow
	StateHigh
)

func (s Tristate) String() string {
	switch s {
	case StateLow:
		return "low"
	case StateHigh:
		return "high"
	default:
		return "unknown"
	}
}

// InputLine is a claimed digital input. Read reports the raw electrical level
// (true = high).
type InputLine interface {
	Read() (bool, error)
	Close() error
}

// OutputLine is a claimed digital output.
type OutputLine interface {
	Write(high bool) error
	Close() error
}

// PWMOutput is a claimed hardware PWM channel. Duty is the fraction of the
// period held high, in [0,1]. Halt drives the line low and stops the waveform.
type PWMOutput interface {
	SetPWM(frequencyHz float64, duty float64) error
	Halt() error
	Close() error
}

// LineProvider claims lines from the GPIO controller. Each pin may be claimed
// once; a failed claim returns an error wrapping ErrClaimFailed.
type LineProvider interface {
	ClaimInput(pin int, pull Pull) (InputLine, error)
	ClaimOutput(pin int) (OutputLine, error)
	ClaimPWM(pin int) (PWMOutput, error)
	Close() error
}
