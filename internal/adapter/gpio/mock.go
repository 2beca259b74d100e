package gpio

import (
	"fmt"
	"sync"

	"cinemate/internal/domain"
)

// MockProvider is an in-memory LineProvider. Tests drive input levels with
// SetRaw and inspect outputs through Output and PWM.
type MockProvider struct {
	mu        sync.Mutex
	claimed   map[int]domain.Direction
	raw       map[int]bool
	readErr   map[int]error
	failClaim map[int]bool
	outputs   map[int]*MockOutput
	pwms      map[int]*MockPWM
	noPWM     bool
}

var _ domain.LineProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider whose inputs all read high (released,
// with pull-ups) until SetRaw changes them.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		claimed:   make(map[int]domain.Direction),
		raw:       make(map[int]bool),
		readErr:   make(map[int]error),
		failClaim: make(map[int]bool),
		outputs:   make(map[int]*MockOutput),
		pwms:      make(map[int]*MockPWM),
	}
}

// SetRaw sets the electrical level an input line reads.
func (m *MockProvider) SetRaw(pin int, high bool) {
	m.mu.Lock()
	m.raw[pin] = high
	m.mu.Unlock()
}

// FailRead makes reads of pin return err until cleared with a nil err.
func (m *MockProvider) FailRead(pin int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.readErr, pin)
		return
	}
	m.readErr[pin] = err
}

// FailClaim makes any future claim of pin fail.
func (m *MockProvider) FailClaim(pin int) {
	m.mu.Lock()
	m.failClaim[pin] = true
	m.mu.Unlock()
}

// DisablePWM makes ClaimPWM fail for every pin, like a controller without PWM channels.
func (m *MockProvider) DisablePWM() {
	m.mu.Lock()
	m.noPWM = true
	m.mu.Unlock()
}

// Claimed reports whether pin is currently claimed.
func (m *MockProvider) Claimed(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claimed[pin]
	return ok
}

// Output returns the claimed output line for pin, or nil.
func (m *MockProvider) Output(pin int) *MockOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs[pin]
}

// PWM returns the claimed PWM channel for pin, or nil.
func (m *MockProvider) PWM(pin int) *MockPWM {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pwms[pin]
}

func (m *MockProvider) claim(pin int, dir domain.Direction) error {
	if m.failClaim[pin] {
		return domain.NewSubSystemError("gpio", "MockProvider.Claim", domain.ErrClaimFailed, fmt.Sprintf("pin %d", pin))
	}
	if _, busy := m.claimed[pin]; busy {
		return domain.NewSubSystemError("gpio", "MockProvider.Claim", domain.ErrClaimFailed, fmt.Sprintf("pin %d already claimed", pin))
	}
	m.claimed[pin] = dir
	return nil
}

func (m *MockProvider) release(pin int) {
	m.mu.Lock()
	delete(m.claimed, pin)
	m.mu.Unlock()
}

func (m *MockProvider) ClaimInput(pin int, pull domain.Pull) (domain.InputLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.claim(pin, domain.DirectionInput); err != nil {
		return nil, err
	}
	if _, set := m.raw[pin]; !set {
		m.raw[pin] = pull != domain.PullDown
	}
	return &mockInput{p: m, pin: pin}, nil
}

func (m *MockProvider) ClaimOutput(pin int) (domain.OutputLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.claim(pin, domain.DirectionOutput); err != nil {
		return nil, err
	}
	out := &MockOutput{p: m, pin: pin}
	m.outputs[pin] = out
	return out, nil
}

func (m *MockProvider) ClaimPWM(pin int) (domain.PWMOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.noPWM {
		return nil, domain.NewSubSystemError("pwm", "MockProvider.ClaimPWM", domain.ErrClaimFailed, "no PWM channels")
	}
	if err := m.claim(pin, domain.DirectionOutput); err != nil {
		return nil, err
	}
	p := &MockPWM{p: m, pin: pin}
	m.pwms[pin] = p
	return p, nil
}

func (m *MockProvider) Close() error {
	m.mu.Lock()
	m.claimed = make(map[int]domain.Direction)
	m.mu.Unlock()
	return nil
}

type mockInput struct {
	p   *MockProvider
	pin int
}

func (l *mockInput) Read() (bool, error) {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	if err := l.p.readErr[l.pin]; err != nil {
		return false, err
	}
	return l.p.raw[l.pin], nil
}

func (l *mockInput) Close() error {
	l.p.release(l.pin)
	return nil
}

// MockOutput records every level written to it.
type MockOutput struct {
	p      *MockProvider
	pin    int
	mu     sync.Mutex
	writes []bool
}

func (o *MockOutput) Write(high bool) error {
	o.mu.Lock()
	o.writes = append(o.writes, high)
	o.mu.Unlock()
	return nil
}

// Level returns the last written level (false if never written).
func (o *MockOutput) Level() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.writes) == 0 {
		return false
	}
	return o.writes[len(o.writes)-1]
}

// Writes returns a copy of every written level.
func (o *MockOutput) Writes() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.writes...)
}

func (o *MockOutput) Close() error {
	o.p.release(o.pin)
	return nil
}

// MockPWM records the last waveform programmed on it.
type MockPWM struct {
	p   *MockProvider
	pin int

	mu        sync.Mutex
	frequency float64
	duty      float64
	running   bool
	calls     int
}

func (w *MockPWM) SetPWM(frequencyHz, duty float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frequency = frequencyHz
	w.duty = duty
	w.running = true
	w.calls++
	return nil
}

func (w *MockPWM) Halt() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	w.duty = 0
	return nil
}

// Waveform returns the programmed frequency and duty and whether it is running.
func (w *MockPWM) Waveform() (frequencyHz, duty float64, running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frequency, w.duty, w.running
}

// Calls returns how many times SetPWM was invoked.
func (w *MockPWM) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func (w *MockPWM) Close() error {
	w.p.release(w.pin)
	return nil
}
