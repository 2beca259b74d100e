//go:build edge

package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"cinemate/internal/domain"
)

// PeriphProvider claims lines through periph.io. It is the only backend that
// can drive the SoC's hardware PWM channels (GPIO12/13/18/19 on a Pi).
type PeriphProvider struct {
	mu      sync.Mutex
	claimed map[int]bool
}

var _ domain.LineProvider = (*PeriphProvider)(nil)

// NewPeriphProvider initializes the periph.io host drivers.
func NewPeriphProvider() (*PeriphProvider, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphProvider{claimed: make(map[int]bool)}, nil
}

func (p *PeriphProvider) resolve(op string, pin int) (gpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.claimed[pin] {
		return nil, domain.NewSubSystemError("gpio", op, domain.ErrClaimFailed, fmt.Sprintf("pin %d already claimed", pin))
	}
	name := fmt.Sprintf("GPIO%d", pin)
	pio := gpioreg.ByName(name)
	if pio == nil {
		return nil, domain.NewSubSystemError("gpio", op, domain.ErrClaimFailed, fmt.Sprintf("pin %d (%s) not found in hardware", pin, name))
	}
	p.claimed[pin] = true
	return pio, nil
}

func (p *PeriphProvider) release(pin int) {
	p.mu.Lock()
	delete(p.claimed, pin)
	p.mu.Unlock()
}

func periphPull(pull domain.Pull) gpio.Pull {
	switch pull {
	case domain.PullUp:
		return gpio.PullUp
	case domain.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func (p *PeriphProvider) ClaimInput(pin int, pull domain.Pull) (domain.InputLine, error) {
	pio, err := p.resolve("PeriphProvider.ClaimInput", pin)
	if err != nil {
		return nil, err
	}
	if err := pio.In(periphPull(pull), gpio.NoEdge); err != nil {
		p.release(pin)
		return nil, domain.NewSubSystemError("gpio", "PeriphProvider.ClaimInput", domain.ErrClaimFailed, err.Error())
	}
	return &periphInput{p: p, pin: pin, pio: pio}, nil
}

func (p *PeriphProvider) ClaimOutput(pin int) (domain.OutputLine, error) {
	pio, err := p.resolve("PeriphProvider.ClaimOutput", pin)
	if err != nil {
		return nil, err
	}
	if err := pio.Out(gpio.Low); err != nil {
		p.release(pin)
		return nil, domain.NewSubSystemError("gpio", "PeriphProvider.ClaimOutput", domain.ErrClaimFailed, err.Error())
	}
	return &periphOutput{p: p, pin: pin, pio: pio}, nil
}

func (p *PeriphProvider) ClaimPWM(pin int) (domain.PWMOutput, error) {
	pio, err := p.resolve("PeriphProvider.ClaimPWM", pin)
	if err != nil {
		return nil, domain.NewSubSystemError("pwm", "PeriphProvider.ClaimPWM", domain.ErrClaimFailed, err.Error())
	}
	if err := pio.Out(gpio.Low); err != nil {
		p.release(pin)
		return nil, domain.NewSubSystemError("pwm", "PeriphProvider.ClaimPWM", domain.ErrClaimFailed, err.Error())
	}
	return &periphPWM{p: p, pin: pin, pio: pio}, nil
}

func (p *PeriphProvider) Close() error {
	p.mu.Lock()
	p.claimed = make(map[int]bool)
	p.mu.Unlock()
	return nil
}

type periphInput struct {
	p   *PeriphProvider
	pin int
	pio gpio.PinIO
}

func (l *periphInput) Read() (bool, error) {
	return l.pio.Read() == gpio.High, nil
}

func (l *periphInput) Close() error {
	l.p.release(l.pin)
	return nil
}

type periphOutput struct {
	p   *PeriphProvider
	pin int
	pio gpio.PinIO
}

func (o *periphOutput) Write(high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	return o.pio.Out(level)
}

func (o *periphOutput) Close() error {
	err := o.pio.Out(gpio.Low)
	o.p.release(o.pin)
	return err
}

type periphPWM struct {
	p   *PeriphProvider
	pin int
	pio gpio.PinIO
}

func (w *periphPWM) SetPWM(frequencyHz, duty float64) error {
	d := gpio.Duty(duty * float64(gpio.DutyMax))
	f := physic.Frequency(frequencyHz * float64(physic.Hertz))
	if err := w.pio.PWM(d, f); err != nil {
		return fmt.Errorf("pwm on GPIO%d: %w", w.pin, err)
	}
	return nil
}

func (w *periphPWM) Halt() error {
	return w.pio.Out(gpio.Low)
}

func (w *periphPWM) Close() error {
	err := w.Halt()
	w.p.release(w.pin)
	return err
}
