//go:build edge

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"cinemate/internal/domain"
)

// CdevProvider claims lines through the GPIO character device. The kernel
// enforces exclusive ownership of each line. The character device has no
// hardware PWM, so ClaimPWM always fails and the trigger controller runs
// without a waveform.
type CdevProvider struct {
	chip string
}

var _ domain.LineProvider = (*CdevProvider)(nil)

// NewCdevProvider checks that chip can be opened and returns a provider for it.
func NewCdevProvider(chip string) (*CdevProvider, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chip, err)
	}
	c.Close()
	return &CdevProvider{chip: chip}, nil
}

func cdevPull(pull domain.Pull) gpiocdev.LineReqOption {
	switch pull {
	case domain.PullUp:
		return gpiocdev.WithPullUp
	case domain.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func (p *CdevProvider) ClaimInput(pin int, pull domain.Pull) (domain.InputLine, error) {
	l, err := gpiocdev.RequestLine(p.chip, pin,
		gpiocdev.AsInput,
		cdevPull(pull),
		gpiocdev.WithConsumer("cinemate"))
	if err != nil {
		return nil, domain.NewSubSystemError("gpio", "CdevProvider.ClaimInput", domain.ErrClaimFailed, fmt.Sprintf("line %d: %v", pin, err))
	}
	return &cdevLine{l: l}, nil
}

func (p *CdevProvider) ClaimOutput(pin int) (domain.OutputLine, error) {
	l, err := gpiocdev.RequestLine(p.chip, pin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("cinemate"))
	if err != nil {
		return nil, domain.NewSubSystemError("gpio", "CdevProvider.ClaimOutput", domain.ErrClaimFailed, fmt.Sprintf("line %d: %v", pin, err))
	}
	return &cdevLine{l: l}, nil
}

func (p *CdevProvider) ClaimPWM(pin int) (domain.PWMOutput, error) {
	return nil, domain.NewSubSystemError("pwm", "CdevProvider.ClaimPWM", domain.ErrClaimFailed,
		fmt.Sprintf("line %d: hardware PWM not available via character device", pin))
}

func (p *CdevProvider) Close() error { return nil }

type cdevLine struct {
	l *gpiocdev.Line
}

func (c *cdevLine) Read() (bool, error) {
	v, err := c.l.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (c *cdevLine) Write(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return c.l.SetValue(v)
}

func (c *cdevLine) Close() error {
	return c.l.Close()
}
