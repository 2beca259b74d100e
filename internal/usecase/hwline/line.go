// Package hwline wraps a claimed input line with the debounce bookkeeping every
// polling engine needs: inversion and the last observed logical state.
package hwline

import (
	"fmt"

	"cinemate/internal/domain"
)

// Spec describes a line to claim.
type Spec struct {
	Pin      int
	Name     string
	Pull     domain.Pull
	Inverted bool
}

// Line is an input line owned by exactly one polling engine. It is not safe
// for concurrent use; each engine samples its lines from one goroutine.
type Line struct {
	spec  Spec
	in    domain.InputLine
	state domain.Tristate
}

// Claim claims spec.Pin as an input. The error wraps ErrClaimFailed.
func Claim(p domain.LineProvider, spec Spec) (*Line, error) {
	in, err := p.ClaimInput(spec.Pin, spec.Pull)
	if err != nil {
		return nil, domain.NewSubSystemError("gpio", "hwline.Claim", domain.ErrClaimFailed,
			fmt.Sprintf("%s (pin %d): %v", spec.Name, spec.Pin, err))
	}
	return &Line{spec: spec, in: in}, nil
}

// Active converts a raw level into the logical state. Lines are wired
// active-low against their pull-up, so a low level means pressed; Inverted
// flips that for switches wired the other way round.
func Active(rawHigh, inverted bool) bool {
	return !rawHigh != inverted
}

// Sample reads the line once. changed is true when the logical state differs
// from the previous sample; the first successful sample after claim always
// reports a change. A failed read leaves the recorded state untouched.
func (l *Line) Sample() (active, changed bool, err error) {
	raw, err := l.in.Read()
	if err != nil {
		return false, false, domain.NewSubSystemError("gpio", "hwline.Sample", domain.ErrTransientRead,
			fmt.Sprintf("%s (pin %d): %v", l.spec.Name, l.spec.Pin, err))
	}
	active = Active(raw, l.spec.Inverted)
	next := domain.StateLow
	if active {
		next = domain.StateHigh
	}
	changed = next != l.state
	l.state = next
	return active, changed, nil
}

// State returns the last observed logical state.
func (l *Line) State() domain.Tristate { return l.state }

func (l *Line) Pin() int { return l.spec.Pin }

func (l *Line) Name() string { return l.spec.Name }

func (l *Line) Close() error { return l.in.Close() }
