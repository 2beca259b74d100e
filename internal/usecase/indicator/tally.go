// Package indicator drives the recording tally lights.
package indicator

import (
	"log/slog"
	"sync"

	"cinemate/internal/domain"
	"cinemate/internal/infra/logger"
)

type tally struct {
	pin  int
	line domain.OutputLine
}

// Tally drives every configured rec light together.
type Tally struct {
	mu        sync.Mutex
	lights    []tally
	recording bool
	logger    *slog.Logger
}

// New claims each pin as an output. Pins that fail to claim are logged and
// skipped.
func New(p domain.LineProvider, pins []int, log *slog.Logger) *Tally {
	t := &Tally{logger: logger.Component(log, "indicator")}
	for _, pin := range pins {
		line, err := p.ClaimOutput(pin)
		if err != nil {
			t.logger.Error("failed to claim rec light", "pin", pin, "error", err)
			continue
		}
		t.lights = append(t.lights, tally{pin: pin, line: line})
		t.logger.Info("rec light instantiated", "pin", pin)
	}
	return t
}

// SetRecording switches every light on or off. A failed write is logged and
// the remaining lights are still driven.
func (t *Tally) SetRecording(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recording = on
	for _, l := range t.lights {
		if err := l.line.Write(on); err != nil {
			t.logger.Error("failed to set rec light", "pin", l.pin, "error", err)
			continue
		}
		t.logger.Debug("rec light set", "pin", l.pin, "on", on)
	}
}

// Recording reports the last state requested.
func (t *Tally) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

// Pins returns the pins that were claimed.
func (t *Tally) Pins() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pins := make([]int, 0, len(t.lights))
	for _, l := range t.lights {
		pins = append(pins, l.pin)
	}
	return pins
}

// Close turns the lights off and releases them.
func (t *Tally) Close() {
	t.SetRecording(false)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.lights {
		_ = l.line.Close()
	}
	t.lights = nil
}
