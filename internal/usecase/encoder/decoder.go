// Package encoder decodes clk/dt quadrature pairs from rotary controls.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cinemate/internal/domain"
	"cinemate/internal/infra/logger"
	"cinemate/internal/usecase/hwline"
)

// Direction of a decoded tick.
type Direction int

const (
	None Direction = iota
	Clockwise
	CounterClockwise
)

// Config configures one decoder.
type Config struct {
	Setting Setting
	Clk     int
	Dt      int
	Poll    time.Duration
}

// Decoder polls one clk/dt pair. Poll is not safe for concurrent use.
type Decoder struct {
	cfg      Config
	clk      *hwline.Line
	dt       *hwline.Line
	actions  Actions
	logger   *slog.Logger
	throttle *logger.Throttled
	primed   bool
}

// New claims both lines with pull-ups. If either claim fails nothing stays
// claimed and the error wraps ErrClaimFailed.
func New(cfg Config, p domain.LineProvider, actions Actions, log *slog.Logger) (*Decoder, error) {
	if cfg.Poll <= 0 {
		cfg.Poll = time.Millisecond
	}
	name := cfg.Setting.String()
	clk, err := hwline.Claim(p, hwline.Spec{Pin: cfg.Clk, Name: name + "_clk", Pull: domain.PullUp})
	if err != nil {
		return nil, err
	}
	dt, err := hwline.Claim(p, hwline.Spec{Pin: cfg.Dt, Name: name + "_dt", Pull: domain.PullUp})
	if err != nil {
		_ = clk.Close()
		return nil, err
	}

	l := logger.Component(log, "encoder").With("setting", name)
	l.Info("rotary encoder instantiated", "clk", cfg.Clk, "dt", cfg.Dt)
	return &Decoder{
		cfg:      cfg,
		clk:      clk,
		dt:       dt,
		actions:  actions,
		logger:   l,
		throttle: logger.NewThrottled(l, 5*time.Second, 1),
	}, nil
}

// Run polls until ctx is cancelled and releases both lines.
func (d *Decoder) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Poll)
	defer ticker.Stop()
	defer d.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Poll()
		}
	}
}

// Poll samples both lines once. A change of clk is a tick: clockwise when dt
// differs from clk, counter-clockwise when they match. The first sample only
// establishes the baseline.
func (d *Decoder) Poll() Direction {
	clk, clkChanged, err := d.clk.Sample()
	if err != nil {
		d.throttle.Warn("clk", "error reading encoder", "pin", d.cfg.Clk, "error", err)
		return None
	}
	dt, _, err := d.dt.Sample()
	if err != nil {
		d.throttle.Warn("dt", "error reading encoder", "pin", d.cfg.Dt, "error", err)
		return None
	}
	if !d.primed {
		d.primed = true
		return None
	}
	if !clkChanged {
		return None
	}

	dir := CounterClockwise
	if dt != clk {
		dir = Clockwise
	}
	d.fire(dir)
	return dir
}

func (d *Decoder) fire(dir Direction) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("encoder action panicked", "panic", fmt.Sprint(r))
		}
	}()
	if dir == Clockwise {
		d.actions.Inc()
		d.logger.Debug("rotary encoder UP")
		return
	}
	d.actions.Dec()
	d.logger.Debug("rotary encoder DOWN")
}

// Close releases both lines.
func (d *Decoder) Close() {
	_ = d.clk.Close()
	_ = d.dt.Close()
}
