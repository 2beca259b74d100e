package input

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"cinemate/internal/adapter/statestore"
	"cinemate/internal/domain"
	"cinemate/internal/usecase/framerate"
)

// rampSession remembers the rate to return to while the doubled rate is
// engaged.
type rampSession struct {
	mu      sync.Mutex
	fpsTemp float64
	doubled bool
}

// RampReport is the payload of ramp events.
type RampReport struct {
	Direction string  `json:"direction"`
	From      float64 `json:"from"`
	Target    float64 `json:"target"`
	Steps     int     `json:"steps"`
	Error     string  `json:"error,omitempty"`
}

// Doubled reports whether the fps button's doubled rate is engaged.
func (e *Engine) Doubled() bool {
	e.ramp.mu.Lock()
	defer e.ramp.mu.Unlock()
	return e.ramp.doubled
}

// onFPSButton acts on the release that follows a press. Outside pwm mode the
// rate jumps between base and double; in pwm mode a ramp walks there one
// frame per second at a time on its own goroutine.
func (e *Engine) onFPSButton(ctx context.Context, active bool) {
	released := e.fpsPressed && !active
	e.fpsPressed = active
	if !released {
		return
	}

	if !e.ctrl.PWMMode() {
		e.toggleInstant(ctx)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.guard.Session(ctx, e.runRamp)
		e.replayFPSSwitch()
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrRampInProgress):
			e.logger.Debug("fps button ignored, ramp in progress")
		case errors.Is(err, context.Canceled):
			e.logger.Info("fps ramp cancelled")
		default:
			e.logger.Warn("fps ramp aborted", "error", err, "code", domain.ErrorCodeOf(err))
		}
	}()
}

func (e *Engine) fpsActual(ctx context.Context) float64 {
	return statestore.GetFloat(ctx, e.store, domain.KeyFPSActual, e.cfg.DefaultFPS)
}

func (e *Engine) fpsMax(ctx context.Context) float64 {
	return statestore.GetFloat(ctx, e.store, domain.KeyFPSMax, e.cfg.FPSMax)
}

func (e *Engine) toggleInstant(ctx context.Context) {
	r := e.ramp
	if !r.mu.TryLock() {
		e.logger.Debug("fps button ignored, ramp in progress")
		return
	}
	defer r.mu.Unlock()

	if !r.doubled {
		base := e.fpsActual(ctx)
		target := math.Min(base*2, e.fpsMax(ctx))
		if e.guard.SetFPS(target) {
			r.fpsTemp = base
			r.doubled = true
			e.logger.Info("fps doubled", "from", base, "to", target)
		}
		return
	}
	if e.guard.SetFPS(r.fpsTemp) {
		r.doubled = false
		e.logger.Info("fps restored", "to", r.fpsTemp)
	}
}

func (e *Engine) runRamp(ctx context.Context, s *framerate.Session) error {
	r := e.ramp
	r.mu.Lock()
	defer r.mu.Unlock()

	report := RampReport{From: e.fpsActual(ctx)}
	if !r.doubled {
		report.Direction = "up"
		report.Target = math.Min(report.From*2, e.fpsMax(ctx))
	} else {
		report.Direction = "down"
		report.Target = r.fpsTemp
	}
	e.publish(ctx, domain.EventRampStarted, report)
	e.logger.Info("fps ramp started", "direction", report.Direction, "from", report.From, "target", report.Target)

	err := e.walk(ctx, s, report.Target, report.Direction == "up")
	report.Steps = s.Steps()
	if err != nil {
		report.Error = err.Error()
		e.publish(ctx, domain.EventRampCompleted, report)
		return err
	}

	if report.Direction == "up" {
		r.fpsTemp = report.From
		r.doubled = true
	} else {
		r.doubled = false
	}
	e.publish(ctx, domain.EventRampCompleted, report)
	e.logger.Info("fps ramp completed", "direction", report.Direction, "target", report.Target, "steps", report.Steps)
	return nil
}

// walk steps the rate one unit at a time towards target, re-reading the
// reported rate before every step since the camera applies writes
// asynchronously.
func (e *Engine) walk(ctx context.Context, s *framerate.Session, target float64, up bool) error {
	for i := 0; ; i++ {
		cur := e.fpsActual(ctx)
		if (up && cur >= target) || (!up && cur <= target) {
			return nil
		}
		if i >= e.cfg.RampMaxSteps {
			return domain.NewSubSystemError("framerate", "Engine.walk", domain.ErrTimeout,
				fmt.Sprintf("rate %.3g did not reach %.3g after %d steps", cur, target, i))
		}
		if up {
			s.SetFPS(math.Min(cur+1, target))
		} else {
			s.SetFPS(math.Max(cur-1, target))
		}
		if err := e.sleep(ctx, e.cfg.RampStep); err != nil {
			return err
		}
	}
}

func (e *Engine) publish(ctx context.Context, t domain.EventType, r RampReport) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, domain.NewEvent(t, "input", r))
}
