// Package framerate serializes every write to the camera frame rate.
//
// Ordinary writers (encoders, switches, the fps button's instant jump) go
// through Guard's methods. A ramp takes an exclusive Session; while it runs,
// ordinary writes are dropped rather than queued, so nothing can interleave
// with the ramp's steps.
package framerate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"cinemate/internal/domain"
	"cinemate/internal/infra/tracer"
)

// Writer is the frame-rate half of the camera controller.
type Writer interface {
	IncFPS()
	DecFPS()
	SetFPS(fps float64)
}

// Guard owns all frame-rate writes.
type Guard struct {
	mu      sync.Mutex
	locked  bool
	w       Writer
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewGuard(w Writer, logger *slog.Logger) *Guard {
	return &Guard{w: w, logger: logger}
}

// Do runs fn unless a session holds the guard. It reports whether fn ran.
func (g *Guard) Do(op string, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		g.dropped.Add(1)
		g.logger.Debug("frame rate write dropped during ramp", "op", op)
		return false
	}
	fn()
	return true
}

func (g *Guard) IncFPS() bool { return g.Do("inc_fps", g.w.IncFPS) }

func (g *Guard) DecFPS() bool { return g.Do("dec_fps", g.w.DecFPS) }

func (g *Guard) SetFPS(fps float64) bool {
	return g.Do("set_fps", func() { g.w.SetFPS(fps) })
}

// Locked reports whether a session currently holds the guard.
func (g *Guard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

// Dropped returns how many ordinary writes were rejected by sessions.
func (g *Guard) Dropped() uint64 { return g.dropped.Load() }

// Session gives fn exclusive write access until it returns. A second
// concurrent Session fails with ErrRampInProgress without running fn.
func (g *Guard) Session(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	g.mu.Lock()
	if g.locked {
		g.mu.Unlock()
		return domain.NewSubSystemError("framerate", "Guard.Session", domain.ErrRampInProgress, "")
	}
	g.locked = true
	g.mu.Unlock()

	ctx, span := tracer.StartSpan(ctx, "framerate.ramp")
	s := &Session{g: g}
	defer func() {
		g.mu.Lock()
		g.locked = false
		g.mu.Unlock()
	}()

	err := fn(ctx, s)
	span.SetAttributes(tracer.IntAttr("steps", s.Steps()))
	tracer.End(span, err)
	return err
}

// Session is the exclusive writer handed to a ramp.
type Session struct {
	g     *Guard
	steps atomic.Int64
}

func (s *Session) write(fn func()) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	fn()
	s.steps.Add(1)
}

func (s *Session) IncFPS() { s.write(s.g.w.IncFPS) }

func (s *Session) DecFPS() { s.write(s.g.w.DecFPS) }

func (s *Session) SetFPS(fps float64) { s.write(func() { s.g.w.SetFPS(fps) }) }

// Steps returns the number of writes issued through the session.
func (s *Session) Steps() int { return int(s.steps.Load()) }
