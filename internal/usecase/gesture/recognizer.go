// Package gesture recognizes clicks and holds on the system button.
//
// Releases shorter than the hold threshold count as clicks. Clicks separated
// by less than the click window accumulate; once the window passes with no
// new release the count is dispatched. Holding for the threshold unmounts the
// recording drive and discards any pending clicks.
package gesture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cinemate/internal/adapter/statestore"
	"cinemate/internal/domain"
	"cinemate/internal/infra/logger"
	"cinemate/internal/infra/tracer"
	"cinemate/internal/usecase/hwline"
)

// State of the recognizer.
type State int

const (
	StateIdle State = iota
	StatePressed
	StateHeldConfirmed
	StateAwaitingMoreClicks
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressed:
		return "pressed"
	case StateHeldConfirmed:
		return "held"
	case StateAwaitingMoreClicks:
		return "awaiting_more_clicks"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config configures the recognizer.
type Config struct {
	Pin           int
	Inverted      bool
	Poll          time.Duration
	ClickWindow   time.Duration
	HoldThreshold time.Duration
}

// Actions are the collaborators gestures act on.
type Actions struct {
	Controller domain.CameraController
	Store      domain.StateStore
	Storage    domain.StorageMonitor
	System     domain.SystemCommander
}

// Option customizes a Recognizer.
type Option func(*Recognizer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(r *Recognizer) { r.clock = c } }

// WithBus publishes gesture events on bus.
func WithBus(bus domain.EventBus) Option { return func(r *Recognizer) { r.bus = bus } }

// Recognizer is the click/hold state machine for one line. The poll loop and
// the settle timer both mutate it under mu.
type Recognizer struct {
	cfg     Config
	line    *hwline.Line
	actions Actions
	clock   Clock
	bus     domain.EventBus
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	clickCount int
	lastPress  time.Time
	pressStart time.Time
	timer      Timer
	gen        uint64
	ctx        context.Context
}

// New claims the button line with a pull-up.
func New(cfg Config, p domain.LineProvider, actions Actions, log *slog.Logger, opts ...Option) (*Recognizer, error) {
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	if cfg.ClickWindow <= 0 {
		cfg.ClickWindow = 1500 * time.Millisecond
	}
	if cfg.HoldThreshold <= 0 {
		cfg.HoldThreshold = 3 * time.Second
	}
	line, err := hwline.Claim(p, hwline.Spec{Pin: cfg.Pin, Name: "system_button", Pull: domain.PullUp, Inverted: cfg.Inverted})
	if err != nil {
		return nil, err
	}
	r := &Recognizer{
		cfg:     cfg,
		line:    line,
		actions: actions,
		clock:   realClock{},
		logger:  logger.Component(log, "gesture"),
		ctx:     context.Background(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger.Info("system button instantiated", "pin", cfg.Pin)
	return r, nil
}

// Run polls the button until ctx is cancelled. A pending settle timer is
// cancelled on exit.
func (r *Recognizer) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	ticker := time.NewTicker(r.cfg.Poll)
	defer ticker.Stop()
	defer r.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Poll()
		}
	}
}

// Poll samples the button once and advances the state machine.
func (r *Recognizer) Poll() {
	active, _, err := r.line.Sample()
	if err != nil {
		r.logger.Debug("error reading system button", "error", err)
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	var (
		hold    bool
		expired int
	)
	if active {
		hold = r.pressedLocked(now)
	} else {
		expired = r.releasedLocked(now)
	}
	ctx := r.ctx
	r.mu.Unlock()

	if hold {
		r.dispatchHold()
	}
	if expired > 0 {
		r.dispatchClicks(ctx, expired)
	}
}

func (r *Recognizer) pressedLocked(now time.Time) bool {
	switch r.state {
	case StateIdle, StateAwaitingMoreClicks:
		r.state = StatePressed
		r.pressStart = now
		r.stopTimerLocked()
	case StatePressed:
		if now.Sub(r.pressStart) >= r.cfg.HoldThreshold {
			r.state = StateHeldConfirmed
			r.clickCount = 0
			return true
		}
	}
	return false
}

// releasedLocked returns a click count that fell out of the window and must
// be dispatched before the new sequence starts. The press cancelled its
// settle timer, so nothing else will finalize it.
func (r *Recognizer) releasedLocked(now time.Time) (expired int) {
	switch r.state {
	case StatePressed:
		if r.clickCount > 0 && r.pressStart.Sub(r.lastPress) < r.cfg.ClickWindow {
			r.clickCount++
		} else {
			expired = r.clickCount
			r.clickCount = 1
		}
		r.lastPress = r.pressStart
		r.state = StateAwaitingMoreClicks
		r.armTimerLocked()
	case StateHeldConfirmed:
		r.state = StateIdle
	}
	return expired
}

func (r *Recognizer) armTimerLocked() {
	r.stopTimerLocked()
	r.gen++
	gen := r.gen
	r.timer = r.clock.AfterFunc(r.cfg.ClickWindow, func() { r.settle(gen) })
}

func (r *Recognizer) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// settle finalizes the click count. A timer superseded by a later press or
// release is ignored.
func (r *Recognizer) settle(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.state != StateAwaitingMoreClicks {
		r.mu.Unlock()
		return
	}
	count := r.clickCount
	r.clickCount = 0
	r.state = StateIdle
	r.timer = nil
	ctx := r.ctx
	r.mu.Unlock()

	r.dispatchClicks(ctx, count)
}

// State returns the current state machine state.
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ClickCount returns the clicks accumulated so far.
func (r *Recognizer) ClickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clickCount
}

func (r *Recognizer) close() {
	r.mu.Lock()
	r.stopTimerLocked()
	r.gen++
	r.mu.Unlock()
	_ = r.line.Close()
}

func (r *Recognizer) dispatchHold() {
	r.logger.Info("system button held", "threshold", r.cfg.HoldThreshold)
	if r.actions.Storage != nil {
		r.actions.Storage.UnmountDrive()
	}
	r.publish(domain.EventGestureHold, domain.GestureDispatch{Action: "unmount_drive"})
}

func (r *Recognizer) dispatchClicks(ctx context.Context, count int) {
	ctx, span := tracer.StartSpan(ctx, "gesture.dispatch", tracer.IntAttr("clicks", count))
	var (
		action string
		err    error
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("gesture action panicked: %v", p)
			r.logger.Error("gesture action panicked", "clicks", count, "panic", p)
		}
		tracer.End(span, err)
	}()

	switch count {
	case 1:
		action = "switch_resolution"
		r.logger.Info("system button clicked once")
		r.actions.Controller.SwitchResolution()
	case 2:
		action = "restart_camera"
		r.logger.Info("system button double-clicked")
		err = r.actions.Store.Set(ctx, domain.KeyCamInit, "1")
	case 3:
		action = "reboot"
		r.logger.Info("system button triple-clicked, restarting system")
		err = r.actions.System.Reboot(ctx)
	case 4:
		action = "shutdown"
		r.logger.Info("system button quadruple-clicked")
		if statestore.GetBool(ctx, r.actions.Store, domain.KeyIsRecording) {
			r.actions.Controller.StopRecording()
		}
		r.logger.Info("initiating safe system shutdown")
		err = r.actions.System.Shutdown(ctx)
	default:
		action = "none"
		r.logger.Info("system button clicked", "clicks", count)
	}
	if err != nil {
		r.logger.Error("gesture action failed", "action", action, "error", err, "code", domain.ErrorCodeOf(err))
	}
	r.publish(domain.EventGestureClicks, domain.GestureDispatch{Clicks: count, Action: action})
}

func (r *Recognizer) publish(t domain.EventType, d domain.GestureDispatch) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(context.Background(), domain.NewEvent(t, "gesture", d))
}
