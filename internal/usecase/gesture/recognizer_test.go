package gesture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemate/internal/adapter/gpio"
	"cinemate/internal/adapter/statestore"
	"cinemate/internal/domain"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeController struct {
	domain.CameraController
	mu    sync.Mutex
	calls []string
}

func (c *fakeController) record(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *fakeController) SwitchResolution() { c.record("switch_resolution") }
func (c *fakeController) StopRecording()    { c.record("stop_recording") }

type fakeSystem struct {
	mu      sync.Mutex
	reboots int
	halts   int
	err     error
}

func (s *fakeSystem) Reboot(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reboots++
	return s.err
}

func (s *fakeSystem) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halts++
	return s.err
}

type fakeStorage struct{ unmounts int }

func (s *fakeStorage) UnmountDrive() { s.unmounts++ }

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) dispatches(t domain.EventType) []domain.GestureDispatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.GestureDispatch
	for _, e := range b.events {
		if e.Type != t {
			continue
		}
		var d domain.GestureDispatch
		_ = json.Unmarshal(e.Payload, &d)
		out = append(out, d)
	}
	return out
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const buttonPin = 27

type fixture struct {
	r       *Recognizer
	gpio    *gpio.MockProvider
	clock   *fakeClock
	ctrl    *fakeController
	store   *statestore.MemoryStore
	system  *fakeSystem
	storage *fakeStorage
	bus     *recordingBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gpio:    gpio.NewMockProvider(),
		clock:   newFakeClock(),
		ctrl:    &fakeController{},
		store:   statestore.NewMemoryStore(),
		system:  &fakeSystem{},
		storage: &fakeStorage{},
		bus:     &recordingBus{},
	}
	r, err := New(Config{Pin: buttonPin}, f.gpio, Actions{
		Controller: f.ctrl,
		Store:      f.store,
		Storage:    f.storage,
		System:     f.system,
	}, discard(), WithClock(f.clock), WithBus(f.bus))
	require.NoError(t, err)
	f.r = r
	f.r.Poll()
	return f
}

func (f *fixture) press() {
	f.gpio.SetRaw(buttonPin, false)
	f.r.Poll()
}

func (f *fixture) release() {
	f.gpio.SetRaw(buttonPin, true)
	f.r.Poll()
}

func (f *fixture) click() {
	f.press()
	f.clock.Advance(100 * time.Millisecond)
	f.release()
}

func TestSingleClickSwitchesResolution(t *testing.T) {
	f := newFixture(t)
	f.click()
	assert.Equal(t, StateAwaitingMoreClicks, f.r.State())
	assert.Equal(t, 1, f.r.ClickCount())

	f.clock.Advance(1400 * time.Millisecond)
	assert.Empty(t, f.bus.dispatches(domain.EventGestureClicks))

	f.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"switch_resolution"}, f.ctrl.calls)
	assert.Equal(t, StateIdle, f.r.State())
	assert.Zero(t, f.r.ClickCount())
}

func TestFiveClicksDispatchOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.click()
		f.clock.Advance(500 * time.Millisecond)
	}
	assert.Equal(t, 5, f.r.ClickCount())

	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, []domain.GestureDispatch{{Clicks: 5, Action: "none"}}, f.bus.dispatches(domain.EventGestureClicks))
	assert.Empty(t, f.ctrl.calls)
	assert.Zero(t, f.system.reboots)
	assert.Zero(t, f.system.halts)
	assert.Zero(t, f.r.ClickCount())
}

func TestDoubleClickRestartsCamera(t *testing.T) {
	f := newFixture(t)
	f.click()
	f.clock.Advance(300 * time.Millisecond)
	f.click()
	f.clock.Advance(1500 * time.Millisecond)

	v, err := f.store.Get(context.Background(), domain.KeyCamInit)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestTripleClickReboots(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.click()
	}
	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, f.system.reboots)
}

func TestQuadrupleClickStopsRecordingThenShutsDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(context.Background(), domain.KeyIsRecording, "1"))
	for i := 0; i < 4; i++ {
		f.click()
	}
	f.clock.Advance(1500 * time.Millisecond)

	assert.Equal(t, []string{"stop_recording"}, f.ctrl.calls)
	assert.Equal(t, 1, f.system.halts)
}

func TestQuadrupleClickWhileIdleSkipsStopRecording(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.click()
	}
	f.clock.Advance(1500 * time.Millisecond)

	assert.Empty(t, f.ctrl.calls)
	assert.Equal(t, 1, f.system.halts)
}

func TestShutdownFailureIsLoggedAndDispatched(t *testing.T) {
	f := newFixture(t)
	f.system.err = errors.New("exit status 1")
	for i := 0; i < 4; i++ {
		f.click()
	}
	assert.NotPanics(t, func() { f.clock.Advance(1500 * time.Millisecond) })
	assert.Equal(t, []domain.GestureDispatch{{Clicks: 4, Action: "shutdown"}}, f.bus.dispatches(domain.EventGestureClicks))
}

func TestSlowClicksRestartCount(t *testing.T) {
	f := newFixture(t)
	f.click()
	f.clock.Advance(1600 * time.Millisecond)
	f.click()
	f.clock.Advance(1500 * time.Millisecond)

	assert.Equal(t, []domain.GestureDispatch{
		{Clicks: 1, Action: "switch_resolution"},
		{Clicks: 1, Action: "switch_resolution"},
	}, f.bus.dispatches(domain.EventGestureClicks))
}

func TestPressOutsideWindowKeepsEarlierClick(t *testing.T) {
	f := newFixture(t)
	f.press()
	f.clock.Advance(300 * time.Millisecond)
	f.release()

	// Next press lands before the settle timer fires but more than a
	// window after the previous press.
	f.clock.Advance(1300 * time.Millisecond)
	f.press()
	f.clock.Advance(200 * time.Millisecond)
	f.release()

	assert.Equal(t, []domain.GestureDispatch{
		{Clicks: 1, Action: "switch_resolution"},
	}, f.bus.dispatches(domain.EventGestureClicks))
	assert.Equal(t, 1, f.r.ClickCount())

	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, []domain.GestureDispatch{
		{Clicks: 1, Action: "switch_resolution"},
		{Clicks: 1, Action: "switch_resolution"},
	}, f.bus.dispatches(domain.EventGestureClicks))
	assert.Equal(t, StateIdle, f.r.State())
}

func TestHoldUnmountsOnce(t *testing.T) {
	f := newFixture(t)
	f.press()
	for i := 0; i < 40; i++ {
		f.clock.Advance(100 * time.Millisecond)
		f.r.Poll()
	}
	assert.Equal(t, StateHeldConfirmed, f.r.State())
	assert.Equal(t, 1, f.storage.unmounts)
	assert.Zero(t, f.r.ClickCount())

	f.release()
	f.clock.Advance(5 * time.Second)

	assert.Equal(t, 1, f.storage.unmounts)
	assert.Len(t, f.bus.dispatches(domain.EventGestureHold), 1)
	assert.Empty(t, f.bus.dispatches(domain.EventGestureClicks))
	assert.Equal(t, StateIdle, f.r.State())
}

func TestHoldDiscardsPendingClicks(t *testing.T) {
	f := newFixture(t)
	f.click()
	f.clock.Advance(200 * time.Millisecond)
	f.press()
	f.clock.Advance(3 * time.Second)
	f.r.Poll()
	f.release()
	f.clock.Advance(2 * time.Second)

	assert.Equal(t, 1, f.storage.unmounts)
	assert.Empty(t, f.bus.dispatches(domain.EventGestureClicks))
}

func TestPressCancelsSettleTimer(t *testing.T) {
	f := newFixture(t)
	f.click()
	f.clock.Advance(1 * time.Second)
	f.press()
	// The first click's window passes while the button is still down.
	f.clock.Advance(1 * time.Second)
	assert.Empty(t, f.bus.dispatches(domain.EventGestureClicks))
	f.release()
	f.clock.Advance(1500 * time.Millisecond)

	assert.Equal(t, []domain.GestureDispatch{{Clicks: 2, Action: "restart_camera"}}, f.bus.dispatches(domain.EventGestureClicks))
}

func TestRunCancelReleasesLine(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.False(t, f.gpio.Claimed(buttonPin))
}
