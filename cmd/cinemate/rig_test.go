package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"cinemate/internal/adapter/gpio"
	"cinemate/internal/adapter/statestore"
	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
	"cinemate/internal/usecase/eventbus"
)

type fakeParams struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeParams) WriteParam(_ context.Context, _, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, value)
	return nil
}

func (f *fakeParams) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return ""
	}
	return f.writes[len(f.writes)-1]
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Health.Enabled = false
	cfg.Camera.Enabled = false
	cfg.Recording.TallyPins = []int{21}
	cfg.SystemButton = config.LineConfig{Pin: 26}
	cfg.Encoders = []config.EncoderConfig{
		{Setting: "iso", Clk: 17, Dt: 27},
		{Setting: "focus", Clk: 22, Dt: 23},
	}
	return cfg
}

func newTestRig(t *testing.T, cfg *config.Config) (*rig, *gpio.MockProvider, *statestore.MemoryStore, *fakeParams) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock := gpio.NewMockProvider()
	store := statestore.NewMemoryStore()
	params := &fakeParams{}
	bus := eventbus.New(log, 16)
	t.Cleanup(bus.Close)

	r, err := buildRig(context.Background(), cfg, rigDeps{
		Provider: mock,
		Store:    store,
		Bus:      bus,
		Params:   params,
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("buildRig: %v", err)
	}
	return r, mock, store, params
}

func storeValue(t *testing.T, store *statestore.MemoryStore, key string) string {
	t.Helper()
	v, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	return v
}

func TestBuildRig(t *testing.T) {
	r, mock, _, params := newTestRig(t, testConfig())

	if len(r.encoders) != 1 {
		t.Errorf("encoders = %d, want 1 (unknown setting skipped)", len(r.encoders))
	}
	if r.gesture == nil {
		t.Error("expected system button recognizer")
	}
	if r.health != nil || r.bridge != nil {
		t.Error("disabled components should not be built")
	}
	for _, pin := range []int{4, 5, 17, 27, 26, 21, 19} {
		if !mock.Claimed(pin) {
			t.Errorf("pin %d not claimed", pin)
		}
	}
	if mock.Claimed(22) {
		t.Error("pin of a rejected encoder should not be claimed")
	}
	if got := params.last(); got != "0" {
		t.Errorf("initial trigger mode write = %q, want \"0\"", got)
	}
}

func TestBuildRigRejectsInvalidTriggerMode(t *testing.T) {
	cfg := testConfig()
	cfg.PWM.TriggerMode = 1
	_, err := buildRig(context.Background(), cfg, rigDeps{
		Provider: gpio.NewMockProvider(),
		Store:    statestore.NewMemoryStore(),
		Params:   &fakeParams{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err == nil {
		t.Fatal("expected error for trigger mode 1")
	}
	if domain.ErrorCodeOf(err) != domain.CodeTriggerMode {
		t.Errorf("code = %s, want %s", domain.ErrorCodeOf(err), domain.CodeTriggerMode)
	}
}

func TestPWMModeDrivesWaveform(t *testing.T) {
	r, mock, _, params := newTestRig(t, testConfig())

	r.camera.SetPWMMode(true)
	if _, _, running := mock.PWM(19).Waveform(); !running {
		t.Fatal("expected waveform running in pwm mode")
	}
	if got := params.last(); got != "2" {
		t.Errorf("trigger mode write = %q, want \"2\"", got)
	}

	r.camera.SetFPS(30)
	if got := r.trigger.Snapshot().FrequencyHz; got != 30 {
		t.Errorf("frequency = %v, want 30", got)
	}
}

func TestShutdownLeavesSafeState(t *testing.T) {
	r, mock, store, params := newTestRig(t, testConfig())
	ctx := context.Background()

	r.camera.SetPWMMode(true)
	r.camera.RecButtonPushed()
	r.camera.SetFPS(48)
	_ = store.Set(ctx, domain.KeyIsWriting, "1")
	if !mock.Output(21).Level() {
		t.Fatal("tally should be lit while recording")
	}

	r.Shutdown(ctx)

	if _, _, running := mock.PWM(19).Waveform(); running {
		t.Error("waveform still running after shutdown")
	}
	if got := params.last(); got != "0" {
		t.Errorf("trigger mode after shutdown = %q, want \"0\"", got)
	}
	for key, want := range map[string]string{
		domain.KeyIsRecording: "0",
		domain.KeyIsWriting:   "0",
		domain.KeyFPS:         "24",
	} {
		if got := storeValue(t, store, key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if mock.Output(21).Level() {
		t.Error("tally still lit after shutdown")
	}
	if mock.Claimed(21) {
		t.Error("tally line not released")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r, mock, _, _ := newTestRig(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for _, pin := range []int{4, 17, 26} {
		if mock.Claimed(pin) {
			t.Errorf("pin %d still claimed after Run", pin)
		}
	}
}

func TestConfigPath(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	t.Setenv("CINEMATE_CONFIG", "")

	os.Args = []string{"cinemate"}
	if got := configPath(); got != "cinemate.yaml" {
		t.Errorf("default = %q", got)
	}

	os.Args = []string{"cinemate", "--config", "/etc/cinemate.yaml"}
	if got := configPath(); got != "/etc/cinemate.yaml" {
		t.Errorf("--config PATH = %q", got)
	}

	os.Args = []string{"cinemate", "--config=rig.yaml"}
	if got := configPath(); got != "rig.yaml" {
		t.Errorf("--config=PATH = %q", got)
	}

	os.Args = []string{"cinemate"}
	t.Setenv("CINEMATE_CONFIG", "/tmp/env.yaml")
	if got := configPath(); got != "/tmp/env.yaml" {
		t.Errorf("env = %q", got)
	}
}
