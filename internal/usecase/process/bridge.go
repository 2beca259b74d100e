// Package process owns the camera capture subprocess and republishes its
// output on the event bus.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"cinemate/internal/domain"
	"cinemate/internal/infra/logger"
)

// DefaultTailLines is the number of output lines kept when none is configured.
const DefaultTailLines = 200

// maxLineBytes bounds a single output line.
const maxLineBytes = 64 * 1024

// BridgeConfig configures the capture subprocess.
type BridgeConfig struct {
	Command   string
	Args      []string
	Dir       string
	TailLines int
	// WaitDelay bounds how long Stop waits for output to drain after the
	// process is killed (default: 2s).
	WaitDelay time.Duration
}

// Bridge runs the capture subprocess at most once per Bridge. stdout and
// stderr are split into lines independently and each line is published as
// a camera.output event. Publishing never blocks the streams.
type Bridge struct {
	cfg    BridgeConfig
	bus    domain.EventBus
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	run     domain.CameraRun
	cancel  context.CancelFunc
	stdout  *lineWriter
	stderr  *lineWriter
	tail    *lineRing
	done    chan struct{}
}

// NewBridge creates a bridge. Nothing runs until Start.
func NewBridge(cfg BridgeConfig, bus domain.EventBus, log *slog.Logger) *Bridge {
	if cfg.TailLines <= 0 {
		cfg.TailLines = DefaultTailLines
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 2 * time.Second
	}
	return &Bridge{
		cfg:    cfg,
		bus:    bus,
		logger: logger.Component(log, "camera"),
		tail:   newLineRing(cfg.TailLines),
		done:   make(chan struct{}),
	}
}

// Start launches the subprocess. A second call returns the existing run and
// an ErrDuplicate error. A failed launch may be retried.
func (b *Bridge) Start(ctx context.Context) (domain.CameraRun, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return b.run, domain.NewSubSystemError("camera", "Bridge.Start", domain.ErrDuplicate,
			fmt.Sprintf("run %s already started", b.run.ID))
	}

	runID := newID()

	// Detached from ctx: the camera lives until Stop, not until the caller returns.
	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, b.cfg.Command, b.cfg.Args...)
	cmd.Dir = b.cfg.Dir
	cmd.WaitDelay = b.cfg.WaitDelay

	stdout := newLineWriter(maxLineBytes, b.lineHandler(runID, domain.StreamStdout))
	stderr := newLineWriter(maxLineBytes, b.lineHandler(runID, domain.StreamStderr))
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return domain.CameraRun{}, fmt.Errorf("camera bridge: start %s: %w", b.cfg.Command, err)
	}

	b.started = true
	b.cancel = cancel
	b.stdout = stdout
	b.stderr = stderr
	b.run = domain.CameraRun{
		ID:        runID,
		Command:   b.cfg.Command,
		Args:      b.cfg.Args,
		PID:       cmd.Process.Pid,
		Status:    domain.ProcessStatusRunning,
		StartedAt: time.Now(),
	}
	run := b.run

	go b.waitForExit(cmd)

	b.emitEvent(ctx, domain.EventCameraStarted, run)
	b.logger.Info("camera process started", "run_id", runID, "command", b.cfg.Command, "pid", run.PID)
	return run, nil
}

func (b *Bridge) lineHandler(runID string, stream domain.OutputStream) func(string) {
	return func(line string) {
		l := domain.CameraOutput{RunID: runID, Stream: stream, Line: line}
		b.tail.add(l)
		b.emitEvent(context.Background(), domain.EventCameraOutput, l)
	}
}

// Run returns the current run and whether the process was ever started.
func (b *Bridge) Run() (domain.CameraRun, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run, b.started
}

// Tail returns up to n of the most recent output lines from both streams,
// oldest first.
func (b *Bridge) Tail(n int) []domain.CameraOutput { return b.tail.last(n) }

// Lines returns how many output lines the process has produced, including
// those already pushed out of the tail.
func (b *Bridge) Lines() int64 { return b.tail.TotalWritten() }

// Done is closed once the process has exited and its output is drained.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Subscribe delivers every output line to fn via the event bus. The returned
// function unsubscribes.
func (b *Bridge) Subscribe(fn func(domain.CameraOutput)) func() {
	if b.bus == nil {
		return func() {}
	}
	return b.bus.Subscribe(domain.EventCameraOutput, func(_ context.Context, e domain.Event) {
		var l domain.CameraOutput
		if err := json.Unmarshal(e.Payload, &l); err == nil {
			fn(l)
		}
	})
}

// Stop kills the subprocess and waits for it to exit or for ctx to end.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started || b.run.Status != domain.ProcessStatusRunning {
		b.mu.Unlock()
		return domain.NewSubSystemError("camera", "Bridge.Stop", domain.ErrNotRunning, b.cfg.Command)
	}
	// Set status BEFORE cancel so waitForExit sees it and skips status update.
	b.run.Status = domain.ProcessStatusKilled
	now := time.Now()
	b.run.EndedAt = &now
	cancel := b.cancel
	runID := b.run.ID
	b.mu.Unlock()

	cancel()
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.logger.Info("camera process killed", "run_id", runID)
	return nil
}

func (b *Bridge) waitForExit(cmd *exec.Cmd) {
	err := cmd.Wait()
	b.stdout.Flush()
	b.stderr.Flush()

	b.mu.Lock()
	// Stop() has already recorded a kill.
	if b.run.Status == domain.ProcessStatusRunning {
		now := time.Now()
		b.run.EndedAt = &now
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			b.run.Status = domain.ProcessStatusCompleted
			code := 0
			b.run.ExitCode = &code
		case errors.As(err, &exitErr):
			b.run.Status = domain.ProcessStatusFailed
			code := exitErr.ExitCode()
			b.run.ExitCode = &code
		default:
			b.run.Status = domain.ProcessStatusFailed
		}
	}
	b.cancel()
	run := b.run
	b.mu.Unlock()

	b.emitEvent(context.Background(), domain.EventCameraExited, run)
	b.logger.Info("camera process finished", "run_id", run.ID, "status", run.Status, "lines", b.Lines(), "error", err)
	close(b.done)
}

func (b *Bridge) emitEvent(ctx context.Context, eventType domain.EventType, payload any) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(ctx, domain.NewEvent(eventType, "camera", payload))
}

func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
