package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemate/internal/domain"
)

const (
	undervoltageLine = "Oct 19 10:00:01 cinepi kernel: [   12.345678] hwmon hwmon1: Undervoltage detected!"
	normalisedLine   = "Oct 19 10:00:09 cinepi kernel: [   20.000001] hwmon hwmon1: Voltage_normalised"
	attachLine       = "Oct 19 10:01:00 cinepi kernel: [   80.100000] sd 0:0:0:0: [sda] Attached SCSI disk"
	detachLine       = "Oct 19 10:05:00 cinepi kernel: [  380.200000] sd 0:0:0:0: [sda] Synchronize Cache(10) failed: Result: hostbyte=DID_ERROR"
	noiseLine        = "Oct 19 10:00:02 cinepi kernel: [   13.000000] usb 1-1: new high-speed USB device"
)

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

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newMonitor(t *testing.T) (*Monitor, string, *recordingBus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kern.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	bus := &recordingBus{}
	return New(Config{LogFile: path, StorageName: "sda"}, bus, discard()), path, bus
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func kinds(events []domain.HealthEvent) []domain.HealthKind {
	var out []domain.HealthKind
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestUndervoltageDeduplicated(t *testing.T) {
	m, path, bus := newMonitor(t)
	ctx := context.Background()

	appendLine(t, path, undervoltageLine)
	assert.Equal(t, []domain.HealthKind{domain.HealthUndervoltage}, kinds(m.Scan(ctx)))
	assert.True(t, m.Undervoltage())

	appendLine(t, path, undervoltageLine)
	assert.Empty(t, m.Scan(ctx))

	appendLine(t, path, normalisedLine)
	assert.Equal(t, []domain.HealthKind{domain.HealthVoltageNormalised}, kinds(m.Scan(ctx)))
	assert.False(t, m.Undervoltage())

	appendLine(t, path, undervoltageLine)
	assert.Equal(t, []domain.HealthKind{domain.HealthUndervoltage}, kinds(m.Scan(ctx)))

	assert.Equal(t, 2, bus.count(domain.EventUndervoltageDetected))
	assert.Equal(t, 1, bus.count(domain.EventVoltageNormalised))
}

func TestUnchangedFileProducesNothing(t *testing.T) {
	m, path, _ := newMonitor(t)
	ctx := context.Background()

	appendLine(t, path, attachLine)
	require.Len(t, m.Scan(ctx), 1)

	assert.Empty(t, m.Scan(ctx))
	appendLine(t, path, noiseLine)
	assert.Empty(t, m.Scan(ctx))
}

func TestDiskAttachAndDetach(t *testing.T) {
	m, path, bus := newMonitor(t)
	ctx := context.Background()

	appendLine(t, path, attachLine)
	assert.Equal(t, []domain.HealthKind{domain.HealthDiskAttached}, kinds(m.Scan(ctx)))
	assert.True(t, m.DiskAttached())

	appendLine(t, path, detachLine)
	assert.Equal(t, []domain.HealthKind{domain.HealthDiskDetached}, kinds(m.Scan(ctx)))
	assert.False(t, m.DiskAttached())

	select {
	case <-m.DiskDetached():
	default:
		t.Fatal("detach signal not delivered")
	}
	assert.Equal(t, 1, bus.count(domain.EventDiskDetached))
}

func TestDetachMatchesFailedAlone(t *testing.T) {
	m, path, _ := newMonitor(t)
	appendLine(t, path, "Oct 19 10:05:00 cinepi kernel: [ 1.0] sd 0:0:0:0: [sda] Read Capacity failed")
	assert.Equal(t, []domain.HealthKind{domain.HealthDiskDetached}, kinds(m.Scan(context.Background())))
}

func TestStorageLineWithoutVerdictIgnored(t *testing.T) {
	m, path, _ := newMonitor(t)
	appendLine(t, path, "Oct 19 10:01:00 cinepi kernel: [ 80.0] sd 0:0:0:0: [sda] 1953525168 512-byte logical blocks")
	assert.Empty(t, m.Scan(context.Background()))
}

func TestEventsOrderedByPosition(t *testing.T) {
	m, path, _ := newMonitor(t)
	appendLine(t, path, normalisedLine)
	appendLine(t, path, undervoltageLine)

	assert.Equal(t, []domain.HealthKind{domain.HealthVoltageNormalised, domain.HealthUndervoltage}, kinds(m.Scan(context.Background())))
	assert.True(t, m.Undervoltage())
}

func TestEventIDsUnique(t *testing.T) {
	m, path, _ := newMonitor(t)
	appendLine(t, path, attachLine)
	appendLine(t, path, undervoltageLine)

	events := m.Scan(context.Background())
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.NotEmpty(t, events[0].ID)
}

func TestMessageStripsSyslogPrefix(t *testing.T) {
	assert.Equal(t, " Undervoltage detected!", message(undervoltageLine))
	assert.Equal(t, "no prefix here", message("no prefix here"))
}

func TestMissingFileDisablesMonitor(t *testing.T) {
	m := New(Config{LogFile: filepath.Join(t.TempDir(), "absent.log")}, &recordingBus{}, discard())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run should return when the log is missing")
	}
}

func TestRunWatchesForChanges(t *testing.T) {
	m, path, bus := newMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Keep appending until the watcher is armed and sees a write.
	require.Eventually(t, func() bool {
		appendLine(t, path, attachLine)
		return bus.count(domain.EventDiskAttached) > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRunFallsBackToPolling(t *testing.T) {
	m, path, bus := newMonitor(t)
	m.cfg.PollInterval = time.Second
	m.newWatcher = func(string) (*fsnotify.Watcher, error) { return nil, errors.New("inotify limit reached") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	appendLine(t, path, undervoltageLine)
	assert.Eventually(t, func() bool { return bus.count(domain.EventUndervoltageDetected) == 1 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}
