// Package health tails the kernel log and turns power and storage
// diagnostics into health events on the bus.
package health

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"cinemate/internal/domain"
	"cinemate/internal/infra/logger"
)

// Config configures the monitor.
type Config struct {
	LogFile      string
	PollInterval time.Duration
	StorageName  string
}

// seen identifies the latest line matching a marker: its text and how many
// matching lines the file held at the time.
type seen struct {
	line    string
	ordinal int
}

// Monitor watches one log file. Scans are serialized.
type Monitor struct {
	cfg    Config
	bus    domain.EventBus
	logger *slog.Logger

	mu           sync.Mutex
	last         [markerCount]seen
	undervoltage bool
	diskAttached bool
	detached     chan struct{}

	newWatcher func(path string) (*fsnotify.Watcher, error)
	now        func() time.Time
}

func New(cfg Config, bus domain.EventBus, log *slog.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.StorageName == "" {
		cfg.StorageName = "sda"
	}
	return &Monitor{
		cfg:        cfg,
		bus:        bus,
		logger:     logger.Component(log, "health"),
		detached:   make(chan struct{}, 1),
		newWatcher: watchDir,
		now:        time.Now,
	}
}

// Undervoltage reports whether an undervoltage is flagged and not yet
// normalised.
func (m *Monitor) Undervoltage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.undervoltage
}

// DiskAttached reports whether the last storage line seen was an attach.
func (m *Monitor) DiskAttached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diskAttached
}

// DiskDetached receives once per detach. Detaches that arrive while a
// previous one is unconsumed are coalesced.
func (m *Monitor) DiskDetached() <-chan struct{} { return m.detached }

// Run scans the file once, then rescans on every change until ctx is
// cancelled. A missing file disables the monitor without failing the
// process. If change notification cannot be set up the file is rescanned
// every PollInterval instead.
func (m *Monitor) Run(ctx context.Context) error {
	if _, err := os.Stat(m.cfg.LogFile); err != nil {
		err = domain.NewSubSystemError("health", "Monitor.Run", domain.ErrLogSourceUnavailable, err.Error())
		m.logger.Error("kernel log does not exist, health monitoring disabled",
			"file", m.cfg.LogFile, "error", err, "code", domain.ErrorCodeOf(err))
		return nil
	}

	m.Scan(ctx)

	w, err := m.newWatcher(m.cfg.LogFile)
	if err != nil {
		m.logger.Warn("file notification unavailable, falling back to polling",
			"file", m.cfg.LogFile, "interval", m.cfg.PollInterval, "error", err)
		return m.poll(ctx)
	}
	defer w.Close()
	return m.watch(ctx, w)
}

// watchDir watches the directory holding path so the watch survives the
// file being rotated away and recreated.
func watchDir(path string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (m *Monitor) watch(ctx context.Context, w *fsnotify.Watcher) error {
	target := filepath.Clean(m.cfg.LogFile)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				m.Scan(ctx)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				m.logger.Info("kernel log rotated, waiting for it to reappear", "file", m.cfg.LogFile)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(m.cfg.PollInterval), cron.FuncJob(func() { m.Scan(ctx) }))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

type match struct {
	marker marker
	index  int
	line   string
}

// Scan rereads the file and publishes an event for every marker whose latest
// line is new since the previous scan. It returns the events published.
func (m *Monitor) Scan(ctx context.Context) []domain.HealthEvent {
	data, err := os.ReadFile(m.cfg.LogFile)
	if err != nil {
		m.logger.Error("error reading kernel log", "file", m.cfg.LogFile, "error", err)
		return nil
	}

	var (
		latest [markerCount]match
		counts [markerCount]int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; sc.Scan(); i++ {
		line := sc.Text()
		for mk, ok := range matches(line, m.cfg.StorageName) {
			if ok {
				counts[mk]++
				latest[mk] = match{marker: marker(mk), index: i, line: line}
			}
		}
	}

	m.mu.Lock()
	var fresh []match
	for mk := marker(0); mk < markerCount; mk++ {
		if counts[mk] == 0 {
			continue
		}
		s := seen{line: latest[mk].line, ordinal: counts[mk]}
		if s != m.last[mk] {
			m.last[mk] = s
			fresh = append(fresh, latest[mk])
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].index < fresh[j].index })

	var events []domain.HealthEvent
	for _, f := range fresh {
		if kind, ok := m.classifyLocked(f); ok {
			events = append(events, domain.HealthEvent{
				ID:         ulid.Make().String(),
				Kind:       kind,
				RawMessage: f.line,
				ObservedAt: m.now(),
			})
		}
	}
	m.mu.Unlock()

	for _, e := range events {
		if m.bus != nil {
			m.bus.Publish(ctx, domain.NewEvent(e.Kind.EventType(), "health", e))
		}
	}
	return events
}

func (m *Monitor) classifyLocked(f match) (domain.HealthKind, bool) {
	msg := message(f.line)
	switch f.marker {
	case markerUndervoltage:
		if m.undervoltage {
			return "", false
		}
		m.undervoltage = true
		m.logger.Warn("undervoltage detected")
		return domain.HealthUndervoltage, true
	case markerNormalised:
		m.undervoltage = false
		m.logger.Info("voltage normalised")
		return domain.HealthVoltageNormalised, true
	}

	kind, ok := storageKind(msg, m.cfg.StorageName)
	if !ok {
		return "", false
	}
	if kind == domain.HealthDiskAttached {
		m.diskAttached = true
		m.logger.Info("disk attached", "device", m.cfg.StorageName)
		return kind, true
	}
	m.diskAttached = false
	m.logger.Info("disk detached", "device", m.cfg.StorageName)
	select {
	case m.detached <- struct{}{}:
	default:
	}
	return kind, true
}
