// Package system wraps the privileged OS facilities the rig needs: the sensor
// driver's trigger-mode parameter, power commands and media unmounting.
package system

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
)

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ParamWriter writes scalar sysfs module parameters, either directly or
// through sudo when the process does not own the file.
type ParamWriter struct {
	useSudo bool
	timeout time.Duration
	run     runFunc
	write   func(path string, data []byte) error
}

var _ domain.ParamWriter = (*ParamWriter)(nil)

func NewParamWriter(cfg config.SystemConfig) *ParamWriter {
	return &ParamWriter{
		useSudo: cfg.UseSudo,
		timeout: commandTimeout(cfg),
		run:     execRun,
		write: func(path string, data []byte) error {
			return os.WriteFile(path, data, 0o644)
		},
	}
}

func (w *ParamWriter) WriteParam(ctx context.Context, path, value string) error {
	if strings.ContainsAny(value, "'\"`$;&|<>\n") || strings.ContainsAny(path, "'\"`$;&|<>\n ") {
		return domain.NewDomainError("ParamWriter.WriteParam", domain.ErrInvalidInput, fmt.Sprintf("%q=%q", path, value))
	}
	if !w.useSudo {
		if err := w.write(path, []byte(value+"\n")); err != nil {
			return domain.WrapOp("ParamWriter.WriteParam", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	script := fmt.Sprintf("echo %s > %s", value, path)
	if out, err := w.run(ctx, "sudo", "sh", "-c", script); err != nil {
		return domain.NewDomainError("ParamWriter.WriteParam", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Commander issues reboot and shutdown commands.
type Commander struct {
	reboot   []string
	shutdown []string
	useSudo  bool
	timeout  time.Duration
	run      runFunc
	logger   *slog.Logger
}

var _ domain.SystemCommander = (*Commander)(nil)

func NewCommander(cfg config.SystemConfig, logger *slog.Logger) *Commander {
	return &Commander{
		reboot:   cfg.RebootCommand,
		shutdown: cfg.ShutdownCommand,
		useSudo:  cfg.UseSudo,
		timeout:  commandTimeout(cfg),
		run:      execRun,
		logger:   logger,
	}
}

func (c *Commander) Reboot(ctx context.Context) error {
	return c.exec(ctx, "Commander.Reboot", c.reboot)
}

func (c *Commander) Shutdown(ctx context.Context) error {
	return c.exec(ctx, "Commander.Shutdown", c.shutdown)
}

func (c *Commander) exec(ctx context.Context, op string, argv []string) error {
	if len(argv) == 0 {
		return domain.NewDomainError(op, domain.ErrDisabled, "no command configured")
	}
	if c.useSudo {
		argv = append([]string{"sudo"}, argv...)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("running system command", "op", op, "argv", strings.Join(argv, " "))
	if out, err := c.run(ctx, argv[0], argv[1:]...); err != nil {
		return domain.NewDomainError(op, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Unmounter unmounts the recording media on request.
type Unmounter struct {
	mountPoint string
	useSudo    bool
	timeout    time.Duration
	run        runFunc
	logger     *slog.Logger
}

var _ domain.StorageMonitor = (*Unmounter)(nil)

func NewUnmounter(storage config.StorageConfig, sys config.SystemConfig, logger *slog.Logger) *Unmounter {
	return &Unmounter{
		mountPoint: storage.MountPoint,
		useSudo:    sys.UseSudo,
		timeout:    commandTimeout(sys),
		run:        execRun,
		logger:     logger,
	}
}

// UnmountDrive syncs and unmounts the media. Failures are logged; the caller
// is a button handler with nobody to report to.
func (u *Unmounter) UnmountDrive() {
	if u.mountPoint == "" {
		u.logger.Debug("unmount requested but no mount point configured")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()

	argv := []string{"umount", u.mountPoint}
	if u.useSudo {
		argv = append([]string{"sudo"}, argv...)
	}
	if out, err := u.run(ctx, argv[0], argv[1:]...); err != nil {
		u.logger.Error("unmount failed", "mount_point", u.mountPoint, "error", err, "output", strings.TrimSpace(string(out)))
		return
	}
	u.logger.Info("drive unmounted", "mount_point", u.mountPoint)
}

// StaticSensor reports a sensor model fixed by configuration.
type StaticSensor string

func (s StaticSensor) Model() string { return strings.ToLower(string(s)) }

func commandTimeout(cfg config.SystemConfig) time.Duration {
	if cfg.CommandTimeout > 0 {
		return cfg.CommandTimeout
	}
	return 10 * time.Second
}
