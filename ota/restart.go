package ota

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
)

// Restarter brings up the freshly installed firmware.
type Restarter interface {
	Restart() error
}

// Rollbacker is implemented by restarters that can put the previous
// firmware back when the restart into a new one failed.
type Rollbacker interface {
	Rollback() error
}

// ExecRestarter replaces the running process with the binary at Path,
// keeping arguments and environment. Installer, when set, is the one that
// wrote Path and serves rollbacks.
type ExecRestarter struct {
	Path      string
	Installer *Installer
}

func (e ExecRestarter) Restart() error {
	slog.Info("Restarting into new firmware", "path", e.Path)
	if err := syscall.Exec(e.Path, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", e.Path, err)
	}
	return nil
}

func (e ExecRestarter) Rollback() error {
	if e.Installer == nil {
		return fmt.Errorf("no installer for %s", e.Path)
	}
	slog.Warn("Rolling back to previous firmware", "path", e.Path)
	return e.Installer.Rollback()
}

// RestartFunc adapts a function to the Restarter interface.
type RestartFunc func() error

func (f RestartFunc) Restart() error {
	return f()
}
