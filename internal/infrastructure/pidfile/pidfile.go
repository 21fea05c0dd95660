// Package pidfile enforces single-instance daemon execution via a PID file.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFile manages a process ID file for daemon single-instance enforcement
type PIDFile struct {
	path string
}

// New creates a new PIDFile manager
func New(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire attempts to acquire the PID file lock.
// Returns an error if another live instance holds it; stale files from
// dead processes are removed and replaced.
func (p *PIDFile) Acquire() error {
	if pid, running := p.Running(); running {
		return fmt.Errorf("daemon is already running (PID %d)", pid)
	}
	// Stale or invalid PID file, safe to replace
	_ = os.Remove(p.path)

	pidData := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(p.path, []byte(pidData), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Release removes the PID file
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// KillExisting terminates the process recorded in the PID file and
// clears the file, so a forced restart can take over the lock.
func (p *PIDFile) KillExisting() error {
	pid, running := p.Running()
	if !running {
		return p.Release()
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	// Give the old instance a moment to shut down cleanly before
	// declaring the takeover failed.
	for i := 0; i < 50; i++ {
		if !isProcessRunning(pid) {
			return p.Release()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("process %d did not exit after SIGTERM", pid)
}

// Running reports the PID recorded in the file and whether that process
// is still alive. Used by status queries as well as Acquire.
func (p *PIDFile) Running() (int, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}

	if isProcessRunning(pid) {
		return pid, true
	}
	return pid, false
}

// isProcessRunning checks if a process with the given PID is running
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix FindProcess always succeeds; signal 0 probes existence
	// without delivering anything.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		// Process exists but belongs to another user
		return true
	}
	return false
}
