package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ProcessLock is a PID lock file guarding a single-owner resource: one
// worker per slot, one watchdog per project. Stale locks left by dead
// processes are cleaned up automatically.
type ProcessLock struct {
	path string
	name string
}

// NewProcessLock creates a lock manager for the given lock file path. The
// name appears in error messages ("worker dev-1", "watchdog").
func NewProcessLock(path, name string) *ProcessLock {
	return &ProcessLock{path: path, name: name}
}

// Acquire attempts to take the lock.
// Returns an error if the lock is held by another running process.
func (l *ProcessLock) Acquire() error {
	// Try atomic creation with O_EXCL
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
		f.Close()
		if writeErr != nil {
			os.Remove(l.path)
			return fmt.Errorf("failed to write lock file: %w", writeErr)
		}
		return nil
	}

	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	// Lock file exists - check if it's stale
	data, readErr := os.ReadFile(l.path)
	if readErr != nil {
		return fmt.Errorf("failed to read existing lock file: %w", readErr)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, parseErr := strconv.Atoi(pidStr)
	if parseErr != nil {
		// Invalid PID in lock file - treat as stale
		if removeErr := os.Remove(l.path); removeErr != nil {
			return fmt.Errorf("failed to remove invalid lock file: %w", removeErr)
		}
		return l.retryAcquire()
	}

	if processExists(pid) {
		return fmt.Errorf("%s is already running (PID %d)", l.name, pid)
	}

	// Process is dead - remove stale lock and retry
	if removeErr := os.Remove(l.path); removeErr != nil {
		return fmt.Errorf("failed to remove stale lock file: %w", removeErr)
	}

	return l.retryAcquire()
}

// retryAcquire attempts to acquire the lock after removing a stale lock.
// Only tries once to avoid infinite loops.
func (l *ProcessLock) retryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("lock acquired by another process during retry")
		}
		return fmt.Errorf("failed to create lock file on retry: %w", err)
	}

	_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()
	if writeErr != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file on retry: %w", writeErr)
	}
	return nil
}

// Release removes the lock file.
// Returns nil if the lock file doesn't exist (idempotent).
func (l *ProcessLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// processExists checks if a process with the given PID is running.
// Uses signal 0, which checks for process existence without sending a signal.
func processExists(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
