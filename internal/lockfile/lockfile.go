// Package lockfile guards the state directory against concurrent VoicePipe
// instances.
//
// Two processes sharing one SQLite database and audio cache corrupt both, so
// startup takes an exclusive flock on a lock file inside the state directory.
// The kernel releases the flock when the process exits, however it exits, so
// a crash never leaves the directory permanently locked.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the lock file created inside the state directory.
const LockFileName = "voicepipe.lock"

// Lock is a held state-directory lock.
type Lock struct {
	file *os.File
	path string
}

// ErrLocked reports a lock held by another live process.
type ErrLocked struct {
	Path   string
	Holder string // what the existing lock file says about its owner
	Cause  error
}

// Error implements the error interface.
func (e *ErrLocked) Error() string {
	msg := fmt.Sprintf("another VoicePipe instance is using this state directory (lock file: %s)", e.Path)
	if e.Holder != "" {
		msg += fmt.Sprintf("; held by %s", e.Holder)
	}
	return msg
}

// Unwrap returns the underlying flock error.
func (e *ErrLocked) Unwrap() error { return e.Cause }

// Acquire takes the exclusive lock for stateDir, creating the directory if
// needed. It fails fast with ErrLocked when another instance holds it.
func Acquire(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, &ErrLocked{Path: path, Holder: describeHolder(path), Cause: err}
	}

	// Record our pid for diagnostics. The flock, not this content, is what
	// enforces exclusion.
	if err := file.Truncate(0); err == nil {
		fmt.Fprintf(file, "pid=%d\n", os.Getpid())
		file.Sync()
	}

	slog.Info("lockfile.Acquire: state directory locked", "path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Release drops the lock and removes the lock file. Safe to call twice.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: failed to release flock", "error", err, "path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Warn("lockfile.Release: failed to close lock file", "error", err, "path", l.path)
	}
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	slog.Info("lockfile.Release: state directory unlocked", "path", l.path)
	return nil
}

// describeHolder reads the existing lock file and reports whether its owner
// is still alive, to make the startup error actionable.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	content := strings.TrimSpace(string(data))
	pidText, ok := strings.CutPrefix(content, "pid=")
	if !ok {
		return content
	}
	pid, err := strconv.Atoi(strings.TrimSpace(pidText))
	if err != nil {
		return content
	}
	if processAlive(pid) {
		return fmt.Sprintf("pid %d (running)", pid)
	}
	return fmt.Sprintf("pid %d (not running; stale lock)", pid)
}

// processAlive probes pid with signal 0, which checks existence without
// delivering anything.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
