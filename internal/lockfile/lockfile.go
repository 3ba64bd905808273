// Package lockfile keeps two FocusPipe processes from sharing a state directory.
//
// The lock is an flock(2) on a file inside the state directory, so the kernel
// drops it when the process exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "focuspipe.lock"

// Lock represents an active directory lock
type Lock struct {
	file     *os.File
	path     string
	acquired bool
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Started time.Time
	Running bool
}

func (h Holder) String() string {
	if h.PID <= 0 {
		return ""
	}
	state := "not running, stale lock"
	if h.Running {
		state = "running"
	}
	if h.Started.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d started %s (%s)", h.PID, h.Started.Format(time.RFC3339), state)
}

// AcquireLock takes an exclusive lock on stateDir, creating the directory if
// needed. When another process holds the lock it returns a *LockError.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// The file is truncated only once the lock is held, so a failed attempt
	// leaves the holder's information readable.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder, _ := ReadHolder(lockPath)
		slog.Error("lockfile.AcquireLock: state directory in use", "error", err, "lock_path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writeHolder(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Acquired state directory lock", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath, acquired: true}, nil
}

func writeHolder(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	info := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(info); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err, "lock_path", file.Name())
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock and removes the lock file. It is safe to call
// more than once.
func (l *Lock) Release() error {
	if !l.acquired || l.file == nil {
		return nil
	}

	// Remove before unlocking so a new holder never loses its file.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Failed to release flock", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()

	l.acquired = false
	l.file = nil
	slog.Info("Released state directory lock", "lock_path", l.path)
	return err
}

// LockError reports a state directory held by another process.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another FocusPipe instance is already using this state directory (lock file %s)", e.LockPath)
	if h := e.Holder.String(); h != "" {
		fmt.Fprintf(&b, "; holder: %s", h)
	}
	if e.Holder.PID > 0 && !e.Holder.Running {
		fmt.Fprintf(&b, "; if no other instance is running, remove %s and retry", e.LockPath)
	}
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// ReadHolder parses the process information stored in a lock file.
func ReadHolder(lockPath string) (Holder, error) {
	f, err := os.Open(lockPath)
	if err != nil {
		return Holder{}, err
	}
	defer f.Close()

	var h Holder
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				h.PID = pid
			}
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				h.Started = t
			}
		}
	}
	if err := sc.Err(); err != nil {
		return h, err
	}
	if h.PID > 0 {
		h.Running = isProcessRunning(h.PID)
	}
	return h, nil
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
