package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	if lock.Path() != lockPath {
		t.Errorf("expected lock path %s, got %s", lockPath, lock.Path())
	}

	holder, err := ReadHolder(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if holder.PID != os.Getpid() || !holder.Running || holder.Started.IsZero() {
		t.Errorf("unexpected holder %+v", holder)
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() {
		t.Errorf("expected holder pid %d survives the failed attempt, got %d", os.Getpid(), lockErr.Holder.PID)
	}
	msg := err.Error()
	if !strings.Contains(msg, "another FocusPipe instance") || !strings.Contains(msg, tempDir) {
		t.Errorf("Error message should name the conflict and lock path: %s", msg)
	}
	if strings.Contains(msg, "remove") {
		t.Errorf("a running holder must not suggest removing the lock: %s", msg)
	}
}

func TestLockRelease(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	lockPath := filepath.Join(tempDir, LockFileName)

	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release: %s", lockPath)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}

	lock2, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	lock2.Release()
}

func TestReadHolder(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pid     int
		started bool
	}{
		{"pid and start", "pid=12345\nstarted=2026-03-10T12:00:00Z\n", 12345, true},
		{"pid only", "pid=67890\nother=info", 67890, false},
		{"no pid", "other=info", 0, false},
		{"empty content", "", 0, false},
		{"invalid pid", "pid=abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), LockFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			h, err := ReadHolder(path)
			if err != nil {
				t.Fatalf("ReadHolder: %v", err)
			}
			if h.PID != tt.pid || h.Started.IsZero() == tt.started {
				t.Errorf("ReadHolder(%q) = %+v", tt.content, h)
			}
		})
	}

	if _, err := ReadHolder(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing lock file")
	}
}

func TestStaleHolderMessage(t *testing.T) {
	err := &LockError{LockPath: "/state/focuspipe.lock", Holder: Holder{PID: 42}}
	if !strings.Contains(err.Error(), "PID 42") || !strings.Contains(err.Error(), "remove /state/focuspipe.lock") {
		t.Errorf("unexpected stale lock message: %s", err.Error())
	}
}

func TestNonExistentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Directory should have been created: %s", dir)
	}
}
