package sqlite

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// fileLock is a single-writer advisory lock backed by a sidecar lock
// file in the OS temp directory (not beside the store file itself)
// holding the owning PID. A stale lock (owner PID no longer alive) is
// reclaimed automatically.
type fileLock struct {
	path string
}

// newFileLock places the lock at <tmp>/recall/recall-<hash>.lock, where
// hash is the SHA-256 of the store's canonical (absolute) path. Keying
// by a content hash rather than the path itself keeps the lock file
// name filesystem-safe regardless of what the store path looks like.
func newFileLock(dbPath string) *fileLock {
	canonical, err := filepath.Abs(dbPath)
	if err != nil {
		canonical = dbPath
	}
	sum := sha256.Sum256([]byte(canonical))
	dir := filepath.Join(os.TempDir(), "recall")
	return &fileLock{path: filepath.Join(dir, fmt.Sprintf("recall-%s.lock", hex.EncodeToString(sum[:])))}
}

// Acquire blocks up to timeout, polling, before giving up with
// domain.KindLockBusy.
func (l *fileLock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := l.tryAcquire(); err == nil {
			return nil
		} else if !isLockBusy(err) {
			return err
		}
		if time.Now().After(deadline) {
			return domain.NewError(domain.KindLockBusy, "store is locked by another process")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

type lockBusyError struct{}

func (lockBusyError) Error() string { return "lock busy" }

func isLockBusy(err error) bool {
	_, ok := err.(lockBusyError)
	return ok
}

func (l *fileLock) tryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return domain.Wrap(domain.KindIO, "create lock directory", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if l.reclaimIfStale() {
				return l.tryAcquire()
			}
			return lockBusyError{}
		}
		return domain.Wrap(domain.KindIO, "create lock file", err)
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	if err != nil {
		return domain.Wrap(domain.KindIO, "write lock file", err)
	}
	return nil
}

// reclaimIfStale removes the lock file when the PID it names is no
// longer running, and reports whether it did so.
func (l *fileLock) reclaimIfStale() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		// No such process: the lock is stale.
		_ = os.Remove(l.path)
		return true
	}
	return false
}

// Release removes the lock file, if this process still owns it.
func (l *fileLock) Release() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.Wrap(domain.KindIO, "read lock file", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		return fmt.Errorf("lock file not owned by this process")
	}
	return os.Remove(l.path)
}
