package transaction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// StaleLockThreshold is the maximum age of a lock before it's considered stale.
	StaleLockThreshold = 10 * time.Minute
)

// lockRefreshInterval is how often a held lock's mtime is bumped. It must
// stay well under StaleLockThreshold.
var lockRefreshInterval = time.Minute

var (
	ErrLockExists = errors.New("workspace lock exists: another run may be in progress")
	ErrStaleLock  = errors.New("stale lock detected")
)

// Lock is an exclusive per-operation lock file in the state directory.
type Lock struct {
	path string
	file *os.File
	stop chan struct{}
	done chan struct{}
}

// AcquireLock takes the lock for op. Uses O_CREATE|O_EXCL for atomic
// creation; a lock older than StaleLockThreshold is broken once. The holder
// keeps the lock fresh until Release, so long matrix builds stay locked.
func AcquireLock(ctx context.Context, dir string, op Operation) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := LockPath(dir, op)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if stale, _ := isLockStale(lockPath); !stale {
			return nil, lockHeldError(lockPath)
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, lockHeldError(lockPath)
		}
	}

	host, _ := os.Hostname()
	lockData := fmt.Sprintf("pid=%d\nhost=%s\noperation=%s\ntimestamp=%s\n",
		os.Getpid(), host, op, time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	l := &Lock{path: lockPath, file: file, stop: make(chan struct{}), done: make(chan struct{})}
	go l.refresh()
	return l, nil
}

// refresh touches the lock file until Release.
func (l *Lock) refresh() {
	defer close(l.done)
	ticker := time.NewTicker(lockRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			_ = os.Chtimes(l.path, now, now)
		}
	}
}

// LockPath returns the lock file path for op.
func LockPath(dir string, op Operation) string {
	return filepath.Join(dir, string(op)+".lock")
}

// Release releases the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l.stop != nil {
		close(l.stop)
		<-l.done
		l.stop = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}
	return nil
}

// lockHeldError names the holder recorded in the lock file when it can be
// read.
func lockHeldError(lockPath string) error {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return ErrLockExists
	}
	var holder []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.HasPrefix(line, "pid=") || strings.HasPrefix(line, "host=") {
			holder = append(holder, line)
		}
	}
	if len(holder) == 0 {
		return ErrLockExists
	}
	return fmt.Errorf("%w (%s)", ErrLockExists, strings.Join(holder, ", "))
}

// isLockStale checks if a lock file is older than the stale lock threshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}
	return time.Since(info.ModTime()) > StaleLockThreshold, nil
}
