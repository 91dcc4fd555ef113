package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockTimeout is returned when the token file lock could not be taken in time.
var ErrLockTimeout = errors.New("timeout waiting for token file lock")

// lockConfig controls how long acquireFileLock keeps trying.
type lockConfig struct {
	attempts int
	delay    time.Duration
	staleAge time.Duration
}

var defaultLockConfig = lockConfig{
	attempts: 50,
	delay:    100 * time.Millisecond,
	staleAge: 30 * time.Second,
}

// fileLock is an advisory lock held through an exclusively created sibling file.
type fileLock struct {
	f    *os.File
	path string
}

// acquireFileLock takes the lock guarding target. Another process holding the
// lock makes it wait; a lock file older than cfg.staleAge is considered
// abandoned and removed.
func acquireFileLock(ctx context.Context, target string, cfg lockConfig) (*fileLock, error) {
	path := target + ".lock"

	for range cfg.attempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// pid helps when debugging a stuck lock by hand
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{f: f, path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > cfg.staleAge {
			if remErr := os.Remove(path); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", path, remErr)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.delay):
		}
	}

	return nil, fmt.Errorf("%w after %v", ErrLockTimeout, time.Duration(cfg.attempts)*cfg.delay)
}

// release drops the lock. Calling it twice returns the os.Remove error of the
// second call.
func (l *fileLock) release() error {
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
	return os.Remove(l.path)
}
