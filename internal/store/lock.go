package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is created in the index directory.
const LockFileName = ".index.lock"

const lockRetryDelay = 100 * time.Millisecond

// IndexLock coordinates processes sharing an index directory. Engines hold
// a shared lock while loading; commands that write index files take it
// exclusively.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIndexLock creates a lock for the index directory dir.
func NewIndexLock(dir string) *IndexLock {
	lockPath := filepath.Join(dir, LockFileName)
	return &IndexLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// RLock acquires a shared lock, waiting until ctx is done.
func (l *IndexLock) RLock(ctx context.Context) error {
	return l.acquire(ctx, l.flock.TryRLockContext)
}

// Lock acquires an exclusive lock, waiting until ctx is done.
func (l *IndexLock) Lock(ctx context.Context) error {
	return l.acquire(ctx, l.flock.TryLockContext)
}

func (l *IndexLock) acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := try(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire index lock %s: %w", l.path, err)
	}
	if !acquired {
		return fmt.Errorf("index lock %s is held by another process", l.path)
	}
	l.locked = true
	return nil
}

// TryLock attempts to take the exclusive lock without blocking.
func (l *IndexLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. It is safe to call on an unlocked IndexLock.
func (l *IndexLock) Unlock() error {
	if !l.locked {
		return nil
	}

	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *IndexLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *IndexLock) IsLocked() bool {
	return l.locked
}
