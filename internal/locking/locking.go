// Package locking serializes provisioning and reset operations per store
// location, across goroutines and across OS processes.
//
// Two layers are required: a file lock (flock) gives cross-process mutual
// exclusion for parallel test runner processes, but flock alone cannot
// reliably synchronize goroutines within one process: the same process may
// acquire the same flock twice without blocking. An in-process per-key
// mutex is therefore taken first, then the file lock.
//
// Acquisition is not re-entrant: a goroutine calling WithLock for a key it
// already holds deadlocks until the timeout fires and LockTimeout is
// returned. Callers must not nest acquisitions of the same key.
package locking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mesh-intelligence/burrow/pkg/types"
)

// retryInterval is how often a blocked flock acquisition is re-attempted.
const retryInterval = 10 * time.Millisecond

// Coordinator guards operations on store locations. Locks for distinct
// keys are fully independent and never block each other.
type Coordinator struct {
	dir string

	mu sync.Map // map[string]*keyLock
}

// keyLock pairs the in-process mutex with a timed acquisition channel so a
// blocked goroutine can give up at the deadline instead of parking forever.
type keyLock struct {
	sem chan struct{}
}

// NewCoordinator returns a Coordinator that keeps its lock files under dir.
// The directory is created on first acquisition.
func NewCoordinator(dir string) *Coordinator {
	return &Coordinator{dir: dir}
}

// lockFor returns the keyLock for key, creating it if needed.
func (c *Coordinator) lockFor(key string) *keyLock {
	if kl, ok := c.mu.Load(key); ok {
		return kl.(*keyLock)
	}
	kl, _ := c.mu.LoadOrStore(key, &keyLock{sem: make(chan struct{}, 1)})
	return kl.(*keyLock)
}

// lockPath derives the lock file path for key. Keys are store locations
// (arbitrary paths), so they are hashed into a flat file name.
func (c *Coordinator) lockPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+".lock")
}

// WithLock acquires the lock for key, runs body, and releases the lock on
// every exit path. If the lock is not acquired within timeout, it returns a
// LockTimeoutError without running body. Context cancellation during
// acquisition is surfaced as the context error.
func (c *Coordinator) WithLock(ctx context.Context, key string, timeout time.Duration, body func() error) error {
	deadline := time.Now().Add(timeout)
	kl := c.lockFor(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case kl.sem <- struct{}{}:
	case <-timer.C:
		return &types.LockTimeoutError{Key: key, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.sem }()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	fileLock := flock.New(c.lockPath(key))
	lockCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, retryInterval)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &types.LockTimeoutError{Key: key, Timeout: timeout}
	}
	if !locked {
		return &types.LockTimeoutError{Key: key, Timeout: timeout}
	}
	defer func() { _ = fileLock.Unlock() }()

	return body()
}
