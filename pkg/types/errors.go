package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Lifecycle errors.
var (
	// ErrRegistryExhausted is returned when GetOrCreateSlot would exceed the
	// configured maximum worker count.
	ErrRegistryExhausted = errors.New("worker registry exhausted")

	// ErrManagerClosed is returned by any operation after the manager has
	// been torn down.
	ErrManagerClosed = errors.New("manager is closed")

	// ErrSlotDisposed is returned by operations against a slot whose store
	// has been destroyed by teardown.
	ErrSlotDisposed = errors.New("worker slot is disposed")

	// ErrWorkerUnknown is returned when an operation names a worker index
	// that was never provisioned.
	ErrWorkerUnknown = errors.New("unknown worker")

	// ErrInvalidState is returned on a slot state transition that is not
	// permitted from the current state.
	ErrInvalidState = errors.New("invalid slot state transition")

	// ErrLockTimeout is the sentinel matched by errors.Is for lock
	// acquisition timeouts. See LockTimeoutError.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// LockTimeoutError reports a failed lock acquisition. It matches
// ErrLockTimeout under errors.Is.
type LockTimeoutError struct {
	Key     string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock on %q not acquired within %v", e.Key, e.Timeout)
}

// Is reports whether target is ErrLockTimeout.
func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

// ProvisioningError reports a failed store provisioning. Schema errors are
// deterministic, so provisioning failures are fatal for the worker and are
// never retried.
type ProvisioningError struct {
	WorkerIndex int
	Cause       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning worker %d: %v", e.WorkerIndex, e.Cause)
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }

// OrderingViolationError reports a bulk delete that hit a table outside the
// configured foreign-key delete order, or a delete that violated a
// constraint because the order is stale. It indicates a configuration bug
// and must halt the reset rather than be masked.
type OrderingViolationError struct {
	EntityKind string
	Cause      error
}

func (e *OrderingViolationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("delete order does not cover entity kind %q", e.EntityKind)
	}
	return fmt.Sprintf("delete order stale for entity kind %q: %v", e.EntityKind, e.Cause)
}

func (e *OrderingViolationError) Unwrap() error { return e.Cause }

// RetryExhaustedError is returned by the retry executor after the final
// attempt fails with a retryable error. It carries the full attempt history
// so the failure can be diagnosed without re-running.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	History   []error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v",
		e.Operation, e.Attempts, e.History[len(e.History)-1])
}

// Unwrap returns the last observed error.
func (e *RetryExhaustedError) Unwrap() error { return e.History[len(e.History)-1] }

// transientMarkers are the SQLite error texts that indicate transient
// contention rather than a deterministic failure. modernc.org/sqlite
// surfaces SQLITE_BUSY and SQLITE_LOCKED through the error string.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"file is locked",
}

// IsTransientStorage reports whether err looks like transient storage
// contention that is safe to retry with backoff.
func IsTransientStorage(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
