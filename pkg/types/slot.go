package types

import (
	"sync"
	"time"
)

// SlotState is the lifecycle state of a worker slot.
type SlotState string

// Slot lifecycle states.
const (
	SlotUninitialized SlotState = "uninitialized"
	SlotProvisioning  SlotState = "provisioning"
	SlotReady         SlotState = "ready"
	SlotResetting     SlotState = "resetting"
	SlotFailed        SlotState = "failed"
	SlotDisposed      SlotState = "disposed"
)

// SchemaFingerprint marks that schema DDL has been applied to a store.
// A store must carry a created fingerprint before any test may run against
// it. The fingerprint is set once when provisioning succeeds and is only
// cleared when the store file itself is destroyed.
type SchemaFingerprint struct {
	Created        bool
	AppliedVersion int
	AppliedAt      time.Time
}

// WorkerSlot identifies one logical test worker and its isolated store.
// Slots are created and owned by the registry; other components request
// state transitions through the methods below rather than mutating state
// directly.
type WorkerSlot struct {
	WorkerIndex int
	Location    string

	mu          sync.Mutex
	state       SlotState
	fingerprint SchemaFingerprint
}

// NewWorkerSlot returns an uninitialized slot for the given index and
// derived store location.
func NewWorkerSlot(workerIndex int, location string) *WorkerSlot {
	return &WorkerSlot{
		WorkerIndex: workerIndex,
		Location:    location,
		state:       SlotUninitialized,
	}
}

// State returns the current lifecycle state.
func (s *WorkerSlot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fingerprint returns the schema fingerprint recorded at provisioning.
func (s *WorkerSlot) Fingerprint() SchemaFingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

// BeginProvisioning transitions the slot into the provisioning state.
// Valid from uninitialized and failed. Returns ErrSlotDisposed after
// teardown and ErrInvalidState from any other state.
func (s *WorkerSlot) BeginProvisioning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SlotUninitialized, SlotFailed:
		s.state = SlotProvisioning
		return nil
	case SlotDisposed:
		return ErrSlotDisposed
	default:
		return ErrInvalidState
	}
}

// MarkReady records the schema fingerprint and transitions the slot to
// ready. Valid only from provisioning.
func (s *WorkerSlot) MarkReady(fp SchemaFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotDisposed {
		return ErrSlotDisposed
	}
	if s.state != SlotProvisioning {
		return ErrInvalidState
	}
	s.state = SlotReady
	s.fingerprint = fp
	return nil
}

// BeginReset transitions the slot into the resetting state. Valid from
// ready, and from failed so a reset that hit transient contention can be
// retried.
func (s *WorkerSlot) BeginReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SlotReady, SlotFailed:
		s.state = SlotResetting
		return nil
	case SlotDisposed:
		return ErrSlotDisposed
	default:
		return ErrInvalidState
	}
}

// EndReset completes a reset, returning the slot to ready on success or
// failed otherwise. No-op after teardown.
func (s *WorkerSlot) EndReset(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotDisposed {
		return
	}
	if success {
		s.state = SlotReady
	} else {
		s.state = SlotFailed
	}
}

// MarkFailed flags the slot as failed. No-op after teardown.
func (s *WorkerSlot) MarkFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotDisposed {
		return
	}
	s.state = SlotFailed
}

// Recycle clears the fingerprint and returns the slot to uninitialized.
// Used by the full-recreate strategy after it destroys the store file so
// the provisioner will rebuild the schema from scratch.
func (s *WorkerSlot) Recycle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotDisposed {
		return ErrSlotDisposed
	}
	if s.state != SlotResetting {
		return ErrInvalidState
	}
	s.state = SlotUninitialized
	s.fingerprint = SchemaFingerprint{}
	return nil
}

// Dispose marks the slot as permanently torn down. Valid from any state;
// in-flight operations observe ErrSlotDisposed on their next transition.
func (s *WorkerSlot) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SlotDisposed
}
