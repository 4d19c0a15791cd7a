// Package registry maps worker indices to their provisioned store slots.
// It is the only structure shared across goroutines within one process;
// its critical sections cover lookups and inserts only, never provisioning
// or reset work, so unrelated workers are never serialized behind it.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/burrow/pkg/types"
)

// Registry owns the worker slots for one test run. Store locations are
// deterministic within the process lifetime: the same worker index always
// yields the same location, derived from the run namespace, the index, and
// a run-scoped timestamp that keeps parallel process groups apart.
type Registry struct {
	namespace  string
	scratchDir string
	runStamp   int64
	maxWorkers int

	mu    sync.Mutex
	slots map[int]*types.WorkerSlot
}

// New returns a Registry rooted at scratchDir. An empty namespace gets a
// generated run-scoped one.
func New(namespace, scratchDir string, maxWorkers int) *Registry {
	if namespace == "" {
		namespace = "run_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	}
	return &Registry{
		namespace:  namespace,
		scratchDir: scratchDir,
		runStamp:   time.Now().UnixNano(),
		maxWorkers: maxWorkers,
		slots:      make(map[int]*types.WorkerSlot),
	}
}

// Namespace returns the run-scoped namespace.
func (r *Registry) Namespace() string { return r.namespace }

// location derives the store file path for a worker index. A store created
// by an earlier process in the same namespace is adopted rather than
// shadowed, so one-shot CLI invocations find each other's stores.
func (r *Registry) location(workerIndex int) string {
	dir := filepath.Join(r.scratchDir, r.namespace)
	pattern := filepath.Join(dir, fmt.Sprintf("worker_%d_*.db", workerIndex))
	if matches, err := filepath.Glob(pattern); err == nil && len(matches) > 0 {
		sort.Strings(matches)
		return matches[0]
	}
	return filepath.Join(dir, fmt.Sprintf("worker_%d_%d.db", workerIndex, r.runStamp))
}

// GetOrCreateSlot returns the slot for workerIndex, creating it on first
// use. Concurrent calls with the same index return the same slot object;
// calls with distinct indices do not block each other beyond the map
// insert. Returns ErrRegistryExhausted when a new index would exceed the
// configured maximum worker count.
func (r *Registry) GetOrCreateSlot(workerIndex int) (*types.WorkerSlot, error) {
	if workerIndex < 0 {
		return nil, fmt.Errorf("worker index must be non-negative, got %d", workerIndex)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.slots[workerIndex]; ok {
		return slot, nil
	}
	if len(r.slots) >= r.maxWorkers {
		return nil, types.ErrRegistryExhausted
	}
	slot := types.NewWorkerSlot(workerIndex, r.location(workerIndex))
	r.slots[workerIndex] = slot
	return slot, nil
}

// Lookup returns the slot for workerIndex, or ErrWorkerUnknown if it was
// never created.
func (r *Registry) Lookup(workerIndex int) (*types.WorkerSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[workerIndex]
	if !ok {
		return nil, types.ErrWorkerUnknown
	}
	return slot, nil
}

// Slots returns a snapshot of all registered slots.
func (r *Registry) Slots() []*types.WorkerSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.WorkerSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		out = append(out, slot)
	}
	return out
}

// Teardown disposes every slot and deletes the run's store files. In-flight
// operations against disposed slots fail with ErrSlotDisposed; teardown
// runs only after tests are expected to have completed, so that is
// acceptable.
func (r *Registry) Teardown() error {
	r.mu.Lock()
	slots := make([]*types.WorkerSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		slots = append(slots, slot)
	}
	r.mu.Unlock()

	for _, slot := range slots {
		slot.Dispose()
	}
	return os.RemoveAll(filepath.Join(r.scratchDir, r.namespace))
}
