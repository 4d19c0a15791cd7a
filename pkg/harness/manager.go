// Package harness composes the worker registry, store provisioner, lock
// coordinator, reset strategy, integrity validator, and retry executor into
// the lifecycle manager test runs use. One Manager is scoped to one test
// run; nothing about it is process-global, so parallel test assemblies can
// each carry their own.
package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/burrow/internal/locking"
	"github.com/mesh-intelligence/burrow/internal/provision"
	"github.com/mesh-intelligence/burrow/internal/registry"
	"github.com/mesh-intelligence/burrow/internal/reset"
	"github.com/mesh-intelligence/burrow/internal/retry"
	"github.com/mesh-intelligence/burrow/internal/validate"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// ErrNoTestTx is returned by TestTx when the configured strategy does not
// run tests inside a transaction.
var ErrNoTestTx = errors.New("configured strategy does not provide test transactions")

// livenessTimeout bounds the validator's trivial-query probe.
const livenessTimeout = 2 * time.Second

// Manager provisions, resets, validates, and tears down one isolated store
// per test worker.
type Manager struct {
	cfg       types.Config
	log       *logrus.Entry
	registry  *registry.Registry
	locks     *locking.Coordinator
	prov      *provision.Provisioner
	strategy  reset.Strategy
	recreate  reset.Strategy
	validator *validate.Validator

	mu     sync.Mutex
	dbs    map[int]*sql.DB
	closed bool
}

// New validates cfg and builds a Manager. A nil log falls back to the
// standard logger.
func New(cfg types.Config, log *logrus.Entry) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	reg := registry.New(cfg.Namespace, cfg.ScratchDir, cfg.MaxWorkers)
	log = log.WithField("namespace", reg.Namespace())

	// Lock files live inside the namespace directory so teardown removes
	// them together with the stores.
	locks := locking.NewCoordinator(filepath.Join(cfg.ScratchDir, reg.Namespace(), ".locks"))
	prov := provision.New(locks, log, cfg.LockTimeout)

	strategy, err := reset.ForName(cfg.Strategy, prov)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		locks:     locks,
		prov:      prov,
		strategy:  strategy,
		recreate:  reset.NewFullRecreate(prov),
		validator: validate.New(livenessTimeout),
		dbs:       make(map[int]*sql.DB),
	}, nil
}

// Namespace returns the run-scoped namespace stores are created under.
func (m *Manager) Namespace() string { return m.registry.Namespace() }

// SchemaApplies returns how many times schema DDL has actually run.
func (m *Manager) SchemaApplies() int64 { return m.prov.Applies() }

// PreserveSeed reports whether this manager's resets keep the designated
// seed rows, per configuration.
func (m *Manager) PreserveSeed() bool { return m.cfg.PreserveSeed }

// Provision ensures the worker's store exists and is schema-valid, and
// returns its slot. Idempotent per worker index.
func (m *Manager) Provision(ctx context.Context, workerIndex int) (*types.WorkerSlot, error) {
	if m.isClosed() {
		return nil, types.ErrManagerClosed
	}

	slot, err := m.registry.GetOrCreateSlot(workerIndex)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OpTimeout)
	defer cancel()
	if _, err := m.prov.Ensure(opCtx, slot); err != nil {
		return nil, err
	}

	if _, err := m.db(slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// DB returns the open handle for a provisioned worker's store. Each worker
// has its own handle; no pool is shared across workers.
func (m *Manager) DB(workerIndex int) (*sql.DB, error) {
	if m.isClosed() {
		return nil, types.ErrManagerClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.dbs[workerIndex]
	if !ok {
		return nil, types.ErrWorkerUnknown
	}
	return db, nil
}

// TestTx returns the open test transaction for a worker under the
// transactional-rollback strategy. Any other strategy returns ErrNoTestTx.
func (m *Manager) TestTx(workerIndex int) (*sql.Tx, error) {
	type txProvider interface {
		Tx(workerIndex int) (*sql.Tx, error)
	}
	provider, ok := m.strategy.(txProvider)
	if !ok {
		return nil, ErrNoTestTx
	}
	return provider.Tx(workerIndex)
}

// Reset brings the worker's store back to its post-provisioning state using
// the configured strategy. Transient storage contention is retried with
// bounded backoff; deterministic failures (ordering violations, schema
// errors) propagate immediately.
func (m *Manager) Reset(ctx context.Context, workerIndex int, preserveSeed bool) (types.ResetOutcome, error) {
	return m.resetWith(ctx, workerIndex, m.strategy, preserveSeed)
}

// Recreate destroys the worker's store file and re-provisions it from
// scratch, regardless of the configured strategy. This is the path taken
// when a caller does not want the schema preserved.
func (m *Manager) Recreate(ctx context.Context, workerIndex int) (types.ResetOutcome, error) {
	return m.resetWith(ctx, workerIndex, m.recreate, m.cfg.PreserveSeed)
}

func (m *Manager) resetWith(ctx context.Context, workerIndex int, strategy reset.Strategy, preserveSeed bool) (types.ResetOutcome, error) {
	if m.isClosed() {
		return types.ResetOutcome{}, types.ErrManagerClosed
	}

	slot, err := m.registry.Lookup(workerIndex)
	if err != nil {
		return types.ResetOutcome{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OpTimeout)
	defer cancel()

	outcome, err := retry.Do(opCtx, m.log, "reset", m.cfg.ResetRetry, func() (types.ResetOutcome, error) {
		return m.resetOnce(opCtx, slot, strategy, preserveSeed)
	})
	if err != nil {
		m.log.WithError(err).WithField("worker", workerIndex).Error("reset failed")
		return outcome, err
	}

	m.log.WithFields(logrus.Fields{
		"worker":      workerIndex,
		"strategy":    outcome.Strategy,
		"durationMs":  outcome.DurationMs,
		"rowsRemoved": outcome.TotalRowsRemoved(),
	}).Debug("store reset")
	return outcome, nil
}

// resetOnce runs one reset attempt under the location lock, so at most one
// provisioning or reset operation is ever in flight per store location.
func (m *Manager) resetOnce(ctx context.Context, slot *types.WorkerSlot, strategy reset.Strategy, preserveSeed bool) (types.ResetOutcome, error) {
	var outcome types.ResetOutcome
	lockErr := m.locks.WithLock(ctx, slot.Location, m.cfg.LockTimeout, func() error {
		// The handle must be resolved under the lock: a concurrent recreate
		// that held the lock first has closed and replaced it.
		db, err := m.DB(slot.WorkerIndex)
		if err != nil {
			return err
		}

		target := &reset.Target{
			Slot: slot,
			DB:   db,
			Reopen: func(ctx context.Context) (*sql.DB, error) {
				return m.reopen(slot)
			},
		}

		out, err := strategy.Reset(ctx, target, preserveSeed)
		outcome = out
		return err
	})
	return outcome, lockErr
}

// reopen replaces the worker's store handle after the underlying file was
// recreated.
func (m *Manager) reopen(slot *types.WorkerSlot) (*sql.DB, error) {
	db, err := sql.Open("sqlite", provision.DSN(slot.Location))
	if err != nil {
		return nil, fmt.Errorf("reopen store: %w", err)
	}
	m.mu.Lock()
	m.dbs[slot.WorkerIndex] = db
	m.mu.Unlock()
	return db, nil
}

// Validate runs the integrity checks for a worker's store.
func (m *Manager) Validate(ctx context.Context, workerIndex int, validationType string) (types.ValidationResult, error) {
	if m.isClosed() {
		return types.ValidationResult{}, types.ErrManagerClosed
	}
	slot, err := m.registry.Lookup(workerIndex)
	if err != nil {
		return types.ValidationResult{}, err
	}
	db, err := m.DB(workerIndex)
	if err != nil {
		return types.ValidationResult{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OpTimeout)
	defer cancel()
	return m.validator.Validate(opCtx, slot, db, validationType)
}

// Close is the hard teardown path: it force-closes every store handle,
// disposes all slots, and deletes the namespace directory including store
// and lock files. Operations in flight fail with ErrSlotDisposed or
// ErrManagerClosed. Idempotent.
func (m *Manager) Close() error {
	firstErr := m.Release()
	if err := m.registry.Teardown(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Release closes every store handle without deleting the stores, for
// short-lived processes that leave the scratch area in place for later
// invocations in the same namespace. Idempotent.
func (m *Manager) Release() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	dbs := m.dbs
	m.dbs = make(map[int]*sql.DB)
	m.mu.Unlock()

	var firstErr error
	if closer, ok := m.strategy.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	for _, db := range dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// db opens (or returns) the worker's store handle.
func (m *Manager) db(slot *types.WorkerSlot) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, types.ErrManagerClosed
	}
	if db, ok := m.dbs[slot.WorkerIndex]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", provision.DSN(slot.Location))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	m.dbs[slot.WorkerIndex] = db
	return db, nil
}

// isClosed reports whether Close has run.
func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
