package harness

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/burrow/internal/validate"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func newTestManager(t *testing.T, mutate func(*types.Config)) *Manager {
	t.Helper()
	cfg := types.DefaultConfig(t.TempDir())
	if mutate != nil {
		mutate(&cfg)
	}
	mgr, err := New(cfg, testLog())
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

// insertFixtures writes one row into every entity table plus a role
// assignment, the way a test body would.
func insertFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	personID := uuid.NewString()
	wallID := uuid.NewString()

	mustExec(t, db,
		`INSERT INTO people (person_id, first_name, last_name, email, created_at, updated_at)
		 VALUES (?, 'Grace', 'Hopper', ?, ?, ?)`,
		personID, uuid.NewString()+"@example.com", now, now)

	var roleID string
	require.NoError(t, db.QueryRow(`SELECT role_id FROM roles WHERE name = 'admin'`).Scan(&roleID))
	mustExec(t, db,
		`INSERT INTO person_roles (person_id, role_id, assigned_at) VALUES (?, ?, ?)`,
		personID, roleID, now)

	mustExec(t, db,
		`INSERT INTO walls (wall_id, name, width_cm, height_cm, created_at, updated_at)
		 VALUES (?, 'north', 400, 250, ?, ?)`, wallID, now, now)
	mustExec(t, db,
		`INSERT INTO windows (window_id, wall_id, width_cm, height_cm, created_at)
		 VALUES (?, ?, 120, 90, ?)`, uuid.NewString(), wallID, now)
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	cfg := types.DefaultConfig("")
	_, err := New(cfg, testLog())
	assert.ErrorIs(t, err, types.ErrScratchDirEmpty)
}

func TestProvisionResetValidateCycle(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	slot, err := mgr.Provision(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, slot.WorkerIndex)
	assert.Equal(t, types.SlotReady, slot.State())

	db, err := mgr.DB(3)
	require.NoError(t, err)
	insertFixtures(t, db)

	outcome, err := mgr.Reset(ctx, 3, true)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 3, outcome.WorkerIndex)
	assert.Equal(t, int64(1), outcome.RowsRemoved["people"])
	assert.Equal(t, int64(1), outcome.RowsRemoved["person_roles"])
	assert.Equal(t, int64(1), outcome.RowsRemoved["walls"])
	assert.Equal(t, int64(1), outcome.RowsRemoved["windows"])
	assert.Equal(t, int64(0), outcome.RowsRemoved["roles"])

	result, err := mgr.Validate(ctx, 3, validate.TypePreTest)
	require.NoError(t, err)
	assert.True(t, result.IsValid)

	// A reset of an already-clean store removes nothing.
	outcome, err = mgr.Reset(ctx, 3, true)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, int64(0), outcome.TotalRowsRemoved())
}

func TestProvisionIdempotent(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	first, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	second, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), mgr.SchemaApplies())
}

func TestParallelWorkersAreIsolated(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := mgr.Provision(ctx, idx)
			assert.NoError(t, err)

			db, err := mgr.DB(idx)
			if !assert.NoError(t, err) {
				return
			}
			insertFixtures(t, db)

			outcome, err := mgr.Reset(ctx, idx, true)
			assert.NoError(t, err)
			assert.True(t, outcome.Success)

			result, err := mgr.Validate(ctx, idx, validate.TypePostTest)
			assert.NoError(t, err)
			assert.True(t, result.IsValid, "worker %d dirty after reset", idx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(workers), mgr.SchemaApplies())
}

func TestDistinctWorkersGetDistinctStores(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	a, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	b, err := mgr.Provision(ctx, 1)
	require.NoError(t, err)
	require.NotEqual(t, a.Location, b.Location)

	// A write to worker 0 is invisible to worker 1.
	dbA, err := mgr.DB(0)
	require.NoError(t, err)
	insertFixtures(t, dbA)

	dbB, err := mgr.DB(1)
	require.NoError(t, err)
	var count int64
	require.NoError(t, dbB.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&count))
	assert.Equal(t, int64(0), count)
}

func TestRegistryExhaustion(t *testing.T) {
	mgr := newTestManager(t, func(cfg *types.Config) { cfg.MaxWorkers = 1 })
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	_, err = mgr.Provision(ctx, 1)
	assert.ErrorIs(t, err, types.ErrRegistryExhausted)
}

func TestResetUnknownWorker(t *testing.T) {
	mgr := newTestManager(t, nil)
	_, err := mgr.Reset(context.Background(), 7, true)
	assert.ErrorIs(t, err, types.ErrWorkerUnknown)
}

func TestRecreateUsesFullRecreate(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), mgr.SchemaApplies())

	outcome, err := mgr.Recreate(ctx, 0)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, types.StrategyFullRecreate, outcome.Strategy)
	assert.Equal(t, int64(2), mgr.SchemaApplies())

	// The replaced handle is immediately usable.
	db, err := mgr.DB(0)
	require.NoError(t, err)
	insertFixtures(t, db)
}

func TestTestTxRequiresRollbackStrategy(t *testing.T) {
	mgr := newTestManager(t, nil)
	_, err := mgr.TestTx(0)
	assert.ErrorIs(t, err, ErrNoTestTx)
}

func TestTestTxWithRollbackStrategy(t *testing.T) {
	mgr := newTestManager(t, func(cfg *types.Config) { cfg.Strategy = types.StrategyTxRollback })
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)

	// The first reset opens the test transaction.
	outcome, err := mgr.Reset(ctx, 0, true)
	require.NoError(t, err)
	assert.Equal(t, types.StrategyTxRollback, outcome.Strategy)

	// The reset's operation context is cancelled by now; wait long enough
	// for database/sql to tear the transaction down if it were still bound
	// to that context before using it.
	time.Sleep(150 * time.Millisecond)

	tx, err := mgr.TestTx(0)
	require.NoError(t, err)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.Exec(
		`INSERT INTO walls (wall_id, name, width_cm, height_cm, created_at, updated_at)
		 VALUES (?, 'attic', 200, 100, ?, ?)`, uuid.NewString(), now, now)
	require.NoError(t, err)

	// The next reset rolls the write back.
	outcome, err = mgr.Reset(ctx, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outcome.RowsRemoved["walls"])

	// The fresh transaction must be usable past its reset's context too.
	time.Sleep(150 * time.Millisecond)
	tx, err = mgr.TestTx(0)
	require.NoError(t, err)
	var inTx int64
	require.NoError(t, tx.QueryRow(`SELECT COUNT(*) FROM walls`).Scan(&inTx))
	assert.Equal(t, int64(0), inTx)

	db, err := mgr.DB(0)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM walls`).Scan(&count))
	assert.Equal(t, int64(0), count)
}

func TestCloseTearsDownStores(t *testing.T) {
	scratch := t.TempDir()
	cfg := types.DefaultConfig(scratch)
	mgr, err := New(cfg, testLog())
	require.NoError(t, err)

	ctx := context.Background()
	slot, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	_, err = os.Stat(slot.Location)
	require.NoError(t, err)

	require.NoError(t, mgr.Close())

	_, err = os.Stat(filepath.Join(scratch, mgr.Namespace()))
	assert.True(t, os.IsNotExist(err), "namespace directory must be removed")

	assert.Equal(t, types.SlotDisposed, slot.State())
	_, err = mgr.Provision(ctx, 1)
	assert.ErrorIs(t, err, types.ErrManagerClosed)
	_, err = mgr.Reset(ctx, 0, true)
	assert.ErrorIs(t, err, types.ErrManagerClosed)
	_, err = mgr.Validate(ctx, 0, validate.TypePreTest)
	assert.ErrorIs(t, err, types.ErrManagerClosed)

	// Idempotent.
	assert.NoError(t, mgr.Close())
}

func TestReleaseKeepsStores(t *testing.T) {
	scratch := t.TempDir()
	cfg := types.DefaultConfig(scratch)
	cfg.Namespace = "shared_ns"
	mgr, err := New(cfg, testLog())
	require.NoError(t, err)

	ctx := context.Background()
	slot, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, mgr.Release())

	_, err = os.Stat(slot.Location)
	assert.NoError(t, err, "release must keep the store file")

	// A later invocation in the same namespace adopts the store without
	// reapplying the schema.
	next, err := New(cfg, testLog())
	require.NoError(t, err)
	defer next.Close()
	adopted, err := next.Provision(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, slot.Location, adopted.Location)
	assert.Equal(t, int64(0), next.SchemaApplies())
}

func TestValidateDetectsDirtyStore(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	db, err := mgr.DB(0)
	require.NoError(t, err)
	insertFixtures(t, db)

	result, err := mgr.Validate(ctx, 0, validate.TypePostTest)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Violations)
}

func TestResetCyclesStayClean(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)
	db, err := mgr.DB(0)
	require.NoError(t, err)

	for cycle := 0; cycle < 5; cycle++ {
		insertFixtures(t, db)
		outcome, err := mgr.Reset(ctx, 0, true)
		require.NoError(t, err, "cycle %d", cycle)
		require.True(t, outcome.Success)

		result, err := mgr.Validate(ctx, 0, validate.TypePreTest)
		require.NoError(t, err)
		require.True(t, result.IsValid, "cycle %d left violations: %v", cycle, result.Violations)
	}
}

func TestConcurrentRecreatesSameWorker(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)

	// Each recreate closes and replaces the store handle; a competitor that
	// waited on the location lock must pick up the replacement, not the
	// closed handle.
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mgr.Recreate(ctx, 0)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, fmt.Sprintf("recreate %d", i))
	}

	db, err := mgr.DB(0)
	require.NoError(t, err)
	insertFixtures(t, db)
}

func TestConcurrentResetsSameWorkerSerialize(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx := context.Background()

	_, err := mgr.Provision(ctx, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mgr.Reset(ctx, 0, true)
		}(i)
	}
	wg.Wait()

	// Serialized behind the location lock, every reset must succeed within
	// the retry budget.
	for i, err := range errs {
		assert.NoError(t, err, fmt.Sprintf("reset %d", i))
	}
}
