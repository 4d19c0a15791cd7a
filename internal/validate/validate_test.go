package validate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/burrow/internal/locking"
	"github.com/mesh-intelligence/burrow/internal/provision"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// newCleanStore provisions a store and returns its slot and an open handle.
func newCleanStore(t *testing.T) (*types.WorkerSlot, *sql.DB) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	locks := locking.NewCoordinator(filepath.Join(t.TempDir(), ".locks"))
	prov := provision.New(locks, logrus.NewEntry(log), 5*time.Second)

	slot := types.NewWorkerSlot(0, filepath.Join(t.TempDir(), "worker_0_1.db"))
	_, err := prov.Ensure(context.Background(), slot)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", provision.DSN(slot.Location))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return slot, db
}

func violationKinds(result types.ValidationResult) []string {
	kinds := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

func TestValidateCleanStore(t *testing.T) {
	slot, db := newCleanStore(t)
	validator := New(2 * time.Second)

	result, err := validator.Validate(context.Background(), slot, db, TypePreTest)
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Violations)
	assert.Equal(t, TypePreTest, result.ValidationType)
	assert.Equal(t, 0, result.WorkerIndex)
}

func TestValidateResidualRows(t *testing.T) {
	slot, db := newCleanStore(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(
		`INSERT INTO walls (wall_id, name, width_cm, height_cm, created_at, updated_at)
		 VALUES (?, 'north', 400, 250, ?, ?)`, uuid.NewString(), now, now)
	require.NoError(t, err)

	result, err := New(2*time.Second).Validate(context.Background(), slot, db, TypePostTest)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, types.ViolationResidualRows, result.Violations[0].Kind)
	assert.Equal(t, "walls", result.Violations[0].Table)
}

func TestValidateSeedMissing(t *testing.T) {
	slot, db := newCleanStore(t)
	_, err := db.Exec(`DELETE FROM roles WHERE name = 'viewer'`)
	require.NoError(t, err)

	result, err := New(2*time.Second).Validate(context.Background(), slot, db, TypePreTest)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Contains(t, violationKinds(result), types.ViolationSeedMissing)
}

func TestValidateExtraSeedTableRows(t *testing.T) {
	slot, db := newCleanStore(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(
		`INSERT INTO roles (role_id, name, seeded, created_at) VALUES (?, 'auditor', 0, ?)`,
		uuid.NewString(), now)
	require.NoError(t, err)

	result, err := New(2*time.Second).Validate(context.Background(), slot, db, TypePreTest)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Contains(t, violationKinds(result), types.ViolationResidualRows)
}

func TestValidateOrphanedForeignKey(t *testing.T) {
	slot, db := newCleanStore(t)

	// A second connection without foreign-key enforcement plants the orphan.
	raw, err := sql.Open("sqlite", "file:"+slot.Location)
	require.NoError(t, err)
	defer raw.Close()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = raw.Exec(
		`INSERT INTO windows (window_id, wall_id, width_cm, height_cm, created_at)
		 VALUES (?, ?, 120, 90, ?)`, uuid.NewString(), uuid.NewString(), now)
	require.NoError(t, err)

	result, err := New(2*time.Second).Validate(context.Background(), slot, db, TypePostTest)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	kinds := violationKinds(result)
	assert.Contains(t, kinds, types.ViolationOrphanedFK)
	// The residual row itself is reported too.
	assert.Contains(t, kinds, types.ViolationResidualRows)

	// The explicit edge check and the pragma sweep must not both report the
	// same orphan.
	orphans := 0
	for _, v := range result.Violations {
		if v.Kind == types.ViolationOrphanedFK {
			orphans++
		}
	}
	assert.Equal(t, 1, orphans)
}

func TestValidateLiveness(t *testing.T) {
	slot, db := newCleanStore(t)
	require.NoError(t, db.Close())

	result, err := New(100*time.Millisecond).Validate(context.Background(), slot, db, TypePreTest)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, types.ViolationLiveness, result.Violations[0].Kind)
}
