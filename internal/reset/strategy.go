// Package reset returns a worker's store to an empty, schema-valid state
// between tests. Three strategies are available: ordered bulk delete (the
// default fast path), full recreation of the store file, and transactional
// rollback for single-connection test execution.
package reset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/burrow/internal/provision"
	"github.com/mesh-intelligence/burrow/internal/schema"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// Target bundles what a strategy needs to reset one worker's store. Reopen
// is only exercised by strategies that destroy the store file; it must
// replace the caller's handle and return the new one.
type Target struct {
	Slot   *types.WorkerSlot
	DB     *sql.DB
	Reopen func(ctx context.Context) (*sql.DB, error)
}

// Strategy brings a store back to its post-provisioning state.
type Strategy interface {
	Name() string
	Reset(ctx context.Context, target *Target, preserveSeed bool) (types.ResetOutcome, error)
}

// ForName constructs the strategy selected by configuration.
func ForName(name string, prov *provision.Provisioner) (Strategy, error) {
	switch name {
	case types.StrategyOrderedDelete:
		return NewOrderedDelete(), nil
	case types.StrategyFullRecreate:
		return NewFullRecreate(prov), nil
	case types.StrategyTxRollback:
		return NewTxRollback(), nil
	default:
		return nil, types.ErrStrategyUnknown
	}
}

// querier is the subset of *sql.DB, *sql.Conn, and *sql.Tx the counting
// helpers need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// countRows returns per-table row counts for every table in the delete
// order.
func countRows(ctx context.Context, q querier) (map[string]int64, error) {
	counts := make(map[string]int64, len(schema.DeleteOrder))
	for _, spec := range schema.DeleteOrder {
		var n int64
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.Name).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", spec.Name, err)
		}
		counts[spec.Name] = n
	}
	return counts, nil
}

// errorKind maps an error to the outcome's errorKind label.
func errorKind(err error) string {
	var ordering *types.OrderingViolationError
	var provisioning *types.ProvisioningError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ordering):
		return "ordering_violation"
	case errors.As(err, &provisioning):
		return "provisioning_failed"
	case errors.Is(err, types.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, types.ErrSlotDisposed):
		return "slot_disposed"
	case types.IsTransientStorage(err):
		return "transient_storage_busy"
	default:
		return "internal"
	}
}
