package reset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/burrow/internal/schema"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// orderedDelete removes rows from every entity table in foreign-key order,
// children before parents, inside a single transaction. A partial failure
// rolls back and leaves the store in its prior state.
type orderedDelete struct{}

// NewOrderedDelete returns the default bulk-delete strategy.
func NewOrderedDelete() Strategy { return &orderedDelete{} }

func (s *orderedDelete) Name() string { return types.StrategyOrderedDelete }

func (s *orderedDelete) Reset(ctx context.Context, target *Target, preserveSeed bool) (types.ResetOutcome, error) {
	start := time.Now()
	outcome := types.ResetOutcome{
		WorkerIndex: target.Slot.WorkerIndex,
		Strategy:    s.Name(),
		RowsRemoved: make(map[string]int64, len(schema.DeleteOrder)),
	}

	if err := target.Slot.BeginReset(); err != nil {
		return s.fail(outcome, start, err)
	}

	if err := s.checkOrderCoverage(ctx, target.DB); err != nil {
		target.Slot.EndReset(false)
		return s.fail(outcome, start, err)
	}

	if err := s.deleteAll(ctx, target.DB, preserveSeed, outcome.RowsRemoved); err != nil {
		target.Slot.EndReset(false)
		return s.fail(outcome, start, err)
	}

	target.Slot.EndReset(true)
	outcome.Success = true
	outcome.DurationMs = time.Since(start).Milliseconds()
	return outcome, nil
}

func (s *orderedDelete) fail(outcome types.ResetOutcome, start time.Time, err error) (types.ResetOutcome, error) {
	outcome.DurationMs = time.Since(start).Milliseconds()
	outcome.ErrorKind = errorKind(err)
	return outcome, err
}

// checkOrderCoverage fails loudly when the store carries a user table that
// the configured delete order does not know about. A stale order list is a
// configuration bug that must halt the reset rather than skip rows.
func (s *orderedDelete) checkOrderCoverage(ctx context.Context, db *sql.DB) error {
	known := make(map[string]bool, len(schema.DeleteOrder))
	for _, spec := range schema.DeleteOrder {
		known[spec.Name] = true
	}

	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if !known[name] {
			return &types.OrderingViolationError{EntityKind: name}
		}
	}
	return rows.Err()
}

// deleteAll runs the delete pass in one transaction, recording rows removed
// per table. Foreign-key failures mean the configured order is stale and
// surface as an OrderingViolationError.
func (s *orderedDelete) deleteAll(ctx context.Context, db *sql.DB, preserveSeed bool, removed map[string]int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, spec := range schema.DeleteOrder {
		stmt := "DELETE FROM " + spec.Name
		if spec.Seeded && preserveSeed {
			stmt += " WHERE seeded = 0"
		}
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return &types.OrderingViolationError{EntityKind: spec.Name, Cause: err}
			}
			return fmt.Errorf("clear %s: %w", spec.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed[spec.Name] = n
	}

	if !preserveSeed {
		if err := schema.ReseedTx(tx); err != nil {
			return fmt.Errorf("restore seed rows: %w", err)
		}
	}
	return tx.Commit()
}

// isForeignKeyViolation matches the SQLite constraint error text.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
