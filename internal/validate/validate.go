// Package validate checks that a worker's store is in the expected clean
// state: entity tables empty apart from designated seed rows, no orphaned
// foreign keys, and the store answering trivial queries within a short
// timeout.
package validate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/burrow/internal/schema"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// Validation types reported in results.
const (
	TypePreTest  = "pre_test"
	TypePostTest = "post_test"
)

// Validator runs integrity checks against worker stores. It returns
// structured results rather than failing, so the caller decides whether a
// violation is fatal (pre-test) or diagnostic (post-test logging).
type Validator struct {
	livenessTimeout time.Duration
}

// New returns a Validator whose liveness probe gives up after the given
// timeout.
func New(livenessTimeout time.Duration) *Validator {
	return &Validator{livenessTimeout: livenessTimeout}
}

// Validate runs all checks against the slot's store. The returned error is
// reserved for infrastructure failures (bad queries, closed handles);
// integrity problems are reported as violations with IsValid == false.
func (v *Validator) Validate(ctx context.Context, slot *types.WorkerSlot, db *sql.DB, validationType string) (types.ValidationResult, error) {
	result := types.ValidationResult{
		WorkerIndex:    slot.WorkerIndex,
		ValidationType: validationType,
		Violations:     []types.Violation{},
	}

	if !v.alive(ctx, db) {
		result.Violations = append(result.Violations, types.Violation{
			Kind:   types.ViolationLiveness,
			Detail: fmt.Sprintf("store did not answer within %v", v.livenessTimeout),
		})
		return result, nil
	}

	if err := v.checkCounts(ctx, db, &result); err != nil {
		return result, err
	}
	if err := v.checkOrphans(ctx, db, &result); err != nil {
		return result, err
	}

	result.IsValid = len(result.Violations) == 0
	return result, nil
}

// alive probes the store with a trivial query under the liveness timeout.
func (v *Validator) alive(ctx context.Context, db *sql.DB) bool {
	probeCtx, cancel := context.WithTimeout(ctx, v.livenessTimeout)
	defer cancel()
	var one int
	return db.QueryRowContext(probeCtx, "SELECT 1").Scan(&one) == nil
}

// checkCounts verifies every entity table is empty, except seeded tables
// which must hold exactly their designated seed rows.
func (v *Validator) checkCounts(ctx context.Context, db *sql.DB, result *types.ValidationResult) error {
	for _, spec := range schema.DeleteOrder {
		var count int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.Name).Scan(&count); err != nil {
			return fmt.Errorf("count %s: %w", spec.Name, err)
		}

		if spec.Seeded {
			want := int64(len(schema.SeedRoles))
			switch {
			case count < want:
				result.Violations = append(result.Violations, types.Violation{
					Kind:   types.ViolationSeedMissing,
					Table:  spec.Name,
					Detail: fmt.Sprintf("expected %d seed rows, found %d", want, count),
				})
			case count > want:
				result.Violations = append(result.Violations, types.Violation{
					Kind:   types.ViolationResidualRows,
					Table:  spec.Name,
					Detail: fmt.Sprintf("%d rows beyond the %d seed rows", count-want, want),
				})
			}
			continue
		}

		if count > 0 {
			result.Violations = append(result.Violations, types.Violation{
				Kind:   types.ViolationResidualRows,
				Table:  spec.Name,
				Detail: fmt.Sprintf("%d residual rows", count),
			})
		}
	}
	return nil
}

// checkOrphans runs the per-edge orphan queries and a PRAGMA
// foreign_key_check sweep for anything the explicit edges miss.
func (v *Validator) checkOrphans(ctx context.Context, db *sql.DB, result *types.ValidationResult) error {
	for _, check := range schema.OrphanChecks {
		var count int64
		if err := db.QueryRowContext(ctx, check.Query).Scan(&count); err != nil {
			return fmt.Errorf("orphan check %s: %w", check.Table, err)
		}
		if count > 0 {
			result.Violations = append(result.Violations, types.Violation{
				Kind:   types.ViolationOrphanedFK,
				Table:  check.Table,
				Detail: fmt.Sprintf("%d rows reference missing parents", count),
			})
		}
	}

	// Sweep for any edge the explicit checks do not cover, e.g. after a
	// schema change that added a relationship.
	covered := map[string]bool{
		"person_roles->people": true,
		"person_roles->roles":  true,
		"windows->walls":       true,
	}
	rows, err := db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]int)
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return err
		}
		if covered[table+"->"+parent] {
			continue
		}
		seen[table+"->"+parent]++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for edge, count := range seen {
		result.Violations = append(result.Violations, types.Violation{
			Kind:   types.ViolationOrphanedFK,
			Table:  edge,
			Detail: fmt.Sprintf("foreign_key_check reported %d rows", count),
		})
	}
	return nil
}
