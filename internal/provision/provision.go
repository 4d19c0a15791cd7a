// Package provision creates per-worker SQLite stores and applies the
// domain schema to them, exactly once per store location.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/burrow/internal/locking"
	"github.com/mesh-intelligence/burrow/internal/schema"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// DSN returns the driver DSN for a store file. Foreign keys are enforced on
// every connection and a busy timeout absorbs short cross-process
// contention at the engine level.
func DSN(location string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", location)
}

// Provisioner ensures a worker slot's store exists and is schema-valid.
// Safe for concurrent use; all creation work for one location is serialized
// through the lock coordinator.
type Provisioner struct {
	locks       *locking.Coordinator
	log         *logrus.Entry
	lockTimeout time.Duration

	// applies counts actual schema applications, for idempotency checks.
	applies atomic.Int64
}

// New returns a Provisioner using the given lock coordinator.
func New(locks *locking.Coordinator, log *logrus.Entry, lockTimeout time.Duration) *Provisioner {
	return &Provisioner{locks: locks, log: log, lockTimeout: lockTimeout}
}

// Applies returns how many times schema DDL has actually been executed.
func (p *Provisioner) Applies() int64 { return p.applies.Load() }

// Ensure makes the slot's store exist with the schema applied and returns
// its fingerprint. Idempotent: a slot that is already provisioned returns
// immediately. Concurrent calls for the same slot are serialized; only one
// performs creation, the rest observe its result. Schema failures are
// deterministic and surface as a ProvisioningError, never retried.
func (p *Provisioner) Ensure(ctx context.Context, slot *types.WorkerSlot) (types.SchemaFingerprint, error) {
	if fp := slot.Fingerprint(); fp.Created && p.storeValid(ctx, slot.Location) {
		return fp, nil
	}

	var out types.SchemaFingerprint
	err := p.locks.WithLock(ctx, slot.Location, p.lockTimeout, func() error {
		fp, err := p.EnsureHeld(ctx, slot)
		out = fp
		return err
	})
	return out, err
}

// EnsureHeld is Ensure for callers that already hold the location lock,
// such as a reset strategy rebuilding the store it is resetting. Lock
// acquisition is not re-entrant, so calling Ensure from inside a locked
// section would deadlock until the timeout.
func (p *Provisioner) EnsureHeld(ctx context.Context, slot *types.WorkerSlot) (types.SchemaFingerprint, error) {
	// Another caller may have finished while we waited for the lock.
	if fp := slot.Fingerprint(); fp.Created && p.storeValid(ctx, slot.Location) {
		return fp, nil
	}

	if err := slot.BeginProvisioning(); err != nil {
		return types.SchemaFingerprint{}, err
	}

	fp, err := p.create(ctx, slot.Location)
	if err != nil {
		slot.MarkFailed()
		return types.SchemaFingerprint{}, &types.ProvisioningError{WorkerIndex: slot.WorkerIndex, Cause: err}
	}
	if err := slot.MarkReady(fp); err != nil {
		return types.SchemaFingerprint{}, err
	}

	p.log.WithFields(logrus.Fields{
		"worker":   slot.WorkerIndex,
		"location": slot.Location,
		"version":  fp.AppliedVersion,
	}).Debug("store provisioned")
	return fp, nil
}

// create opens (creating if needed) the store file and applies DDL and seed
// rows unless a parallel process already did. Returns the fingerprint.
func (p *Provisioner) create(ctx context.Context, location string) (types.SchemaFingerprint, error) {
	var fp types.SchemaFingerprint

	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return fp, fmt.Errorf("create scratch dir: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(location))
	if err != nil {
		return fp, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	created, err := schemaPresent(ctx, db)
	if err != nil {
		return fp, err
	}
	if !created {
		if err := applySchema(ctx, db); err != nil {
			return fp, err
		}
		if err := schema.Seed(db); err != nil {
			return fp, fmt.Errorf("seed roles: %w", err)
		}
		p.applies.Add(1)
	}

	return types.SchemaFingerprint{
		Created:        true,
		AppliedVersion: schema.Version,
		AppliedAt:      time.Now().UTC(),
	}, nil
}

// storeValid reports whether the store file exists and carries the expected
// tables. Used for the idempotent fast path.
func (p *Provisioner) storeValid(ctx context.Context, location string) bool {
	if _, err := os.Stat(location); err != nil {
		return false
	}
	db, err := sql.Open("sqlite", DSN(location))
	if err != nil {
		return false
	}
	defer db.Close()
	ok, err := schemaPresent(ctx, db)
	return err == nil && ok
}

// schemaPresent reports whether every table in the delete order exists by
// name. A file holding unrelated tables is not schema-valid.
func schemaPresent(ctx context.Context, db *sql.DB) (bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, spec := range schema.DeleteOrder {
		if !have[spec.Name] {
			return false, nil
		}
	}
	return true, nil
}

// applySchema runs all DDL in one transaction so a partial failure leaves
// no half-created schema behind.
func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ddl := range schema.CreateDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("apply table DDL: %w", err)
		}
	}
	for _, ddl := range schema.IndexDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("apply index DDL: %w", err)
		}
	}
	return tx.Commit()
}
