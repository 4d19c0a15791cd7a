package reset

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mesh-intelligence/burrow/internal/provision"
	"github.com/mesh-intelligence/burrow/pkg/types"
)

// fullRecreate destroys the store file entirely and re-provisions it from
// scratch. The most reliable isolation and the slowest: used when per-test
// correctness matters more than speed.
type fullRecreate struct {
	prov *provision.Provisioner
}

// NewFullRecreate returns the recreate-from-scratch strategy.
func NewFullRecreate(prov *provision.Provisioner) Strategy {
	return &fullRecreate{prov: prov}
}

func (s *fullRecreate) Name() string { return types.StrategyFullRecreate }

// Reset destroys and re-provisions the store. The preserveSeed parameter is
// immaterial here: provisioning always inserts the seed rows, so the result
// is the canonical post-provisioning state either way.
func (s *fullRecreate) Reset(ctx context.Context, target *Target, preserveSeed bool) (types.ResetOutcome, error) {
	start := time.Now()
	outcome := types.ResetOutcome{
		WorkerIndex: target.Slot.WorkerIndex,
		Strategy:    s.Name(),
		RowsRemoved: make(map[string]int64),
	}
	fail := func(err error) (types.ResetOutcome, error) {
		outcome.DurationMs = time.Since(start).Milliseconds()
		outcome.ErrorKind = errorKind(err)
		return outcome, err
	}

	if err := target.Slot.BeginReset(); err != nil {
		return fail(err)
	}

	// Everything in the store is about to be destroyed; record what was
	// there for the outcome before closing the handle.
	counts, err := countRows(ctx, target.DB)
	if err != nil {
		target.Slot.EndReset(false)
		return fail(err)
	}
	outcome.RowsRemoved = counts

	if err := target.DB.Close(); err != nil {
		target.Slot.EndReset(false)
		return fail(fmt.Errorf("close store handle: %w", err))
	}
	if err := removeStoreFiles(target.Slot.Location); err != nil {
		target.Slot.EndReset(false)
		return fail(err)
	}

	if err := target.Slot.Recycle(); err != nil {
		return fail(err)
	}
	// The manager holds the location lock for the whole reset; Ensure
	// would try to take it again and deadlock.
	if _, err := s.prov.EnsureHeld(ctx, target.Slot); err != nil {
		return fail(err)
	}
	if _, err := target.Reopen(ctx); err != nil {
		target.Slot.MarkFailed()
		return fail(err)
	}

	outcome.Success = true
	outcome.DurationMs = time.Since(start).Milliseconds()
	return outcome, nil
}

// removeStoreFiles deletes the store and its WAL/shared-memory siblings.
func removeStoreFiles(location string) error {
	for _, path := range []string{location, location + "-wal", location + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}
