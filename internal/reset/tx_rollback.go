package reset

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mesh-intelligence/burrow/pkg/types"
)

// txRollback wraps each test in a transaction on a dedicated connection and
// rolls it back instead of deleting rows. Fastest of the strategies, with a
// hard precondition: the system under test must execute against the same
// connection (via Tx), because uncommitted state is invisible to any other
// connection. Only valid under single-connection test execution.
type txRollback struct {
	mu       sync.Mutex
	sessions map[int]*txSession
}

type txSession struct {
	conn *sql.Conn
	tx   *sql.Tx
}

// NewTxRollback returns the rollback strategy.
func NewTxRollback() Strategy {
	return &txRollback{sessions: make(map[int]*txSession)}
}

func (s *txRollback) Name() string { return types.StrategyTxRollback }

// Tx returns the open test transaction for a worker, or ErrWorkerUnknown
// before the first reset. The system under test runs its statements here.
func (s *txRollback) Tx(workerIndex int) (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[workerIndex]
	if !ok || sess.tx == nil {
		return nil, types.ErrWorkerUnknown
	}
	return sess.tx, nil
}

func (s *txRollback) Reset(ctx context.Context, target *Target, preserveSeed bool) (types.ResetOutcome, error) {
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

	s.mu.Lock()
	sess, ok := s.sessions[target.Slot.WorkerIndex]
	if !ok {
		sess = &txSession{}
		s.sessions[target.Slot.WorkerIndex] = sess
	}
	s.mu.Unlock()

	if sess.conn == nil {
		conn, err := target.DB.Conn(ctx)
		if err != nil {
			target.Slot.EndReset(false)
			return fail(fmt.Errorf("acquire dedicated connection: %w", err))
		}
		sess.conn = conn
	}

	// Discard the previous test's uncommitted state. Rows removed is the
	// delta the rollback erased.
	if sess.tx != nil {
		before, err := countRows(ctx, sess.tx)
		if err != nil {
			target.Slot.EndReset(false)
			return fail(err)
		}
		if err := sess.tx.Rollback(); err != nil {
			sess.tx = nil
			target.Slot.EndReset(false)
			return fail(fmt.Errorf("rollback test transaction: %w", err))
		}
		sess.tx = nil

		after, err := countRows(ctx, sess.conn)
		if err != nil {
			target.Slot.EndReset(false)
			return fail(err)
		}
		for table, n := range before {
			if removed := n - after[table]; removed > 0 {
				outcome.RowsRemoved[table] = removed
			}
		}
	}

	// The transaction must outlive this reset call: the next test runs
	// inside it long after the caller's per-operation context is cancelled,
	// and database/sql rolls back a transaction whose context ends.
	tx, err := sess.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		target.Slot.EndReset(false)
		return fail(fmt.Errorf("begin test transaction: %w", err))
	}
	sess.tx = tx

	target.Slot.EndReset(true)
	outcome.Success = true
	outcome.DurationMs = time.Since(start).Milliseconds()
	return outcome, nil
}

// Close rolls back any open transactions and releases the dedicated
// connections. Called at teardown.
func (s *txRollback) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, sess := range s.sessions {
		if sess.tx != nil {
			_ = sess.tx.Rollback()
			sess.tx = nil
		}
		if sess.conn != nil {
			if err := sess.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			sess.conn = nil
		}
	}
	s.sessions = make(map[int]*txSession)
	return firstErr
}
