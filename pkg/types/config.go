package types

import (
	"errors"
	"time"
)

// Reset strategy names.
const (
	StrategyFullRecreate  = "full_recreate"
	StrategyOrderedDelete = "ordered_delete"
	StrategyTxRollback    = "tx_rollback"
)

// Config validation errors.
var (
	ErrScratchDirEmpty    = errors.New("scratch dir must not be empty")
	ErrStrategyUnknown    = errors.New("unknown reset strategy")
	ErrMaxWorkersInvalid  = errors.New("max workers must be positive")
	ErrLockTimeoutInvalid = errors.New("lock timeout must be positive")
	ErrOpTimeoutInvalid   = errors.New("operation timeout must be positive")
)

// knownStrategies lists the strategies that Validate accepts.
var knownStrategies = map[string]bool{
	StrategyFullRecreate:  true,
	StrategyOrderedDelete: true,
	StrategyTxRollback:    true,
}

// Config holds harness parameters. ScratchDir is wholly owned by the test
// run and safe to delete at teardown; Namespace scopes store file names so
// parallel process groups sharing a scratch dir never collide.
type Config struct {
	Namespace   string        `json:"namespace" yaml:"namespace"`
	ScratchDir  string        `json:"scratch_dir" yaml:"scratch_dir"`
	Strategy    string        `json:"strategy" yaml:"strategy"`
	MaxWorkers  int           `json:"max_workers" yaml:"max_workers"`
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout"`
	OpTimeout   time.Duration `json:"op_timeout" yaml:"op_timeout"`

	// PreserveSeed keeps designated seed rows (the built-in roles) across
	// resets instead of deleting and re-inserting them.
	PreserveSeed bool `json:"preserve_seed" yaml:"preserve_seed"`

	// ResetRetry wraps reset operations that may fail transiently.
	ResetRetry RetryPolicy `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with the defaults used by the CLI and the
// integration harness. The namespace is left empty; the registry generates
// a run-scoped one when not set.
func DefaultConfig(scratchDir string) Config {
	return Config{
		ScratchDir:   scratchDir,
		Strategy:     StrategyOrderedDelete,
		MaxWorkers:   64,
		LockTimeout:  10 * time.Second,
		OpTimeout:    30 * time.Second,
		PreserveSeed: true,
		ResetRetry:   DefaultResetRetry(),
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.ScratchDir == "" {
		return ErrScratchDirEmpty
	}
	if !knownStrategies[c.Strategy] {
		return ErrStrategyUnknown
	}
	if c.MaxWorkers < 1 {
		return ErrMaxWorkersInvalid
	}
	if c.LockTimeout <= 0 {
		return ErrLockTimeoutInvalid
	}
	if c.OpTimeout <= 0 {
		return ErrOpTimeoutInvalid
	}
	return c.ResetRetry.Validate()
}
