package types

// ResetOutcome is the immutable result of one reset operation. It is
// produced fresh per reset call and used for logging and assertions only;
// it is never persisted.
type ResetOutcome struct {
	WorkerIndex int              `json:"workerIndex"`
	Strategy    string           `json:"strategy"`
	DurationMs  int64            `json:"durationMs"`
	RowsRemoved map[string]int64 `json:"rowsRemoved"`
	Success     bool             `json:"success"`
	ErrorKind   string           `json:"errorKind,omitempty"`
}

// TotalRowsRemoved sums the per-entity removal counts.
func (o ResetOutcome) TotalRowsRemoved() int64 {
	var total int64
	for _, n := range o.RowsRemoved {
		total += n
	}
	return total
}

// Violation kinds reported by the integrity validator.
const (
	ViolationResidualRows = "residual_rows"
	ViolationOrphanedFK   = "orphaned_foreign_key"
	ViolationLiveness     = "liveness"
	ViolationSeedMissing  = "seed_missing"
)

// Violation describes one integrity check failure.
type Violation struct {
	Kind   string `json:"kind"`
	Table  string `json:"table"`
	Detail string `json:"detail"`
}

// ValidationResult is the structured outcome of an integrity validation
// pass. Validation reports violations rather than failing, so the caller
// decides whether a dirty store is fatal (pre-test) or diagnostic
// (post-test).
type ValidationResult struct {
	WorkerIndex    int         `json:"workerIndex"`
	ValidationType string      `json:"validationType"`
	IsValid        bool        `json:"isValid"`
	Violations     []Violation `json:"violations"`
}
