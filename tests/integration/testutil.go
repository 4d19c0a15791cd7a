// Package integration provides CLI integration tests for burrow.
package integration

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// burrowBin is the path to the built burrow binary.
	burrowBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// SetBurrowBin sets the path to the burrow binary (called from TestMain).
func SetBurrowBin(path string) {
	burrowBin = path
}

// SetBuildErr sets the build error (called from TestMain).
func SetBuildErr(err error) {
	buildErr = err
}

// TestEnv provides an isolated test environment with its own config and
// scratch directory.
type TestEnv struct {
	t          *testing.T
	TempDir    string
	ConfigDir  string
	ScratchDir string
	Namespace  string
}

// NewTestEnv creates a new isolated test environment. Every invocation in
// one env shares a namespace, so one-shot commands see each other's stores.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build burrow: %v", buildErr)
	}
	if burrowBin == "" {
		t.Fatal("burrow binary not built (burrowBin is empty)")
	}

	tempDir := t.TempDir()
	return &TestEnv{
		t:          t,
		TempDir:    tempDir,
		ConfigDir:  filepath.Join(tempDir, "config"),
		ScratchDir: filepath.Join(tempDir, "scratch"),
		Namespace:  "itest",
	}
}

// WriteConfig replaces config.yaml in the env's config directory.
func (e *TestEnv) WriteConfig(content string) {
	e.t.Helper()
	if err := os.MkdirAll(e.ConfigDir, 0o755); err != nil {
		e.t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(e.ConfigDir, "config.yaml"), []byte(content), 0o644); err != nil {
		e.t.Fatalf("failed to write config: %v", err)
	}
}

// CmdResult holds the result of a burrow command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunBurrow executes the burrow CLI with the given arguments.
func (e *TestEnv) RunBurrow(args ...string) CmdResult {
	e.t.Helper()

	allArgs := append([]string{
		"--config-dir", e.ConfigDir,
		"--scratch-dir", e.ScratchDir,
		"--namespace", e.Namespace,
	}, args...)
	cmd := exec.Command(burrowBin, allArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("failed to run burrow: %v", err)
		}
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRunBurrow executes the burrow CLI and fails the test on non-zero exit.
func (e *TestEnv) MustRunBurrow(args ...string) CmdResult {
	e.t.Helper()
	result := e.RunBurrow(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("burrow %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, jsonStr string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", jsonStr, err)
	}
	return result
}

// ProvisionInfo is the JSON shape of the provision command output.
type ProvisionInfo struct {
	WorkerIndex   int    `json:"workerIndex"`
	Namespace     string `json:"namespace"`
	StoreLocation string `json:"storeLocation"`
	State         string `json:"state"`
}

// ResetInfo is the JSON shape of the reset command output.
type ResetInfo struct {
	WorkerIndex int              `json:"workerIndex"`
	Strategy    string           `json:"strategy"`
	DurationMs  int64            `json:"durationMs"`
	RowsRemoved map[string]int64 `json:"rowsRemoved"`
	Success     bool             `json:"success"`
	ErrorKind   string           `json:"errorKind"`
}

// ValidationInfo is the JSON shape of the validate command output.
type ValidationInfo struct {
	WorkerIndex    int    `json:"workerIndex"`
	ValidationType string `json:"validationType"`
	IsValid        bool   `json:"isValid"`
	Violations     []struct {
		Kind   string `json:"kind"`
		Table  string `json:"table"`
		Detail string `json:"detail"`
	} `json:"violations"`
}

// OpenStore opens the store file at location the way the harness does.
func OpenStore(t *testing.T, location string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+location+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("failed to open store %s: %v", location, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// InsertWall writes one wall row directly into the store, simulating test
// activity between resets.
func InsertWall(t *testing.T, db *sql.DB, name string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(
		`INSERT INTO walls (wall_id, name, width_cm, height_cm, created_at, updated_at)
		 VALUES (?, ?, 300, 240, ?, ?)`,
		name+"-id", name, now, now)
	if err != nil {
		t.Fatalf("failed to insert wall: %v", err)
	}
}

// CountRows returns the row count of a table in the store.
func CountRows(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}
