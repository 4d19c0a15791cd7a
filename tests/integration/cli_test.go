// CLI integration tests for burrow.
package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestMain builds the burrow binary once before running tests.
func TestMain(m *testing.M) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		SetBuildErr(err)
		os.Exit(1)
	}

	tmpDir, err := os.MkdirTemp("", "burrow-test-*")
	if err != nil {
		SetBuildErr(err)
		os.Exit(1)
	}
	binPath := filepath.Join(tmpDir, "burrow")
	SetBurrowBin(binPath)

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/burrow")
	cmd.Dir = projectRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		SetBuildErr(&BuildError{
			Err:    err,
			Output: string(output),
		})
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)

	os.Exit(code)
}

func TestVersion(t *testing.T) {
	env := NewTestEnv(t)

	result := env.MustRunBurrow("version")
	if !strings.Contains(result.Stdout, "burrow") {
		t.Errorf("unexpected version output: %q", result.Stdout)
	}
}

func TestInitWritesDefaultConfig(t *testing.T) {
	env := NewTestEnv(t)

	result := env.MustRunBurrow("init")
	if !strings.Contains(result.Stdout, env.ConfigDir) {
		t.Errorf("init output missing config dir: %q", result.Stdout)
	}

	configFile := filepath.Join(env.ConfigDir, "config.yaml")
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if !strings.Contains(string(data), "strategy: ordered_delete") {
		t.Errorf("default config missing strategy: %s", data)
	}
}

func TestProvisionCreatesStore(t *testing.T) {
	env := NewTestEnv(t)

	result := env.MustRunBurrow("provision", "--worker", "2", "--json")
	info := ParseJSON[ProvisionInfo](t, result.Stdout)

	if info.WorkerIndex != 2 {
		t.Errorf("workerIndex = %d, want 2", info.WorkerIndex)
	}
	if info.Namespace != env.Namespace {
		t.Errorf("namespace = %q, want %q", info.Namespace, env.Namespace)
	}
	if info.State != "ready" {
		t.Errorf("state = %q, want ready", info.State)
	}
	if _, err := os.Stat(info.StoreLocation); err != nil {
		t.Errorf("store file missing: %v", err)
	}

	// Seed roles present in the new store.
	db := OpenStore(t, info.StoreLocation)
	if n := CountRows(t, db, "roles"); n != 3 {
		t.Errorf("roles count = %d, want 3 seed rows", n)
	}
}

func TestProvisionIsIdempotentAcrossInvocations(t *testing.T) {
	env := NewTestEnv(t)

	first := ParseJSON[ProvisionInfo](t, env.MustRunBurrow("provision", "--worker", "0", "--json").Stdout)
	second := ParseJSON[ProvisionInfo](t, env.MustRunBurrow("provision", "--worker", "0", "--json").Stdout)

	if first.StoreLocation != second.StoreLocation {
		t.Errorf("second invocation created a new store: %q vs %q",
			first.StoreLocation, second.StoreLocation)
	}
}

func TestResetClearsRows(t *testing.T) {
	env := NewTestEnv(t)

	info := ParseJSON[ProvisionInfo](t, env.MustRunBurrow("provision", "--worker", "0", "--json").Stdout)

	db := OpenStore(t, info.StoreLocation)
	InsertWall(t, db, "north")
	InsertWall(t, db, "south")

	result := env.MustRunBurrow("reset", "--worker", "0", "--json")
	outcome := ParseJSON[ResetInfo](t, result.Stdout)

	if !outcome.Success {
		t.Fatalf("reset failed: %+v", outcome)
	}
	if outcome.Strategy != "ordered_delete" {
		t.Errorf("strategy = %q, want ordered_delete", outcome.Strategy)
	}
	if outcome.RowsRemoved["walls"] != 2 {
		t.Errorf("rowsRemoved[walls] = %d, want 2", outcome.RowsRemoved["walls"])
	}
	if n := CountRows(t, db, "walls"); n != 0 {
		t.Errorf("walls count after reset = %d, want 0", n)
	}
	// Seed roles survive the reset.
	if n := CountRows(t, db, "roles"); n != 3 {
		t.Errorf("roles count after reset = %d, want 3", n)
	}
}

func TestResetRecreateRebuildsStore(t *testing.T) {
	env := NewTestEnv(t)

	info := ParseJSON[ProvisionInfo](t, env.MustRunBurrow("provision", "--worker", "0", "--json").Stdout)
	db := OpenStore(t, info.StoreLocation)
	InsertWall(t, db, "north")
	db.Close()

	result := env.MustRunBurrow("reset", "--worker", "0", "--recreate", "--json")
	outcome := ParseJSON[ResetInfo](t, result.Stdout)

	if !outcome.Success {
		t.Fatalf("recreate failed: %+v", outcome)
	}
	if outcome.Strategy != "full_recreate" {
		t.Errorf("strategy = %q, want full_recreate", outcome.Strategy)
	}

	fresh := OpenStore(t, info.StoreLocation)
	if n := CountRows(t, fresh, "walls"); n != 0 {
		t.Errorf("walls count after recreate = %d, want 0", n)
	}
	if n := CountRows(t, fresh, "roles"); n != 3 {
		t.Errorf("roles count after recreate = %d, want 3", n)
	}
}

func TestValidateCleanStore(t *testing.T) {
	env := NewTestEnv(t)
	env.MustRunBurrow("provision", "--worker", "0")

	result := env.MustRunBurrow("validate", "--worker", "0", "--json")
	info := ParseJSON[ValidationInfo](t, result.Stdout)

	if !info.IsValid {
		t.Errorf("clean store reported invalid: %+v", info.Violations)
	}
}

func TestValidateDirtyStoreFails(t *testing.T) {
	env := NewTestEnv(t)

	prov := ParseJSON[ProvisionInfo](t, env.MustRunBurrow("provision", "--worker", "0", "--json").Stdout)
	db := OpenStore(t, prov.StoreLocation)
	InsertWall(t, db, "leftover")
	db.Close()

	result := env.RunBurrow("validate", "--worker", "0", "--json")
	if result.ExitCode == 0 {
		t.Fatal("validate must exit non-zero for a dirty store")
	}

	info := ParseJSON[ValidationInfo](t, result.Stdout)
	if info.IsValid {
		t.Error("dirty store reported valid")
	}
	found := false
	for _, v := range info.Violations {
		if v.Kind == "residual_rows" && v.Table == "walls" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected residual_rows violation for walls, got %+v", info.Violations)
	}
}

func TestResetValidateRoundtrip(t *testing.T) {
	env := NewTestEnv(t)

	prov := ParseJSON[ProvisionInfo](t, env.MustRunBurrow("provision", "--worker", "0", "--json").Stdout)
	db := OpenStore(t, prov.StoreLocation)
	InsertWall(t, db, "dirty")
	db.Close()

	env.MustRunBurrow("reset", "--worker", "0")
	env.MustRunBurrow("validate", "--worker", "0")
}

func TestTeardownRemovesNamespace(t *testing.T) {
	env := NewTestEnv(t)
	env.MustRunBurrow("provision", "--worker", "0")

	nsDir := filepath.Join(env.ScratchDir, env.Namespace)
	if _, err := os.Stat(nsDir); err != nil {
		t.Fatalf("namespace dir missing before teardown: %v", err)
	}

	env.MustRunBurrow("teardown")

	if _, err := os.Stat(nsDir); !os.IsNotExist(err) {
		t.Errorf("namespace dir still present after teardown")
	}
}

func TestConfiguredStrategyIsUsed(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteConfig("strategy: full_recreate\nmax_workers: 8\n")

	env.MustRunBurrow("provision", "--worker", "0")
	result := env.MustRunBurrow("reset", "--worker", "0", "--json")
	outcome := ParseJSON[ResetInfo](t, result.Stdout)

	if outcome.Strategy != "full_recreate" {
		t.Errorf("strategy = %q, want full_recreate from config", outcome.Strategy)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteConfig("strategy: truncate\nmax_workers: 8\n")

	result := env.RunBurrow("provision", "--worker", "0")
	if result.ExitCode == 0 {
		t.Fatal("provisioning with an unknown strategy must fail")
	}
	if !strings.Contains(result.Stderr, "strategy") && !strings.Contains(result.Stderr, "oneof") {
		t.Errorf("error does not mention the strategy: %q", result.Stderr)
	}
}
