package internal

import (
	"os"
	"os/exec"
	"testing"
)

// TestGolangciLintCompliance runs golangci-lint over the module packages.
//
// If this test fails, run: golangci-lint run ./internal/... ./cmd/...
//
// This test is skipped if golangci-lint is not installed or in -short mode.
func TestGolangciLintCompliance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping golangci-lint in short mode")
	}
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}

	cmd := exec.CommandContext(t.Context(), "golangci-lint", "run", "--allow-parallel-runners", "./internal/...", "./cmd/...")
	cmd.Dir = projectRoot(t)
	// A per-test build cache keeps the run working in read-only sandboxes
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Errorf("golangci-lint found issues:\n%s", output)
	}
}
