// Package testutil provides utilities for testing tagrelay in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories of one test.
type Env struct {
	Root     string
	StateDir string
	CacheDir string
	// Config is the path TAGRELAY_CONFIG points at. The file is not created.
	Config string
}

// ambientVars are cleared so a test never sees the CI runner's tokens,
// event ref or outputs file.
var ambientVars = []string{
	"GITHUB_TOKEN",
	"GITHUB_REF",
	"GITHUB_OUTPUT",
	"GITHUB_REPOSITORY",
	"GITHUB_ACTIONS",
	"CI",
	"RUNNER_OS",
	"TAGRELAY_PUSH_TOKEN",
	"TAGRELAY_SIGNING_PASSPHRASE",
	"TAGRELAY_LOG_LEVEL",
}

// SetupTestEnv creates isolated test directories for each test and points
// the TAGRELAY_* variables at them.
//
// The cleanup function is automatically handled by t.TempDir() and
// t.Setenv(), so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := &Env{
		Root:     tmpDir,
		StateDir: filepath.Join(tmpDir, "state"),
		CacheDir: filepath.Join(tmpDir, "cache"),
		Config:   filepath.Join(tmpDir, "tagrelay.lua"),
	}

	for _, v := range ambientVars {
		t.Setenv(v, "")
	}
	t.Setenv("TAGRELAY_STATE_DIR", env.StateDir)
	t.Setenv("TAGRELAY_CACHE_DIR", env.CacheDir)
	t.Setenv("TAGRELAY_CONFIG", env.Config)

	for _, dir := range []string{env.StateDir, env.CacheDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}

// WriteConfig writes content to the environment's config file.
func (e *Env) WriteConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(e.Config, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}
