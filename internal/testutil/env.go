// Package testutil provides utilities for testing shellapp in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// EnvPrefix is the prefix of every environment variable shellapp reads.
const EnvPrefix = "SHELLAPP_"

// tokenVars are read as authorization fallbacks.
var tokenVars = []string{"GITHUB_TOKEN"}

// Env is an isolated workspace for one test.
type Env struct {
	Root     string
	BuildDir string
	CacheDir string
	AppDir   string
}

// SetupTestEnv blanks every SHELLAPP_* variable and the token fallbacks, then
// creates build, cache and app directories under a fresh temp root. Blank
// variables are treated as unset by the config layer, and t.Setenv restores
// the originals when the test ends.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
		}
	}
	for _, name := range tokenVars {
		t.Setenv(name, "")
	}

	root := t.TempDir()
	env := &Env{
		Root:     root,
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
		AppDir:   filepath.Join(root, "app"),
	}
	for _, dir := range []string{env.BuildDir, env.CacheDir, env.AppDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}
