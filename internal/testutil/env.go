package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/stream"
)

// SetupTestDir creates a temporary directory containing a .bfi/config.yaml
// with default settings. Returns the directory path and the config written.
// The directory is automatically cleaned up when the test completes.
func SetupTestDir(t *testing.T) (string, *config.Config) {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	WriteConfig(t, tmpDir, &cfg)
	return tmpDir, &cfg
}

// WriteConfig saves cfg under basePath/.bfi, failing the test on error.
func WriteConfig(t *testing.T, basePath string, cfg *config.Config) {
	t.Helper()
	require.NoError(t, config.SaveConfig(basePath, cfg))
}

// WriteProgram writes source to name under dir and returns its path.
func WriteProgram(t *testing.T, dir, name, source string) string {
	t.Helper()
	WriteTestFile(t, dir, name, []byte(source))
	return filepath.Join(dir, name)
}

// ReadEvents reads a recorded NDJSON event log, failing the test on error.
func ReadEvents(t *testing.T, path string) []*stream.Event {
	t.Helper()
	events, err := stream.ReadFile(path)
	require.NoError(t, err, "failed to read events from %s", path)
	return events
}

// FindProjectRoot walks up from the current directory to find the
// directory holding go.mod. Returns "" if there is none.
func FindProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// MustMarshalJSON marshals a value to JSON, failing the test on error.
// Uses indented format for readability.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	return data
}

// MustUnmarshalJSON unmarshals JSON data into v, failing the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

// WriteTestFile writes content to a file in the test directory.
// Creates parent directories as needed.
func WriteTestFile(t *testing.T, basePath, relativePath string, content []byte) {
	t.Helper()
	fullPath := filepath.Join(basePath, relativePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
	require.NoError(t, os.WriteFile(fullPath, content, 0644))
}
