//go:build e2e

// cli_e2e_test.go provides end-to-end tests for the bfi CLI commands.
//
// These tests build and run the actual bfi binary to verify complete user
// workflows, including exit statuses and signal handling.
package integration

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/bfi/internal/auth"
	"github.com/thruflo/bfi/internal/cli"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/stream"
	"github.com/thruflo/bfi/internal/testutil"
)

// TestCLI_Init verifies that 'bfi init' writes a loadable config.
func TestCLI_Init(t *testing.T) {
	h := NewCLIHarness(t)

	result := h.Run("init")
	h.RequireSuccess(result, "init command failed")
	assert.Contains(t, result.Stdout, "Initialized .bfi/ with config.yaml")

	bfiDir := filepath.Join(h.WorkDir, config.Dir)
	assert.FileExists(t, filepath.Join(bfiDir, config.YAMLFile))
	assert.FileExists(t, filepath.Join(bfiDir, ".gitignore"))

	cfg, err := config.LoadConfig(h.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEngine(), cfg.Engine)

	result = h.Run("init")
	h.RequireExitCode(result, 1)
	assert.Contains(t, result.Stderr, "use --force to overwrite")
}

// TestCLI_RunFixtures runs every fixture through the binary and checks
// output and exit status.
func TestCLI_RunFixtures(t *testing.T) {
	h := NewCLIHarness(t)

	for _, f := range testutil.Fixtures() {
		if f.Source == "" {
			continue
		}
		t.Run(f.Name, func(t *testing.T) {
			path := testutil.WriteProgram(t, h.WorkDir, "prog.b", f.Source)
			result := h.RunWithInput(f.Input, "run", path, "--stdin")

			assert.Equal(t, f.Output, result.Stdout)
			if f.Status == interp.StatusSuccess {
				h.RequireSuccess(result)
			} else {
				h.RequireExitCode(result, 2)
				assert.Equal(t, "bfi: "+f.Status.Message()+"\n", result.Stderr)
			}
		})
	}
}

// TestCLI_ExitStatuses verifies the exit code for each way a run can end.
func TestCLI_ExitStatuses(t *testing.T) {
	h := NewCLIHarness(t)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"success", []string{"run", "-e", "+."}, 0},
		{"mismatched brackets", []string{"run", "-e", "]"}, 2},
		{"cancelled by timeout", []string{"run", "-e", testutil.Infinite, "--timeout", "100ms"}, 130},
		{"usage error", []string{"run"}, 1},
		{"unknown command", []string{"nonexistent"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.RequireExitCode(h.Run(tt.args...), tt.code)
		})
	}

	t.Run("program too large", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Engine.MaxProgramBytes = 2
		testutil.WriteConfig(t, h.WorkDir, &cfg)
		defer os.RemoveAll(filepath.Join(h.WorkDir, config.Dir))

		result := h.Run("run", "-e", "+++")
		h.RequireExitCode(result, 3)
		assert.Contains(t, result.Stderr, "bfi: Out of memory.")
	})
}

// TestCLI_InterruptCancelsRun sends SIGINT to a running program.
func TestCLI_InterruptCancelsRun(t *testing.T) {
	h := NewCLIHarness(t)

	cmd, out := h.Start("run", "-e", testutil.Infinite)
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, cmd.Process.Signal(os.Interrupt))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("bfi did not exit after interrupt")
	}

	assert.Equal(t, (&cli.StatusError{Status: interp.StatusCancelled}).ExitCode(), cmd.ProcessState.ExitCode())
	assert.Contains(t, out.String(), "bfi: Cancelled.")
}

// TestCLI_RecordReplay verifies that a recorded run replays identically.
func TestCLI_RecordReplay(t *testing.T) {
	h := NewCLIHarness(t)
	logPath := filepath.Join(h.WorkDir, "hello.ndjson")

	result := h.Run("run", "-e", testutil.HelloWorld, "--buffer", "5", "--record", logPath)
	h.RequireSuccess(result)
	assert.Equal(t, "Hello World!\n", result.Stdout)

	events := testutil.ReadEvents(t, logPath)
	testutil.AssertChunks(t, events, 5)
	testutil.AssertReplay(t, events, "Hello World!\n", interp.StatusSuccess)

	replayed := h.Run("replay", logPath)
	h.RequireSuccess(replayed)
	assert.Equal(t, result.Stdout, replayed.Stdout)

	asJSON := h.Run("replay", "--json", logPath)
	h.RequireSuccess(asJSON)
	var status stream.StatusEvent
	require.NoError(t, json.Unmarshal([]byte(asJSON.Stdout), &status))
	assert.Equal(t, 3, status.Chunks)
	assert.Equal(t, 13, status.OutputBytes)
}

// TestCLI_Filter verifies comment stripping and bracket checks.
func TestCLI_Filter(t *testing.T) {
	h := NewCLIHarness(t)

	result := h.RunWithInput("print three: +++ then output it .", "filter", "-")
	h.RequireSuccess(result)
	assert.Equal(t, "+++.\n", result.Stdout)

	result = h.Run("filter", "--check", "-e", "[]]")
	h.RequireExitCode(result, 1)
	assert.Contains(t, result.Stderr, "brackets are unbalanced")
}

// TestCLI_ServeAndRemote starts 'bfi serve' and drives it with
// 'bfi remote run'.
func TestCLI_ServeAndRemote(t *testing.T) {
	h := NewCLIHarness(t)

	hash, err := auth.HashPassword("e2e-secret")
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Server = &config.ServerConfig{Port: freePort(t), PasswordHash: hash}
	testutil.WriteConfig(t, h.WorkDir, &cfg)

	_, out := h.Start("serve")
	listening := regexp.MustCompile(`listening on (http://\S+)`)
	var serverURL string
	require.Eventually(t, func() bool {
		if m := listening.FindStringSubmatch(out.String()); m != nil {
			serverURL = m[1]
			return true
		}
		return false
	}, 10*time.Second, 50*time.Millisecond, "server output: %s", out.String())
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", cfg.Server.Port), serverURL)

	h.SetEnv(cli.PasswordEnv, "e2e-secret")

	t.Run("run succeeds", func(t *testing.T) {
		result := h.Run("remote", "run", "--server", serverURL, "-e", testutil.Reverse, "--input", "stressed")
		h.RequireSuccess(result)
		assert.Equal(t, "desserts", result.Stdout)
	})

	t.Run("status is reported", func(t *testing.T) {
		result := h.Run("remote", "run", "--server", serverURL, "-e", "+.]")
		h.RequireExitCode(result, 2)
		assert.Equal(t, "\x01", result.Stdout)
		assert.Contains(t, result.Stderr, "bfi: Mismatched brackets.")
	})

	t.Run("logs are kept in the data dir", func(t *testing.T) {
		logs, err := filepath.Glob(filepath.Join(h.WorkDir, config.Dir, "runs", "*.ndjson"))
		require.NoError(t, err)
		require.Len(t, logs, 2)

		for _, path := range logs {
			result := h.Run("replay", path)
			assert.True(t, result.ExitCode == 0 || result.ExitCode == 2, "replay %s: %s", path, result.Stderr)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		h.SetEnv(cli.PasswordEnv, "nope")
		defer h.SetEnv(cli.PasswordEnv, "e2e-secret")

		result := h.Run("remote", "run", "--server", serverURL, "-e", "+")
		h.RequireExitCode(result, 1)
		assert.True(t, strings.Contains(result.Stderr, "authentication failed"), result.Stderr)
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
