//go:build e2e

// cli_harness_test.go provides a test harness for E2E testing of the bfi CLI.
//
// The CLIHarness builds the bfi binary and provides methods for executing
// CLI commands in an isolated test workspace with proper environment setup.
package integration

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thruflo/bfi/internal/testutil"
)

var (
	buildOnce   sync.Once
	builtBinary string
	buildErr    error
	buildOutput []byte
)

// CLIHarness manages a bfi CLI binary for E2E testing.
// The binary is built once per test process; each harness gets its own
// workspace and environment variables.
type CLIHarness struct {
	// BinaryPath is the path to the built bfi binary.
	BinaryPath string

	// WorkDir is the working directory where commands will be executed.
	WorkDir string

	// EnvVars contains environment variables to set for command execution.
	// These are merged with the test's default environment.
	EnvVars map[string]string

	t *testing.T
}

// CLIResult contains the output from a CLI command execution.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Success returns true if the command completed with exit code 0.
func (r *CLIResult) Success() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// NewCLIHarness builds the bfi binary and creates an empty workspace.
func NewCLIHarness(t *testing.T) *CLIHarness {
	t.Helper()

	projectRoot := testutil.FindProjectRoot(t)
	require.NotEmpty(t, projectRoot, "could not find project root (directory containing go.mod)")

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "bfi-e2e-")
		if err != nil {
			buildErr = err
			return
		}
		builtBinary = filepath.Join(dir, "bfi")

		cmd := exec.Command("go", "build", "-o", builtBinary, "./cmd/bfi")
		cmd.Dir = projectRoot
		buildOutput, buildErr = cmd.CombinedOutput()
	})
	require.NoError(t, buildErr, "failed to build bfi binary: %s", buildOutput)

	workDir := filepath.Join(t.TempDir(), "workspace")
	require.NoError(t, os.MkdirAll(workDir, 0755))

	return &CLIHarness{
		BinaryPath: builtBinary,
		WorkDir:    workDir,
		EnvVars:    make(map[string]string),
		t:          t,
	}
}

// SetEnv sets an environment variable for subsequent command executions.
func (h *CLIHarness) SetEnv(key, value string) {
	h.EnvVars[key] = value
}

// ClearEnv removes all custom environment variables.
func (h *CLIHarness) ClearEnv() {
	h.EnvVars = make(map[string]string)
}

// Run executes a bfi command with default timeout (30 seconds).
func (h *CLIHarness) Run(args ...string) *CLIResult {
	return h.RunWithTimeout(30*time.Second, args...)
}

// RunWithInput executes a bfi command with stdin set to input.
func (h *CLIHarness) RunWithInput(input string, args ...string) *CLIResult {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := h.command(ctx, args...)
	cmd.Stdin = strings.NewReader(input)
	return h.run(cmd)
}

// RunWithTimeout executes a bfi command with the specified timeout.
func (h *CLIHarness) RunWithTimeout(timeout time.Duration, args ...string) *CLIResult {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return h.RunWithContext(ctx, args...)
}

// RunWithContext executes a bfi command with the given context.
func (h *CLIHarness) RunWithContext(ctx context.Context, args ...string) *CLIResult {
	h.t.Helper()
	return h.run(h.command(ctx, args...))
}

// Start launches a long-running bfi command, such as serve, and returns
// it with its combined output buffer. The process is interrupted and
// waited for when the test ends.
func (h *CLIHarness) Start(args ...string) (*exec.Cmd, *SyncBuffer) {
	h.t.Helper()

	cmd := exec.Command(h.BinaryPath, args...)
	cmd.Dir = h.WorkDir
	cmd.Env = h.buildEnv()

	out := &SyncBuffer{}
	cmd.Stdout = out
	cmd.Stderr = out
	require.NoError(h.t, cmd.Start())

	h.t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
			<-done
		}
	})
	return cmd, out
}

func (h *CLIHarness) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, h.BinaryPath, args...)
	cmd.Dir = h.WorkDir
	cmd.Env = h.buildEnv()
	return cmd
}

func (h *CLIHarness) run(cmd *exec.Cmd) *CLIResult {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &CLIResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		result.Err = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	return result
}

// buildEnv creates the environment variable slice for command execution.
// It includes the current process environment without variables that
// change bfi's behaviour, then adds the configured custom variables.
func (h *CLIHarness) buildEnv() []string {
	env := []string{}
	for _, e := range os.Environ() {
		if shouldIncludeEnvVar(e) {
			env = append(env, e)
		}
	}

	for k, v := range h.EnvVars {
		env = append(env, k+"="+v)
	}

	return env
}

// shouldIncludeEnvVar returns true if the environment variable should be
// passed through to the test command.
func shouldIncludeEnvVar(envVar string) bool {
	return !strings.HasPrefix(envVar, "BFI_")
}

// RequireSuccess fails the test if the command result indicates failure.
func (h *CLIHarness) RequireSuccess(result *CLIResult, msgAndArgs ...interface{}) {
	h.t.Helper()
	if !result.Success() {
		msg := "command failed"
		if len(msgAndArgs) > 0 {
			if s, ok := msgAndArgs[0].(string); ok {
				msg = s
			}
		}
		h.t.Fatalf("%s: exit=%d err=%v\nstdout: %s\nstderr: %s",
			msg, result.ExitCode, result.Err, result.Stdout, result.Stderr)
	}
}

// RequireExitCode fails the test unless the command exited with code.
func (h *CLIHarness) RequireExitCode(result *CLIResult, code int) {
	h.t.Helper()
	if result.ExitCode != code {
		h.t.Fatalf("expected exit code %d, got %d (err=%v)\nstdout: %q\nstderr: %s",
			code, result.ExitCode, result.Err, result.Stdout, result.Stderr)
	}
}

// SyncBuffer collects process output that is read while still written.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
