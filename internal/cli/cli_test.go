package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/bfi/internal/auth"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/logging"
	"github.com/thruflo/bfi/internal/server"
	"github.com/thruflo/bfi/internal/stream"
	"github.com/thruflo/bfi/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for a command writing while the test
// reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// resetCommands restores every flag of cmd and its subcommands to its
// default and gives each command ctx.
func resetCommands(ctx context.Context, cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		resetCommands(ctx, sub)
	}
}

type result struct {
	stdout string
	stderr string
	err    error
}

// executeContext runs bfi with args in the current directory.
func executeContext(ctx context.Context, stdin string, stdout, stderr *syncBuffer, args ...string) error {
	resetCommands(ctx, rootCmd)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	ctx, cancel := testutil.RunContext(t)
	defer cancel()

	var stdout, stderr syncBuffer
	err := executeContext(ctx, stdin, &stdout, &stderr, args...)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// inTempDir changes into a fresh directory with default config.
func inTempDir(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir, cfg := testutil.SetupTestDir(t)
	t.Chdir(dir)
	return dir, cfg
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected StatusError, got %v", err)
	assert.Equal(t, code, statusErr.ExitCode())
}

func TestRunCommand(t *testing.T) {
	dir, _ := inTempDir(t)

	t.Run("eval", func(t *testing.T) {
		res := execute(t, "", "run", "-e", testutil.HelloWorld)
		require.NoError(t, res.err)
		assert.Equal(t, "Hello World!\n", res.stdout)
		assert.Empty(t, res.stderr)
	})

	t.Run("file with input", func(t *testing.T) {
		path := testutil.WriteProgram(t, dir, "reverse.b", "reverse input:\n"+testutil.Reverse)
		res := execute(t, "", "run", path, "--input", "stressed")
		require.NoError(t, res.err)
		assert.Equal(t, "desserts", res.stdout)
	})

	t.Run("input file", func(t *testing.T) {
		testutil.WriteTestFile(t, dir, "in.txt", []byte("from file"))
		res := execute(t, "", "run", "-e", testutil.Cat, "--input-file", filepath.Join(dir, "in.txt"))
		require.NoError(t, res.err)
		assert.Equal(t, "from file", res.stdout)
	})

	t.Run("input from stdin", func(t *testing.T) {
		res := execute(t, "piped", "run", "-e", testutil.Cat, "--stdin")
		require.NoError(t, res.err)
		assert.Equal(t, "piped", res.stdout)
	})

	t.Run("program from stdin", func(t *testing.T) {
		res := execute(t, "+++.", "run", "-")
		require.NoError(t, res.err)
		assert.Equal(t, "\x03", res.stdout)
	})

	t.Run("fixtures", func(t *testing.T) {
		for _, f := range testutil.Fixtures() {
			if f.Source == "" {
				continue
			}
			res := execute(t, "", "run", "-e", f.Source, "--input", f.Input)
			assert.Equal(t, f.Output, res.stdout, f.Name)
			if f.Status == interp.StatusSuccess {
				assert.NoError(t, res.err, f.Name)
			} else {
				requireExitCode(t, res.err, 2)
				assert.Contains(t, res.stderr, "bfi: "+f.Status.Message(), f.Name)
			}
		}
	})

	t.Run("timeout cancels", func(t *testing.T) {
		res := execute(t, "", "run", "-e", testutil.Infinite, "--timeout", "50ms")
		requireExitCode(t, res.err, 130)
		assert.Contains(t, res.stderr, "bfi: Cancelled.")
	})

	t.Run("small buffer", func(t *testing.T) {
		path := filepath.Join(dir, "small.ndjson")
		res := execute(t, "", "run", "-e", testutil.HelloWorld, "--buffer", "4", "--record", path)
		require.NoError(t, res.err)
		assert.Equal(t, "Hello World!\n", res.stdout)

		events := testutil.ReadEvents(t, path)
		testutil.AssertChunks(t, events, 4)
		st := testutil.AssertReplay(t, events, "Hello World!\n", interp.StatusSuccess)
		assert.Equal(t, 4, st.Chunks)
	})

	t.Run("invalid buffer", func(t *testing.T) {
		res := execute(t, "", "run", "-e", "+", "--buffer", "-1")
		require.Error(t, res.err)
		assert.True(t, config.IsValidationError(res.err))
	})
}

func TestRunCommandFlagErrors(t *testing.T) {
	dir, _ := inTempDir(t)
	path := testutil.WriteProgram(t, dir, "p.b", "+")

	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{name: "no program", args: []string{"run"}, wantErr: "no program"},
		{name: "file and eval", args: []string{"run", path, "-e", "+"}, wantErr: "not both"},
		{name: "two input sources", args: []string{"run", "-e", "+", "--input", "x", "--stdin"}, wantErr: "mutually exclusive"},
		{name: "stdin twice", args: []string{"run", "-", "--stdin"}, wantErr: "--stdin cannot be used"},
		{name: "missing file", args: []string{"run", filepath.Join(dir, "missing.b")}, wantErr: "failed to read program"},
		{name: "too many args", args: []string{"run", path, path}, wantErr: "accepts at most 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, tt.stdin, tt.args...)
			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), tt.wantErr)
		})
	}
}

func TestRunCommandProgramTooLarge(t *testing.T) {
	dir, cfg := inTempDir(t)
	cfg.Engine.MaxProgramBytes = 4
	testutil.WriteConfig(t, dir, cfg)

	res := execute(t, "", "run", "-e", "+++++.")
	requireExitCode(t, res.err, 3)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "bfi: Out of memory.")

	// Comments do not count towards the limit
	res = execute(t, "", "run", "-e", "four +++ .")
	require.NoError(t, res.err)
	assert.Equal(t, "\x03", res.stdout)
}

func TestRecordAndReplay(t *testing.T) {
	dir, _ := inTempDir(t)
	path := filepath.Join(dir, "events.ndjson")

	res := execute(t, "", "run", "-e", testutil.Cat, "--input", "recorded", "--record", path)
	require.NoError(t, res.err)
	assert.Equal(t, "recorded", res.stdout)

	events := testutil.ReadEvents(t, path)
	testutil.AssertSequenced(t, events, 1)
	testutil.AssertEventTypes(t, events, stream.MessageTypeRun, stream.MessageTypeOutput, stream.MessageTypeStatus)

	t.Run("output", func(t *testing.T) {
		res := execute(t, "", "replay", path)
		require.NoError(t, res.err)
		assert.Equal(t, "recorded", res.stdout)
	})

	t.Run("json", func(t *testing.T) {
		res := execute(t, "", "replay", "--json", path)
		require.NoError(t, res.err)

		var st stream.StatusEvent
		testutil.MustUnmarshalJSON(t, []byte(res.stdout), &st)
		testutil.AssertStatus(t, &st, interp.StatusSuccess)
		assert.Equal(t, len("recorded"), st.OutputBytes)
	})

	t.Run("failed run", func(t *testing.T) {
		failed := filepath.Join(dir, "failed.ndjson")
		res := execute(t, "", "run", "-e", "+.+]", "--record", failed)
		requireExitCode(t, res.err, 2)

		res = execute(t, "", "replay", failed)
		requireExitCode(t, res.err, 2)
		assert.Equal(t, "\x01", res.stdout)
		assert.Contains(t, res.stderr, "bfi: Mismatched brackets.")
	})

	t.Run("truncated log", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.SplitAfter(string(data), "\n")
		truncated := filepath.Join(dir, "truncated.ndjson")
		testutil.WriteTestFile(t, dir, "truncated.ndjson", []byte(lines[0]+lines[1]))

		res := execute(t, "", "replay", truncated)
		require.Error(t, res.err)
		assert.ErrorIs(t, res.err, stream.ErrNoStatus)
	})

	t.Run("missing log", func(t *testing.T) {
		res := execute(t, "", "replay", filepath.Join(dir, "nope.ndjson"))
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "failed to read event log")
	})

	t.Run("recording again replaces the log", func(t *testing.T) {
		res := execute(t, "", "run", "-e", testutil.Cat, "--input", "second", "--record", path)
		require.NoError(t, res.err)

		events := testutil.ReadEvents(t, path)
		testutil.AssertSequenced(t, events, 1)
		require.Len(t, events, 3)

		res = execute(t, "", "replay", path)
		require.NoError(t, res.err)
		assert.Equal(t, "second", res.stdout)
	})
}

func TestFilterCommand(t *testing.T) {
	dir, _ := inTempDir(t)

	res := execute(t, "", "filter", "-e", "add one: + then loop [-] done.")
	require.NoError(t, res.err)
	assert.Equal(t, "+[-].\n", res.stdout)

	path := testutil.WriteProgram(t, dir, "hello.b", testutil.HelloWorld)
	res = execute(t, "", "filter", "--check", path)
	require.NoError(t, res.err)
	assert.Equal(t, testutil.HelloWorld+"\n", res.stdout)

	res = execute(t, "", "filter", "--check", "-e", "[[]")
	require.Error(t, res.err)
	assert.Equal(t, "brackets are unbalanced", res.err.Error())
	assert.Equal(t, "[[]\n", res.stdout)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	bfiDir := filepath.Join(dir, config.Dir)

	t.Run("creates yaml config", func(t *testing.T) {
		res := execute(t, "", "init")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Initialized .bfi/ with config.yaml")
		assert.FileExists(t, filepath.Join(bfiDir, config.YAMLFile))
		assert.FileExists(t, filepath.Join(bfiDir, ".gitignore"))

		cfg, err := config.LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultEngine(), cfg.Engine)
		assert.False(t, cfg.Debug.Basic)

		info, err := os.Stat(filepath.Join(bfiDir, config.YAMLFile))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		res := execute(t, "", "init")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "use --force to overwrite")
	})

	t.Run("toml with force", func(t *testing.T) {
		res := execute(t, "", "init", "--toml", "--force")
		require.NoError(t, res.err)
		assert.FileExists(t, filepath.Join(bfiDir, config.TOMLFile))
		assert.NoFileExists(t, filepath.Join(bfiDir, config.YAMLFile))

		cfg, err := config.LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultEngine(), cfg.Engine)
	})
}

func TestHandleServerPassword(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("hunter2\nhunter2\n"))
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	require.NoError(t, handleServerPassword(cmd, dir, &cfg, false))
	require.NotNil(t, cfg.Server)
	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
	assert.Contains(t, out.String(), "Password saved to config.")

	ok, err := auth.VerifyPassword("hunter2", cfg.Server.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	saved, err := config.LoadConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, saved.Server)
	assert.Equal(t, cfg.Server.PasswordHash, saved.Server.PasswordHash)

	t.Run("existing hash is kept", func(t *testing.T) {
		cmd.SetIn(strings.NewReader(""))
		hash := cfg.Server.PasswordHash
		require.NoError(t, handleServerPassword(cmd, dir, &cfg, false))
		assert.Equal(t, hash, cfg.Server.PasswordHash)
	})

	t.Run("mismatch", func(t *testing.T) {
		cmd.SetIn(strings.NewReader("one\ntwo\n"))
		err := handleServerPassword(cmd, dir, &cfg, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrPasswordMismatch)
	})
}

func TestServeCommand(t *testing.T) {
	dir, cfg := inTempDir(t)
	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	cfg.Server = &config.ServerConfig{Port: config.DefaultServerPort, PasswordHash: hash}
	testutil.WriteConfig(t, dir, cfg)

	ctx, cancel := testutil.ServerContext(t)
	defer cancel()
	serveCtx, stop := context.WithCancel(ctx)

	var stdout, stderr syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- executeContext(serveCtx, "", &stdout, &stderr, "serve", "--port", "0")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Run server listening on http://localhost:")
	}, 5*time.Second, 20*time.Millisecond)

	stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.DirExists(t, filepath.Join(dir, config.Dir, "runs"))
}

func TestRemoteRunCommand(t *testing.T) {
	inTempDir(t)

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	// Unbuffered output lets a test see a run's first byte while it runs
	srv, err := server.NewServer(&server.Config{
		PasswordHash: hash,
		DataDir:      t.TempDir(),
		Engine:       config.Engine{OutputBuffer: 1, MaxProgramBytes: config.DefaultMaxProgramBytes},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("password from environment", func(t *testing.T) {
		t.Setenv(PasswordEnv, "secret")
		res := execute(t, "", "remote", "run", "--server", ts.URL, "-e", testutil.Cat, "--input", "remote")
		require.NoError(t, res.err)
		assert.Equal(t, "remote", res.stdout)
		assert.Equal(t, 1, srv.Registry().Len())
	})

	t.Run("password prompt", func(t *testing.T) {
		res := execute(t, "secret\n", "remote", "run", "--server", ts.URL, "-e", testutil.HelloWorld)
		require.NoError(t, res.err)
		assert.Equal(t, "Hello World!\n", res.stdout)
		assert.Contains(t, res.stderr, "Password for "+ts.URL)
	})

	t.Run("token", func(t *testing.T) {
		token, err := srv.GenerateToken()
		require.NoError(t, err)
		res := execute(t, "", "remote", "run", "--server", ts.URL, "--token", token, "-e", "+.+]")
		requireExitCode(t, res.err, 2)
		assert.Equal(t, "\x01", res.stdout)
		assert.Contains(t, res.stderr, "bfi: Mismatched brackets.")
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Setenv(PasswordEnv, "wrong")
		res := execute(t, "", "remote", "run", "--server", ts.URL, "-e", "+")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "authentication failed")
	})

	t.Run("stdin needed for password", func(t *testing.T) {
		t.Setenv(PasswordEnv, "")
		res := execute(t, "x", "remote", "run", "--server", ts.URL, "-e", testutil.Cat, "--stdin")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), PasswordEnv)
	})

	t.Run("interrupt cancels remote run", func(t *testing.T) {
		t.Setenv(PasswordEnv, "secret")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var stdout, stderr syncBuffer
		errCh := make(chan error, 1)
		go func() {
			errCh <- executeContext(ctx, "", &stdout, &stderr, "remote", "run", "--server", ts.URL, "-e", "+.[]")
		}()

		require.Eventually(t, func() bool {
			return stdout.String() == "\x01"
		}, 5*time.Second, 10*time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			requireExitCode(t, err, 130)
		case <-time.After(10 * time.Second):
			t.Fatal("remote run did not finish after interrupt")
		}
		assert.Contains(t, stderr.String(), "bfi: Cancelled.")
	})

	t.Run("list runs", func(t *testing.T) {
		t.Setenv(PasswordEnv, "secret")
		res := execute(t, "", "remote", "list", "--server", ts.URL)
		require.NoError(t, res.err)

		lines := strings.Split(strings.TrimSuffix(res.stdout, "\n"), "\n")
		require.Len(t, lines, 9)
		assert.Contains(t, lines[1], "bfi: "+ts.URL+" | 4 runs (0 running)")
		assert.Contains(t, res.stdout, "success")
		assert.Contains(t, res.stdout, "mismatched_brackets")
		assert.Contains(t, res.stdout, "cancelled")
		assert.NotContains(t, res.stdout, "\033[")
	})

	t.Run("list runs as json", func(t *testing.T) {
		t.Setenv(PasswordEnv, "secret")
		res := execute(t, "", "remote", "list", "--server", ts.URL, "--json")
		require.NoError(t, res.err)

		var runs []stream.RunSummary
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
		require.Len(t, runs, 4)
		for _, run := range runs {
			assert.NotNil(t, run.FinishedAt, "run %s", run.ID)
		}
		assert.Equal(t, "cancelled", runs[3].Status)
	})
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status interp.Status
		code   int
	}{
		{interp.StatusMismatchedBrackets, 2},
		{interp.StatusOutOfMemory, 3},
		{interp.StatusCancelled, 130},
		{interp.StatusRunning, 1},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := statusResult(tt.status)
			requireExitCode(t, err, tt.code)
			assert.Equal(t, tt.status.Message(), err.Error())
		})
	}

	assert.NoError(t, statusResult(interp.StatusSuccess))
}

func TestNewLogger(t *testing.T) {
	resetCommands(context.Background(), rootCmd)
	cfg := config.DefaultConfig()

	var buf bytes.Buffer
	logger, err := newLogger(&cfg, &buf)
	require.NoError(t, err)
	assert.False(t, logger.Enabled(logging.LevelInfo))
	assert.True(t, logger.Enabled(logging.LevelWarn))

	logger.Warn("careful", "run", "r1")
	assert.Equal(t, "bfi: WARN: careful | run=r1\n", buf.String())

	t.Run("verbose enables basic debug", func(t *testing.T) {
		verbose = true
		defer func() { verbose = false }()

		logger, err := newLogger(&cfg, &buf)
		require.NoError(t, err)
		assert.True(t, logger.For(logging.CategoryBasic).Enabled(logging.LevelDebug))
		assert.False(t, logger.For(logging.CategoryInterpreter).Enabled(logging.LevelDebug))
	})

	t.Run("config categories", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Debug.Basic = true
		cfg.Debug.Output = true

		logger, err := newLogger(&cfg, &buf)
		require.NoError(t, err)
		assert.True(t, logger.For(logging.CategoryOutput).Enabled(logging.LevelDebug))
	})

	t.Run("invalid level", func(t *testing.T) {
		logLevel = "loud"
		defer func() { logLevel = "warn" }()

		_, err := newLogger(&cfg, &buf)
		require.Error(t, err)
	})
}

func TestOutputTracker(t *testing.T) {
	var buf bytes.Buffer
	out := &outputTracker{w: &buf}

	_, err := out.Write([]byte("no newline"))
	require.NoError(t, err)
	assert.Equal(t, 10, out.written)
	assert.Equal(t, byte('e'), out.last)

	// Not a terminal, so nothing is added
	out.finish()
	assert.Equal(t, "no newline", buf.String())
}

func TestServerURL(t *testing.T) {
	srv, err := server.NewServer(&server.Config{
		Port:         9123,
		PasswordHash: "x",
		DataDir:      t.TempDir(),
		Engine:       config.DefaultEngine(),
		Logger:       logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })

	assert.Equal(t, "http://localhost:9123", serverURL(srv))
}
