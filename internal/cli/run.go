package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/runner"
	"github.com/thruflo/bfi/internal/stream"
)

var (
	runFlags   programFlags
	runRecord  string
	runTimeout time.Duration
	runBuffer  int
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a program locally",
	Long: `Runs a program and streams its output to stdout as chunks are flushed.

The program comes from a file argument ("-" reads it from stdin) or --eval.
Input comes from --input, --input-file or --stdin; reading past the end of
input stores zero.

Ctrl-C cancels the run after its current instruction. The exit status is 0
on success, 2 for mismatched brackets, 3 when the program exceeds
engine.max_program_bytes and 130 when cancelled.`,
	Example: `  bfi run hello.b
  bfi run -e ',[.,]' --input 'echo me'
  bfi run rot13.b --stdin < message.txt
  bfi run slow.b --timeout 5s --record events.ndjson`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runFlags.register(runCmd)
	runCmd.Flags().StringVar(&runRecord, "record", "", "write the run's events to an NDJSON file, replacing its contents")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "cancel the run after this long (0 = no limit)")
	runCmd.Flags().IntVar(&runBuffer, "buffer", 0, "output buffer capacity in bytes (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	source, err := runFlags.source(cmd, args)
	if err != nil {
		return err
	}
	input, err := runFlags.programInput(cmd)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if runBuffer != 0 {
		cfg.Engine.OutputBuffer = runBuffer
		if err := config.ValidateConfig(cfg); err != nil {
			return err
		}
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	req := runner.Request{Source: source, Input: input}
	if runRecord != "" {
		store, err := stream.CreateFileStore(runRecord)
		if err != nil {
			return fmt.Errorf("failed to open record file: %w", err)
		}
		defer store.Close()
		req.Recorder = store
	}

	run := runner.New(cfg.Engine, logger).Start(ctx, req)

	out := &outputTracker{w: cmd.OutOrStdout()}
	var writeErr error
	for event := range run.Events() {
		if event.Type != stream.MessageTypeOutput || writeErr != nil {
			continue
		}
		data, err := event.OutputData()
		if err == nil {
			_, err = out.Write(data.Bytes)
		}
		if err != nil {
			// Keep draining so the run can finish
			writeErr = fmt.Errorf("failed to write output: %w", err)
			run.Cancel()
		}
	}
	out.finish()

	res := run.Wait()
	if writeErr != nil {
		return writeErr
	}
	if err := run.Err(); err != nil {
		return err
	}

	if res.Status != interp.StatusSuccess {
		fmt.Fprintf(cmd.ErrOrStderr(), "bfi: %s\n", res.Status.Message())
	}
	return statusResult(res.Status)
}
