package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	verbose  bool
	trace    bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bfi",
	Short: "Run programs in the eight-instruction tape language",
	Long: `bfi interprets programs written in the eight-instruction tape language
('>' '<' '+' '-' ',' '.' '[' ']', everything else is a comment) on a
65536-cell wrapping tape.

Programs run locally with 'bfi run', or on a run server started with
'bfi serve' and driven with 'bfi remote run' or the browser playground.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("bfi version {{.Version}}\n")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log run lifecycle (debug.basic)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "log every instruction and output chunk (implies --verbose)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "minimum log level: debug, info, warn, error")
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// StatusError reports a run that ended in a status other than success.
type StatusError struct {
	Status interp.Status
}

func (e *StatusError) Error() string {
	return e.Status.Message()
}

// ExitCode maps the status to a process exit code.
func (e *StatusError) ExitCode() int {
	switch e.Status {
	case interp.StatusMismatchedBrackets:
		return 2
	case interp.StatusOutOfMemory:
		return 3
	case interp.StatusCancelled:
		return 130
	default:
		return 1
	}
}

// statusResult returns nil for success and a *StatusError otherwise.
func statusResult(status interp.Status) error {
	if status == interp.StatusSuccess {
		return nil
	}
	return &StatusError{Status: status}
}

// loadConfig loads .bfi/ configuration from the working directory.
func loadConfig() (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}
	cfg, err := config.LoadConfig(cwd)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, cwd, nil
}

// newLogger builds the command logger. Debug categories come from the
// config's debug section, widened by --verbose and --trace.
func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	logger := logging.New()
	logger.SetOutput(log.New(w, "bfi: ", 0))

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	categories := logging.Categories{
		Basic:       cfg.Debug.Basic || verbose || trace,
		Interpreter: cfg.Debug.Interpreter || trace,
		Output:      cfg.Debug.Output || trace,
	}
	if categories.Any() {
		level = logging.LevelDebug
	}
	logger.SetLevel(level)
	logger.SetCategories(categories)
	return logger, nil
}
