package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/auth"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/logging"
	"github.com/thruflo/bfi/internal/stream"
	"github.com/thruflo/bfi/internal/tui"
)

// PasswordEnv names the environment variable read by remote commands for
// the server password.
const PasswordEnv = "BFI_PASSWORD"

var (
	remoteServer   string
	remoteToken    string
	remoteFlags    programFlags
	remoteListJSON bool
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Use a run server started with 'bfi serve'",
}

var remoteRunCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a program on a run server",
	Long: `Submits a program to a run server and streams its output to stdout.

The password is read from $` + PasswordEnv + ` or prompted for; --token skips
authentication with a token from an earlier session. Ctrl-C asks the
server to cancel the run and waits for its final status. The exit status
matches 'bfi run'.`,
	Example: `  bfi remote run hello.b --server http://build-box:8374
  BFI_PASSWORD=secret bfi remote run -e ',[.,]' --input hi`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRemoteRun,
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the runs on a run server",
	Long: `Lists every run the server has kept, oldest first, with its status, the
number of events it has recorded and how long it ran.`,
	Args: cobra.NoArgs,
	RunE: runRemoteList,
}

func init() {
	remoteListCmd.Flags().BoolVar(&remoteListJSON, "json", false, "print the runs as JSON")
	remoteCmd.AddCommand(remoteListCmd)

	remoteCmd.PersistentFlags().StringVar(&remoteServer, "server", fmt.Sprintf("http://localhost:%d", config.DefaultServerPort), "run server URL")
	remoteCmd.PersistentFlags().StringVar(&remoteToken, "token", "", "bearer token (skips password authentication)")
	remoteFlags.register(remoteRunCmd)
	remoteCmd.AddCommand(remoteRunCmd)
	rootCmd.AddCommand(remoteCmd)
}

func runRemoteRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	source, err := remoteFlags.source(cmd, args)
	if err != nil {
		return err
	}
	input, err := remoteFlags.programInput(cmd)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	basic := logger.For(logging.CategoryBasic)

	client, err := connect(ctx, cmd, args)
	if err != nil {
		return err
	}

	id, err := client.Submit(ctx, source, input)
	if err != nil {
		return fmt.Errorf("failed to submit run: %w", err)
	}
	basic.Debug("run submitted", "run", id, "server", client.BaseURL())

	// Events outlive ctx so the final status is seen after a cancel
	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	eventCh, errCh := client.Events(eventsCtx, id, 0)

	out := &outputTracker{w: cmd.OutOrStdout()}
	var status *stream.StatusEvent
	interrupt := ctx.Done()

loop:
	for {
		select {
		case <-interrupt:
			interrupt = nil
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			resp, err := client.Cancel(cancelCtx, id)
			cancel()
			if err != nil {
				logger.Warn("failed to cancel run", "run", id, "error", err)
				stopEvents()
				break loop
			}
			basic.Debug("cancel requested", "run", id, "command", resp.CommandID)

		case event, ok := <-eventCh:
			if !ok {
				break loop
			}
			switch event.Type {
			case stream.MessageTypeOutput:
				data, err := event.OutputData()
				if err != nil {
					return fmt.Errorf("invalid output event: %w", err)
				}
				if _, err := out.Write(data.Bytes); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
			case stream.MessageTypeStatus:
				status, err = event.StatusData()
				if err != nil {
					return fmt.Errorf("invalid status event: %w", err)
				}
			}
		}
	}
	out.finish()

	if err, ok := <-errCh; ok && err != nil {
		return fmt.Errorf("lost connection to run server: %w", err)
	}
	if status == nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("run server closed the stream before the run finished")
	}

	if status.Status != interp.StatusSuccess {
		fmt.Fprintf(cmd.ErrOrStderr(), "bfi: %s\n", status.Message)
	}
	return statusResult(status.Status)
}

func runRemoteList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := connect(ctx, cmd, args)
	if err != nil {
		return err
	}
	runs, err := client.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if remoteListJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	term := tui.NewTerminal(cmd.OutOrStdout())
	view := &tui.RunsView{
		Server: client.BaseURL(),
		Runs:   runs,
		Now:    time.Now(),
		Styled: term.IsTerminal(),
	}
	term.WriteLines(view.Render(term.Width()))
	return nil
}

// connect creates an authenticated client for --server.
func connect(ctx context.Context, cmd *cobra.Command, args []string) (*stream.Client, error) {
	opts := []stream.ClientOption{stream.WithMaxReconnectAttempts(5)}
	if remoteToken != "" {
		return stream.NewClient(remoteServer, append(opts, stream.WithAuthToken(remoteToken))...), nil
	}

	client := stream.NewClient(remoteServer, opts...)

	password := os.Getenv(PasswordEnv)
	if password == "" {
		if remoteFlags.stdin || (len(args) > 0 && args[0] == "-") {
			return nil, fmt.Errorf("stdin is in use; set $%s or pass --token", PasswordEnv)
		}
		prompter := &auth.Prompter{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
		var err error
		password, err = prompter.Prompt("Password for " + strings.TrimRight(remoteServer, "/") + ": ")
		if err != nil {
			return nil, err
		}
	}

	if _, err := client.Authenticate(ctx, password); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return client, nil
}
