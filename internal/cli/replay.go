package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/stream"
)

var replayJSON bool

var replayCmd = &cobra.Command{
	Use:   "replay <events.ndjson>",
	Short: "Reconstruct a run's output from its event log",
	Long: `Reads an event log written by 'bfi run --record' or by the run server,
checks that it describes one complete run, and writes the run's output to
stdout. The exit status reflects the recorded status.

With --json, the recorded status event is printed instead of the output.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print the status event as JSON instead of the output")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	events, err := stream.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	output, status, err := stream.Replay(events)
	if err != nil {
		return fmt.Errorf("invalid event log: %w", err)
	}

	if replayJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		return nil
	}

	out := &outputTracker{w: cmd.OutOrStdout()}
	if _, err := out.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	out.finish()

	if !status.Status.Terminal() {
		return fmt.Errorf("invalid event log: status %s is not terminal", status.Status)
	}
	if err := statusResult(status.Status); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "bfi: %s\n", status.Message)
		return err
	}
	return nil
}
