package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/program"
)

var (
	filterEval  string
	filterCheck bool
)

var filterCmd = &cobra.Command{
	Use:   "filter [file]",
	Short: "Print a program with comments removed",
	Long: `Prints only the eight instruction characters of a program, in order.

With --check, also verifies that brackets are balanced and fails if they
are not. Runs never require this; an unbalanced program fails with
"mismatched brackets" only when execution reaches the unmatched bracket.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringVarP(&filterEval, "eval", "e", "", "program source given inline")
	filterCmd.Flags().BoolVar(&filterCheck, "check", false, "fail if brackets are unbalanced")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, args []string) error {
	flags := programFlags{eval: filterEval}
	source, err := flags.source(cmd, args)
	if err != nil {
		return err
	}

	prog := program.Filter(source)
	fmt.Fprintln(cmd.OutOrStdout(), prog.String())

	if filterCheck && !prog.Balanced() {
		return errors.New("brackets are unbalanced")
	}
	return nil
}
