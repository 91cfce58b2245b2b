package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thruflo/bfi/internal/tui"
)

// programFlags are the flags shared by commands that read a program and its
// input.
type programFlags struct {
	eval      string
	input     string
	inputFile string
	stdin     bool
}

func (f *programFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.eval, "eval", "e", "", "program source given inline")
	cmd.Flags().StringVar(&f.input, "input", "", "program input given inline")
	cmd.Flags().StringVar(&f.inputFile, "input-file", "", "read program input from a file")
	cmd.Flags().BoolVar(&f.stdin, "stdin", false, "read program input from stdin")
}

// source returns the program text from --eval, a file argument, or stdin
// when the argument is "-".
func (f *programFlags) source(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case f.eval != "" && len(args) > 0:
		return "", errors.New("pass either a program file or --eval, not both")
	case f.eval != "":
		return f.eval, nil
	case len(args) == 0:
		return "", errors.New("no program: pass a file or --eval")
	case args[0] == "-":
		if f.stdin {
			return "", errors.New("--stdin cannot be used when the program is read from stdin")
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read program from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read program: %w", err)
		}
		return string(data), nil
	}
}

// programInput returns the program's input bytes. At most one source may be
// given; none means empty input.
func (f *programFlags) programInput(cmd *cobra.Command) ([]byte, error) {
	sources := 0
	for _, set := range []bool{cmd.Flags().Changed("input"), f.inputFile != "", f.stdin} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return nil, errors.New("--input, --input-file and --stdin are mutually exclusive")
	}

	switch {
	case f.inputFile != "":
		data, err := os.ReadFile(f.inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return data, nil
	case f.stdin:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read input from stdin: %w", err)
		}
		return data, nil
	default:
		return []byte(f.input), nil
	}
}

// outputTracker passes output through and remembers whether the last byte
// written was a newline.
type outputTracker struct {
	w       io.Writer
	written int
	last    byte
}

func (t *outputTracker) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.written += n
		t.last = p[n-1]
	}
	return n, err
}

// finish writes a newline to a terminal whose output did not end in one.
func (t *outputTracker) finish() {
	if t.written == 0 || t.last == '\n' {
		return
	}
	if tui.IsTerminal(t.w) {
		fmt.Fprintln(t.w)
	}
}
