// Package tui renders views of runs for interactive terminals.
package tui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal or its size is
// unknown.
const DefaultWidth = 80

// Terminal writes rendered views to an output and knows whether that output
// is an interactive terminal that understands ANSI escapes.
type Terminal struct {
	out   io.Writer
	fd    int
	isTTY bool
}

// NewTerminal creates a Terminal writing to out. Styling is enabled only
// when out is a terminal.
func NewTerminal(out io.Writer) *Terminal {
	t := &Terminal{out: out, fd: -1}
	if f, ok := out.(*os.File); ok {
		t.fd = int(f.Fd())
		t.isTTY = term.IsTerminal(t.fd)
	}
	return t
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsTerminal returns true if the output is an interactive terminal.
func (t *Terminal) IsTerminal() bool {
	return t.isTTY
}

// Width returns the terminal width, or DefaultWidth when it cannot be read.
func (t *Terminal) Width() int {
	if !t.isTTY {
		return DefaultWidth
	}
	width, _, err := term.GetSize(t.fd)
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}

// Style applies codes to s when the output is a terminal.
func (t *Terminal) Style(s string, codes ...string) string {
	if !t.isTTY {
		return s
	}
	return Style(s, codes...)
}

// WriteLine writes a string followed by a newline to the terminal output.
func (t *Terminal) WriteLine(s string) {
	fmt.Fprintln(t.out, s)
}

// WriteLines writes each line followed by a newline.
func (t *Terminal) WriteLines(lines []string) {
	for _, line := range lines {
		t.WriteLine(line)
	}
}

// ANSI escape sequences
const (
	ClearLine = "\033[K" // Clear from cursor to end of line

	// Text attributes
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	// Foreground colors
	FgRed    = "\033[31m"
	FgGreen  = "\033[32m"
	FgYellow = "\033[33m"
	FgCyan   = "\033[36m"

	FgBrightBlack = "\033[90m"
)
