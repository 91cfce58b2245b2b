package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/thruflo/bfi/internal/interp"
)

// Box drawing characters (Unicode)
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
)

// BoxWithContent draws a box containing the given content lines.
// Each line is padded/truncated to fit within the box.
func BoxWithContent(width int, content []string) []string {
	if width < 4 {
		return nil
	}

	innerWidth := width - 4 // Account for borders and padding
	lines := make([]string, 0, len(content)+2)

	lines = append(lines, BoxTopLeft+strings.Repeat(BoxHorizontal, width-2)+BoxTopRight)
	for _, line := range content {
		lines = append(lines, BoxVertical+" "+PadOrTruncate(line, innerWidth)+" "+BoxVertical)
	}
	lines = append(lines, BoxBottomLeft+strings.Repeat(BoxHorizontal, width-2)+BoxBottomRight)

	return lines
}

// PadOrTruncate pads or truncates a string to exactly width characters.
// ANSI escapes do not count towards the width.
func PadOrTruncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	visible := VisibleWidth(s)
	if visible == width {
		return s
	}
	if visible < width {
		return s + strings.Repeat(" ", width-visible)
	}
	return Truncate(StripANSI(s), width)
}

// Truncate truncates a string to max width, adding ellipsis if needed.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	if width >= 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// RightAlign right-aligns text within the given width.
func RightAlign(s string, width int) string {
	visible := VisibleWidth(s)
	if visible >= width {
		return PadOrTruncate(s, width)
	}
	return strings.Repeat(" ", width-visible) + s
}

// StripANSI removes ANSI escape sequences from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\033[") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			// Skip to the final byte of the sequence
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// VisibleWidth returns the number of runes s occupies on screen.
func VisibleWidth(s string) int {
	return utf8.RuneCountInString(StripANSI(s))
}

// Style applies ANSI style codes to text.
func Style(s string, codes ...string) string {
	if len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + Reset
}

// StatusColor returns an appropriate color code for the given run status
// name.
func StatusColor(status string) string {
	var st interp.Status
	if err := st.UnmarshalText([]byte(status)); err != nil {
		return ""
	}
	switch st {
	case interp.StatusRunning:
		return FgCyan
	case interp.StatusSuccess:
		return FgGreen
	case interp.StatusMismatchedBrackets, interp.StatusOutOfMemory:
		return FgRed
	case interp.StatusCancelled:
		return FgYellow
	default:
		return ""
	}
}

// FormatStatus formats a status string with appropriate color.
func FormatStatus(status string) string {
	color := StatusColor(status)
	if color == "" {
		return status
	}
	return Style(status, color, Bold)
}
