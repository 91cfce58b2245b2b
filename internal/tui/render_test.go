package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thruflo/bfi/internal/interp"
)

func TestBoxWithContent(t *testing.T) {
	t.Parallel()

	got := BoxWithContent(10, []string{"abc", "a long line"})
	assert.Equal(t, []string{
		"┌────────┐",
		"│ abc    │",
		"│ a l... │",
		"└────────┘",
	}, got)

	assert.Nil(t, BoxWithContent(3, []string{"x"}))
	assert.Equal(t, []string{"┌──┐", "└──┘"}, BoxWithContent(4, nil))
}

func TestPadOrTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		s     string
		width int
		want  string
	}{
		{"exact", "abc", 3, "abc"},
		{"pad", "ab", 4, "ab  "},
		{"truncate with ellipsis", "abcdef", 5, "ab..."},
		{"truncate narrow", "abcdef", 2, "ab"},
		{"zero width", "abc", 0, ""},
		{"unicode", "héllo", 6, "héllo "},
		{"styled pad", Style("ok", FgGreen), 4, Style("ok", FgGreen) + "  "},
		{"styled truncate", Style("success", FgGreen), 5, "su..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PadOrTruncate(tt.s, tt.width))
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "long s...", Truncate("long string", 9))
	assert.Equal(t, "lo", Truncate("long", 2))
	assert.Equal(t, "", Truncate("long", 0))
}

func TestRightAlign(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "   42", RightAlign("42", 5))
	assert.Equal(t, "12345", RightAlign("12345", 5))
	assert.Equal(t, "12...", RightAlign("123456", 5))
	assert.Equal(t, "  "+Style("7", Bold), RightAlign(Style("7", Bold), 3))
}

func TestStripANSI(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", StripANSI("plain"))
	assert.Equal(t, "status", StripANSI(Style("status", FgRed, Bold)))
	assert.Equal(t, "a b", StripANSI("a"+ClearLine+" b"))
	assert.Equal(t, 7, VisibleWidth(FormatStatus("success")))
}

func TestStyle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text", Style("text"))
	assert.Equal(t, "\033[1m\033[31mtext\033[0m", Style("text", Bold, FgRed))
}

func TestStatusColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status interp.Status
		want   string
	}{
		{interp.StatusRunning, FgCyan},
		{interp.StatusSuccess, FgGreen},
		{interp.StatusMismatchedBrackets, FgRed},
		{interp.StatusOutOfMemory, FgRed},
		{interp.StatusCancelled, FgYellow},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusColor(tt.status.String()))
			assert.Equal(t, Style(tt.status.String(), tt.want, Bold), FormatStatus(tt.status.String()))
		})
	}

	assert.Equal(t, "", StatusColor("unknown"))
	assert.Equal(t, "unknown", FormatStatus("unknown"))
}
