package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/stream"
)

// Column widths of the runs table.
const (
	idWidth       = 36
	statusWidth   = 19
	eventsWidth   = 6
	durationWidth = 10
)

// RunsView renders the runs known to a run server as a table in a box.
type RunsView struct {
	Server string
	Runs   []stream.RunSummary

	// Now is used for the elapsed time of runs that have not finished.
	Now time.Time

	// Styled enables ANSI colors for statuses.
	Styled bool
}

// Render renders the view to a slice of strings.
// Width specifies the terminal width for the view.
func (v *RunsView) Render(width int) []string {
	if width < 20 {
		width = 20
	}
	innerWidth := width - 4

	running := 0
	for _, run := range v.Runs {
		if run.Status == interp.StatusRunning.String() {
			running++
		}
	}

	content := []string{
		Truncate(fmt.Sprintf("bfi: %s | %s (%d running)", v.Server, plural(len(v.Runs), "run"), running), innerWidth),
	}
	if len(v.Runs) == 0 {
		content = append(content, "", v.style("no runs", Dim))
		return BoxWithContent(width, content)
	}

	content = append(content, "", v.style(v.row("ID", "STATUS", "EVENTS", "TIME"), Dim))
	for _, run := range v.Runs {
		status := run.Status
		if v.Styled {
			status = FormatStatus(status)
		}
		content = append(content, v.row(run.ID, status, strconv.FormatUint(run.LastSeq, 10), v.elapsed(run)))
	}

	return BoxWithContent(width, content)
}

func (v *RunsView) row(id, status, events, elapsed string) string {
	return strings.Join([]string{
		PadOrTruncate(id, idWidth),
		PadOrTruncate(status, statusWidth),
		RightAlign(events, eventsWidth),
		RightAlign(elapsed, durationWidth),
	}, " ")
}

func (v *RunsView) style(s string, codes ...string) string {
	if !v.Styled {
		return s
	}
	return Style(s, codes...)
}

// elapsed returns how long a run took, or has been running for.
func (v *RunsView) elapsed(run stream.RunSummary) string {
	end := v.Now
	if run.FinishedAt != nil {
		end = *run.FinishedAt
	}
	if end.IsZero() || run.StartedAt.IsZero() || end.Before(run.StartedAt) {
		return "-"
	}
	return FormatDuration(end.Sub(run.StartedAt))
}

// FormatDuration formats d with a precision that suits its magnitude.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
