// Package report renders the sorted sender or domain view as an aligned
// terminal table.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mailops/pfwatch/internal/aggregate"
)

const (
	minKeyWidth = 16
	numWidth    = 8
)

var columns = []struct {
	header string
	field  aggregate.Field
}{
	{"NRCPT", aggregate.ByNrcpt},
	{"PEND", aggregate.ByPending},
	{"SENT", aggregate.BySent},
	{"BOUNCE", aggregate.ByBounced},
	{"DEFER", aggregate.ByDeferred},
	{"AXED", aggregate.ByAxed},
	{"dNRCPT", aggregate.ByDeltaNrcpt},
	{"dSENT", aggregate.ByDeltaSent},
}

// Renderer formats report tables. Plain disables styling (for pipes and
// logs); Width bounds the key column so rows fit the terminal.
type Renderer struct {
	Plain bool
	Width int
}

// Render formats the rows with a title line and a header. sortField's
// column is highlighted so the active sort is visible at a glance.
func (r *Renderer) Render(title string, sortField aggregate.Field, rows []aggregate.Row) string {
	keyWidth := minKeyWidth
	for _, row := range rows {
		if len(row.Key) > keyWidth {
			keyWidth = len(row.Key)
		}
	}
	if max := r.maxKeyWidth(); keyWidth > max {
		keyWidth = max
	}

	var (
		titleStyle  = lipgloss.NewStyle().Bold(true)
		headerStyle = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("14"))
		sortStyle   = lipgloss.NewStyle().Underline(true).Bold(true).Foreground(lipgloss.Color("11"))
		axedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	)

	var b strings.Builder

	if r.Plain {
		b.WriteString(title)
	} else {
		b.WriteString(titleStyle.Render(title))
	}
	b.WriteByte('\n')

	b.WriteString(pad("WHO", keyWidth))
	for _, col := range columns {
		cell := fmt.Sprintf("%*s", numWidth, col.header)
		switch {
		case r.Plain:
		case col.field == sortField:
			cell = sortStyle.Render(cell)
		default:
			cell = headerStyle.Render(cell)
		}
		b.WriteString(cell)
	}
	b.WriteByte('\n')

	for i := range rows {
		row := &rows[i]
		b.WriteString(pad(truncate(row.Key, keyWidth), keyWidth))
		for _, col := range columns {
			v := col.field.Value(&row.Stats)
			cell := fmt.Sprintf("%*d", numWidth, v)
			if !r.Plain && col.field == aggregate.ByAxed && v > 0 {
				cell = axedStyle.Render(cell)
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// maxKeyWidth leaves room for the numeric columns inside the configured
// terminal width.
func (r *Renderer) maxKeyWidth() int {
	if r.Width <= 0 {
		return 48
	}
	max := r.Width - len(columns)*numWidth
	if max < minKeyWidth {
		return minKeyWidth
	}
	return max
}

func pad(s string, width int) string {
	if lipgloss.Width(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}
