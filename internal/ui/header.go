package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/orderdesk/internal/sheetapi"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := newBand(m.theme.Surface)
	snap := m.snapshot
	compact := m.width < LayoutCompactWidth

	parts := []string{bg.text("orderdesk", styles.Logo)}

	switch {
	case snap.IsOffline():
		parts = append(parts, bg.text("● OFFLINE", styles.DangerText))
	case snap.LastError != nil:
		parts = append(parts, bg.text("● "+classifyConnectionError(snap.LastError), styles.WarningText))
	case !snap.LastUpdated.IsZero():
		parts = append(parts, bg.text("● ONLINE", styles.SuccessText))
	default:
		parts = append(parts, bg.text("● CONNECTING", styles.MutedText))
	}
	if snap.Latency > 0 && snap.LastError == nil {
		parts = append(parts, bg.text(snap.Latency.Round(time.Millisecond).String(), styles.FaintText))
	}

	parts = append(parts,
		bg.field("Orders:", qty(len(snap.Orders)), styles.MutedText, styles.Text))

	d := snap.Draft
	draftText := fmt.Sprintf("%d/%d", d.Lines(), d.Units())
	draftStyle := styles.Text
	if d.Dirty {
		draftText += "*"
		draftStyle = styles.WarningText
	}
	parts = append(parts, bg.field("Draft:", draftText, styles.MutedText, draftStyle))

	if !compact && snap.Catalog.UpdatedAt != "" {
		parts = append(parts, bg.field("Catalog:", truncate(snap.Catalog.UpdatedAt, 20), styles.MutedText, styles.FaintText))
	}
	if ts := m.formatTimestamp(); ts != "" && !compact {
		parts = append(parts, bg.text(ts, styles.FaintText))
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		Render(strings.Join(parts, bg.gap(2)))
}

func (m Model) formatTimestamp() string {
	if m.lastUpdated.IsZero() {
		return ""
	}
	since := m.now().Sub(m.lastUpdated)
	out := m.lastUpdated.Format("15:04:05")
	if since >= time.Minute {
		out += fmt.Sprintf(" (%dm ago)", int(since.Minutes()))
	}
	return out
}

// classifyConnectionError returns a short label for the header badge.
func classifyConnectionError(err error) string {
	switch {
	case err == nil:
		return ""
	case sheetapi.IsKind(err, sheetapi.KindNetwork):
		return "UNREACHABLE"
	case sheetapi.IsKind(err, sheetapi.KindHTTP):
		return "HTTP ERROR"
	case sheetapi.IsKind(err, sheetapi.KindApplication):
		return "API ERROR"
	default:
		return "ERROR"
	}
}

// renderCommandBar lists the keys for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := newBand(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd
	switch m.currentView {
	case ViewDetail:
		commands = []cmd{
			{"p", "Pulled"}, {"u", "Unavailable"}, {"n", "Not pulled"},
			{"+/-", "Collected"}, {"esc", "Orders"},
		}
	case ViewCatalog:
		commands = []cmd{
			{"+/-", "Qty"}, {"m", "Header"}, {"s", "Submit"},
			{"R", "Refresh"}, {"o", "Orders"},
		}
	case ViewLogs:
		commands = []cmd{
			{"/", "Filter"}, {"i", "Last request"}, {"o", "Orders"},
		}
	default:
		day := m.day
		if day == "" {
			day = "all"
		}
		commands = []cmd{
			{"[ ]", day}, {"a", "All days"}, {"enter", "Open"},
			{"r", "Refresh"}, {"x/X", "Export"}, {"v/M", "Reports"}, {"c", "Catalog"}, {"l", "Log"},
		}
	}
	commands = append(commands, cmd{"?", "More"})

	colon := bg.text(":", styles.FaintText)
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments, bg.text(c.key, styles.AccentText)+colon+bg.text(c.desc, styles.MutedText))
	}
	segments = append(segments, bg.text("T", styles.AccentText)+colon+bg.text(m.theme.Name, styles.FaintText))

	return bg.fill(strings.Join(segments, bg.gap(2)), m.width)
}

// renderStatusLine shows the latest toast, falling back to the last
// controller message.
func (m Model) renderStatusLine() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := newBand(m.theme.Background)

	text, style := m.snapshot.Message, styles.MutedText
	if m.toast != "" {
		text, style = m.toast, styles.Text
	}
	if text == "" && m.snapshot.LastError != nil {
		text, style = sheetapi.Describe(m.snapshot.LastError), styles.DangerText
	}
	return bg.fill(bg.text(truncate(text, m.width), style), m.width)
}
