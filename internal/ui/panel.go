package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderTitledBox draws content inside a border with the title centered in
// the top edge. Content is padded or cut to fill height.
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	borderColor, bgColor := m.theme.Border, m.theme.SurfaceAlt
	if focused {
		borderColor, bgColor = m.theme.BorderFocus, m.theme.FocusBg
	}
	bg := newBand(bgColor)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColor))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 0)
	title = truncate(title, max(innerWidth-4, 1))
	titleLen := len([]rune(title))
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	var b strings.Builder
	b.WriteString(bg.text("┌"+strings.Repeat("─", leftPad), borderStyle))
	b.WriteString(bg.text(" "+title+" ", titleStyle))
	b.WriteString(bg.text(strings.Repeat("─", rightPad)+"┐", borderStyle))
	b.WriteString("\n")

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(lipgloss.Color(bgColor))
	lines := strings.Split(content, "\n")
	for i := 0; i < max(height-2, 0); i++ {
		line := ""
		if i < len(lines) {
			line = lines[i]
		}
		b.WriteString(bg.text("│", borderStyle))
		b.WriteString(contentStyle.Render(line))
		b.WriteString(bg.text("│", borderStyle))
		b.WriteString("\n")
	}
	b.WriteString(bg.text("└"+strings.Repeat("─", innerWidth)+"┘", borderStyle))
	return b.String()
}

// scrollWindow returns the slice bounds that keep selected visible in rows
// lines.
func scrollWindow(selected, total, rows int) (int, int) {
	if rows <= 0 || total <= rows {
		return 0, total
	}
	start := selected - rows/2
	start = max(min(start, total-rows), 0)
	return start, start + rows
}

// emptyPanel centers a muted message in the content area.
func (m Model) emptyPanel(msg string) string {
	styles := m.theme.Styles()
	return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, styles.MutedText.Render(msg))
}

// renderRow paints a table row, highlighted when selected.
func renderRow(row string, selected bool, styles Styles, bg band) string {
	if selected {
		return styles.Selected.Render(row)
	}
	return bg.text(row, styles.Text)
}
