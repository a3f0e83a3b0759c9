package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// band paints text onto a strip of solid background. lipgloss resets the
// background after every styled run, so each word and each gap is styled on
// its own.
type band struct {
	base lipgloss.Style
	fg   lipgloss.Color
}

func newBand(color string) band {
	c := lipgloss.Color(color)
	return band{base: lipgloss.NewStyle().Background(c), fg: c}
}

// text renders s in style on the band.
func (b band) text(s string, style lipgloss.Style) string {
	if s == "" {
		return ""
	}
	styled := style.Background(b.fg)
	words := strings.Split(s, " ")
	for i, w := range words {
		if w != "" {
			words[i] = styled.Render(w)
		}
	}
	return strings.Join(words, b.gap(1))
}

// gap is n blank cells of background.
func (b band) gap(n int) string {
	if n <= 0 {
		return ""
	}
	return b.base.Render(strings.Repeat(" ", n))
}

// field renders "label value" with one gap between them.
func (b band) field(label, value string, labelStyle, valueStyle lipgloss.Style) string {
	return b.text(label, labelStyle) + b.gap(1) + b.text(value, valueStyle)
}

// join puts sep, painted on the band, between parts.
func (b band) join(parts []string, sep string) string {
	return strings.Join(parts, b.base.Render(sep))
}

// fill pads content out to width.
func (b band) fill(content string, width int) string {
	return b.base.Width(width).Render(content)
}
