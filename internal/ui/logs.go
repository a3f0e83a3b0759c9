package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/orderdesk/internal/logtail"
)

type logLinesMsg struct {
	lines []string
	err   error
}

// refreshLogs reads the tail of the log file off the UI goroutine.
func (m Model) refreshLogs() tea.Cmd {
	if m.logPath == "" {
		return nil
	}
	path := m.logPath
	return func() tea.Msg {
		lines, err := logtail.Read(path, LogBufferLimit)
		return logLinesMsg{lines: lines, err: err}
	}
}

// visibleLogLines applies the active filter.
func (m Model) visibleLogLines() []string {
	return logtail.Filter(m.logLines, m.logNeedle)
}

func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	// Box inner = content height minus borders.
	m.logViewport.Width = max(m.width-2, 1)
	m.logViewport.Height = max(m.contentHeight()-2, 1)
	m.logViewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))

	follow := m.logViewport.AtBottom() || m.logViewport.TotalLineCount() == 0
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := newBand(m.theme.FocusBg)

	lines := m.visibleLogLines()
	rendered := make([]string, len(lines))
	for i, line := range lines {
		rendered[i] = bg.text(truncate(line, m.logViewport.Width), logLineStyle(line, styles))
	}
	m.logViewport.SetContent(strings.Join(rendered, "\n"))
	if follow {
		m.logViewport.GotoBottom()
	}
}

func logLineStyle(line string, styles Styles) lipgloss.Style {
	switch {
	case strings.Contains(line, "ERROR"), strings.Contains(line, "failed"):
		return styles.DangerText
	case strings.Contains(line, "WARN"), strings.Contains(line, "fallback"):
		return styles.WarningText
	case strings.Contains(line, "cid_"):
		return styles.InfoText
	default:
		return styles.Text
	}
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.logSearch.SetValue(m.logNeedle)
		m.logSearch.CursorEnd()
		return m, m.logSearch.Focus()

	case key.Matches(msg, m.keys.Correlation):
		ids := logtail.CorrelationIDs(m.logLines)
		if len(ids) == 0 {
			m.setToast("No request ids in the log")
			return m, nil
		}
		m.logNeedle = ids[0]
		m.logViewport.GotoBottom()
		m.updateLogViewport()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.logViewport.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
	case key.Matches(msg, m.keys.Down):
		m.logViewport.LineDown(1)
	case key.Matches(msg, m.keys.Up):
		m.logViewport.LineUp(1)
	}
	return m, nil
}

// handleSearchKey edits the log filter. Enter applies it, esc leaves it as
// it was.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.logNeedle = strings.TrimSpace(m.logSearch.Value())
		m.searching = false
		m.logSearch.Blur()
		m.logViewport.GotoBottom()
		m.updateLogViewport()
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.logSearch.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.logSearch, cmd = m.logSearch.Update(msg)
	return m, cmd
}

func (m Model) renderLogs() string {
	title := "Log"
	if m.logNeedle != "" {
		title += " · " + truncate(m.logNeedle, 30)
	}
	if len(m.logLines) == 0 {
		msg := "Log is empty"
		if m.logPath == "" {
			msg = "No log file configured"
		}
		return m.renderTitledBox(title, m.theme.Styles().MutedText.Render(msg), m.width, m.contentHeight(), true)
	}
	content := m.logViewport.View()
	if m.searching {
		lines := strings.Split(content, "\n")
		if len(lines) > 0 {
			lines[len(lines)-1] = m.logSearch.View()
		}
		content = strings.Join(lines, "\n")
	}
	return m.renderTitledBox(title, content, m.width, m.contentHeight(), true)
}
