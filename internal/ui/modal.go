package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/orderdesk/internal/draft"
	"github.com/five82/orderdesk/internal/orders"
)

// Modal is the interface for modal dialogs.
// The Update method returns the updated modal, a command, and a bool indicating if the modal should close.
type Modal interface {
	Init() tea.Cmd
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

func renderModalBox(theme Theme, width, height int, title, body, footer string) string {
	styles := theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render(title))
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render(footer))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(min(60, max(width-4, 20)))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)))
}

// confirmModal asks a yes/no question and runs onYes when accepted.
type confirmModal struct {
	title  string
	prompt string
	onYes  tea.Cmd
}

func newConfirmModal(title, prompt string, onYes tea.Cmd) *confirmModal {
	return &confirmModal{title: title, prompt: prompt, onYes: onYes}
}

func (c *confirmModal) Init() tea.Cmd { return nil }

func (c *confirmModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil, false
	}
	switch {
	case key.Matches(k, keys.Yes), key.Matches(k, keys.Confirm):
		return c, c.onYes, true
	case key.Matches(k, keys.No):
		return c, nil, true
	}
	return c, nil, false
}

func (c *confirmModal) View(theme Theme, width, height int) string {
	return renderModalBox(theme, width, height, c.title, theme.Styles().Text.Render(c.prompt), "y/enter confirm · n/esc cancel")
}

// form is a column of labelled text inputs. tab and shift+tab move between
// fields; enter advances and submits from the last field; ctrl+s submits from
// anywhere.
type form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(labels, values, placeholders []string) form {
	f := form{labels: labels, inputs: make([]textinput.Model, len(labels))}
	for i := range labels {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 120
		if i < len(placeholders) {
			in.Placeholder = placeholders[i]
		}
		if i < len(values) {
			in.SetValue(values[i])
		}
		f.inputs[i] = in
	}
	return f
}

func (f *form) setFocus(idx int) tea.Cmd {
	n := len(f.inputs)
	f.inputs[f.focus].Blur()
	f.focus = (idx%n + n) % n
	return f.inputs[f.focus].Focus()
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

// update handles one message. It reports whether the form was submitted or
// dismissed.
func (f *form) update(msg tea.Msg, keys keyMap) (cmd tea.Cmd, submit, cancel bool) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, false, false
	}
	switch k.Type {
	case tea.KeyEsc:
		return nil, false, true
	case tea.KeyEnter:
		if f.focus < len(f.inputs)-1 {
			return f.setFocus(f.focus + 1), false, false
		}
		return nil, true, false
	case tea.KeyCtrlS:
		return nil, true, false
	}
	switch {
	case key.Matches(k, keys.Next):
		return f.setFocus(f.focus + 1), false, false
	case key.Matches(k, keys.Prev):
		return f.setFocus(f.focus - 1), false, false
	}
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd, false, false
}

func (f *form) view(theme Theme) string {
	styles := theme.Styles()
	label := lipgloss.NewStyle().Width(16)
	var b strings.Builder
	for i, in := range f.inputs {
		style := styles.MutedText
		if i == f.focus {
			style = styles.AccentText
		}
		b.WriteString(label.Inherit(style).Render(f.labels[i]))
		b.WriteString(in.View())
		if i < len(f.inputs)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

const formFooter = "tab next field · enter save on last field · ctrl+s save · esc cancel"

const (
	metaStore = iota
	metaDate
	metaPlacedBy
	metaNotes
)

// metaModal edits the order header.
type metaModal struct {
	form
	save func(draft.Meta) tea.Cmd
}

func newMetaModal(meta draft.Meta, stores []string, save func(draft.Meta) tea.Cmd) *metaModal {
	placeholders := []string{"store name", "YYYY-MM-DD", "your name", "optional"}
	if len(stores) > 0 {
		placeholders[metaStore] = strings.Join(stores, ", ")
	}
	return &metaModal{
		form: newForm(
			[]string{"Store", "Requested date", "Placed by", "Notes"},
			[]string{meta.Store, meta.RequestedDate, meta.PlacedBy, meta.Notes},
			placeholders,
		),
		save: save,
	}
}

func (mm *metaModal) Init() tea.Cmd {
	return mm.inputs[mm.focus].Focus()
}

// Meta returns the edited header.
func (mm *metaModal) Meta() draft.Meta {
	return draft.Meta{
		Store:         mm.value(metaStore),
		RequestedDate: mm.value(metaDate),
		PlacedBy:      mm.value(metaPlacedBy),
		Notes:         mm.value(metaNotes),
	}
}

func (mm *metaModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	cmd, submit, cancel := mm.update(msg, keys)
	switch {
	case cancel:
		return mm, nil, true
	case submit:
		if mm.save != nil {
			cmd = mm.save(mm.Meta())
		}
		return mm, cmd, true
	}
	return mm, cmd, false
}

func (mm *metaModal) View(theme Theme, width, height int) string {
	return renderModalBox(theme, width, height, "Order header", mm.view(theme), formFooter)
}

const (
	reportProduct = iota
	reportCategory
	reportStores
	reportFrom
	reportTo
	reportSort
)

// reportModal collects the filters for the store volume and shortfall
// reports.
type reportModal struct {
	form
	title string
	run   func(orders.Query) tea.Cmd
	err   string
}

func newReportModal(title string, stores []string, run func(orders.Query) tea.Cmd) *reportModal {
	storeHint := "all stores"
	if len(stores) > 0 {
		storeHint = strings.Join(stores, ", ")
	}
	return &reportModal{
		form: newForm(
			[]string{"Product", "Category", "Stores", "From", "To", "Sort"},
			[]string{"", "", "", "", "", string(orders.SortQtyDesc)},
			[]string{"sku, item no, or name", "used when product is empty", storeHint, "YYYY-MM-DD", "YYYY-MM-DD", "qty-desc, qty-asc, store-asc, store-desc"},
		),
		title: title,
		run:   run,
	}
}

func (rm *reportModal) Init() tea.Cmd {
	return rm.inputs[rm.focus].Focus()
}

// Query parses the fields. Dates must be YYYY-MM-DD.
func (rm *reportModal) Query() (orders.Query, error) {
	q := orders.Query{Sort: orders.ParseStoreSort(rm.value(reportSort))}
	if product := rm.value(reportProduct); product != "" {
		q.Target = orders.Target{Scope: orders.ScopeProduct, Key: product}
	} else {
		q.Target = orders.Target{Scope: orders.ScopeCategory, Key: rm.value(reportCategory)}
	}
	for _, s := range strings.Split(rm.value(reportStores), ",") {
		if s = strings.TrimSpace(s); s != "" {
			q.Stores = append(q.Stores, s)
		}
	}
	for _, bound := range []struct {
		field int
		dst   *time.Time
	}{{reportFrom, &q.Start}, {reportTo, &q.End}} {
		raw := rm.value(bound.field)
		if raw == "" {
			continue
		}
		ts, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
		if err != nil {
			return orders.Query{}, fmt.Errorf("%s: want YYYY-MM-DD, got %q", rm.labels[bound.field], raw)
		}
		*bound.dst = ts
	}
	return q, nil
}

func (rm *reportModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	cmd, submit, cancel := rm.update(msg, keys)
	switch {
	case cancel:
		return rm, nil, true
	case submit:
		q, err := rm.Query()
		if err != nil {
			rm.err = err.Error()
			return rm, nil, false
		}
		if rm.run != nil {
			cmd = rm.run(q)
		}
		return rm, cmd, true
	}
	return rm, cmd, false
}

func (rm *reportModal) View(theme Theme, width, height int) string {
	body := rm.view(theme)
	if rm.err != "" {
		body += "\n\n" + theme.Styles().DangerText.Render(rm.err)
	}
	return renderModalBox(theme, width, height, rm.title, body, formFooter)
}
