package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/orderdesk/internal/draft"
	"github.com/five82/orderdesk/internal/prefs"
)

func (m Model) clampStep(idx int) int {
	return clamp(idx, len(m.snapshot.Steps))
}

func (m Model) handleCatalogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	steps := m.snapshot.Steps
	move := func(idx int) (tea.Model, tea.Cmd) {
		m.selectedStep = m.clampStep(idx)
		ctrl, pos := m.ctrl, m.selectedStep
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", ctrl.SetPosition(ctx, pos)
		})
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		return move(m.selectedStep + 1)
	case key.Matches(msg, m.keys.Up):
		return move(m.selectedStep - 1)
	case key.Matches(msg, m.keys.Top):
		return move(0)
	case key.Matches(msg, m.keys.Bottom):
		return move(len(steps) - 1)

	case key.Matches(msg, m.keys.Increase), key.Matches(msg, m.keys.Decrease):
		if len(steps) == 0 {
			return m, nil
		}
		delta := 1
		if key.Matches(msg, m.keys.Decrease) {
			delta = -1
		}
		ctrl, sku := m.ctrl, steps[m.clampStep(m.selectedStep)].SKU
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", ctrl.Adjust(ctx, sku, delta)
		})

	case key.Matches(msg, m.keys.EditMeta):
		m.modal = newMetaModal(m.snapshot.Draft.Meta, m.stores, m.saveMetaCmd)
		return m, m.modal.Init()

	case key.Matches(msg, m.keys.Submit):
		d := m.snapshot.Draft
		prompt := fmt.Sprintf("Submit %d lines (%d units) for %s on %s?",
			d.Lines(), d.Units(), ternary(d.Meta.Store != "", d.Meta.Store, "?"), ternary(d.Meta.RequestedDate != "", d.Meta.RequestedDate, "?"))
		m.modal = newConfirmModal("Submit order", prompt, m.submitCmd())
		return m, nil

	case key.Matches(msg, m.keys.RefreshCatalog):
		if m.snapshot.Draft.Dirty {
			m.modal = newConfirmModal("Refresh catalog",
				"The draft has changes since the last refresh. Refresh the catalog anyway?",
				m.refreshCatalogCmd(true))
			return m, nil
		}
		return m, m.refreshCatalogCmd(false)
	}
	return m, nil
}

// saveMetaCmd stores the header and remembers store and clerk for the next
// draft.
func (m Model) saveMetaCmd(meta draft.Meta) tea.Cmd {
	ctrl, prefsPath := m.ctrl, m.prefsPath
	return m.run(func(ctx context.Context) (string, error) {
		if err := ctrl.SetMeta(ctx, meta); err != nil {
			return "", err
		}
		if prefsPath != "" {
			_ = prefs.Update(prefsPath, func(p *prefs.Prefs) {
				p.Store = meta.Store
				p.PlacedBy = meta.PlacedBy
			})
		}
		return "Order header saved", nil
	})
}

func (m Model) submitCmd() tea.Cmd {
	ctrl := m.ctrl
	return m.run(func(ctx context.Context) (string, error) {
		order, err := ctrl.Submit(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Submitted %s for %s", orderRef(order), order.Store), nil
	})
}

// refreshCatalogCmd runs a refresh; force skips the dirty-draft gate after
// the user confirmed.
func (m Model) refreshCatalogCmd(force bool) tea.Cmd {
	ctrl := m.ctrl
	return m.run(func(ctx context.Context) (string, error) {
		res, err := ctrl.RefreshCatalog(ctx, force, nil)
		if err != nil {
			return "", err
		}
		return res.Summary(), nil
	})
}

func (m Model) renderCatalog() string {
	steps := m.snapshot.Steps
	d := m.snapshot.Draft
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := newBand(m.theme.FocusBg)

	var b strings.Builder
	field := func(label, value string) string {
		if strings.TrimSpace(value) == "" {
			return bg.text(label+" -", styles.FaintText)
		}
		return bg.field(label, value, styles.MutedText, styles.Text)
	}
	b.WriteString(bg.join([]string{
		field("Store", d.Meta.Store),
		field("Date", d.Meta.RequestedDate),
		field("By", d.Meta.PlacedBy),
	}, "   "))
	if d.Dirty {
		b.WriteString(bg.gap(3))
		b.WriteString(bg.text("● unsaved changes", styles.WarningText))
	}
	b.WriteString("\n")
	if notes := strings.TrimSpace(d.Meta.Notes); notes != "" {
		b.WriteString(bg.text("Notes: "+truncate(notes, m.width-12), styles.InfoText))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(steps) == 0 {
		b.WriteString(bg.text("No catalog loaded. Press R to refresh.", styles.MutedText))
		return m.renderTitledBox("Catalog", b.String(), m.width, m.contentHeight(), true)
	}

	selected := m.clampStep(m.selectedStep)
	start, end := scrollWindow(selected, len(steps), m.contentHeight()-6)
	category := ""
	for i := start; i < end; i++ {
		p := steps[i]
		if p.Category != category || i == start {
			category = p.Category
			b.WriteString(bg.text(m.snapshot.Catalog.DisplayName(category), styles.AccentText.Bold(true)))
			b.WriteString("\n")
		}
		q := d.Quantities[p.SKU]
		qtyText := ""
		if q > 0 {
			qtyText = qty(q)
		}
		row := "  " + cell(p.Name, 30) + cell(p.SKU, 10) + cell(p.Unit, 8) + cell(p.PackSize, 6) + padLeft(qtyText, 6)
		b.WriteString(renderRow(row, i == selected, styles, bg))
		b.WriteString("\n")
	}
	title := fmt.Sprintf("Catalog · %d lines · %d units", d.Lines(), d.Units())
	return m.renderTitledBox(title, strings.TrimSuffix(b.String(), "\n"), m.width, m.contentHeight(), true)
}
