package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/orders"
)

// visibleOrders returns the orders for the selected day, grouped by store.
func (m Model) visibleOrders() []orders.Order {
	list := m.snapshot.Orders
	if m.day != "" {
		list = orders.ForDate(list, m.day)
	} else {
		list = append([]orders.Order(nil), list...)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return strings.ToLower(list[i].Store) < strings.ToLower(list[j].Store)
	})
	return list
}

func (m Model) selectedOrderValue() (orders.Order, bool) {
	list := m.visibleOrders()
	if len(list) == 0 {
		return orders.Order{}, false
	}
	return list[clamp(m.selectedOrder, len(list))], true
}

// currentOrder is the order open in the detail view.
func (m Model) currentOrder() (orders.Order, bool) {
	for _, o := range m.snapshot.Orders {
		if o.ID == m.orderID {
			return o, true
		}
	}
	return orders.Order{}, false
}

func visibleItems(o orders.Order) []orders.OrderItem {
	var out []orders.OrderItem
	for _, it := range o.Items {
		if it.Visible() {
			out = append(out, it)
		}
	}
	return out
}

// shiftDay moves the day filter, starting from today when showing all days.
func (m Model) shiftDay(delta int) {
	base, err := time.Parse(time.DateOnly, m.day)
	if err != nil {
		base = m.now()
	}
	m.day = base.AddDate(0, 0, delta).Format(time.DateOnly)
	m.selectedOrder = 0
}

func (m Model) handleOrdersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	list := m.visibleOrders()
	switch {
	case key.Matches(msg, m.keys.Down):
		m.selectedOrder = clamp(m.selectedOrder+1, len(list))
	case key.Matches(msg, m.keys.Up):
		m.selectedOrder = clamp(m.selectedOrder-1, len(list))
	case key.Matches(msg, m.keys.Top):
		m.selectedOrder = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedOrder = clamp(len(list)-1, len(list))
	case key.Matches(msg, m.keys.Open):
		if o, ok := m.selectedOrderValue(); ok {
			m.orderID = o.ID
			m.selectedItem = 0
			m.currentView = ViewDetail
		}
	case key.Matches(msg, m.keys.PrevDay):
		m.shiftDay(-1)
	case key.Matches(msg, m.keys.NextDay):
		m.shiftDay(1)
	case key.Matches(msg, m.keys.AllDays):
		if m.day == "" {
			m.day = m.now().Format(time.DateOnly)
		} else {
			m.day = ""
		}
		m.selectedOrder = 0
	case key.Matches(msg, m.keys.RefreshOrders):
		ctrl := m.ctrl
		return m, m.run(func(ctx context.Context) (string, error) {
			res, err := ctrl.RefreshOrders(ctx, true)
			if err != nil {
				return "", err
			}
			return res.Summary(), nil
		})
	case key.Matches(msg, m.keys.Export), key.Matches(msg, m.keys.ExportHistory):
		if m.ctrl == nil {
			return m, nil
		}
		ctrl, day := m.ctrl, m.day
		save := ctrl.SaveMissingReport
		if key.Matches(msg, m.keys.ExportHistory) {
			save = ctrl.SaveHistoryReport
		}
		return m, m.run(func(context.Context) (string, error) {
			path, err := save(day)
			if err != nil {
				return "", err
			}
			return "Saved " + path, nil
		})
	case key.Matches(msg, m.keys.Compare), key.Matches(msg, m.keys.Shortfall):
		if m.ctrl == nil {
			return m, nil
		}
		title, save := "Store volume", m.ctrl.SaveComparisonReport
		if key.Matches(msg, m.keys.Shortfall) {
			title, save = "Missing items", m.ctrl.SaveMissingSummary
		}
		m.modal = newReportModal(title, m.stores, func(q orders.Query) tea.Cmd {
			return m.run(func(context.Context) (string, error) {
				path, err := save(q)
				if err != nil {
					return "", err
				}
				return "Saved " + path, nil
			})
		})
		return m, m.modal.Init()
	}
	return m, nil
}

// orderBadge returns the status key and label for an order row.
func (m Model) orderBadge(o orders.Order) (string, string) {
	if o.IsLocal() && o.RemoteID == "" {
		return statusLocal, "Not synced"
	}
	if m.ctrl == nil {
		return statusNotStarted, fulfillment.NotStarted.String()
	}
	s := m.ctrl.OrderStatus(o)
	return orderStatusKey(s), s.String()
}

func orderStatusKey(s fulfillment.OrderStatus) string {
	switch s {
	case fulfillment.InProgress:
		return statusInProgress
	case fulfillment.Complete:
		return statusComplete
	default:
		return statusNotStarted
	}
}

func itemStatusKey(s fulfillment.ItemState) string {
	switch s.Kind {
	case fulfillment.Pulled:
		return statusPulled
	case fulfillment.Partial:
		return statusPartial
	case fulfillment.Unavailable:
		return statusUnavailable
	default:
		return statusNotPulled
	}
}

func orderRef(o orders.Order) string {
	if ref := o.RemoteKey(); ref != "" {
		return ref
	}
	return "local"
}

func (m Model) renderOrders() string {
	list := m.visibleOrders()
	title := "Orders · all days"
	if m.day != "" {
		title = "Orders · " + m.day
	}
	if len(list) == 0 {
		msg := "No orders"
		if m.day != "" {
			msg = "No orders for " + m.day + "  ([ ] change day, a all days)"
		}
		return m.renderTitledBox(title, m.theme.Styles().MutedText.Render(msg), m.width, m.contentHeight(), true)
	}

	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := newBand(m.theme.FocusBg)
	wide := m.width >= LayoutCompactWidth

	var b strings.Builder
	header := cell("Store", 16) + cell("Order", 12) + cell("Date", 11) + padLeft("Lines", 6) + padLeft("Units", 7) + "  Status"
	if wide {
		header += strings.Repeat(" ", 12) + "Placed by"
	}
	b.WriteString(bg.text(header, styles.MutedText))
	b.WriteString("\n")

	selected := clamp(m.selectedOrder, len(list))
	start, end := scrollWindow(selected, len(list), m.contentHeight()-3)
	for i := start; i < end; i++ {
		o := list[i]
		badgeKey, label := m.orderBadge(o)
		row := cell(o.Store, 16) + cell(orderRef(o), 12) + cell(o.RequestedDate, 11) +
			padLeft(qty(len(visibleItems(o))), 6) + padLeft(qty(o.TotalQty()), 7) + "  "
		line := renderRow(row, i == selected, styles, bg) + styles.StatusStyle(badgeKey).Render(cell(label, 11))
		if wide {
			line += bg.text(" "+o.PlacedBy, styles.MutedText)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return m.renderTitledBox(title, strings.TrimSuffix(b.String(), "\n"), m.width, m.contentHeight(), true)
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	order, ok := m.currentOrder()
	if !ok {
		m.currentView = ViewOrders
		return m, nil
	}
	items := visibleItems(order)
	switch {
	case key.Matches(msg, m.keys.Down):
		m.selectedItem = clamp(m.selectedItem+1, len(items))
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.selectedItem = clamp(m.selectedItem-1, len(items))
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.selectedItem = 0
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.selectedItem = clamp(len(items)-1, len(items))
		return m, nil
	}
	if len(items) == 0 || m.ctrl == nil {
		return m, nil
	}
	item := items[clamp(m.selectedItem, len(items))]
	current := m.ctrl.ItemState(order.ID, item)

	var next fulfillment.ItemState
	switch {
	case key.Matches(msg, m.keys.MarkPulled):
		next = fulfillment.StatePulled()
	case key.Matches(msg, m.keys.MarkUnavailable):
		next = fulfillment.StateUnavailable()
	case key.Matches(msg, m.keys.MarkNotPulled):
		next = fulfillment.StateNotPulled()
	case key.Matches(msg, m.keys.PulledMore):
		next = fulfillment.FromQty(current.PulledQty(item.Qty)+1, item.Qty)
	case key.Matches(msg, m.keys.PulledLess):
		next = fulfillment.FromQty(current.PulledQty(item.Qty)-1, item.Qty)
	default:
		return m, nil
	}
	return m, m.setItemCmd(order.ID, item, next)
}

func (m Model) setItemCmd(orderID string, item orders.OrderItem, s fulfillment.ItemState) tea.Cmd {
	ctrl := m.ctrl
	return m.run(func(ctx context.Context) (string, error) {
		tr, err := ctrl.SetItemStatus(ctx, orderID, item.Key(), s)
		if err != nil {
			return "", err
		}
		text := fmt.Sprintf("%s: %s", item.Name, tr.Label)
		if tr.Changed() {
			text += " · order " + tr.Status.String()
		}
		return text, nil
	})
}

func (m Model) renderDetail() string {
	order, ok := m.currentOrder()
	if !ok {
		return m.emptyPanel("Order not found")
	}
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := newBand(m.theme.FocusBg)
	badgeKey, badgeLabel := m.orderBadge(order)

	var b strings.Builder
	b.WriteString(bg.text(order.Store, styles.AccentText.Bold(true)))
	b.WriteString(bg.gap(2))
	b.WriteString(bg.text(order.RequestedDate, styles.Text))
	b.WriteString(bg.gap(2))
	b.WriteString(styles.StatusStyle(badgeKey).Render(badgeLabel))
	b.WriteString("\n")
	meta := []string{"placed by " + ternary(order.PlacedBy != "", order.PlacedBy, "unknown")}
	if created := order.Created(); !created.IsZero() {
		meta = append(meta, "created "+created.Local().Format("Jan 2 15:04"))
	}
	b.WriteString(bg.text(strings.Join(meta, " · "), styles.MutedText))
	b.WriteString("\n")
	if notes := strings.TrimSpace(order.Notes); notes != "" {
		b.WriteString(bg.text("Notes: "+truncate(notes, m.width-12), styles.InfoText))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	items := visibleItems(order)
	b.WriteString(bg.text(cell("Item", 28)+cell("SKU", 10)+padLeft("Ordered", 8)+padLeft("Collected", 10)+"  Status", styles.MutedText))
	b.WriteString("\n")
	selected := clamp(m.selectedItem, len(items))
	start, end := scrollWindow(selected, len(items), m.contentHeight()-8)
	for i := start; i < end; i++ {
		it := items[i]
		s := fulfillment.StateNotPulled()
		if m.ctrl != nil {
			s = m.ctrl.ItemState(order.ID, it)
		}
		row := cell(it.Name, 28) + cell(it.SKU, 10) + padLeft(qty(it.Qty), 8) + padLeft(qty(s.PulledQty(it.Qty)), 10) + "  "
		b.WriteString(renderRow(row, i == selected, styles, bg))
		b.WriteString(styles.StatusStyle(itemStatusKey(s)).Render(fulfillment.Encode(s, it.Qty)))
		b.WriteString("\n")
	}
	title := "Order " + orderRef(order)
	return m.renderTitledBox(title, strings.TrimSuffix(b.String(), "\n"), m.width, m.contentHeight(), true)
}
