package fulfillment

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/five82/orderdesk/internal/orders"
)

// MissingRow is one line that was not delivered in full.
type MissingRow struct {
	OrderID       string
	Store         string
	RequestedDate string
	SKU           string
	Name          string
	Ordered       int
	Collected     int
	Missing       int
	Reason        string
}

// MissingFilter narrows the shortfall report. The zero value keeps every
// line. Start and End bound the order's report day, both inclusive.
type MissingFilter struct {
	Target orders.Target
	Stores []string
	Start  time.Time
	End    time.Time
}

func (f MissingFilter) frame() orders.Frame {
	return orders.Frame{Start: f.Start, End: f.End, Active: true}
}

func (f MissingFilter) keepsOrder(o orders.Order) bool {
	if len(f.Stores) > 0 {
		name := strings.TrimSpace(o.Store)
		found := false
		for _, s := range f.Stores {
			if strings.EqualFold(strings.TrimSpace(s), name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Start.IsZero() && f.End.IsZero() {
		return true
	}
	return f.frame().Contains(o.Day())
}

// MissingItems lists visible lines that are unavailable or only partly
// pulled, sorted by store, then requested date, then name.
func (m *Machine) MissingItems(list []orders.Order) []MissingRow {
	rows, _ := m.MissingFor(list, MissingFilter{})
	return rows
}

// MissingFor is MissingItems restricted by f.
func (m *Machine) MissingFor(list []orders.Order, f MissingFilter) ([]MissingRow, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return nil, orders.ErrInvertedRange
	}
	var rows []MissingRow
	for _, o := range list {
		if !f.keepsOrder(o) {
			continue
		}
		for _, it := range o.Items {
			if !it.Visible() {
				continue
			}
			if !f.Target.Empty() && !f.Target.Matches(it) {
				continue
			}
			s, known := m.ItemState(o.ID, it)
			if !known || (s.Kind != Unavailable && s.Kind != Partial) {
				continue
			}
			rows = append(rows, MissingRow{
				OrderID:       o.ID,
				Store:         o.Store,
				RequestedDate: o.RequestedDate,
				SKU:           it.SKU,
				Name:          it.Name,
				Ordered:       it.Qty,
				Collected:     s.PulledQty(it.Qty),
				Missing:       s.Missing(it.Qty),
				Reason:        s.Kind.String(),
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if sa, sb := strings.ToLower(a.Store), strings.ToLower(b.Store); sa != sb {
			return sa < sb
		}
		if a.RequestedDate != b.RequestedDate {
			return a.RequestedDate < b.RequestedDate
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return rows, nil
}

// MissingTotal is the missing quantity summed for one store or one item.
type MissingTotal struct {
	Key     string
	Label   string
	Missing int
}

// MissingByStore sums missing quantities per store, ignoring case.
func MissingByStore(rows []MissingRow, by orders.StoreSort) []MissingTotal {
	totals := make(map[string]int)
	seen := make(map[string]string)
	var names []string
	for _, r := range rows {
		name := strings.TrimSpace(r.Store)
		if first, ok := seen[strings.ToLower(name)]; ok {
			name = first
		} else {
			seen[strings.ToLower(name)] = name
			names = append(names, name)
		}
		totals[name] += r.Missing
	}
	out := make([]MissingTotal, 0, len(names))
	for _, name := range orders.SortStores(names, totals, by) {
		out = append(out, MissingTotal{Key: name, Label: name, Missing: totals[name]})
	}
	return out
}

// MissingByItem sums missing quantities per line key (sku, else name). The
// store-asc and store-desc sorts order items by name.
func MissingByItem(rows []MissingRow, by orders.StoreSort) []MissingTotal {
	index := make(map[string]int)
	var out []MissingTotal
	for _, r := range rows {
		key := strings.TrimSpace(r.SKU)
		if key == "" {
			key = strings.TrimSpace(r.Name)
		}
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, MissingTotal{Key: key, Label: key})
		}
		if r.Name != "" {
			out[i].Label = r.Name
		}
		out[i].Missing += r.Missing
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		byLabel := strings.ToLower(a.Label) < strings.ToLower(b.Label)
		switch by {
		case orders.SortStoreAsc:
			return byLabel
		case orders.SortStoreDesc:
			return strings.ToLower(b.Label) < strings.ToLower(a.Label)
		case orders.SortQtyAsc:
			if a.Missing != b.Missing {
				return a.Missing < b.Missing
			}
		default:
			if a.Missing != b.Missing {
				return a.Missing > b.Missing
			}
		}
		return byLabel
	})
	return out
}

// StoreFill summarizes delivered against ordered units for one store.
type StoreFill struct {
	Store     string
	Ordered   int
	Delivered int
	// Rate is a percentage rounded to one decimal place.
	Rate decimal.Decimal
}

// FillRates computes per-store fill rates over visible lines.
func (m *Machine) FillRates(list []orders.Order) []StoreFill {
	index := make(map[string]int)
	var out []StoreFill
	for _, o := range list {
		name := strings.TrimSpace(o.Store)
		key := strings.ToLower(name)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, StoreFill{Store: name})
		}
		for _, it := range o.Items {
			if !it.Visible() {
				continue
			}
			out[i].Ordered += it.Qty
			out[i].Delivered += m.DeliveredQty(o.ID, it)
		}
	}
	hundred := decimal.NewFromInt(100)
	for i := range out {
		if out[i].Ordered == 0 {
			out[i].Rate = decimal.Zero
			continue
		}
		out[i].Rate = decimal.NewFromInt(int64(out[i].Delivered)).
			Mul(hundred).
			DivRound(decimal.NewFromInt(int64(out[i].Ordered)), 1)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return strings.ToLower(out[a].Store) < strings.ToLower(out[b].Store)
	})
	return out
}
