package orders

import (
	"sort"
	"strings"
	"time"
)

// Filter selects orders by creation time. Zero bounds are open.
type Filter struct {
	Start time.Time
	End   time.Time
	Store string
}

// Apply returns the matching orders in their original order. Orders without
// a parseable CreatedAt only match an unbounded filter.
func (f Filter) Apply(list []Order) []Order {
	var out []Order
	for _, o := range list {
		if f.Store != "" && !strings.EqualFold(strings.TrimSpace(o.Store), strings.TrimSpace(f.Store)) {
			continue
		}
		if !f.Start.IsZero() || !f.End.IsZero() {
			created := o.Created()
			if created.IsZero() {
				continue
			}
			if !f.Start.IsZero() && created.Before(f.Start) {
				continue
			}
			if !f.End.IsZero() && created.After(f.End) {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}

// StoreGroup is one store's orders.
type StoreGroup struct {
	Store  string
	Orders []Order
}

// GroupByStore groups orders by store name. Stores sort case-insensitively,
// orders newest first, and items by name then sku.
func GroupByStore(list []Order) []StoreGroup {
	index := make(map[string]int)
	var groups []StoreGroup
	for _, o := range CloneOrders(list) {
		name := strings.TrimSpace(o.Store)
		if name == "" {
			name = "Unknown"
		}
		key := strings.ToLower(name)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, StoreGroup{Store: name})
		}
		sort.SliceStable(o.Items, func(a, b int) bool {
			ia, ib := o.Items[a], o.Items[b]
			if na, nb := strings.ToLower(ia.Name), strings.ToLower(ib.Name); na != nb {
				return na < nb
			}
			return ia.SKU < ib.SKU
		})
		groups[i].Orders = append(groups[i].Orders, o)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return strings.ToLower(groups[a].Store) < strings.ToLower(groups[b].Store)
	})
	for _, g := range groups {
		sort.SliceStable(g.Orders, func(a, b int) bool {
			return g.Orders[a].Created().After(g.Orders[b].Created())
		})
	}
	return groups
}

// ForDate returns orders requested for the given day (YYYY-MM-DD).
func ForDate(list []Order, day string) []Order {
	day = strings.TrimSpace(day)
	var out []Order
	for _, o := range list {
		if o.RequestedDate == day {
			out = append(out, o)
		}
	}
	return out
}

// Stores lists distinct store names, sorted case-insensitively.
func Stores(list []Order) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range list {
		name := strings.TrimSpace(o.Store)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	sort.Slice(out, func(a, b int) bool { return strings.ToLower(out[a]) < strings.ToLower(out[b]) })
	return out
}
