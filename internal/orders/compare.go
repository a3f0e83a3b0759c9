package orders

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/five82/orderdesk/internal/rowmap"
)

var (
	// ErrNoTarget is returned when a comparison names no product or category.
	ErrNoTarget = errors.New("choose a product or category to compare")
	// ErrInvertedRange is returned when a range starts after it ends.
	ErrInvertedRange = errors.New("start date must be on or before end date")
)

// Scope says what a Target names.
type Scope int

const (
	ScopeProduct Scope = iota
	ScopeCategory
)

// Target selects order lines for a report. A product key matches a sku,
// item number, or name; a category key matches the line's category. Keys
// compare after spreadsheet key folding, so "Pack Size" matches "pack_size".
type Target struct {
	Scope Scope
	Key   string
}

// Empty reports whether the target selects nothing.
func (t Target) Empty() bool {
	return strings.TrimSpace(t.Key) == ""
}

// Matches reports whether the line falls under the target.
func (t Target) Matches(it OrderItem) bool {
	key := strings.TrimSpace(t.Key)
	if key == "" {
		return false
	}
	folded := rowmap.NormalizeKey(key)
	same := func(v string) bool {
		v = strings.TrimSpace(v)
		return v != "" && (v == key || rowmap.NormalizeKey(v) == folded)
	}
	if t.Scope == ScopeCategory {
		return same(it.Category)
	}
	return same(it.SKU) || same(it.ItemNo) || same(it.Name)
}

// Query selects lines for the store volume and shortfall reports. Start and
// End bound the custom range, both inclusive; Stores limits the stores.
type Query struct {
	Target Target
	Stores []string
	Start  time.Time
	End    time.Time
	Sort   StoreSort
}

// Day is the calendar day an order counts toward in reports: the requested
// date, else the creation date. Zero when neither parses.
func (o Order) Day() time.Time {
	ts := rowmap.ParseTime(o.RequestedDate)
	if ts.IsZero() {
		ts = o.Created()
	}
	if ts.IsZero() {
		return ts
	}
	return startOfDay(ts.In(time.Local))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Frame keys.
const (
	FrameCustom      = "custom"
	FrameLast30Days  = "last30Days"
	FrameLastMonth   = "lastMonth"
	FrameLastQuarter = "lastQuarter"
	FrameLastYear    = "lastYear"
)

// Frame is a named range of whole days, both ends inclusive. A zero bound is
// open. Inactive frames are reported but never counted.
type Frame struct {
	Key    string
	Label  string
	Start  time.Time
	End    time.Time
	Active bool
}

// Contains reports whether day falls inside the frame.
func (f Frame) Contains(day time.Time) bool {
	if day.IsZero() {
		return false
	}
	day = startOfDay(day)
	if !f.Start.IsZero() && day.Before(startOfDay(f.Start)) {
		return false
	}
	if !f.End.IsZero() && day.After(startOfDay(f.End)) {
		return false
	}
	return true
}

// RangeLabel describes the bounds for a column header.
func (f Frame) RangeLabel() string {
	switch {
	case !f.Start.IsZero() && !f.End.IsZero():
		return f.Start.Format(time.DateOnly) + " to " + f.End.Format(time.DateOnly)
	case !f.Start.IsZero():
		return "from " + f.Start.Format(time.DateOnly)
	case !f.End.IsZero():
		return "until " + f.End.Format(time.DateOnly)
	default:
		return "no range set"
	}
}

// StandardFrames returns the comparison columns relative to now: an optional
// custom range, the last 30 days, and the previous calendar month, quarter
// (the three months before the current one) and year.
func StandardFrames(now, customStart, customEnd time.Time) []Frame {
	today := startOfDay(now)
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	lastMonthEnd := firstOfMonth.AddDate(0, 0, -1)
	return []Frame{
		{
			Key: FrameCustom, Label: "Custom range",
			Start: customStart, End: customEnd,
			Active: !customStart.IsZero() || !customEnd.IsZero(),
		},
		{Key: FrameLast30Days, Label: "Last 30 days", Start: today.AddDate(0, 0, -30), End: today, Active: true},
		{Key: FrameLastMonth, Label: "Last month", Start: firstOfMonth.AddDate(0, -1, 0), End: lastMonthEnd, Active: true},
		{Key: FrameLastQuarter, Label: "Last quarter", Start: firstOfMonth.AddDate(0, -3, 0), End: lastMonthEnd, Active: true},
		{
			Key: FrameLastYear, Label: "Last year",
			Start:  time.Date(today.Year()-1, time.January, 1, 0, 0, 0, 0, today.Location()),
			End:    time.Date(today.Year()-1, time.December, 31, 0, 0, 0, 0, today.Location()),
			Active: true,
		},
	}
}

// StoreSort orders report rows.
type StoreSort string

const (
	SortQtyDesc   StoreSort = "qty-desc"
	SortQtyAsc    StoreSort = "qty-asc"
	SortStoreAsc  StoreSort = "store-asc"
	SortStoreDesc StoreSort = "store-desc"
)

// ParseStoreSort accepts the sort names above; anything else is qty-desc.
func ParseStoreSort(s string) StoreSort {
	switch v := StoreSort(strings.ToLower(strings.TrimSpace(s))); v {
	case SortQtyAsc, SortStoreAsc, SortStoreDesc:
		return v
	default:
		return SortQtyDesc
	}
}

// SortStores orders store names by total or by name. Equal totals fall back
// to the name so the order is stable across runs.
func SortStores(names []string, totals map[string]int, by StoreSort) []string {
	out := append([]string(nil), names...)
	byName := func(a, b string) bool { return strings.ToLower(a) < strings.ToLower(b) }
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch by {
		case SortStoreAsc:
			return byName(a, b)
		case SortStoreDesc:
			return byName(b, a)
		case SortQtyAsc:
			if totals[a] != totals[b] {
				return totals[a] < totals[b]
			}
		default:
			if totals[a] != totals[b] {
				return totals[a] > totals[b]
			}
		}
		return byName(a, b)
	})
	return out
}

// StoreVolume is one store's matched quantity per frame, in frame order.
type StoreVolume struct {
	Store  string
	Totals []int
}

// Comparison is the store volume report.
type Comparison struct {
	Target Target
	Frames []Frame
	// Primary indexes the frame rows are sorted by: the custom range when
	// set, else the first active frame.
	Primary int
	Rows    []StoreVolume
}

// Top returns the store with the largest total in the primary frame.
func (c Comparison) Top() (StoreVolume, bool) {
	var best StoreVolume
	found := false
	for _, r := range c.Rows {
		if c.Primary >= len(r.Totals) {
			continue
		}
		if !found || r.Totals[c.Primary] > best.Totals[c.Primary] ||
			(r.Totals[c.Primary] == best.Totals[c.Primary] && strings.ToLower(r.Store) < strings.ToLower(best.Store)) {
			best, found = r, true
		}
	}
	return best, found
}

// CompareStores totals the quantity each store ordered of the target in
// every active frame. stores limits and seeds the rows; when empty every
// store in list is used. Stores with nothing matched still get a row.
func CompareStores(list []Order, target Target, frames []Frame, stores []string, by StoreSort) (Comparison, error) {
	if target.Empty() {
		return Comparison{}, ErrNoTarget
	}
	for _, f := range frames {
		if f.Active && !f.Start.IsZero() && !f.End.IsZero() && startOfDay(f.Start).After(startOfDay(f.End)) {
			return Comparison{}, ErrInvertedRange
		}
	}
	if len(stores) == 0 {
		stores = Stores(list)
	}

	names := make(map[string]string, len(stores))
	var order []string
	for _, s := range stores {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || names[key] != "" {
			continue
		}
		names[key] = s
		order = append(order, s)
	}
	totals := make(map[string][]int, len(order))
	for _, s := range order {
		totals[s] = make([]int, len(frames))
	}

	for _, o := range list {
		name, ok := names[strings.ToLower(strings.TrimSpace(o.Store))]
		if !ok {
			continue
		}
		day := o.Day()
		if day.IsZero() {
			continue
		}
		qty := 0
		for _, it := range o.Items {
			if target.Matches(it) {
				qty += it.Qty
			}
		}
		if qty == 0 {
			continue
		}
		for i, f := range frames {
			if f.Active && f.Contains(day) {
				totals[name][i] += qty
			}
		}
	}

	c := Comparison{Target: target, Frames: frames, Primary: primaryFrame(frames)}
	sortKey := make(map[string]int, len(order))
	for _, s := range order {
		if c.Primary < len(frames) {
			sortKey[s] = totals[s][c.Primary]
		}
	}
	for _, s := range SortStores(order, sortKey, by) {
		c.Rows = append(c.Rows, StoreVolume{Store: s, Totals: totals[s]})
	}
	return c, nil
}

func primaryFrame(frames []Frame) int {
	for i, f := range frames {
		if f.Key == FrameCustom && f.Active {
			return i
		}
	}
	for i, f := range frames {
		if f.Active {
			return i
		}
	}
	return 0
}
