package orders

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/rowmap"
)

// LocalIDPrefix marks orders created by this client before the server
// assigned an id.
const LocalIDPrefix = "local-"

// OrderItem is one ordered line.
type OrderItem struct {
	SKU      string `json:"sku"`
	ItemNo   string `json:"item_no"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	PackSize string `json:"pack_size"`
	Qty      int    `json:"qty"`
	Status   string `json:"status,omitempty"`
}

// Key identifies the line within its order: sku, else item number, else name.
func (it OrderItem) Key() string {
	for _, v := range []string{it.SKU, it.ItemNo, it.Name} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Visible reports whether the line is a real item rather than a blank or
// synthetic spreadsheet row.
func (it OrderItem) Visible() bool {
	return strings.TrimSpace(it.Name) != "" || strings.TrimSpace(it.SKU) != ""
}

// Order is a submitted order, remote or local.
type Order struct {
	ID            string      `json:"id"`
	RemoteID      string      `json:"remote_id,omitempty"`
	Store         string      `json:"store"`
	RequestedDate string      `json:"requested_date"`
	PlacedBy      string      `json:"placed_by"`
	Notes         string      `json:"notes"`
	Items         []OrderItem `json:"items"`
	CreatedAt     string      `json:"created_at"`
}

// IsLocal reports whether the order was created by this client.
func (o Order) IsLocal() bool {
	return strings.HasPrefix(o.ID, LocalIDPrefix)
}

// RemoteKey is the id the web app knows the order by, or "" when a local
// order has not been confirmed yet.
func (o Order) RemoteKey() string {
	if !o.IsLocal() {
		return o.ID
	}
	return o.RemoteID
}

// Created parses CreatedAt.
func (o Order) Created() time.Time {
	return rowmap.ParseTime(o.CreatedAt)
}

// TotalQty sums the ordered quantities.
func (o Order) TotalQty() int {
	total := 0
	for _, it := range o.Items {
		total += it.Qty
	}
	return total
}

// NewLocalID returns a fresh client-side order id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// Normalize converts raw order and item rows into orders. Items are attached
// by order id; items whose order id is missing are dropped. Orders that embed
// their own items keep them.
func Normalize(orderRows, itemRows []any) []Order {
	grouped := make(map[string][]OrderItem)
	for _, raw := range itemRows {
		row, err := rowmap.Parse(raw)
		if err != nil {
			continue
		}
		id := row.String(rowmap.FieldItemOrderID)
		if id == "" {
			continue
		}
		grouped[id] = append(grouped[id], itemFromRow(row))
	}

	out := make([]Order, 0, len(orderRows))
	seen := make(map[string]int)
	for _, raw := range orderRows {
		row, err := rowmap.Parse(raw)
		if err != nil {
			continue
		}
		o := Order{
			ID:            row.String(rowmap.FieldOrderID),
			Store:         row.String(rowmap.FieldStore),
			RequestedDate: normalizeDate(row),
			PlacedBy:      row.String(rowmap.FieldPlacedBy),
			Notes:         row.String(rowmap.FieldNotes),
			CreatedAt:     row.String(rowmap.FieldCreatedAt),
		}
		for _, rawItem := range row.Rows(rowmap.FieldItems) {
			itemRow, err := rowmap.Parse(rawItem)
			if err != nil {
				continue
			}
			o.Items = append(o.Items, itemFromRow(itemRow))
		}
		if o.ID == "" {
			o.ID = fallbackID(o, seen)
		}
		if len(o.Items) == 0 {
			o.Items = grouped[o.ID]
		}
		if o.Items == nil {
			o.Items = []OrderItem{}
		}
		out = append(out, o)
	}
	return out
}

// fallbackID derives an id for a row the sheet left without one. It is a
// name-based UUID over the order's fields, so the same row gets the same id
// on every refresh; identical rows are told apart by their position among
// themselves.
func fallbackID(o Order, seen map[string]int) string {
	keys := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		keys = append(keys, it.Key()+"x"+strconv.Itoa(it.Qty))
	}
	name := strings.Join([]string{
		o.Store, o.RequestedDate, o.PlacedBy, o.CreatedAt, o.Notes, strings.Join(keys, ","),
	}, "|")
	id := "remote-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
	seen[id]++
	if n := seen[id]; n > 1 {
		id += "-" + strconv.Itoa(n)
	}
	return id
}

func itemFromRow(row rowmap.Row) OrderItem {
	return OrderItem{
		SKU:      row.String(rowmap.FieldSKU),
		ItemNo:   row.String(rowmap.FieldItemNo),
		Name:     row.String(rowmap.FieldName),
		Category: row.String(rowmap.FieldCategory),
		Unit:     row.String(rowmap.FieldUnit),
		PackSize: row.String(rowmap.FieldPackSize),
		Qty:      max(row.Int(rowmap.FieldQty, 0), 0),
		Status:   row.String(rowmap.FieldStatus),
	}
}

// normalizeDate keeps requested dates comparable: spreadsheet date cells
// arrive as timestamps or serial numbers and are reduced to YYYY-MM-DD.
func normalizeDate(row rowmap.Row) string {
	raw := row.String(rowmap.FieldRequestedDate)
	if raw == "" {
		return ""
	}
	if ts := row.Time(rowmap.FieldRequestedDate); !ts.IsZero() {
		return ts.Local().Format(time.DateOnly)
	}
	return raw
}

// Enrich fills empty display fields from the catalog by SKU. Values the order
// already carries are never overwritten.
func Enrich(list []Order, products map[string]catalog.Product) []Order {
	if len(products) == 0 {
		return list
	}
	for i := range list {
		for j := range list[i].Items {
			it := &list[i].Items[j]
			p, ok := products[it.SKU]
			if !ok {
				continue
			}
			fill(&it.Name, p.Name)
			fill(&it.Unit, p.Unit)
			fill(&it.Category, p.Category)
			fill(&it.PackSize, p.PackSize)
			fill(&it.ItemNo, p.ItemNo)
		}
	}
	return list
}

func fill(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

// Merge places unconfirmed local orders ahead of the remote list. A local
// order is dropped once the remote list contains its RemoteID.
func Merge(remote, local []Order) []Order {
	remoteIDs := make(map[string]bool, len(remote))
	for _, o := range remote {
		remoteIDs[o.ID] = true
	}
	out := make([]Order, 0, len(remote)+len(local))
	for _, o := range local {
		if !o.IsLocal() {
			continue
		}
		if o.RemoteID != "" && remoteIDs[o.RemoteID] {
			continue
		}
		out = append(out, o)
	}
	return append(out, remote...)
}

// CloneOrders deep copies orders so callers may mutate items freely.
func CloneOrders(list []Order) []Order {
	if list == nil {
		return nil
	}
	out := make([]Order, len(list))
	for i, o := range list {
		out[i] = o
		out[i].Items = append([]OrderItem(nil), o.Items...)
	}
	return out
}
