package fulfillment

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/five82/orderdesk/internal/orders"
)

// ItemRecord is the persisted state of one line: the wire label plus an
// optional explicit pulled quantity that takes precedence over the label.
type ItemRecord struct {
	Status    string `json:"status"`
	PulledQty *int   `json:"pulledQty,omitempty"`
}

// UnmarshalJSON also accepts the older bare-string form ("pulled",
// "unavailable").
func (r *ItemRecord) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var legacy string
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return err
		}
		*r = migrateLegacy(legacy)
		return nil
	}
	type plain ItemRecord
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*r = ItemRecord(p)
	return nil
}

func migrateLegacy(value string) ItemRecord {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pulled":
		return ItemRecord{Status: LabelPulled}
	case "unavailable":
		zero := 0
		return ItemRecord{Status: LabelUnavailable, PulledQty: &zero}
	default:
		return ItemRecord{Status: strings.TrimSpace(value)}
	}
}

// State resolves the record against the ordered quantity. Unavailable always
// wins; otherwise an explicit PulledQty beats re-parsing the label.
func (r ItemRecord) State(ordered int) ItemState {
	decoded, ok := Decode(r.Status, ordered)
	if ok && decoded.Kind == Unavailable {
		return decoded
	}
	if r.PulledQty != nil {
		qty := min(max(*r.PulledQty, 0), max(ordered, 0))
		if ok && decoded.PulledQty(ordered) == qty {
			return decoded
		}
		return FromQty(qty, ordered)
	}
	if ok {
		return decoded
	}
	return StateNotPulled()
}

func newItemRecord(s ItemState, ordered int) ItemRecord {
	s = s.Normalize(ordered)
	qty := s.PulledQty(ordered)
	return ItemRecord{Status: Encode(s, ordered), PulledQty: &qty}
}

// Record is the delivery state of one order.
type Record struct {
	Status OrderStatus           `json:"status"`
	Items  map[string]ItemRecord `json:"items"`
}

func (r Record) clone() Record {
	out := Record{Status: r.Status, Items: make(map[string]ItemRecord, len(r.Items))}
	for k, v := range r.Items {
		if v.PulledQty != nil {
			q := *v.PulledQty
			v.PulledQty = &q
		}
		out.Items[k] = v
	}
	return out
}

// Book maps order ids to their delivery records.
type Book map[string]Record

// Clone deep copies the book.
func (b Book) Clone() Book {
	out := make(Book, len(b))
	for k, v := range b {
		out[k] = v.clone()
	}
	return out
}

// LineState resolves one line: the local record first, then the label the
// server carries on the item. The bool reports whether the line counts as
// touched; a server label that decodes to Not Pulled does not.
func LineState(rec Record, item orders.OrderItem) (ItemState, bool) {
	if ir, ok := rec.Items[item.Key()]; ok {
		return ir.State(item.Qty), true
	}
	if s, ok := Decode(item.Status, item.Qty); ok {
		return s, s.Kind != NotPulled
	}
	return StateNotPulled(), false
}

// Rollup derives the order status from the visible lines: Complete when
// every visible line is pulled, NotStarted when none is touched, else
// InProgress. Unavailable lines keep an order from completing.
func Rollup(order orders.Order, rec Record) OrderStatus {
	visible, touched, pulled := 0, 0, 0
	for _, it := range order.Items {
		if !it.Visible() {
			continue
		}
		visible++
		s, ok := LineState(rec, it)
		if ok {
			touched++
		}
		if s.Kind == Pulled {
			pulled++
		}
	}
	switch {
	case visible > 0 && pulled == visible:
		return Complete
	case touched == 0:
		return NotStarted
	default:
		return InProgress
	}
}
