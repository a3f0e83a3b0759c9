package fulfillment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ItemKind is the fulfillment state of one line.
type ItemKind int

const (
	NotPulled ItemKind = iota
	Partial
	Pulled
	Unavailable
)

func (k ItemKind) String() string {
	switch k {
	case NotPulled:
		return "not_pulled"
	case Partial:
		return "partial"
	case Pulled:
		return "pulled"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// ItemState is the tagged union of line states. Count is only meaningful for
// Partial.
type ItemState struct {
	Kind  ItemKind
	Count int
}

// StateNotPulled returns the untouched state.
func StateNotPulled() ItemState { return ItemState{Kind: NotPulled} }

// StatePartial returns a partial pull of n units.
func StatePartial(n int) ItemState { return ItemState{Kind: Partial, Count: n} }

// StatePulled returns the fully pulled state.
func StatePulled() ItemState { return ItemState{Kind: Pulled} }

// StateUnavailable returns the terminal out-of-stock state.
func StateUnavailable() ItemState { return ItemState{Kind: Unavailable} }

// FromQty derives the state for a pulled quantity.
func FromQty(pulled, ordered int) ItemState {
	switch {
	case pulled <= 0:
		return StateNotPulled()
	case pulled >= ordered:
		return StatePulled()
	default:
		return StatePartial(pulled)
	}
}

// Normalize folds degenerate partials into NotPulled or Pulled.
func (s ItemState) Normalize(ordered int) ItemState {
	if s.Kind != Partial {
		return ItemState{Kind: s.Kind}
	}
	return FromQty(s.Count, ordered)
}

// PulledQty is the delivered quantity, always within [0, ordered].
func (s ItemState) PulledQty(ordered int) int {
	ordered = max(ordered, 0)
	switch s.Kind {
	case Pulled:
		return ordered
	case Partial:
		return min(max(s.Count, 0), ordered)
	default:
		return 0
	}
}

// Missing is the shortfall against ordered.
func (s ItemState) Missing(ordered int) int {
	return max(ordered, 0) - s.PulledQty(ordered)
}

// Label encodings kept for compatibility with the sheet.
const (
	LabelPulled      = "Pulled"
	LabelNotPulled   = "Not Pulled"
	LabelUnavailable = "Unavailable"
)

// Encode renders the wire label for a state.
func Encode(s ItemState, ordered int) string {
	s = s.Normalize(ordered)
	switch s.Kind {
	case Pulled:
		return LabelPulled
	case Unavailable:
		return LabelUnavailable
	case Partial:
		return fmt.Sprintf("Partially Collected %d of %d", s.Count, ordered)
	default:
		return LabelNotPulled
	}
}

var partialLabel = regexp.MustCompile(`partially\s+(?:collected|pulled)\s*(\d+)\s*of\s*(\d+)`)

// Decode parses a wire label. ordered bounds partial counts; when it is not
// positive the label's own total is used. Unknown labels report false.
func Decode(label string, ordered int) (ItemState, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return ItemState{}, false
	}
	if m := partialLabel.FindStringSubmatch(l); m != nil {
		n, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if ordered <= 0 {
			ordered = total
		}
		return StatePartial(min(n, ordered)).Normalize(ordered), true
	}
	switch {
	case strings.HasPrefix(l, "unavailable"), strings.Contains(l, "out of stock"):
		return StateUnavailable(), true
	case strings.HasPrefix(l, "not pulled"), strings.HasPrefix(l, "not collected"), l == "pending":
		return StateNotPulled(), true
	case strings.HasPrefix(l, "pulled"), strings.HasPrefix(l, "collected"):
		return StatePulled(), true
	}
	return ItemState{}, false
}

// OrderStatus is the rolled up state of an order.
type OrderStatus int

const (
	NotStarted OrderStatus = iota
	InProgress
	Complete
)

func (s OrderStatus) String() string {
	switch s {
	case InProgress:
		return "In Progress"
	case Complete:
		return "Complete"
	default:
		return "Not Started"
	}
}

// ParseOrderStatus accepts current and historical labels.
func ParseOrderStatus(label string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "not started", "not_started", "pending", "new":
		return NotStarted, true
	case "in progress", "in_progress", "incomplete", "partial":
		return InProgress, true
	case "complete", "completed", "ready", "delivered":
		return Complete, true
	}
	return NotStarted, false
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON maps unknown labels to NotStarted; the rollup recomputes the
// real status on the next transition.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, _ := ParseOrderStatus(label)
	*s = parsed
	return nil
}
