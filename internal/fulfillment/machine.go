package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/orders"
	"github.com/five82/orderdesk/internal/sheetapi"
)

const defaultPushTimeout = 30 * time.Second

// ErrNoItemKey is returned for lines with no sku, item number, or name.
var ErrNoItemKey = errors.New("item has no sku, item number, or name")

// Pusher is the subset of the remote API used for best-effort pushes.
type Pusher interface {
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	UpdateOrderItemStatus(ctx context.Context, update sheetapi.ItemStatusUpdate) error
}

// Notice is a side-channel message about a background push.
type Notice struct {
	OrderID string
	Message string
	Err     error
}

// Options configure a Machine.
type Options struct {
	Notify      func(Notice)
	Logger      *log.Logger
	PushTimeout time.Duration
}

// Machine tracks delivery progress per order and line. Local state is
// authoritative; remote pushes run in the background and never roll back a
// transition.
type Machine struct {
	store       *localstore.Store
	pusher      Pusher
	notify      func(Notice)
	logger      *log.Logger
	pushTimeout time.Duration

	mu   sync.Mutex
	book Book
	wg   sync.WaitGroup
}

// NewMachine builds a Machine with an empty book; call Load to read the
// persisted one.
func NewMachine(store *localstore.Store, pusher Pusher, opts Options) *Machine {
	m := &Machine{
		store:       store,
		pusher:      pusher,
		notify:      opts.Notify,
		logger:      opts.Logger,
		pushTimeout: opts.PushTimeout,
		book:        Book{},
	}
	if m.pushTimeout <= 0 {
		m.pushTimeout = defaultPushTimeout
	}
	return m
}

// Load replaces the in-memory book with the persisted one. Legacy bare-string
// item states are upgraded and written back.
func (m *Machine) Load(ctx context.Context) error {
	book, ok := localstore.Load[Book](ctx, m.store, localstore.DatasetDelivery)
	if !ok {
		book = Book{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range book {
		if rec.Items == nil {
			rec.Items = map[string]ItemRecord{}
			book[id] = rec
		}
	}
	m.book = book
	if ok && m.hasLegacyLocked(ctx) {
		return m.persistLocked(ctx)
	}
	return nil
}

type rawRecord struct {
	Items map[string]any `json:"items"`
}

// hasLegacyLocked re-reads the raw blob to see whether migration happened.
// Migrated records decode identically, so the check is on the stored shape.
func (m *Machine) hasLegacyLocked(ctx context.Context) bool {
	raw, ok := localstore.Load[map[string]rawRecord](ctx, m.store, localstore.DatasetDelivery)
	if !ok {
		return false
	}
	for _, rec := range raw {
		for _, v := range rec.Items {
			if _, isString := v.(string); isString {
				return true
			}
		}
	}
	return false
}

// Book returns a copy of every record.
func (m *Machine) Book() Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.Clone()
}

// Record returns a copy of one order's record.
func (m *Machine) Record(orderID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.book[strings.TrimSpace(orderID)]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Status returns the stored order status, NotStarted when untracked.
func (m *Machine) Status(orderID string) OrderStatus {
	rec, _ := m.Record(orderID)
	return rec.Status
}

// Transition reports the effect of a status change.
type Transition struct {
	OrderID  string
	ItemKey  string
	Item     ItemState
	Label    string
	Previous OrderStatus
	Status   OrderStatus
}

// Changed reports whether the order status moved.
func (t Transition) Changed() bool {
	return t.Previous != t.Status
}

// SetItemStatus applies a wire label. An explicit pulledQty overrides the
// count parsed from the label. Unknown labels are rejected.
func (m *Machine) SetItemStatus(ctx context.Context, order orders.Order, item orders.OrderItem, label string, pulledQty *int) (Transition, error) {
	decoded, ok := Decode(label, item.Qty)
	if !ok && pulledQty == nil {
		return Transition{}, fmt.Errorf("unknown item status %q", label)
	}
	state := decoded
	if pulledQty != nil && (!ok || decoded.Kind != Unavailable) {
		state = FromQty(min(max(*pulledQty, 0), max(item.Qty, 0)), item.Qty)
	}
	return m.Apply(ctx, order, item, state)
}

// Apply records a line state, rolls the order up, persists, and schedules
// the remote pushes: the order status only when it changed, the line always.
func (m *Machine) Apply(ctx context.Context, order orders.Order, item orders.OrderItem, state ItemState) (Transition, error) {
	key := item.Key()
	if key == "" {
		return Transition{}, ErrNoItemKey
	}
	orderID := strings.TrimSpace(order.ID)

	m.mu.Lock()
	rec, ok := m.book[orderID]
	if !ok {
		rec = Record{Status: NotStarted, Items: map[string]ItemRecord{}}
	} else {
		rec = rec.clone()
	}
	previous := Rollup(order, rec)
	ir := newItemRecord(state, item.Qty)
	rec.Items[key] = ir

	tr := Transition{
		OrderID:  orderID,
		ItemKey:  key,
		Item:     ir.State(item.Qty),
		Label:    ir.Status,
		Previous: previous,
	}
	rec.Status = Rollup(order, rec)
	tr.Status = rec.Status
	m.book[orderID] = rec
	err := m.persistLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return tr, err
	}

	m.logf("[delivery] %s %s -> %s (order %s -> %s)", orderID, key, tr.Label, tr.Previous, tr.Status)
	m.schedulePushes(order, item, tr)
	return tr, nil
}

// ClearItemStatus forgets a line so it counts as untouched again.
func (m *Machine) ClearItemStatus(ctx context.Context, order orders.Order, item orders.OrderItem) (Transition, error) {
	key := item.Key()
	if key == "" {
		return Transition{}, ErrNoItemKey
	}
	orderID := strings.TrimSpace(order.ID)

	m.mu.Lock()
	rec, ok := m.book[orderID]
	if !ok {
		m.mu.Unlock()
		return Transition{OrderID: orderID, ItemKey: key}, nil
	}
	rec = rec.clone()
	previous := Rollup(order, rec)
	delete(rec.Items, key)
	tr := Transition{OrderID: orderID, ItemKey: key, Label: LabelNotPulled, Previous: previous}
	rec.Status = Rollup(order, rec)
	tr.Status = rec.Status
	m.book[orderID] = rec
	err := m.persistLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return tr, err
	}
	if tr.Changed() {
		m.pushOrderStatus(order, tr.Status)
	}
	return tr, nil
}

// ItemState resolves a line: the local record first, then the server label
// carried on the order item.
func (m *Machine) ItemState(orderID string, item orders.OrderItem) (ItemState, bool) {
	m.mu.Lock()
	rec := m.book[strings.TrimSpace(orderID)]
	m.mu.Unlock()
	if _, ok := rec.Items[item.Key()]; ok {
		return LineState(rec, item)
	}
	if s, ok := Decode(item.Status, item.Qty); ok {
		return s, true
	}
	return StateNotPulled(), false
}

// OrderStatus rolls the order up from its current lines, so labels set on
// the server count as well as local records.
func (m *Machine) OrderStatus(order orders.Order) OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Rollup(order, m.book[strings.TrimSpace(order.ID)])
}

// Adopt moves the record kept under a client-side id to the order the
// server now lists. Lines already recorded under the server id win. It
// reports whether anything moved.
func (m *Machine) Adopt(ctx context.Context, localID string, order orders.Order) (bool, error) {
	localID = strings.TrimSpace(localID)
	orderID := strings.TrimSpace(order.ID)
	if localID == "" || orderID == "" || localID == orderID {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	from, ok := m.book[localID]
	if !ok {
		return false, nil
	}
	rec, have := m.book[orderID]
	if have {
		rec = rec.clone()
	} else {
		rec = Record{Items: map[string]ItemRecord{}}
	}
	for k, v := range from.clone().Items {
		if _, taken := rec.Items[k]; !taken {
			rec.Items[k] = v
		}
	}
	rec.Status = Rollup(order, rec)
	m.book[orderID] = rec
	delete(m.book, localID)
	if err := m.persistLocked(ctx); err != nil {
		return true, err
	}
	m.logf("[delivery] %s adopted record of %s (%s)", orderID, localID, rec.Status)
	return true, nil
}

// DeliveredQty is the quantity delivered for a line, zero when unknown.
func (m *Machine) DeliveredQty(orderID string, item orders.OrderItem) int {
	s, _ := m.ItemState(orderID, item)
	return s.PulledQty(item.Qty)
}

// Flush waits for scheduled pushes to finish.
func (m *Machine) Flush() {
	m.wg.Wait()
}

func (m *Machine) schedulePushes(order orders.Order, item orders.OrderItem, tr Transition) {
	if tr.Changed() {
		m.pushOrderStatus(order, tr.Status)
	}
	remoteID := order.RemoteKey()
	if remoteID == "" {
		m.report(Notice{OrderID: order.ID, Message: "Saved locally; order is not synced yet"})
		return
	}
	update := sheetapi.ItemStatusUpdate{
		OrderID:      remoteID,
		ProductIndex: itemIndex(order, item),
		ProductName:  item.Name,
		Status:       tr.Label,
	}
	m.dispatch(order.ID, "item status", func(ctx context.Context) error {
		return m.pusher.UpdateOrderItemStatus(ctx, update)
	})
}

func (m *Machine) pushOrderStatus(order orders.Order, status OrderStatus) {
	remoteID := order.RemoteKey()
	if remoteID == "" {
		return
	}
	label := status.String()
	m.dispatch(order.ID, "order status", func(ctx context.Context) error {
		return m.pusher.UpdateOrderStatus(ctx, remoteID, label)
	})
}

// dispatch runs fn detached from the caller's context. Failures are only
// visible through Notify and the log.
func (m *Machine) dispatch(orderID, what string, fn func(context.Context) error) {
	if m.pusher == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.pushTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.logf("[delivery] push %s for %s failed: %v", what, orderID, err)
			m.report(Notice{OrderID: orderID, Message: fmt.Sprintf("Could not sync %s: %s", what, sheetapi.Describe(err)), Err: err})
		}
	}()
}

func (m *Machine) report(n Notice) {
	if m.notify != nil {
		m.notify(n)
	}
}

func itemIndex(order orders.Order, item orders.OrderItem) int {
	key := item.Key()
	for i, it := range order.Items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func (m *Machine) persistLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, localstore.DatasetDelivery, m.book); err != nil {
		m.logf("[delivery] persist failed: %v", err)
		return err
	}
	return nil
}

func (m *Machine) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
