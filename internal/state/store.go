package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/draft"
	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/orders"
)

// maxNotices bounds the toast backlog kept for the UI.
const maxNotices = 20

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Catalog             catalog.Snapshot
	Steps               []catalog.Product
	Orders              []orders.Order
	OrdersUpdatedAt     string
	Draft               draft.Draft
	Delivery            fulfillment.Book
	Message             string
	Notices             []fulfillment.Notice
	Latency             time.Duration
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// SetCatalog replaces the catalog and its wizard order.
func (s *Store) SetCatalog(snap catalog.Snapshot, steps []catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Catalog = cloneCatalog(snap)
	s.snapshot.Steps = cloneSlice(steps)
}

// SetOrders replaces the order history.
func (s *Store) SetOrders(list []orders.Order, updatedAt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Orders = orders.CloneOrders(list)
	s.snapshot.OrdersUpdatedAt = updatedAt
}

// SetDraft replaces the draft.
func (s *Store) SetDraft(d draft.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Draft = cloneDraft(d)
}

// SetDelivery replaces the fulfillment book.
func (s *Store) SetDelivery(b fulfillment.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Delivery = b.Clone()
}

// SetMessage sets the status line.
func (s *Store) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Message = msg
}

// AddNotice queues a toast, dropping the oldest beyond the backlog limit.
func (s *Store) AddNotice(n fulfillment.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Notices = append(s.snapshot.Notices, n)
	if over := len(s.snapshot.Notices) - maxNotices; over > 0 {
		s.snapshot.Notices = append([]fulfillment.Notice(nil), s.snapshot.Notices[over:]...)
	}
}

// DrainNotices returns and clears pending toasts.
func (s *Store) DrainNotices() []fulfillment.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snapshot.Notices
	s.snapshot.Notices = nil
	return out
}

// Update records the outcome of a poll. When err is non-nil the previous data
// is kept but the error is recorded for visibility.
func (s *Store) Update(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.Latency = latency
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Catalog = cloneCatalog(s.snapshot.Catalog)
	snap.Steps = cloneSlice(s.snapshot.Steps)
	snap.Orders = orders.CloneOrders(s.snapshot.Orders)
	snap.Draft = cloneDraft(s.snapshot.Draft)
	snap.Delivery = s.snapshot.Delivery.Clone()
	snap.Notices = cloneSlice(s.snapshot.Notices)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneCatalog(c catalog.Snapshot) catalog.Snapshot {
	c.Categories = cloneSlice(c.Categories)
	c.Products = cloneSlice(c.Products)
	return c
}

func cloneDraft(d draft.Draft) draft.Draft {
	if d.Quantities == nil {
		return d
	}
	q := make(map[string]int, len(d.Quantities))
	for k, v := range d.Quantities {
		q[k] = v
	}
	d.Quantities = q
	return d
}

func cloneSlice[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	dup := make([]T, len(items))
	copy(dup, items)
	return dup
}
