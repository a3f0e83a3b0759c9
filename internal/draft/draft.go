package draft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/orders"
)

// DefaultMaxQty caps a single line.
const DefaultMaxQty = 9999

var (
	ErrMissingStore    = errors.New("store is required")
	ErrUnknownStore    = errors.New("store is not in the configured store list")
	ErrMissingDate     = errors.New("requested date is required")
	ErrMissingPlacedBy = errors.New("placed by is required")
)

// Meta is the order header.
type Meta struct {
	Store         string `json:"store"`
	RequestedDate string `json:"requested_date"`
	PlacedBy      string `json:"placed_by"`
	Notes         string `json:"notes"`
}

func (m Meta) trimmed() Meta {
	return Meta{
		Store:         strings.TrimSpace(m.Store),
		RequestedDate: strings.TrimSpace(m.RequestedDate),
		PlacedBy:      strings.TrimSpace(m.PlacedBy),
		Notes:         strings.TrimSpace(m.Notes),
	}
}

// Draft is the order being built. A SKU is present in Quantities only with a
// quantity between 1 and the configured maximum.
type Draft struct {
	Quantities map[string]int `json:"quantities"`
	Meta       Meta           `json:"meta"`
	Dirty      bool           `json:"dirty"`
	Position   int            `json:"position"`
}

func (d Draft) clone() Draft {
	out := d
	out.Quantities = make(map[string]int, len(d.Quantities))
	for k, v := range d.Quantities {
		out.Quantities[k] = v
	}
	return out
}

// Lines counts SKUs with a quantity.
func (d Draft) Lines() int {
	return len(d.Quantities)
}

// Units sums all quantities.
func (d Draft) Units() int {
	total := 0
	for _, q := range d.Quantities {
		total += q
	}
	return total
}

// Options configure a Manager.
type Options struct {
	MaxQty    int
	StoreLock string
	Stores    []string
	Logger    *log.Logger
}

// Manager owns the draft and writes every change through to the store.
type Manager struct {
	store     *localstore.Store
	maxQty    int
	storeLock string
	stores    []string
	logger    *log.Logger

	mu    sync.Mutex
	draft Draft
}

// NewManager builds a Manager with an empty draft; call Load to resume.
func NewManager(store *localstore.Store, opts Options) *Manager {
	m := &Manager{
		store:     store,
		maxQty:    opts.MaxQty,
		storeLock: strings.TrimSpace(opts.StoreLock),
		stores:    opts.Stores,
		logger:    opts.Logger,
		draft:     Draft{Quantities: map[string]int{}},
	}
	if m.maxQty <= 0 {
		m.maxQty = DefaultMaxQty
	}
	if m.storeLock != "" {
		m.draft.Meta.Store = m.storeLock
	}
	return m
}

// Load replaces the in-memory draft with the persisted one. Invalid stored
// quantities are dropped.
func (m *Manager) Load(ctx context.Context) bool {
	stored, ok := localstore.Load[Draft](ctx, m.store, localstore.DatasetDraft)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		return false
	}
	clean := make(map[string]int, len(stored.Quantities))
	for sku, q := range stored.Quantities {
		if sku = strings.TrimSpace(sku); sku != "" && q > 0 {
			clean[sku] = min(q, m.maxQty)
		}
	}
	stored.Quantities = clean
	if m.storeLock != "" {
		stored.Meta.Store = m.storeLock
	}
	m.draft = stored
	return true
}

// Snapshot returns a copy of the draft.
func (m *Manager) Snapshot() Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft.clone()
}

// Quantity returns the stored quantity for sku, or zero.
func (m *Manager) Quantity(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft.Quantities[strings.TrimSpace(sku)]
}

// SetQuantity records qty for sku. Empty SKUs and NaN, infinite, or negative
// quantities are ignored. Quantities are floored and capped at the maximum;
// zero removes the SKU. It reports whether the draft changed.
func (m *Manager) SetQuantity(ctx context.Context, sku string, qty float64) (bool, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" || math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 0 {
		return false, nil
	}
	n := int(math.Min(math.Floor(qty), float64(m.maxQty)))

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.draft.Quantities[sku]
	switch {
	case n == 0 && !had:
		return false, nil
	case n == 0:
		delete(m.draft.Quantities, sku)
	case had && prev == n:
		return false, nil
	default:
		m.draft.Quantities[sku] = n
	}
	m.draft.Dirty = true
	return true, m.persistLocked(ctx)
}

// Adjust adds delta to the current quantity.
func (m *Manager) Adjust(ctx context.Context, sku string, delta int) (bool, error) {
	current := m.Quantity(sku)
	return m.SetQuantity(ctx, sku, float64(max(current+delta, 0)))
}

// SetMeta replaces the header. A configured store lock always wins.
func (m *Manager) SetMeta(ctx context.Context, meta Meta) (bool, error) {
	meta = meta.trimmed()
	if m.storeLock != "" {
		meta.Store = m.storeLock
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta == m.draft.Meta {
		return false, nil
	}
	m.draft.Meta = meta
	m.draft.Dirty = true
	return true, m.persistLocked(ctx)
}

// SetPosition stores the wizard position, clamped to [0, steps).
func (m *Manager) SetPosition(ctx context.Context, idx, steps int) error {
	if steps <= 0 {
		idx = 0
	} else {
		idx = min(max(idx, 0), steps-1)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft.Position == idx {
		return nil
	}
	m.draft.Position = idx
	return m.persistLocked(ctx)
}

// BuildPayload lists steps with a quantity, in step order. SKUs no longer in
// the catalog are left out.
func (m *Manager) BuildPayload(steps []catalog.Product) []orders.OrderItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []orders.OrderItem
	for _, p := range steps {
		q := m.draft.Quantities[p.SKU]
		if q <= 0 {
			continue
		}
		items = append(items, orders.OrderItem{
			SKU:      p.SKU,
			ItemNo:   p.ItemNo,
			Name:     p.Name,
			Category: p.Category,
			Unit:     p.Unit,
			PackSize: p.PackSize,
			Qty:      q,
		})
	}
	return items
}

// ResetAfterSubmit clears quantities, position, and the dirty flag. The
// header is kept for the next order.
func (m *Manager) ResetAfterSubmit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft.Quantities = map[string]int{}
	m.draft.Dirty = false
	m.draft.Position = 0
	return m.persistLocked(ctx)
}

// MarkClean clears the dirty flag after a catalog refresh was applied.
func (m *Manager) MarkClean(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.draft.Dirty {
		return nil
	}
	m.draft.Dirty = false
	return m.persistLocked(ctx)
}

// ConfirmRefresh gates a catalog refresh. A dirty draft asks confirm unless
// force is set; a nil confirm declines.
func (m *Manager) ConfirmRefresh(force bool, confirm func() bool) bool {
	m.mu.Lock()
	dirty := m.draft.Dirty
	m.mu.Unlock()
	if !dirty || force {
		return true
	}
	if confirm == nil {
		return false
	}
	return confirm()
}

// ValidateMeta checks the header before submit.
func (m *Manager) ValidateMeta() error {
	m.mu.Lock()
	meta := m.draft.Meta
	m.mu.Unlock()

	if meta.Store == "" {
		return ErrMissingStore
	}
	if len(m.stores) > 0 && !slices.ContainsFunc(m.stores, func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), meta.Store)
	}) {
		return fmt.Errorf("%w: %q", ErrUnknownStore, meta.Store)
	}
	if meta.RequestedDate == "" {
		return ErrMissingDate
	}
	if meta.PlacedBy == "" {
		return ErrMissingPlacedBy
	}
	return nil
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, localstore.DatasetDraft, m.draft); err != nil {
		if m.logger != nil {
			m.logger.Printf("[draft] persist failed: %v", err)
		}
		return err
	}
	return nil
}
