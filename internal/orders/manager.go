package orders

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/sheetapi"
)

// Lister is the subset of the remote API the order history needs.
type Lister interface {
	ListOrders(ctx context.Context) (sheetapi.OrderRows, error)
}

// CatalogReader supplies products for enrichment.
type CatalogReader interface {
	LoadCached(ctx context.Context) (catalog.Snapshot, bool)
}

// History is the persisted order list.
type History struct {
	Orders    []Order   `json:"orders"`
	UpdatedAt string    `json:"updated_at"`
	CachedAt  time.Time `json:"cached_at"`
}

// Source says where a Result came from.
type Source = catalog.Source

// Result describes a refresh outcome.
type Result struct {
	History     History
	Source      Source
	Unchanged   bool
	FallbackErr error
}

// Summary is the status line text for the result.
func (r Result) Summary() string {
	n := len(r.History.Orders)
	switch {
	case r.FallbackErr != nil:
		return fmt.Sprintf("History: offline, showing %d cached orders", n)
	case r.Source == catalog.SourceCache:
		return fmt.Sprintf("History: %d cached orders", n)
	case r.Unchanged:
		return "History: Fully Refreshed and Up to Date"
	default:
		return fmt.Sprintf("History: loaded %d orders", n)
	}
}

// Options configure a Manager.
type Options struct {
	Catalog CatalogReader
	Logger  *log.Logger
	Now     func() time.Time
}

// Manager owns the cached order history.
type Manager struct {
	store   *localstore.Store
	lister  Lister
	catalog CatalogReader
	logger  *log.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewManager builds a Manager.
func NewManager(store *localstore.Store, lister Lister, opts Options) *Manager {
	m := &Manager{store: store, lister: lister, catalog: opts.Catalog, logger: opts.Logger, now: opts.Now}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// LoadCached returns the persisted history, if any.
func (m *Manager) LoadCached(ctx context.Context) (History, bool) {
	return localstore.Load[History](ctx, m.store, localstore.DatasetOrders)
}

// Refresh returns the cache unless force is set or nothing is cached.
// Otherwise it lists orders, joins and enriches them, and keeps unconfirmed
// local orders ahead of the remote list.
func (m *Manager) Refresh(ctx context.Context, force bool) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, hasPrev := m.LoadCached(ctx)
	if hasPrev && !force {
		return Result{History: prev, Source: catalog.SourceCache}, nil
	}

	rows, err := m.lister.ListOrders(ctx)
	if err != nil {
		m.logf("[orders] refresh failed: %v", err)
		return Result{}, err
	}

	remote := Normalize(rows.Orders, rows.Items)
	if m.catalog != nil {
		if snap, ok := m.catalog.LoadCached(ctx); ok {
			remote = Enrich(remote, snap.BySKU())
		}
	}

	h := History{
		Orders:    Merge(remote, prev.Orders),
		UpdatedAt: rows.UpdatedAt,
		CachedAt:  m.now().UTC(),
	}
	if err := m.store.Save(ctx, localstore.DatasetOrders, h); err != nil {
		return Result{}, fmt.Errorf("cache orders: %w", err)
	}
	unchanged := hasPrev && prev.UpdatedAt != "" && prev.UpdatedAt == h.UpdatedAt
	m.logf("[orders] refreshed: %d remote, %d total, updated_at=%s unchanged=%t", len(remote), len(h.Orders), h.UpdatedAt, unchanged)
	return Result{History: h, Source: catalog.SourceNetwork, Unchanged: unchanged}, nil
}

// RefreshOrFallback returns the cached history with FallbackErr set when the
// refresh fails and a cache exists.
func (m *Manager) RefreshOrFallback(ctx context.Context, force bool) (Result, error) {
	res, err := m.Refresh(ctx, force)
	if err == nil {
		return res, nil
	}
	cached, ok := m.LoadCached(ctx)
	if !ok {
		return Result{}, err
	}
	return Result{History: cached, Source: catalog.SourceCache, FallbackErr: err}, nil
}

// AppendLocal prepends a just-submitted order and persists it before the
// network call so a failed submit never loses it.
func (m *Manager) AppendLocal(ctx context.Context, o Order) error {
	if !o.IsLocal() {
		return fmt.Errorf("order %q is not a local order", o.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, _ := m.LoadCached(ctx)
	h.Orders = append([]Order{o}, h.Orders...)
	if err := m.store.Save(ctx, localstore.DatasetOrders, h); err != nil {
		return fmt.Errorf("cache local order: %w", err)
	}
	return nil
}

// MarkSynced records the server id of a local order.
func (m *Manager) MarkSynced(ctx context.Context, localID, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.LoadCached(ctx)
	if !ok {
		return fmt.Errorf("order %q not found", localID)
	}
	found := false
	for i := range h.Orders {
		if h.Orders[i].ID == localID {
			h.Orders[i].RemoteID = remoteID
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("order %q not found", localID)
	}
	if err := m.store.Save(ctx, localstore.DatasetOrders, h); err != nil {
		return fmt.Errorf("cache synced order: %w", err)
	}
	return nil
}

// Find looks up an order by id or remote id in the cache.
func (m *Manager) Find(ctx context.Context, id string) (Order, bool) {
	h, ok := m.LoadCached(ctx)
	if !ok {
		return Order{}, false
	}
	for _, o := range h.Orders {
		if o.ID == id || (o.RemoteID != "" && o.RemoteID == id) {
			return o, true
		}
	}
	return Order{}, false
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
