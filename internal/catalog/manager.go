package catalog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/sheetapi"
)

// DefaultTTL is the soft staleness threshold.
const DefaultTTL = 12 * time.Hour

// Source says where a Result came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Fetcher is the subset of the remote API the catalog needs.
type Fetcher interface {
	FetchCategories(ctx context.Context) (sheetapi.RowSet, error)
	FetchProducts(ctx context.Context) (sheetapi.RowSet, error)
}

// Result describes a refresh outcome.
type Result struct {
	Snapshot Snapshot
	Source   Source
	// Unchanged is set when the server reported the same UpdatedAt as the
	// previous cache.
	Unchanged bool
	// FallbackErr holds the refresh failure when a cached snapshot was
	// returned instead.
	FallbackErr error
}

// Summary is the status line text for the result.
func (r Result) Summary() string {
	switch {
	case r.FallbackErr != nil:
		return fmt.Sprintf("Catalog: offline, showing cached (%d products)", len(r.Snapshot.Products))
	case r.Source == SourceCache:
		return fmt.Sprintf("Catalog: cached (%d products)", len(r.Snapshot.Products))
	case r.Unchanged:
		return "Catalog: Fully Refreshed and Up to Date"
	default:
		return fmt.Sprintf("Catalog: loaded %d products", len(r.Snapshot.Products))
	}
}

// Options configure a Manager.
type Options struct {
	TTL    time.Duration
	Logger *log.Logger
	Now    func() time.Time
}

// Manager owns the cached catalog.
type Manager struct {
	store   *localstore.Store
	fetcher Fetcher
	ttl     time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewManager builds a Manager.
func NewManager(store *localstore.Store, fetcher Fetcher, opts Options) *Manager {
	m := &Manager{store: store, fetcher: fetcher, ttl: opts.TTL, logger: opts.Logger, now: opts.Now}
	if m.ttl == 0 {
		m.ttl = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// LoadCached returns the persisted snapshot, if any.
func (m *Manager) LoadCached(ctx context.Context) (Snapshot, bool) {
	return localstore.Load[Snapshot](ctx, m.store, localstore.DatasetCatalog)
}

// Stale reports whether the cache is missing or older than the TTL.
func (m *Manager) Stale(ctx context.Context) bool {
	snap, ok := m.LoadCached(ctx)
	if !ok {
		return true
	}
	return snap.Stale(m.now(), m.ttl)
}

// Refresh returns the cache without touching the network unless force is set
// or nothing is cached. A network refresh replaces the cache only when both
// fetches succeed and validate.
func (m *Manager) Refresh(ctx context.Context, force bool) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, hasPrev := m.LoadCached(ctx)
	if hasPrev && !force {
		return Result{Snapshot: prev, Source: SourceCache}, nil
	}

	var cats, prods sheetapi.RowSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = m.fetcher.FetchCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		prods, err = m.fetcher.FetchProducts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		m.logf("[catalog] refresh failed: %v", err)
		return Result{}, err
	}

	snap := Snapshot{
		Categories: NormalizeCategories(cats.Rows),
		Products:   NormalizeProducts(prods.Rows),
		CachedAt:   m.now().UTC(),
	}
	if snap.Empty() {
		err := sheetapi.NewValidationError(sheetapi.ActionProducts, "no active products returned")
		m.logf("[catalog] refresh rejected: %v", err)
		return Result{}, err
	}
	switch {
	case prods.UpdatedAt != "":
		snap.UpdatedAt = prods.UpdatedAt
	case cats.UpdatedAt != "":
		snap.UpdatedAt = cats.UpdatedAt
	default:
		snap.UpdatedAt = snap.CachedAt.Format(time.RFC3339)
	}

	if err := m.store.Save(ctx, localstore.DatasetCatalog, snap); err != nil {
		return Result{}, fmt.Errorf("cache catalog: %w", err)
	}
	unchanged := hasPrev && prev.UpdatedAt != "" && prev.UpdatedAt == snap.UpdatedAt
	m.logf("[catalog] refreshed: %d categories, %d products, updated_at=%s", len(snap.Categories), len(snap.Products), snap.UpdatedAt)
	return Result{Snapshot: snap, Source: SourceNetwork, Unchanged: unchanged}, nil
}

// RefreshOrFallback is Refresh, except that a failure with a usable cache
// returns the cache and records the failure in FallbackErr.
func (m *Manager) RefreshOrFallback(ctx context.Context, force bool) (Result, error) {
	res, err := m.Refresh(ctx, force)
	if err == nil {
		return res, nil
	}
	cached, ok := m.LoadCached(ctx)
	if !ok {
		return Result{}, err
	}
	return Result{Snapshot: cached, Source: SourceCache, FallbackErr: err}, nil
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
