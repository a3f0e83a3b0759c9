package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/draft"
	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/orders"
	"github.com/five82/orderdesk/internal/report"
	"github.com/five82/orderdesk/internal/rowmap"
	"github.com/five82/orderdesk/internal/sheetapi"
	"github.com/five82/orderdesk/internal/state"
)

var (
	// ErrRefreshDeclined is returned when a dirty draft blocked a catalog refresh.
	ErrRefreshDeclined = errors.New("catalog refresh cancelled: draft has unsaved changes")
	// ErrNoItems is returned by Submit when no catalog product has a quantity.
	ErrNoItems = errors.New("order has no items")
)

// PortalOptions configure a Portal.
type PortalOptions struct {
	CatalogTTL time.Duration
	MaxQty     int
	StoreLock  string
	Stores     []string
	// Store and PlacedBy seed empty fields of the draft header.
	Store     string
	PlacedBy  string
	ExportDir string
	Logger    *log.Logger
	Now       func() time.Time
}

// Portal owns the managers and publishes their state for the UI. All
// methods are safe to call from the UI and poller goroutines.
type Portal struct {
	api       sheetapi.API
	catalog   *catalog.Manager
	orders    *orders.Manager
	draft     *draft.Manager
	delivery  *fulfillment.Machine
	state     *state.Store
	defaults  draft.Meta
	stores    []string
	exportDir string
	logger    *log.Logger
	now       func() time.Time
}

// NewPortal wires the managers over one local store and one API client.
// Fulfillment push failures are surfaced as state notices.
func NewPortal(store *localstore.Store, api sheetapi.API, st *state.Store, opts PortalOptions) *Portal {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cat := catalog.NewManager(store, api, catalog.Options{TTL: opts.CatalogTTL, Logger: opts.Logger, Now: now})
	return &Portal{
		api:     api,
		catalog: cat,
		orders:  orders.NewManager(store, api, orders.Options{Catalog: cat, Logger: opts.Logger, Now: now}),
		draft: draft.NewManager(store, draft.Options{
			MaxQty:    opts.MaxQty,
			StoreLock: opts.StoreLock,
			Stores:    opts.Stores,
			Logger:    opts.Logger,
		}),
		delivery:  fulfillment.NewMachine(store, api, fulfillment.Options{Notify: st.AddNotice, Logger: opts.Logger}),
		state:     st,
		defaults:  draft.Meta{Store: strings.TrimSpace(opts.Store), PlacedBy: strings.TrimSpace(opts.PlacedBy)},
		stores:    append([]string(nil), opts.Stores...),
		exportDir: opts.ExportDir,
		logger:    opts.Logger,
		now:       now,
	}
}

// State returns the store the portal publishes into.
func (p *Portal) State() *state.Store {
	return p.state
}

// Startup loads every cache, refreshes the catalog when it is missing or
// stale, and refreshes the order history. Network failures leave cached data
// in place and are returned joined.
func (p *Portal) Startup(ctx context.Context) error {
	p.draft.Load(ctx)
	p.seedMeta(ctx)
	if err := p.delivery.Load(ctx); err != nil {
		p.logf("[app] load delivery: %v", err)
	}
	p.publishDraft()
	p.state.SetDelivery(p.delivery.Book())

	var errs []error
	if _, err := p.startupCatalog(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := p.RefreshOrders(ctx, true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// seedMeta fills empty header fields from the user's preferences without
// marking the draft dirty.
func (p *Portal) seedMeta(ctx context.Context) {
	d := p.draft.Snapshot()
	meta := d.Meta
	if meta.Store == "" {
		meta.Store = p.defaults.Store
	}
	if meta.PlacedBy == "" {
		meta.PlacedBy = p.defaults.PlacedBy
	}
	if meta == d.Meta {
		return
	}
	if _, err := p.draft.SetMeta(ctx, meta); err != nil {
		p.logf("[app] seed draft header: %v", err)
		return
	}
	if !d.Dirty {
		_ = p.draft.MarkClean(ctx)
	}
}

// startupCatalog only goes to the network when the cache is empty, or stale
// with a clean draft.
func (p *Portal) startupCatalog(ctx context.Context) (catalog.Result, error) {
	cached, ok := p.catalog.LoadCached(ctx)
	switch {
	case !ok:
		return p.RefreshCatalog(ctx, true, nil)
	case p.catalog.Stale(ctx):
		if p.draft.Snapshot().Dirty {
			p.publishCatalog(cached)
			p.state.SetMessage("Catalog is out of date; refresh when your draft is submitted")
			return catalog.Result{Snapshot: cached, Source: catalog.SourceCache}, nil
		}
		return p.RefreshCatalog(ctx, false, nil)
	default:
		p.publishCatalog(cached)
		return catalog.Result{Snapshot: cached, Source: catalog.SourceCache}, nil
	}
}

// RefreshCatalog fetches the catalog from the server. A dirty draft asks
// confirm unless force is set; a declined refresh changes nothing.
func (p *Portal) RefreshCatalog(ctx context.Context, force bool, confirm func() bool) (catalog.Result, error) {
	if !p.draft.ConfirmRefresh(force, confirm) {
		p.state.SetMessage("Catalog refresh cancelled")
		return catalog.Result{}, ErrRefreshDeclined
	}
	start := p.now()
	res, err := p.catalog.RefreshOrFallback(ctx, true)
	latency := p.now().Sub(start)
	if err != nil {
		p.state.Update(latency, err)
		p.state.SetMessage(sheetapi.Describe(err))
		return res, err
	}
	p.publishCatalog(res.Snapshot)
	p.state.SetMessage(res.Summary())
	p.state.Update(latency, res.FallbackErr)
	if res.FallbackErr == nil {
		if err := p.draft.MarkClean(ctx); err != nil {
			p.logf("[app] mark draft clean: %v", err)
		}
		p.publishDraft()
	}
	return res, nil
}

// RefreshOrders replaces the history with the server list, keeping unsynced
// local orders. Without force a cached history is returned as is.
func (p *Portal) RefreshOrders(ctx context.Context, force bool) (orders.Result, error) {
	var synced []orders.Order
	if h, ok := p.orders.LoadCached(ctx); ok {
		for _, o := range h.Orders {
			if o.IsLocal() && o.RemoteID != "" {
				synced = append(synced, o)
			}
		}
	}
	start := p.now()
	res, err := p.orders.RefreshOrFallback(ctx, force)
	latency := p.now().Sub(start)
	if err != nil {
		p.state.Update(latency, err)
		p.state.SetMessage(sheetapi.Describe(err))
		return res, err
	}
	p.adoptSynced(ctx, synced, res.History.Orders)
	p.state.SetOrders(res.History.Orders, res.History.UpdatedAt)
	p.state.SetMessage(res.Summary())
	p.state.Update(latency, res.FallbackErr)
	return res, nil
}

// adoptSynced carries delivery records of submitted local orders over to the
// server ids once the refreshed history has replaced the local copies.
func (p *Portal) adoptSynced(ctx context.Context, synced, list []orders.Order) {
	if len(synced) == 0 {
		return
	}
	byID := make(map[string]orders.Order, len(list))
	for _, o := range list {
		byID[o.ID] = o
	}
	moved := false
	for _, local := range synced {
		if _, kept := byID[local.ID]; kept {
			continue
		}
		remote, ok := byID[local.RemoteID]
		if !ok {
			continue
		}
		ok, err := p.delivery.Adopt(ctx, local.ID, remote)
		if err != nil {
			p.logf("[app] move delivery record %s -> %s: %v", local.ID, remote.ID, err)
		}
		moved = moved || ok
	}
	if moved {
		p.state.SetDelivery(p.delivery.Book())
	}
}

// ReloadLocal re-reads orders and delivery records another process may have
// written.
func (p *Portal) ReloadLocal(ctx context.Context) error {
	if h, ok := p.orders.LoadCached(ctx); ok {
		p.state.SetOrders(h.Orders, h.UpdatedAt)
	}
	if err := p.delivery.Load(ctx); err != nil {
		return fmt.Errorf("reload delivery: %w", err)
	}
	p.state.SetDelivery(p.delivery.Book())
	return nil
}

// Health probes the server and records the outcome.
func (p *Portal) Health(ctx context.Context) (sheetapi.HealthStatus, error) {
	h, err := p.api.Health(ctx)
	p.state.Update(h.Latency, err)
	return h, err
}

// Adjust moves a draft quantity by delta.
func (p *Portal) Adjust(ctx context.Context, sku string, delta int) error {
	_, err := p.draft.Adjust(ctx, sku, delta)
	p.publishDraft()
	return err
}

// SetQuantity sets a draft quantity; invalid input is ignored.
func (p *Portal) SetQuantity(ctx context.Context, sku string, qty float64) error {
	_, err := p.draft.SetQuantity(ctx, sku, qty)
	p.publishDraft()
	return err
}

// SetMeta replaces the draft header.
func (p *Portal) SetMeta(ctx context.Context, meta draft.Meta) error {
	_, err := p.draft.SetMeta(ctx, meta)
	p.publishDraft()
	return err
}

// SetPosition records the catalog cursor.
func (p *Portal) SetPosition(ctx context.Context, idx int) error {
	err := p.draft.SetPosition(ctx, idx, len(p.state.Snapshot().Steps))
	p.publishDraft()
	return err
}

// Submit sends the draft. The order is stored locally before the request so
// a failed submit keeps it; success records the server id and clears the
// quantities.
func (p *Portal) Submit(ctx context.Context) (orders.Order, error) {
	if err := p.draft.ValidateMeta(); err != nil {
		return orders.Order{}, err
	}
	snap := p.state.Snapshot()
	items := p.draft.BuildPayload(snap.Steps)
	if len(items) == 0 {
		return orders.Order{}, ErrNoItems
	}
	meta := p.draft.Snapshot().Meta
	order := orders.Order{
		ID:            orders.NewLocalID(),
		Store:         meta.Store,
		RequestedDate: meta.RequestedDate,
		PlacedBy:      meta.PlacedBy,
		Notes:         meta.Notes,
		Items:         items,
		CreatedAt:     p.now().UTC().Format(time.RFC3339),
	}
	if err := p.orders.AppendLocal(ctx, order); err != nil {
		return orders.Order{}, err
	}
	if err := p.ReloadLocal(ctx); err != nil {
		p.logf("[app] reload after storing %s: %v", order.ID, err)
	}

	sub := sheetapi.Submission{
		Store:         order.Store,
		PlacedBy:      order.PlacedBy,
		RequestedDate: order.RequestedDate,
		Notes:         order.Notes,
		Items:         make([]sheetapi.SubmissionItem, 0, len(items)),
	}
	for _, it := range items {
		sub.Items = append(sub.Items, sheetapi.SubmissionItem{
			SKU:      it.SKU,
			ItemNo:   it.ItemNo,
			Name:     it.Name,
			Category: it.Category,
			Unit:     it.Unit,
			PackSize: it.PackSize,
			Qty:      it.Qty,
		})
	}
	res, err := p.api.SubmitOrder(ctx, sub)
	if err != nil {
		p.logf("[app] submit %s failed: %v", order.ID, err)
		p.state.SetMessage("Submit failed: " + sheetapi.Describe(err))
		return order, fmt.Errorf("submit order: %w", err)
	}

	if err := p.orders.MarkSynced(ctx, order.ID, res.OrderID); err != nil {
		p.logf("[app] mark %s synced: %v", order.ID, err)
	}
	order.RemoteID = res.OrderID
	if err := p.draft.ResetAfterSubmit(ctx); err != nil {
		p.logf("[app] reset draft: %v", err)
	}
	p.publishDraft()
	if err := p.ReloadLocal(ctx); err != nil {
		p.logf("[app] reload after submit %s: %v", res.OrderID, err)
	}
	p.state.SetMessage(fmt.Sprintf("Submitted %s (%d lines)", res.OrderID, len(items)))
	return order, nil
}

// SetItemStatus applies a fulfillment state to one line of a cached order.
func (p *Portal) SetItemStatus(ctx context.Context, orderID, itemKey string, s fulfillment.ItemState) (fulfillment.Transition, error) {
	order, ok := p.orders.Find(ctx, orderID)
	if !ok {
		return fulfillment.Transition{}, fmt.Errorf("order %q not found", orderID)
	}
	for _, it := range order.Items {
		if it.Key() == itemKey {
			tr, err := p.delivery.Apply(ctx, order, it, s)
			p.state.SetDelivery(p.delivery.Book())
			if err == nil && tr.Changed() {
				p.state.SetMessage(fmt.Sprintf("%s is now %s", orderLabel(order), tr.Status))
			}
			return tr, err
		}
	}
	return fulfillment.Transition{}, fmt.Errorf("order %q has no item %q", orderID, itemKey)
}

// ItemState reports the recorded state for a line, or NotPulled.
func (p *Portal) ItemState(orderID string, item orders.OrderItem) fulfillment.ItemState {
	s, ok := p.delivery.ItemState(orderID, item)
	if !ok {
		return fulfillment.StateNotPulled()
	}
	return s
}

// OrderStatus rolls an order up from its local records and server labels.
func (p *Portal) OrderStatus(order orders.Order) fulfillment.OrderStatus {
	return p.delivery.OrderStatus(order)
}

// ExportMissing writes the shortfall report for one requested date.
func (p *Portal) ExportMissing(w io.Writer, day string) error {
	list := orders.ForDate(p.state.Snapshot().Orders, day)
	return report.WriteMissingXLSX(w, p.delivery.MissingItems(list), p.delivery.FillRates(list))
}

// ExportHistory writes the filtered history grouped by store.
func (p *Portal) ExportHistory(w io.Writer, f orders.Filter) error {
	list := f.Apply(p.state.Snapshot().Orders)
	return report.WriteHistoryXLSX(w, orders.GroupByStore(list), p.delivery)
}

// SaveMissingReport writes the shortfall report under the export directory
// and returns its path.
func (p *Portal) SaveMissingReport(day string) (string, error) {
	if strings.TrimSpace(day) == "" {
		day = p.now().Format(time.DateOnly)
	}
	return p.saveReport("missing-"+day+".xlsx", func(w io.Writer) error {
		return p.ExportMissing(w, day)
	})
}

// SaveHistoryReport writes the history for day, or every day when day is
// empty, and returns its path.
func (p *Portal) SaveHistoryReport(day string) (string, error) {
	list := p.state.Snapshot().Orders
	name := "history-all.xlsx"
	if strings.TrimSpace(day) != "" {
		list = orders.ForDate(list, day)
		name = "history-" + day + ".xlsx"
	}
	return p.saveReport(name, func(w io.Writer) error {
		return report.WriteHistoryXLSX(w, orders.GroupByStore(list), p.delivery)
	})
}

// CompareStores totals the target per store over the standard timeframes.
// Configured stores get a row even with no orders.
func (p *Portal) CompareStores(q orders.Query) (orders.Comparison, error) {
	list := p.state.Snapshot().Orders
	stores := q.Stores
	if len(stores) == 0 {
		stores = append(append([]string(nil), p.stores...), orders.Stores(list)...)
	}
	return orders.CompareStores(list, q.Target, orders.StandardFrames(p.now(), q.Start, q.End), stores, q.Sort)
}

// SaveComparisonReport writes the store volume report and returns its path.
func (p *Portal) SaveComparisonReport(q orders.Query) (string, error) {
	c, err := p.CompareStores(q)
	if err != nil {
		return "", err
	}
	name := "compare-" + rowmap.NormalizeKey(q.Target.Key) + "-" + p.now().Format(time.DateOnly) + ".xlsx"
	return p.saveReport(name, func(w io.Writer) error {
		return report.WriteComparisonXLSX(w, c)
	})
}

// SaveMissingSummary writes the shortfall lines matching q, with totals per
// store and per item, and returns its path.
func (p *Portal) SaveMissingSummary(q orders.Query) (string, error) {
	rows, err := p.delivery.MissingFor(p.state.Snapshot().Orders, fulfillment.MissingFilter{
		Target: q.Target,
		Stores: q.Stores,
		Start:  q.Start,
		End:    q.End,
	})
	if err != nil {
		return "", err
	}
	name := "missing-summary-" + p.now().Format(time.DateOnly) + ".xlsx"
	if !q.Target.Empty() {
		name = "missing-" + rowmap.NormalizeKey(q.Target.Key) + "-" + p.now().Format(time.DateOnly) + ".xlsx"
	}
	return p.saveReport(name, func(w io.Writer) error {
		return report.WriteMissingSummaryXLSX(w, rows,
			fulfillment.MissingByStore(rows, q.Sort), fulfillment.MissingByItem(rows, q.Sort))
	})
}

func (p *Portal) saveReport(name string, write func(io.Writer) error) (string, error) {
	if p.exportDir == "" {
		return "", errors.New("no export directory configured")
	}
	if err := os.MkdirAll(p.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(p.exportDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	p.state.SetMessage("Saved " + path)
	p.logf("saved report %s", path)
	return path, nil
}

// Flush waits for in-flight status pushes.
func (p *Portal) Flush() {
	p.delivery.Flush()
}

func (p *Portal) publishCatalog(snap catalog.Snapshot) {
	p.state.SetCatalog(snap, catalog.Steps(snap))
}

func (p *Portal) publishDraft() {
	p.state.SetDraft(p.draft.Snapshot())
}

func (p *Portal) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

func orderLabel(o orders.Order) string {
	if key := o.RemoteKey(); key != "" {
		return key
	}
	return o.ID
}
