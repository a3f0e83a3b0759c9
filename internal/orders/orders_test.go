package orders

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/sheetapi"
)

type fakeLister struct {
	rows  sheetapi.OrderRows
	err   error
	calls atomic.Int32
}

func (f *fakeLister) ListOrders(context.Context) (sheetapi.OrderRows, error) {
	f.calls.Add(1)
	return f.rows, f.err
}

type fakeCatalog struct{ snap catalog.Snapshot }

func (f fakeCatalog) LoadCached(context.Context) (catalog.Snapshot, bool) {
	return f.snap, true
}

func TestNormalizeJoinsItemsByOrderID(t *testing.T) {
	list := Normalize(
		[]any{
			map[string]any{"Order ID": "ORD-1", "Store": "North", "Requested Date": "2024-05-02", "Placed By": "Sam", "Created At": "2024-05-01T10:00:00Z"},
			map[string]any{"orderId": "ORD-2", "store": "South", "items": []any{
				map[string]any{"SKU": "E1", "Quantity": 3.0},
			}},
			map[string]any{"store": "West"},
			42.0,
		},
		[]any{
			map[string]any{"Order ID": "ORD-1", "SKU": "A1", "Qty": "2"},
			map[string]any{"order_id": "ORD-1", "sku": "B1", "qty": 1.0, "Status": "Pulled"},
			map[string]any{"order_id": "ORD-2", "sku": "IGNORED", "qty": 1.0},
			map[string]any{"sku": "ORPHAN", "qty": 4.0},
		},
	)
	require.Len(t, list, 3, spew.Sdump(list))

	assert.Equal(t, "ORD-1", list[0].ID)
	assert.Equal(t, "North", list[0].Store)
	assert.Equal(t, "2024-05-02", list[0].RequestedDate)
	assert.Equal(t, "Sam", list[0].PlacedBy)
	require.Len(t, list[0].Items, 2)
	assert.Equal(t, 2, list[0].Items[0].Qty)
	assert.Equal(t, "Pulled", list[0].Items[1].Status)

	require.Len(t, list[1].Items, 1, "embedded items win over joined rows")
	assert.Equal(t, "E1", list[1].Items[0].SKU)

	assert.True(t, strings.HasPrefix(list[2].ID, "remote-"))
	assert.Empty(t, list[2].Items)
}

func TestNormalizeFallbackIDIsStable(t *testing.T) {
	rows := func() []any {
		return []any{
			map[string]any{"Store": "West", "Requested Date": "2024-05-02", "Created At": "2024-05-01T09:00:00Z"},
			map[string]any{"Store": "West", "Requested Date": "2024-05-02", "Created At": "2024-05-01T09:00:00Z"},
			map[string]any{"Store": "East", "Requested Date": "2024-05-02", "Created At": "2024-05-01T09:00:00Z"},
		}
	}
	first := Normalize(rows(), nil)
	again := Normalize(rows(), nil)
	require.Len(t, first, 3)
	require.Len(t, again, 3)

	for i := range first {
		assert.True(t, strings.HasPrefix(first[i].ID, "remote-"), first[i].ID)
		assert.Equal(t, first[i].ID, again[i].ID, "refresh must keep the id of row %d", i)
	}
	assert.NotEqual(t, first[0].ID, first[1].ID, "identical rows get distinct ids")
	assert.Equal(t, first[0].ID+"-2", first[1].ID)
	assert.NotEqual(t, first[0].ID, first[2].ID)
}

func TestEnrichNeverOverwrites(t *testing.T) {
	list := []Order{{ID: "1", Items: []OrderItem{
		{SKU: "A1", Name: "Custom Milk"},
		{SKU: "B1"},
		{SKU: "ZZ"},
	}}}
	products := map[string]catalog.Product{
		"A1": {SKU: "A1", Name: "Milk", Unit: "case", Category: "DAIRY", PackSize: "6"},
		"B1": {SKU: "B1", Name: "Rice", Unit: "bag", Category: "DRY", ItemNo: "100"},
	}
	Enrich(list, products)

	assert.Equal(t, "Custom Milk", list[0].Items[0].Name)
	assert.Equal(t, "case", list[0].Items[0].Unit)
	assert.Equal(t, "Rice", list[0].Items[1].Name)
	assert.Equal(t, "100", list[0].Items[1].ItemNo)
	assert.Equal(t, OrderItem{SKU: "ZZ"}, list[0].Items[2])
}

func TestItemKeyFallbacks(t *testing.T) {
	assert.Equal(t, "A1", OrderItem{SKU: " A1 ", ItemNo: "9", Name: "x"}.Key())
	assert.Equal(t, "9", OrderItem{ItemNo: "9", Name: "x"}.Key())
	assert.Equal(t, "x", OrderItem{Name: "x"}.Key())
	assert.Equal(t, "", OrderItem{}.Key())
	assert.False(t, OrderItem{ItemNo: "9"}.Visible())
}

func TestMergeKeepsUnsyncedLocalOrders(t *testing.T) {
	remote := []Order{{ID: "R1"}, {ID: "R2"}}
	local := []Order{
		{ID: "local-a"},
		{ID: "local-b", RemoteID: "R2"},
		{ID: "local-c", RemoteID: "R9"},
		{ID: "R1"},
	}
	merged := Merge(remote, local)
	ids := make([]string, len(merged))
	for i, o := range merged {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"local-a", "local-c", "R1", "R2"}, ids)
}

func newManager(l Lister) *Manager {
	store := localstore.New(localstore.NewMemory(), nil)
	snap := catalog.Snapshot{Products: []catalog.Product{{SKU: "A1", Name: "Milk", Unit: "case"}}}
	return NewManager(store, l, Options{Catalog: fakeCatalog{snap: snap}})
}

func TestRefreshEnrichesAndDetectsUnchanged(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{rows: sheetapi.OrderRows{
		Orders:    []any{map[string]any{"id": "R1", "store": "North"}},
		Items:     []any{map[string]any{"order_id": "R1", "sku": "A1", "qty": 2.0}},
		UpdatedAt: "u1",
	}}
	m := newManager(l)

	res, err := m.Refresh(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Unchanged)
	assert.Equal(t, "Milk", res.History.Orders[0].Items[0].Name)
	assert.Equal(t, "History: loaded 1 orders", res.Summary())

	res, err = m.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, catalog.SourceCache, res.Source)
	assert.EqualValues(t, 1, l.calls.Load())

	res, err = m.Refresh(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, "History: Fully Refreshed and Up to Date", res.Summary())

	l.rows.UpdatedAt = "u2"
	res, err = m.Refresh(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Unchanged)
}

func TestLocalOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{rows: sheetapi.OrderRows{Orders: []any{map[string]any{"id": "R1"}}, UpdatedAt: "u1"}}
	m := newManager(l)

	local := Order{ID: NewLocalID(), Store: "North", Items: []OrderItem{{SKU: "A1", Qty: 1}}}
	require.NoError(t, m.AppendLocal(ctx, local))
	require.Error(t, m.AppendLocal(ctx, Order{ID: "R5"}))

	res, err := m.Refresh(ctx, true)
	require.NoError(t, err)
	require.Len(t, res.History.Orders, 2)
	assert.Equal(t, local.ID, res.History.Orders[0].ID, "unsynced local order stays first")

	require.NoError(t, m.MarkSynced(ctx, local.ID, "R2"))
	found, ok := m.Find(ctx, "R2")
	require.True(t, ok)
	assert.Equal(t, local.ID, found.ID)

	l.rows.Orders = append(l.rows.Orders, map[string]any{"id": "R2"})
	res, err = m.Refresh(ctx, true)
	require.NoError(t, err)
	require.Len(t, res.History.Orders, 2, "local copy is dropped once the server lists it")
	assert.Equal(t, "R1", res.History.Orders[0].ID)

	assert.Error(t, m.MarkSynced(ctx, "local-missing", "R3"))
}

func TestRefreshOrFallback(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{err: errors.New("offline")}
	m := newManager(l)

	_, err := m.RefreshOrFallback(ctx, true)
	require.Error(t, err, "no cache means the error surfaces")

	l.err = nil
	l.rows = sheetapi.OrderRows{Orders: []any{map[string]any{"id": "R1"}}}
	_, err = m.Refresh(ctx, true)
	require.NoError(t, err)

	l.err = errors.New("offline")
	res, err := m.RefreshOrFallback(ctx, true)
	require.NoError(t, err)
	assert.Error(t, res.FallbackErr)
	assert.Len(t, res.History.Orders, 1)
}

func TestGroupByStoreAndFilters(t *testing.T) {
	list := []Order{
		{ID: "1", Store: "north", CreatedAt: "2024-05-01T08:00:00Z", RequestedDate: "2024-05-02",
			Items: []OrderItem{{SKU: "b", Name: "Rice"}, {SKU: "a", Name: "apple"}}},
		{ID: "2", Store: "Annex", CreatedAt: "2024-05-03T08:00:00Z", RequestedDate: "2024-05-04"},
		{ID: "3", Store: "North", CreatedAt: "2024-05-05T08:00:00Z", RequestedDate: "2024-05-02"},
	}

	groups := GroupByStore(list)
	require.Len(t, groups, 2)
	assert.Equal(t, "Annex", groups[0].Store)
	assert.Equal(t, "north", groups[1].Store)
	assert.Equal(t, "3", groups[1].Orders[0].ID, "newest first")
	assert.Equal(t, "apple", groups[1].Orders[1].Items[0].Name)
	assert.Equal(t, "Rice", list[0].Items[0].Name, "input is not mutated")

	f := Filter{Start: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}
	assert.Len(t, f.Apply(list), 2)
	f = Filter{End: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Store: "NORTH"}
	assert.Len(t, f.Apply(list), 1)

	assert.Len(t, ForDate(list, "2024-05-02"), 2)
	assert.Equal(t, []string{"Annex", "north"}, Stores(list))
}
