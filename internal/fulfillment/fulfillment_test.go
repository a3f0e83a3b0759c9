package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/orders"
	"github.com/five82/orderdesk/internal/sheetapi"
)

type recordingPusher struct {
	mu          sync.Mutex
	orderPushes []string
	itemPushes  []sheetapi.ItemStatusUpdate
	err         error
}

func (p *recordingPusher) UpdateOrderStatus(_ context.Context, orderID, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderPushes = append(p.orderPushes, orderID+"="+status)
	return p.err
}

func (p *recordingPusher) UpdateOrderItemStatus(_ context.Context, u sheetapi.ItemStatusUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.itemPushes = append(p.itemPushes, u)
	return p.err
}

func (p *recordingPusher) count(status string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.orderPushes {
		if s == status {
			n++
		}
	}
	return n
}

func newMachine(p Pusher, notify func(Notice)) (*Machine, *localstore.Store) {
	store := localstore.New(localstore.NewMemory(), nil)
	return NewMachine(store, p, Options{Notify: notify}), store
}

func sampleOrder() orders.Order {
	return orders.Order{ID: "ORD-1", Store: "North", RequestedDate: "2024-05-02", Items: []orders.OrderItem{
		{SKU: "A1", Name: "Milk", Qty: 10},
		{SKU: "B1", Name: "Rice", Qty: 2},
		{ItemNo: "", Name: "", SKU: "", Qty: 0},
	}}
}

func intPtr(v int) *int { return &v }

func TestLabelRoundTrip(t *testing.T) {
	for ordered := 0; ordered <= 12; ordered++ {
		for pulled := 0; pulled <= ordered; pulled++ {
			label := Encode(FromQty(pulled, ordered), ordered)
			decoded, ok := Decode(label, ordered)
			require.True(t, ok, "label %q", label)
			assert.Equal(t, pulled, decoded.PulledQty(ordered), "ordered=%d label=%q", ordered, label)
		}
		label := Encode(StateUnavailable(), ordered)
		decoded, ok := Decode(label, ordered)
		require.True(t, ok)
		assert.Equal(t, Unavailable, decoded.Kind)
		assert.Equal(t, 0, decoded.PulledQty(ordered))
	}
}

func TestDecodeForms(t *testing.T) {
	tests := []struct {
		label   string
		ordered int
		want    ItemState
		ok      bool
	}{
		{"Pulled", 5, StatePulled(), true},
		{"collected", 5, StatePulled(), true},
		{"Not Pulled", 5, StateNotPulled(), true},
		{"Unavailable", 5, StateUnavailable(), true},
		{"Out of stock at warehouse", 5, StateUnavailable(), true},
		{"Partially Collected 3 of 5", 5, StatePartial(3), true},
		{"partially pulled 2 of 4", 4, StatePartial(2), true},
		{"Partially Collected 0 of 5", 5, StateNotPulled(), true},
		{"Partially Collected 5 of 5", 5, StatePulled(), true},
		{"Partially Collected 9 of 5", 5, StatePulled(), true},
		{"Partially Collected 2 of 6", 0, StatePartial(2), true},
		{"", 5, ItemState{}, false},
		{"shipped by drone", 5, ItemState{}, false},
	}
	for _, tt := range tests {
		got, ok := Decode(tt.label, tt.ordered)
		assert.Equal(t, tt.ok, ok, tt.label)
		assert.Equal(t, tt.want, got, tt.label)
	}
	assert.Equal(t, "Partially Collected 4 of 10", Encode(StatePartial(4), 10))
}

func TestItemRecordOverrideWins(t *testing.T) {
	rec := ItemRecord{Status: "Partially Collected 3 of 5", PulledQty: intPtr(1)}
	assert.Equal(t, StatePartial(1), rec.State(5))

	rec = ItemRecord{Status: "Unavailable", PulledQty: intPtr(4)}
	assert.Equal(t, Unavailable, rec.State(5).Kind)

	rec = ItemRecord{Status: "Pulled", PulledQty: intPtr(0)}
	assert.Equal(t, StatePulled(), rec.State(0), "zero-quantity lines stay pulled")

	rec = ItemRecord{Status: "garbled", PulledQty: intPtr(99)}
	assert.Equal(t, StatePulled(), rec.State(5))
}

func TestScenarioCPartialMovesOrderInProgress(t *testing.T) {
	ctx := context.Background()
	p := &recordingPusher{}
	m, _ := newMachine(p, nil)
	order := sampleOrder()

	assert.Equal(t, NotStarted, m.Status(order.ID))
	tr, err := m.SetItemStatus(ctx, order, order.Items[0], "Partially Collected 4 of 10", intPtr(4))
	require.NoError(t, err)
	m.Flush()

	assert.Equal(t, StatePartial(4), tr.Item)
	assert.Equal(t, NotStarted, tr.Previous)
	assert.Equal(t, InProgress, tr.Status)
	assert.Equal(t, 4, m.DeliveredQty(order.ID, order.Items[0]))
	assert.Equal(t, 1, p.count("ORD-1=In Progress"))
	require.Len(t, p.itemPushes, 1)
	assert.Equal(t, sheetapi.ItemStatusUpdate{OrderID: "ORD-1", ProductIndex: 0, ProductName: "Milk", Status: "Partially Collected 4 of 10"}, p.itemPushes[0])
}

func TestScenarioDCompletePushedOnce(t *testing.T) {
	ctx := context.Background()
	p := &recordingPusher{}
	m, _ := newMachine(p, nil)
	order := sampleOrder()

	for _, it := range order.Items[:2] {
		_, err := m.SetItemStatus(ctx, order, it, "", intPtr(it.Qty))
		require.NoError(t, err)
	}
	// Re-applying the same state must not push the order status again.
	_, err := m.Apply(ctx, order, order.Items[1], StatePulled())
	require.NoError(t, err)
	m.Flush()

	assert.Equal(t, Complete, m.Status(order.ID))
	assert.Equal(t, 1, p.count("ORD-1=Complete"), spew.Sdump(p.orderPushes))
	assert.Len(t, p.itemPushes, 3, "item pushes always happen")
}

func TestRollupInvariant(t *testing.T) {
	order := sampleOrder()
	states := []*ItemState{nil, ptr(StateNotPulled()), ptr(StatePartial(1)), ptr(StatePulled()), ptr(StateUnavailable())}
	for _, a := range states {
		for _, b := range states {
			rec := Record{Items: map[string]ItemRecord{}}
			if a != nil {
				rec.Items["A1"] = newItemRecord(*a, 10)
			}
			if b != nil {
				rec.Items["B1"] = newItemRecord(*b, 2)
			}
			got := Rollup(order, rec)
			allPulled := a != nil && b != nil && a.Kind == Pulled && b.Kind == Pulled
			touched := a != nil || b != nil
			name := fmt.Sprintf("%v/%v", a, b)
			assert.Equal(t, allPulled, got == Complete, name)
			assert.Equal(t, !touched, got == NotStarted, name)
		}
	}
}

func ptr(s ItemState) *ItemState { return &s }

func TestUnavailableNeverCompletes(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(&recordingPusher{}, nil)
	order := sampleOrder()
	_, err := m.SetItemStatus(ctx, order, order.Items[0], "Pulled", nil)
	require.NoError(t, err)
	tr, err := m.SetItemStatus(ctx, order, order.Items[1], "Unavailable", intPtr(2))
	require.NoError(t, err)
	m.Flush()
	assert.Equal(t, InProgress, tr.Status)
	assert.Equal(t, 0, m.DeliveredQty(order.ID, order.Items[1]))
}

func TestPushFailureIsNotifiedNotRolledBack(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var notices []Notice
	p := &recordingPusher{err: errors.New("sheet offline")}
	m, _ := newMachine(p, func(n Notice) {
		mu.Lock()
		notices = append(notices, n)
		mu.Unlock()
	})
	order := sampleOrder()

	tr, err := m.SetItemStatus(ctx, order, order.Items[1], "Pulled", nil)
	require.NoError(t, err, "push failures never surface from the transition")
	m.Flush()

	assert.Equal(t, InProgress, tr.Status)
	assert.Equal(t, InProgress, m.Status(order.ID))
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, notices, 2)
	for _, n := range notices {
		assert.Error(t, n.Err)
	}
}

func TestUnsyncedLocalOrderSkipsPushes(t *testing.T) {
	ctx := context.Background()
	p := &recordingPusher{}
	var got []Notice
	m, _ := newMachine(p, func(n Notice) { got = append(got, n) })
	order := sampleOrder()
	order.ID = orders.LocalIDPrefix + "x"

	_, err := m.SetItemStatus(ctx, order, order.Items[0], "Pulled", nil)
	require.NoError(t, err)
	m.Flush()
	assert.Empty(t, p.orderPushes)
	assert.Empty(t, p.itemPushes)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Err)
}

func TestSetItemStatusRejectsUnknownLabelsAndKeylessItems(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(nil, nil)
	order := sampleOrder()
	_, err := m.SetItemStatus(ctx, order, order.Items[0], "teleported", nil)
	assert.Error(t, err)
	_, err = m.Apply(ctx, order, order.Items[2], StatePulled())
	assert.ErrorIs(t, err, ErrNoItemKey)
}

func TestClearItemStatusReturnsToNotStarted(t *testing.T) {
	ctx := context.Background()
	p := &recordingPusher{}
	m, _ := newMachine(p, nil)
	order := sampleOrder()
	_, err := m.Apply(ctx, order, order.Items[0], StatePartial(3))
	require.NoError(t, err)
	tr, err := m.ClearItemStatus(ctx, order, order.Items[0])
	require.NoError(t, err)
	m.Flush()
	assert.Equal(t, NotStarted, tr.Status)
	assert.Equal(t, 1, p.count("ORD-1=Not Started"))
}

func TestLoadMigratesLegacyStrings(t *testing.T) {
	ctx := context.Background()
	mem := localstore.NewMemory()
	store := localstore.New(mem, nil)
	blob := fmt.Sprintf(`{"version":%d,"saved_at":"2024-01-01T00:00:00Z","data":{
		"ORD-1":{"status":"Incomplete","items":{"A1":"pulled","B1":"unavailable"}}}}`, localstore.SchemaVersion)
	require.NoError(t, mem.Set(ctx, localstore.Key(localstore.DatasetDelivery), []byte(blob)))

	m := NewMachine(store, nil, Options{})
	require.NoError(t, m.Load(ctx))

	rec, ok := m.Record("ORD-1")
	require.True(t, ok)
	assert.Equal(t, InProgress, rec.Status)
	assert.Equal(t, ItemRecord{Status: "Pulled"}, rec.Items["A1"])
	require.NotNil(t, rec.Items["B1"].PulledQty)
	assert.Equal(t, "Unavailable", rec.Items["B1"].Status)
	assert.Equal(t, 0, *rec.Items["B1"].PulledQty)

	raw, ok, err := mem.Get(ctx, localstore.Key(localstore.DatasetDelivery))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), `"pulled"`, "migrated book is written back")

	order := sampleOrder()
	assert.Equal(t, 10, m.DeliveredQty("ORD-1", order.Items[0]))
	assert.Equal(t, 0, m.DeliveredQty("ORD-1", order.Items[1]))
}

func TestLastWriteWinsBetweenInstances(t *testing.T) {
	ctx := context.Background()
	mem := localstore.NewMemory()
	a := NewMachine(localstore.New(mem, nil), nil, Options{})
	b := NewMachine(localstore.New(mem.Peer(), nil), nil, Options{})
	order := sampleOrder()

	_, err := a.Apply(ctx, order, order.Items[0], StatePulled())
	require.NoError(t, err)
	_, err = b.Apply(ctx, order, order.Items[1], StatePulled())
	require.NoError(t, err)

	fresh := NewMachine(localstore.New(mem, nil), nil, Options{})
	require.NoError(t, fresh.Load(ctx))
	rec, ok := fresh.Record(order.ID)
	require.True(t, ok)
	_, hasA := rec.Items["A1"]
	assert.False(t, hasA, "the second writer did not merge the first writer's line")
	assert.Contains(t, rec.Items, "B1")
}

func TestDeliveredQtyFallsBackToServerLabel(t *testing.T) {
	m, _ := newMachine(nil, nil)
	item := orders.OrderItem{SKU: "A1", Name: "Milk", Qty: 6, Status: "Partially Collected 2 of 6"}
	assert.Equal(t, 2, m.DeliveredQty("ORD-9", item))
	item.Status = ""
	assert.Equal(t, 0, m.DeliveredQty("ORD-9", item))
}

func TestMissingItemsAndFillRates(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(nil, nil)
	north := sampleOrder()
	south := orders.Order{ID: "ORD-2", Store: "South", Items: []orders.OrderItem{
		{SKU: "C1", Name: "Beans", Qty: 4, Status: "Unavailable"},
	}}

	_, err := m.Apply(ctx, north, north.Items[0], StatePartial(7))
	require.NoError(t, err)
	_, err = m.Apply(ctx, north, north.Items[1], StatePulled())
	require.NoError(t, err)

	rows := m.MissingItems([]orders.Order{south, north})
	require.Len(t, rows, 2, spew.Sdump(rows))
	assert.Equal(t, MissingRow{OrderID: "ORD-1", Store: "North", RequestedDate: "2024-05-02", SKU: "A1", Name: "Milk", Ordered: 10, Collected: 7, Missing: 3, Reason: "partial"}, rows[0])
	assert.Equal(t, "unavailable", rows[1].Reason)
	assert.Equal(t, 4, rows[1].Missing)

	rates := m.FillRates([]orders.Order{south, north})
	require.Len(t, rates, 2)
	assert.Equal(t, "North", rates[0].Store)
	assert.Equal(t, 12, rates[0].Ordered)
	assert.Equal(t, 9, rates[0].Delivered)
	assert.Equal(t, "75", rates[0].Rate.String())
	assert.Equal(t, "0", rates[1].Rate.String())
}

func shortfallOrders() []orders.Order {
	return []orders.Order{
		{ID: "ORD-1", Store: "North", RequestedDate: "2024-05-02", Items: []orders.OrderItem{
			{SKU: "A1", Name: "Milk", Category: "Dairy", Qty: 10, Status: "Partially Collected 7 of 10"},
			{SKU: "B1", Name: "Rice", Category: "Dry", Qty: 2, Status: "Unavailable"},
		}},
		{ID: "ORD-2", Store: "north", RequestedDate: "2024-05-09", Items: []orders.OrderItem{
			{SKU: "A1", Name: "Milk", Category: "Dairy", Qty: 4, Status: "Unavailable"},
		}},
		{ID: "ORD-3", Store: "South", RequestedDate: "2024-05-03", Items: []orders.OrderItem{
			{SKU: "A1", Name: "Milk", Category: "Dairy", Qty: 6, Status: "Partially Collected 5 of 6"},
			{Name: "Loose eggs", Category: "Dairy", Qty: 12, Status: "Unavailable"},
		}},
	}
}

func TestMissingForFilters(t *testing.T) {
	m, _ := newMachine(nil, nil)
	list := shortfallOrders()

	all, err := m.MissingFor(list, MissingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5, spew.Sdump(all))

	cases := []struct {
		name   string
		filter MissingFilter
		orders []string
	}{
		{"store ignores case", MissingFilter{Stores: []string{" NORTH "}}, []string{"ORD-1", "ORD-1", "ORD-2"}},
		{"product", MissingFilter{Target: orders.Target{Scope: orders.ScopeProduct, Key: "milk"}}, []string{"ORD-1", "ORD-2", "ORD-3"}},
		{"category", MissingFilter{Target: orders.Target{Scope: orders.ScopeCategory, Key: "dry"}}, []string{"ORD-1"}},
		{"inclusive range", MissingFilter{Start: time.Date(2024, 5, 3, 0, 0, 0, 0, time.Local), End: time.Date(2024, 5, 9, 0, 0, 0, 0, time.Local)}, []string{"ORD-2", "ORD-3", "ORD-3"}},
		{"open start", MissingFilter{End: time.Date(2024, 5, 2, 0, 0, 0, 0, time.Local)}, []string{"ORD-1", "ORD-1"}},
		{"store and product", MissingFilter{Stores: []string{"South"}, Target: orders.Target{Scope: orders.ScopeProduct, Key: "Loose Eggs"}}, []string{"ORD-3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := m.MissingFor(list, tc.filter)
			require.NoError(t, err)
			var got []string
			for _, r := range rows {
				got = append(got, r.OrderID)
			}
			assert.Equal(t, tc.orders, got)
		})
	}

	_, err = m.MissingFor(list, MissingFilter{
		Start: time.Date(2024, 5, 9, 0, 0, 0, 0, time.Local),
		End:   time.Date(2024, 5, 3, 0, 0, 0, 0, time.Local),
	})
	assert.ErrorIs(t, err, orders.ErrInvertedRange)
}

func TestMissingTotals(t *testing.T) {
	m, _ := newMachine(nil, nil)
	rows, err := m.MissingFor(shortfallOrders(), MissingFilter{})
	require.NoError(t, err)

	byStore := MissingByStore(rows, orders.SortQtyDesc)
	assert.Equal(t, []MissingTotal{
		{Key: "North", Label: "North", Missing: 9},
		{Key: "South", Label: "South", Missing: 13},
	}, MissingByStore(rows, orders.SortStoreAsc))
	assert.Equal(t, "South", byStore[0].Key)

	byItem := MissingByItem(rows, orders.SortQtyDesc)
	assert.Equal(t, []MissingTotal{
		{Key: "Loose eggs", Label: "Loose eggs", Missing: 12},
		{Key: "A1", Label: "Milk", Missing: 8},
		{Key: "B1", Label: "Rice", Missing: 2},
	}, byItem)

	asc := MissingByItem(rows, orders.SortQtyAsc)
	assert.Equal(t, "B1", asc[0].Key)
	named := MissingByItem(rows, orders.SortStoreDesc)
	assert.Equal(t, []string{"Rice", "Milk", "Loose eggs"}, []string{named[0].Label, named[1].Label, named[2].Label})
}

func TestRollupCountsServerLabels(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(&recordingPusher{}, nil)
	order := sampleOrder()
	order.Items[0].Status = "Pulled"

	assert.Equal(t, InProgress, m.OrderStatus(order), "a server label counts as touched")

	tr, err := m.Apply(ctx, order, order.Items[1], StatePulled())
	require.NoError(t, err)
	m.Flush()

	s, known := m.ItemState(order.ID, order.Items[0])
	require.True(t, known)
	assert.Equal(t, Pulled, s.Kind)
	assert.Equal(t, InProgress, tr.Previous)
	assert.Equal(t, Complete, tr.Status)
	assert.Equal(t, Complete, m.OrderStatus(order))
}

func TestRollupIgnoresDefaultServerLabel(t *testing.T) {
	order := sampleOrder()
	order.Items[0].Status = "Not Pulled"
	order.Items[1].Status = "Pending"
	assert.Equal(t, NotStarted, Rollup(order, Record{}))

	order.Items[1].Status = "Unavailable"
	assert.Equal(t, InProgress, Rollup(order, Record{}))

	// A local record beats the server label for the same line.
	rec := Record{Items: map[string]ItemRecord{"B1": newItemRecord(StatePulled(), 2)}}
	order.Items[0].Status = "Pulled"
	assert.Equal(t, Complete, Rollup(order, rec))
}

func TestAdoptMovesRecordToServerID(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(nil, nil)
	local := sampleOrder()
	local.ID = orders.LocalIDPrefix + "1"
	local.RemoteID = "ORD-7"

	_, err := m.Apply(ctx, local, local.Items[0], StatePulled())
	require.NoError(t, err)
	_, err = m.Apply(ctx, local, local.Items[1], StatePartial(1))
	require.NoError(t, err)

	remote := sampleOrder()
	remote.ID = "ORD-7"
	_, err = m.Apply(ctx, remote, remote.Items[1], StatePulled())
	require.NoError(t, err)

	moved, err := m.Adopt(ctx, local.ID, remote)
	require.NoError(t, err)
	require.True(t, moved)

	_, stillLocal := m.Record(local.ID)
	assert.False(t, stillLocal)
	rec, ok := m.Record("ORD-7")
	require.True(t, ok, spew.Sdump(m.Book()))
	assert.Equal(t, Pulled, rec.Items["A1"].State(10).Kind)
	assert.Equal(t, Pulled, rec.Items["B1"].State(2).Kind, "server-id lines win")
	assert.Equal(t, Complete, rec.Status)

	fresh := NewMachine(store, nil, Options{})
	require.NoError(t, fresh.Load(ctx))
	_, ok = fresh.Record("ORD-7")
	assert.True(t, ok, "adopted record is persisted")

	moved, err = m.Adopt(ctx, local.ID, remote)
	require.NoError(t, err)
	assert.False(t, moved)
}
