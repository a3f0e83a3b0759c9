package draft

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/localstore"
)

func newManager(opts Options) (*Manager, *localstore.Store) {
	store := localstore.New(localstore.NewMemory(), nil)
	return NewManager(store, opts), store
}

func TestSetQuantityScenarioB(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{})

	changed, err := m.SetQuantity(ctx, "A1", 5)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.SetQuantity(ctx, "A1", 0)
	require.NoError(t, err)
	assert.True(t, changed)

	d := m.Snapshot()
	_, present := d.Quantities["A1"]
	assert.False(t, present)
	assert.True(t, d.Dirty)
}

func TestSetQuantityProperty(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{MaxQty: 50})

	inputs := []float64{0, 0.4, 1, 1.9, 7, 49.99, 50, 51, 1e9}
	for _, q := range inputs {
		_, err := m.SetQuantity(ctx, "S", q)
		require.NoError(t, err)
		got, present := m.Snapshot().Quantities["S"]
		if math.Floor(q) <= 0 {
			assert.False(t, present, "q=%v", q)
			continue
		}
		require.True(t, present, "q=%v", q)
		assert.Equal(t, int(math.Min(math.Floor(q), 50)), got, "q=%v", q)
	}
}

func TestSetQuantityRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{})
	_, err := m.SetQuantity(ctx, "A1", 3)
	require.NoError(t, err)
	require.NoError(t, m.MarkClean(ctx))

	for _, q := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		changed, err := m.SetQuantity(ctx, "A1", q)
		require.NoError(t, err)
		assert.False(t, changed, "q=%v", q)
	}
	changed, err := m.SetQuantity(ctx, "  ", 3)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = m.SetQuantity(ctx, "A1", 3.7)
	require.NoError(t, err)
	assert.False(t, changed, "same floored value is not a change")

	d := m.Snapshot()
	assert.Equal(t, 3, d.Quantities["A1"])
	assert.False(t, d.Dirty)
}

func TestDraftPersistsAndResumes(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(Options{})
	_, err := m.SetQuantity(ctx, "A1", 2)
	require.NoError(t, err)
	_, err = m.SetMeta(ctx, Meta{Store: " North ", RequestedDate: "2024-05-02", PlacedBy: "Sam"})
	require.NoError(t, err)
	require.NoError(t, m.SetPosition(ctx, 7, 3))

	resumed := NewManager(store, Options{})
	require.True(t, resumed.Load(ctx))
	d := resumed.Snapshot()
	assert.Equal(t, 2, d.Quantities["A1"])
	assert.Equal(t, "North", d.Meta.Store)
	assert.Equal(t, 2, d.Position)
	assert.True(t, d.Dirty)
}

func TestBuildPayloadFollowsSteps(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{})
	for sku, q := range map[string]float64{"B1": 1, "A1": 4, "GONE": 2} {
		_, err := m.SetQuantity(ctx, sku, q)
		require.NoError(t, err)
	}
	steps := []catalog.Product{
		{SKU: "A1", Name: "Milk", Unit: "case"},
		{SKU: "C1", Name: "Cheese"},
		{SKU: "B1", Name: "Rice"},
	}
	items := m.BuildPayload(steps)
	require.Len(t, items, 2)
	assert.Equal(t, "A1", items[0].SKU)
	assert.Equal(t, 4, items[0].Qty)
	assert.Equal(t, "case", items[0].Unit)
	assert.Equal(t, "B1", items[1].SKU)
}

func TestResetAfterSubmitKeepsMeta(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{})
	_, _ = m.SetMeta(ctx, Meta{Store: "North", PlacedBy: "Sam", RequestedDate: "2024-05-02"})
	_, _ = m.SetQuantity(ctx, "A1", 2)

	require.NoError(t, m.ResetAfterSubmit(ctx))
	d := m.Snapshot()
	assert.Empty(t, d.Quantities)
	assert.False(t, d.Dirty)
	assert.Equal(t, "North", d.Meta.Store)
	assert.Equal(t, "Sam", d.Meta.PlacedBy)
}

func TestConfirmRefreshGate(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{})
	assert.True(t, m.ConfirmRefresh(false, nil), "clean drafts never ask")

	_, _ = m.SetQuantity(ctx, "A1", 1)
	asked := 0
	decline := func() bool { asked++; return false }
	assert.False(t, m.ConfirmRefresh(false, decline))
	assert.Equal(t, 1, asked)
	assert.True(t, m.ConfirmRefresh(true, decline))
	assert.Equal(t, 1, asked, "force skips the prompt")
	assert.False(t, m.ConfirmRefresh(false, nil))
	assert.True(t, m.ConfirmRefresh(false, func() bool { return true }))
}

func TestValidateMeta(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{Stores: []string{"North", "South"}})
	assert.ErrorIs(t, m.ValidateMeta(), ErrMissingStore)

	_, _ = m.SetMeta(ctx, Meta{Store: "East"})
	assert.ErrorIs(t, m.ValidateMeta(), ErrUnknownStore)

	_, _ = m.SetMeta(ctx, Meta{Store: "north"})
	assert.ErrorIs(t, m.ValidateMeta(), ErrMissingDate)

	_, _ = m.SetMeta(ctx, Meta{Store: "north", RequestedDate: "2024-05-02"})
	assert.True(t, errors.Is(m.ValidateMeta(), ErrMissingPlacedBy))

	_, _ = m.SetMeta(ctx, Meta{Store: "north", RequestedDate: "2024-05-02", PlacedBy: "Sam"})
	assert.NoError(t, m.ValidateMeta())
}

func TestStoreLockOverridesMeta(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(Options{StoreLock: "Downtown"})
	assert.Equal(t, "Downtown", m.Snapshot().Meta.Store)

	_, err := m.SetMeta(ctx, Meta{Store: "Elsewhere", PlacedBy: "Sam"})
	require.NoError(t, err)
	assert.Equal(t, "Downtown", m.Snapshot().Meta.Store)
}

func TestLoadDropsInvalidStoredQuantities(t *testing.T) {
	ctx := context.Background()
	store := localstore.New(localstore.NewMemory(), nil)
	require.NoError(t, store.Save(ctx, localstore.DatasetDraft, Draft{
		Quantities: map[string]int{"A1": 3, "B1": 0, "C1": -2, "D1": 20000},
	}))
	m := NewManager(store, Options{})
	require.True(t, m.Load(ctx))
	assert.Equal(t, map[string]int{"A1": 3, "D1": DefaultMaxQty}, m.Snapshot().Quantities)
}
