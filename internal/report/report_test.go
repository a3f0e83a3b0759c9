package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/orders"
)

func open(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteMissingXLSX(t *testing.T) {
	rows := []fulfillment.MissingRow{
		{OrderID: "ORD-1", Store: "North", RequestedDate: "2024-05-02", SKU: "A1", Name: "Lettuce", Ordered: 10, Collected: 7, Missing: 3, Reason: "partial"},
		{OrderID: "ORD-2", Store: "South", RequestedDate: "2024-05-02", SKU: "C1", Name: "Buns", Ordered: 4, Missing: 4, Reason: "unavailable"},
	}
	fills := []fulfillment.StoreFill{
		{Store: "North", Ordered: 12, Delivered: 9, Rate: decimal.NewFromInt(75)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMissingXLSX(&buf, rows, fills))

	f := open(t, &buf)
	assert.Equal(t, []string{SheetMissing, SheetFillRates}, f.GetSheetList())

	got, err := f.GetRows(SheetMissing)
	require.NoError(t, err)
	require.Len(t, got, 3, spew.Sdump(got))
	assert.Equal(t, "Store", got[0][0])
	assert.Equal(t, []string{"North", "2024-05-02", "ORD-1", "A1", "Lettuce", "10", "7", "3", "partial"}, got[1])
	assert.Equal(t, "4", got[2][7])

	rates, err := f.GetRows(SheetFillRates)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, []string{"North", "12", "9", "75"}, rates[1])

	styleID, err := f.GetCellStyle(SheetMissing, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

type fixedDelivery map[string]int

func (d fixedDelivery) DeliveredQty(orderID string, item orders.OrderItem) int {
	return d[orderID+"/"+item.SKU]
}

func TestWriteHistoryXLSX(t *testing.T) {
	groups := orders.GroupByStore([]orders.Order{
		{ID: "ORD-1", Store: "North", RequestedDate: "2024-05-02", PlacedBy: "Sam", CreatedAt: "2024-05-01T08:00:00Z",
			Items: []orders.OrderItem{{SKU: "A1", Name: "Lettuce", Unit: "case", Qty: 10}, {}}},
		{ID: "local-1", Store: "North", RequestedDate: "2024-05-03", CreatedAt: "2024-05-01T09:00:00Z",
			Items: []orders.OrderItem{{SKU: "B1", Name: "Tomato", Qty: 2}}},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteHistoryXLSX(&buf, groups, fixedDelivery{"ORD-1/A1": 6}))

	got, err := open(t, &buf).GetRows(SheetHistory)
	require.NoError(t, err)
	require.Len(t, got, 3, "blank lines are skipped: %s", spew.Sdump(got))
	assert.Equal(t, "local-1", got[1][1], "newest order first")
	assert.Equal(t, "ORD-1", got[2][1])
	assert.Equal(t, "6", got[2][9])
}

func TestWriteHistoryXLSXWithoutDelivery(t *testing.T) {
	groups := orders.GroupByStore([]orders.Order{
		{ID: "ORD-1", Store: "North", Items: []orders.OrderItem{{SKU: "A1", Name: "Lettuce", Qty: 1}}},
	})
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryXLSX(&buf, groups, nil))

	got, err := open(t, &buf).GetRows(SheetHistory)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[1][8])
}

func TestWriteComparisonXLSX(t *testing.T) {
	now := time.Date(2024, time.May, 15, 0, 0, 0, 0, time.Local)
	list := []orders.Order{
		{ID: "1", Store: "North", RequestedDate: "2024-05-10", Items: []orders.OrderItem{{SKU: "A1", Name: "Lettuce", Qty: 4}}},
		{ID: "2", Store: "South", RequestedDate: "2024-04-10", Items: []orders.OrderItem{{SKU: "A1", Name: "Lettuce", Qty: 9}}},
	}
	c, err := orders.CompareStores(list, orders.Target{Scope: orders.ScopeProduct, Key: "A1"},
		orders.StandardFrames(now, time.Time{}, time.Time{}), nil, orders.SortStoreAsc)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteComparisonXLSX(&buf, c))

	f := open(t, &buf)
	assert.Equal(t, []string{SheetVolume}, f.GetSheetList())
	got, err := f.GetRows(SheetVolume)
	require.NoError(t, err)
	require.Len(t, got, 3, spew.Sdump(got))
	assert.Equal(t, []string{
		"Store",
		"Custom range (no range set)",
		"Last 30 days (2024-04-15 to 2024-05-15)",
		"Last month (2024-04-01 to 2024-04-30)",
		"Last quarter (2024-02-01 to 2024-04-30)",
		"Last year (2023-01-01 to 2023-12-31)",
	}, got[0])
	assert.Equal(t, []string{"North", "", "4", "0", "0", "0"}, got[1])
	assert.Equal(t, []string{"South", "", "0", "9", "9", "0"}, got[2])
}

func TestWriteMissingSummaryXLSX(t *testing.T) {
	rows := []fulfillment.MissingRow{
		{OrderID: "ORD-1", Store: "North", RequestedDate: "2024-05-02", SKU: "A1", Name: "Lettuce", Ordered: 10, Collected: 7, Missing: 3, Reason: "partial"},
		{OrderID: "ORD-2", Store: "South", RequestedDate: "2024-05-03", SKU: "A1", Name: "Lettuce", Ordered: 4, Missing: 4, Reason: "unavailable"},
	}
	byStore := fulfillment.MissingByStore(rows, orders.SortQtyDesc)
	byItem := fulfillment.MissingByItem(rows, orders.SortQtyDesc)

	var buf bytes.Buffer
	require.NoError(t, WriteMissingSummaryXLSX(&buf, rows, byStore, byItem))

	f := open(t, &buf)
	assert.Equal(t, []string{SheetMissing, SheetByStore, SheetByItem}, f.GetSheetList())

	missing, err := f.GetRows(SheetMissing)
	require.NoError(t, err)
	assert.Len(t, missing, 3)

	stores, err := f.GetRows(SheetByStore)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Store", "Missing"}, {"South", "4"}, {"North", "3"}, {"Total", "7"}}, stores)

	items, err := f.GetRows(SheetByItem)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Item", "Missing"}, {"Lettuce", "7"}, {"Total", "7"}}, items)
}
