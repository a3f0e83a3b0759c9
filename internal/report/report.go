// Package report exports delivery and history views as xlsx workbooks for
// store managers who work in spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/orders"
)

const (
	SheetMissing   = "Missing"
	SheetFillRates = "Fill Rates"
	SheetHistory   = "History"
	SheetVolume    = "Store Volume"
	SheetByStore   = "Missing By Store"
	SheetByItem    = "Missing By Item"
)

// DeliveryLookup resolves delivered quantities. *fulfillment.Machine
// implements it.
type DeliveryLookup interface {
	DeliveredQty(orderID string, item orders.OrderItem) int
}

var missingHeader = []any{"Store", "Requested", "Order", "SKU", "Item", "Ordered", "Collected", "Missing", "Reason"}

func missingBody(rows []fulfillment.MissingRow) [][]any {
	body := make([][]any, 0, len(rows))
	for _, r := range rows {
		body = append(body, []any{r.Store, r.RequestedDate, r.OrderID, r.SKU, r.Name, r.Ordered, r.Collected, r.Missing, r.Reason})
	}
	return body
}

// WriteMissingXLSX writes the shortfall list and per-store fill rates.
func WriteMissingXLSX(w io.Writer, rows []fulfillment.MissingRow, fills []fulfillment.StoreFill) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeSheet(f, SheetMissing, missingHeader, missingBody(rows)); err != nil {
		return err
	}

	body := make([][]any, 0, len(fills))
	for _, s := range fills {
		rate, _ := s.Rate.Float64()
		body = append(body, []any{s.Store, s.Ordered, s.Delivered, rate})
	}
	if err := writeSheet(f, SheetFillRates, []any{"Store", "Ordered", "Delivered", "Fill %"}, body); err != nil {
		return err
	}
	return finish(f, w)
}

// WriteHistoryXLSX writes one row per visible line, grouped by store.
// delivered may be nil, leaving the Delivered column empty.
func WriteHistoryXLSX(w io.Writer, groups []orders.StoreGroup, delivered DeliveryLookup) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := []any{"Store", "Order", "Created", "Requested", "Placed By", "SKU", "Item", "Unit", "Qty", "Delivered", "Notes"}
	var body [][]any
	for _, g := range groups {
		for _, o := range g.Orders {
			for _, it := range o.Items {
				if !it.Visible() {
					continue
				}
				var got any
				if delivered != nil {
					got = delivered.DeliveredQty(o.ID, it)
				}
				body = append(body, []any{g.Store, orderRef(o), o.CreatedAt, o.RequestedDate, o.PlacedBy, it.SKU, it.Name, it.Unit, it.Qty, got, o.Notes})
			}
		}
	}
	if err := writeSheet(f, SheetHistory, header, body); err != nil {
		return err
	}
	return finish(f, w)
}

// WriteComparisonXLSX writes the store volume report: one row per store and
// one column per frame. Frames that are not active are left blank.
func WriteComparisonXLSX(w io.Writer, c orders.Comparison) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := []any{"Store"}
	for _, fr := range c.Frames {
		header = append(header, fr.Label+" ("+fr.RangeLabel()+")")
	}
	body := make([][]any, 0, len(c.Rows))
	for _, r := range c.Rows {
		row := []any{r.Store}
		for i, fr := range c.Frames {
			if !fr.Active || i >= len(r.Totals) {
				row = append(row, nil)
				continue
			}
			row = append(row, r.Totals[i])
		}
		body = append(body, row)
	}
	if err := writeSheet(f, SheetVolume, header, body); err != nil {
		return err
	}
	return finish(f, w)
}

// WriteMissingSummaryXLSX writes the filtered shortfall list with its totals
// per store and per item.
func WriteMissingSummaryXLSX(w io.Writer, rows []fulfillment.MissingRow, byStore, byItem []fulfillment.MissingTotal) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeSheet(f, SheetMissing, missingHeader, missingBody(rows)); err != nil {
		return err
	}
	for _, sheet := range []struct {
		name   string
		first  string
		totals []fulfillment.MissingTotal
	}{
		{SheetByStore, "Store", byStore},
		{SheetByItem, "Item", byItem},
	} {
		body := make([][]any, 0, len(sheet.totals)+1)
		sum := 0
		for _, t := range sheet.totals {
			body = append(body, []any{t.Label, t.Missing})
			sum += t.Missing
		}
		body = append(body, []any{"Total", sum})
		if err := writeSheet(f, sheet.name, []any{sheet.first, "Missing"}, body); err != nil {
			return err
		}
	}
	return finish(f, w)
}

// orderRef prefers the id the spreadsheet knows; unsynced orders show the
// local id.
func orderRef(o orders.Order) string {
	if key := o.RemoteKey(); key != "" {
		return key
	}
	return o.ID
}

func writeSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	if f.SheetCount == 1 && f.GetSheetName(0) == "Sheet1" {
		if err := f.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, bold); err != nil {
		return fmt.Errorf("style %s header: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}

func finish(f *excelize.File, w io.Writer) error {
	if idx, err := f.GetSheetIndex(f.GetSheetName(0)); err == nil {
		f.SetActiveSheet(idx)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
