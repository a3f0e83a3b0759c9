package sheetserver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/five82/orderdesk/internal/rowmap"
)

// Sheet names read from and written to the workbook.
const (
	SheetCategories = "Categories"
	SheetProducts   = "Products"
	SheetOrders     = "Orders"
	SheetOrderItems = "OrderItems"
)

var sheetNames = []string{SheetCategories, SheetProducts, SheetOrders, SheetOrderItems}

// maxXLSRows bounds legacy workbook reads.
const maxXLSRows = 100000

// Table is one worksheet: a header row plus data rows. Headers keep their
// original spelling.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the index of the first header that folds to one of the
// field's aliases.
func (t *Table) Column(field string) int {
	aliases := rowmap.Aliases(field)
	for i, h := range t.Headers {
		if slices.Contains(aliases, rowmap.NormalizeKey(h)) {
			return i
		}
	}
	return -1
}

// ensureColumn returns the column for field, appending a header named after
// the field's preferred alias when none exists.
func (t *Table) ensureColumn(field string) int {
	if i := t.Column(field); i >= 0 {
		return i
	}
	header := field
	if aliases := rowmap.Aliases(field); len(aliases) > 0 {
		header = aliases[0]
	}
	t.Headers = append(t.Headers, header)
	return len(t.Headers) - 1
}

// Get reads a cell, tolerating short rows.
func (t *Table) Get(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

func (t *Table) set(row, col int, value string) {
	for len(t.Rows[row]) <= col {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][col] = value
}

// Append adds a row given logical field values.
func (t *Table) Append(values map[string]string) {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	row := make([]string, len(t.Headers))
	t.Rows = append(t.Rows, row)
	idx := len(t.Rows) - 1
	for _, f := range fields {
		t.set(idx, t.ensureColumn(f), values[f])
	}
}

// Objects renders rows as header-keyed objects, skipping blank headers and
// empty rows.
func (t *Table) Objects() []any {
	out := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]any, len(t.Headers))
		empty := true
		for i, h := range t.Headers {
			if strings.TrimSpace(h) == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = row[i]
			}
			if strings.TrimSpace(v) != "" {
				empty = false
			}
			obj[h] = v
		}
		if !empty {
			out = append(out, obj)
		}
	}
	return out
}

func tableFromRows(rows [][]string) *Table {
	if len(rows) == 0 {
		return &Table{}
	}
	t := &Table{Headers: append([]string(nil), rows[0]...)}
	for _, r := range rows[1:] {
		t.Rows = append(t.Rows, append([]string(nil), r...))
	}
	return t
}

// Workbook is the set of sheets backing the API.
type Workbook struct {
	Sheets map[string]*Table
}

// NewWorkbook returns a workbook with every sheet present and empty.
func NewWorkbook() *Workbook {
	wb := &Workbook{Sheets: make(map[string]*Table, len(sheetNames))}
	for _, name := range sheetNames {
		wb.Sheets[name] = &Table{}
	}
	return wb
}

// Sheet returns the named table, creating it when missing.
func (wb *Workbook) Sheet(name string) *Table {
	t, ok := wb.Sheets[name]
	if !ok {
		t = &Table{}
		wb.Sheets[name] = t
	}
	return t
}

// LoadWorkbook opens an .xlsx or .xls file by extension.
func LoadWorkbook(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		return ReadXLS(bytes.NewReader(data))
	default:
		return ReadXLSX(bytes.NewReader(data))
	}
}

// ReadXLSX loads the known sheets from an xlsx stream. Sheet names match
// case-insensitively; missing sheets are empty.
func ReadXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	wb := NewWorkbook()
	for _, actual := range f.GetSheetList() {
		name, ok := knownSheet(actual)
		if !ok {
			continue
		}
		rows, err := f.GetRows(actual)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", actual, err)
		}
		wb.Sheets[name] = tableFromRows(rows)
	}
	return wb, nil
}

// ReadXLS loads the known sheets from a legacy BIFF workbook.
func ReadXLS(r io.ReadSeeker) (*Workbook, error) {
	book, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	wb := NewWorkbook()
	for i := 0; i < book.NumSheets(); i++ {
		sheet := book.GetSheet(i)
		if sheet == nil {
			continue
		}
		name, ok := knownSheet(sheet.Name)
		if !ok {
			continue
		}
		var rows [][]string
		for j := 0; j <= int(sheet.MaxRow) && j < maxXLSRows; j++ {
			row := sheet.Row(j)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for k := row.FirstCol(); k < row.LastCol(); k++ {
				for len(cells) < k {
					cells = append(cells, "")
				}
				cells = append(cells, row.Col(k))
			}
			rows = append(rows, cells)
		}
		wb.Sheets[name] = tableFromRows(rows)
	}
	return wb, nil
}

func knownSheet(name string) (string, bool) {
	folded := rowmap.NormalizeKey(name)
	for _, known := range sheetNames {
		if rowmap.NormalizeKey(known) == folded {
			return known, true
		}
	}
	switch folded {
	case "order_items", "items", "lines":
		return SheetOrderItems, true
	}
	return "", false
}

// WriteXLSX writes every sheet with its header row.
func (wb *Workbook) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, name := range sheetNames {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %s: %w", name, err)
		}
		t := wb.Sheet(name)
		rows := append([][]string{t.Headers}, t.Rows...)
		for r, cells := range rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			values := make([]any, len(cells))
			for c, v := range cells {
				values[c] = v
			}
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return fmt.Errorf("write %s row %d: %w", name, r+1, err)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes the workbook to path through a temporary file.
func (wb *Workbook) SaveXLSX(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".orderdesk-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := wb.WriteXLSX(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
