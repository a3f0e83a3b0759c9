package rowmap

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Logical fields understood by the accessors. Each maps to a list of accepted
// normalized column names in aliases.
const (
	FieldCategory      = "category"
	FieldDisplayName   = "display_name"
	FieldSort          = "sort"
	FieldActive        = "active"
	FieldSKU           = "sku"
	FieldItemNo        = "item_no"
	FieldName          = "name"
	FieldUnit          = "unit"
	FieldPackSize      = "pack_size"
	FieldOrderID       = "order_id"
	FieldItemOrderID   = "item_order_id"
	FieldStore         = "store"
	FieldRequestedDate = "requested_date"
	FieldPlacedBy      = "placed_by"
	FieldNotes         = "notes"
	FieldCreatedAt     = "created_at"
	FieldQty           = "qty"
	FieldStatus        = "status"
	FieldItems         = "items"
)

var aliases = map[string][]string{
	FieldCategory:      {"category", "category_key", "categoryid", "category_id"},
	FieldDisplayName:   {"display_name", "displayname", "label", "title"},
	FieldSort:          {"sort", "sort_order", "sortorder", "position"},
	FieldActive:        {"active", "is_active", "isactive", "enabled"},
	FieldSKU:           {"sku", "product_sku", "productsku"},
	FieldItemNo:        {"item_no", "itemno", "item_number", "item", "item_num"},
	FieldName:          {"name", "product_name", "productname", "item_name", "description"},
	FieldUnit:          {"unit", "uom", "units"},
	FieldPackSize:      {"pack_size", "packsize", "pack", "case_pack", "casepack"},
	FieldOrderID:       {"order_id", "orderid", "id"},
	FieldItemOrderID:   {"order_id", "orderid", "order"},
	FieldStore:         {"store", "store_name", "storename", "location"},
	FieldRequestedDate: {"requested_date", "requesteddate", "delivery_date", "deliverydate", "date"},
	FieldPlacedBy:      {"placed_by", "placedby", "ordered_by", "orderedby"},
	FieldNotes:         {"notes", "note", "comments", "comment"},
	FieldCreatedAt:     {"created_at", "createdat", "timestamp", "submitted_at", "submittedat"},
	FieldQty:           {"qty", "quantity", "order_qty", "orderqty"},
	FieldStatus:        {"status", "delivery_status", "deliverystatus", "item_status"},
	FieldItems:         {"items", "order_items", "orderitems", "lines"},
}

// Aliases returns the accepted column names for a logical field.
func Aliases(field string) []string {
	return append([]string(nil), aliases[field]...)
}

// FieldError describes a row that could not be used.
type FieldError struct {
	Index  int
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Index, e.Field, e.Reason)
}

// NormalizeKey folds a spreadsheet column header: lower case, runs of
// non-alphanumerics become one underscore, edges trimmed.
func NormalizeKey(key string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Row is a record keyed by normalized column names.
type Row map[string]any

// Parse accepts a decoded JSON object. Anything else is a FieldError.
func Parse(raw any) (Row, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &FieldError{Reason: fmt.Sprintf("expected object, got %T", raw)}
	}
	return FromMap(obj), nil
}

// FromMap normalizes keys. When two source columns fold to the same key the
// first non-empty value is kept.
func FromMap(m map[string]any) Row {
	row := make(Row, len(m))
	for k, v := range m {
		nk := NormalizeKey(k)
		if nk == "" {
			continue
		}
		if existing, ok := row[nk]; ok && !isBlank(existing) {
			continue
		}
		row[nk] = v
	}
	return row
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Raw returns the first non-blank value among the field's aliases.
func (r Row) Raw(field string) (any, bool) {
	names, ok := aliases[field]
	if !ok {
		names = []string{NormalizeKey(field)}
	}
	for _, name := range names {
		if v, ok := r[name]; ok && !isBlank(v) {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether the field carries a non-blank value.
func (r Row) Has(field string) bool {
	_, ok := r.Raw(field)
	return ok
}

// String renders the field as trimmed text. Numbers lose trailing zeros so a
// numeric SKU cell of 1200 reads "1200".
func (r Row) String(field string) string {
	v, ok := r.Raw(field)
	if !ok {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Decimal coerces numbers and numeric strings.
func (r Row) Decimal(field string) (decimal.Decimal, bool) {
	v, ok := r.Raw(field)
	if !ok {
		return decimal.Zero, false
	}
	return toDecimal(v)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

// Int truncates the field toward zero, falling back to def.
func (r Row) Int(field string, def int) int {
	d, ok := r.Decimal(field)
	if !ok {
		return def
	}
	return int(d.IntPart())
}

// Float returns the field as float64, falling back to def.
func (r Row) Float(field string, def float64) float64 {
	d, ok := r.Decimal(field)
	if !ok {
		return def
	}
	return d.InexactFloat64()
}

// Bool reads a flag column. Absent values return def.
func (r Row) Bool(field string, def bool) bool {
	v, ok := r.Raw(field)
	if !ok {
		return def
	}
	switch strings.ToUpper(stringify(v)) {
	case "TRUE", "YES", "Y", "1":
		return true
	case "FALSE", "NO", "N", "0":
		return false
	}
	return def
}

// Time parses the field with ParseTime.
func (r Row) Time(field string) time.Time {
	v, ok := r.Raw(field)
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case float64:
		return serialTime(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}
		}
		return serialTime(f)
	}
	return ParseTime(stringify(v))
}

// Rows returns a nested array field such as an order's embedded items.
func (r Row) Rows(field string) []any {
	v, ok := r.Raw(field)
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	return list
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// ParseTime accepts the layouts spreadsheets emit, plus Excel serial day
// numbers. Unparseable input yields the zero time.
func ParseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts
		}
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return serialTime(f)
	}
	return time.Time{}
}

func serialTime(serial float64) time.Time {
	// Plausible spreadsheet dates only; anything else is probably a quantity.
	if serial < 1 || serial > 2958465 {
		return time.Time{}
	}
	ts, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}
	}
	return ts
}
