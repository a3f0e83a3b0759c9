package sheetserver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/five82/orderdesk/internal/rowmap"
)

type submitItem struct {
	SKU      string `json:"sku"`
	ItemNo   string `json:"item_no"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	PackSize string `json:"pack_size"`
	Qty      int    `json:"qty"`
}

type submitRequest struct {
	Store         string       `json:"store"`
	PlacedBy      string       `json:"placed_by"`
	RequestedDate string       `json:"requested_date"`
	Notes         string       `json:"notes"`
	Items         []submitItem `json:"items"`
	CorrelationID string       `json:"correlation_id"`
}

type orderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type itemStatusRequest struct {
	OrderID      string `json:"order_id"`
	ProductIndex int    `json:"product_index"`
	ProductName  string `json:"product_name"`
	Status       string `json:"status"`
}

var errOrderNotFound = errors.New("order not found")

func (s *Server) submitLocked(req submitRequest) (gin.H, error) {
	store := strings.TrimSpace(req.Store)
	if store == "" {
		return nil, errors.New("store is required")
	}
	var lines []submitItem
	for _, it := range req.Items {
		if it.Qty > 0 && (strings.TrimSpace(it.SKU) != "" || strings.TrimSpace(it.Name) != "") {
			lines = append(lines, it)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("order has no items")
	}

	s.seq++
	id := fmt.Sprintf("ORD-%05d", s.seq)
	for s.findOrderLocked(id) >= 0 {
		s.seq++
		id = fmt.Sprintf("ORD-%05d", s.seq)
	}

	s.wb.Sheet(SheetOrders).Append(map[string]string{
		rowmap.FieldOrderID:       id,
		rowmap.FieldCreatedAt:     s.now().UTC().Format(time.RFC3339),
		rowmap.FieldStore:         store,
		rowmap.FieldRequestedDate: strings.TrimSpace(req.RequestedDate),
		rowmap.FieldPlacedBy:      strings.TrimSpace(req.PlacedBy),
		rowmap.FieldNotes:         strings.TrimSpace(req.Notes),
		rowmap.FieldStatus:        "Not Started",
	})
	items := s.wb.Sheet(SheetOrderItems)
	for _, it := range lines {
		items.Append(map[string]string{
			rowmap.FieldItemOrderID: id,
			rowmap.FieldSKU:         it.SKU,
			rowmap.FieldItemNo:      it.ItemNo,
			rowmap.FieldName:        it.Name,
			rowmap.FieldCategory:    it.Category,
			rowmap.FieldUnit:        it.Unit,
			rowmap.FieldPackSize:    it.PackSize,
			rowmap.FieldQty:         strconv.Itoa(it.Qty),
			rowmap.FieldStatus:      "",
		})
	}
	s.logf("[sheet] created %s for %s with %d lines (%s)", id, store, len(lines), req.CorrelationID)
	return gin.H{"order_id": id}, nil
}

func (s *Server) findOrderLocked(id string) int {
	t := s.wb.Sheet(SheetOrders)
	col := t.Column(rowmap.FieldOrderID)
	if col < 0 {
		return -1
	}
	for i := range t.Rows {
		if strings.TrimSpace(t.Get(i, col)) == id {
			return i
		}
	}
	return -1
}

func (s *Server) setOrderStatusLocked(req orderStatusRequest) error {
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return errors.New("order_id is required")
	}
	row := s.findOrderLocked(id)
	if row < 0 {
		return fmt.Errorf("%w: %s", errOrderNotFound, id)
	}
	t := s.wb.Sheet(SheetOrders)
	t.set(row, t.ensureColumn(rowmap.FieldStatus), strings.TrimSpace(req.Status))
	return nil
}

// setItemStatusLocked addresses a line by its position within the order.
// When the name at that position disagrees, the first line with a matching
// name wins.
func (s *Server) setItemStatusLocked(req itemStatusRequest) error {
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return errors.New("order_id is required")
	}
	if s.findOrderLocked(id) < 0 {
		return fmt.Errorf("%w: %s", errOrderNotFound, id)
	}
	t := s.wb.Sheet(SheetOrderItems)
	orderCol := t.Column(rowmap.FieldItemOrderID)
	nameCol := t.Column(rowmap.FieldName)
	var rows []int
	for i := range t.Rows {
		if orderCol >= 0 && strings.TrimSpace(t.Get(i, orderCol)) == id {
			rows = append(rows, i)
		}
	}

	target := -1
	name := strings.TrimSpace(req.ProductName)
	if req.ProductIndex >= 0 && req.ProductIndex < len(rows) {
		target = rows[req.ProductIndex]
		if name != "" && nameCol >= 0 && !strings.EqualFold(strings.TrimSpace(t.Get(target, nameCol)), name) {
			target = -1
		}
	}
	if target < 0 && name != "" && nameCol >= 0 {
		for _, r := range rows {
			if strings.EqualFold(strings.TrimSpace(t.Get(r, nameCol)), name) {
				target = r
				break
			}
		}
	}
	if target < 0 {
		return fmt.Errorf("order %s has no line %d (%q)", id, req.ProductIndex, name)
	}
	t.set(target, t.ensureColumn(rowmap.FieldStatus), strings.TrimSpace(req.Status))
	return nil
}
