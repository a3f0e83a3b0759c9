package sheetapi

import (
	"context"
	"net/http"
	"time"
)

// Action names understood by the web app.
const (
	ActionCategories            = "categories"
	ActionProducts              = "products"
	ActionListOrders            = "listOrders"
	ActionSubmitOrder           = "submitOrder"
	ActionUpdateOrderStatus     = "updateOrderStatus"
	ActionUpdateOrderItemStatus = "updateOrderItemStatus"
	ActionHealth                = "health"
)

// API is the set of remote operations orderdesk consumes. *Client implements it.
type API interface {
	FetchCategories(ctx context.Context) (RowSet, error)
	FetchProducts(ctx context.Context) (RowSet, error)
	ListOrders(ctx context.Context) (OrderRows, error)
	SubmitOrder(ctx context.Context, sub Submission) (SubmitResult, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	UpdateOrderItemStatus(ctx context.Context, update ItemStatusUpdate) error
	Health(ctx context.Context) (HealthStatus, error)
}

var _ API = (*Client)(nil)

// RowSet is an unnormalized list of sheet rows.
type RowSet struct {
	Rows      []any
	UpdatedAt string
}

// OrderRows carries order rows and their line items, joined by the caller.
type OrderRows struct {
	Orders    []any
	Items     []any
	UpdatedAt string
}

// SubmissionItem is one line of a submitted order.
type SubmissionItem struct {
	SKU      string `json:"sku"`
	ItemNo   string `json:"item_no"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	PackSize string `json:"pack_size"`
	Qty      int    `json:"qty"`
}

// Submission is the submitOrder request body.
type Submission struct {
	Store         string
	PlacedBy      string
	RequestedDate string
	Notes         string
	Items         []SubmissionItem
}

// SubmitResult identifies the order the server created.
type SubmitResult struct {
	OrderID   string
	RequestID string
}

// ItemStatusUpdate is the updateOrderItemStatus request body.
type ItemStatusUpdate struct {
	OrderID      string
	ProductIndex int
	ProductName  string
	Status       string
}

// HealthStatus is the liveness probe result.
type HealthStatus struct {
	UpdatedAt string
	Latency   time.Duration
}

// FetchCategories retrieves raw category rows.
func (c *Client) FetchCategories(ctx context.Context) (RowSet, error) {
	return c.fetchRows(ctx, ActionCategories, "categories")
}

// FetchProducts retrieves raw product rows.
func (c *Client) FetchProducts(ctx context.Context) (RowSet, error) {
	return c.fetchRows(ctx, ActionProducts, "products")
}

func (c *Client) fetchRows(ctx context.Context, action, field string) (RowSet, error) {
	payload, err := c.Do(ctx, Request{Action: action, CacheBust: true})
	if err != nil {
		return RowSet{}, err
	}
	rows, err := payload.Rows(action, field)
	if err != nil {
		return RowSet{}, err
	}
	return RowSet{Rows: rows, UpdatedAt: payload.String("updated_at")}, nil
}

// ListOrders retrieves order rows and item rows in one call. A response
// without an items array is accepted when orders embed their items.
func (c *Client) ListOrders(ctx context.Context) (OrderRows, error) {
	payload, err := c.Do(ctx, Request{Action: ActionListOrders, CacheBust: true})
	if err != nil {
		return OrderRows{}, err
	}
	orders, err := payload.Rows(ActionListOrders, "orders")
	if err != nil {
		return OrderRows{}, err
	}
	var items []any
	if _, ok := payload["items"]; ok {
		items, err = payload.Rows(ActionListOrders, "items")
		if err != nil {
			return OrderRows{}, err
		}
	}
	return OrderRows{Orders: orders, Items: items, UpdatedAt: payload.String("updated_at")}, nil
}

// SubmitOrder posts a new order. It is never retried since the server does
// not deduplicate submissions.
func (c *Client) SubmitOrder(ctx context.Context, sub Submission) (SubmitResult, error) {
	items := sub.Items
	if items == nil {
		items = []SubmissionItem{}
	}
	body := map[string]any{
		"store":          sub.Store,
		"placed_by":      sub.PlacedBy,
		"requested_date": sub.RequestedDate,
		"notes":          sub.Notes,
		"items":          items,
		"client": map[string]any{
			"userAgent": c.userAgent,
			"ts":        c.now().UTC().Format(time.RFC3339),
		},
	}
	payload, err := c.Do(ctx, Request{Action: ActionSubmitOrder, Method: http.MethodPost, Body: body, Retry: NoRetry()})
	if err != nil {
		return SubmitResult{}, err
	}
	res := SubmitResult{OrderID: payload.String("order_id"), RequestID: payload.String("request_id")}
	if res.OrderID == "" {
		return SubmitResult{}, &Error{Kind: KindValidation, Action: ActionSubmitOrder, Message: "response is missing order_id", RequestID: res.RequestID}
	}
	return res, nil
}

// UpdateOrderStatus records the order-level fulfillment status.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	_, err := c.Do(ctx, Request{
		Action: ActionUpdateOrderStatus,
		Method: http.MethodPost,
		Body:   map[string]any{"order_id": orderID, "status": status},
	})
	return err
}

// UpdateOrderItemStatus records one line's fulfillment label.
func (c *Client) UpdateOrderItemStatus(ctx context.Context, update ItemStatusUpdate) error {
	_, err := c.Do(ctx, Request{
		Action: ActionUpdateOrderItemStatus,
		Method: http.MethodPost,
		Body: map[string]any{
			"order_id":      update.OrderID,
			"product_index": update.ProductIndex,
			"product_name":  update.ProductName,
			"status":        update.Status,
		},
	})
	return err
}

// Health pings the web app.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	started := time.Now()
	payload, err := c.Do(ctx, Request{Action: ActionHealth, CacheBust: true})
	if err != nil {
		return HealthStatus{}, err
	}
	return HealthStatus{UpdatedAt: payload.String("updated_at"), Latency: time.Since(started)}, nil
}

