package state

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/draft"
	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/orders"
)

func TestStore_SnapshotClonesData(t *testing.T) {
	var s Store

	s.SetCatalog(catalog.Snapshot{Products: []catalog.Product{{SKU: "A1"}}}, []catalog.Product{{SKU: "A1"}})
	s.SetOrders([]orders.Order{{ID: "ORD-1", Items: []orders.OrderItem{{SKU: "A1", Qty: 2}}}}, "2024-05-01T00:00:00Z")
	s.SetDraft(draft.Draft{Quantities: map[string]int{"A1": 3}})
	s.SetDelivery(fulfillment.Book{"ORD-1": {Status: fulfillment.InProgress}})

	snap := s.Snapshot()
	if len(snap.Orders) != 1 || snap.OrdersUpdatedAt != "2024-05-01T00:00:00Z" {
		t.Fatalf("orders = %#v updated %q", snap.Orders, snap.OrdersUpdatedAt)
	}

	snap.Orders[0].Items[0].Qty = 99
	snap.Steps[0].SKU = "mutated"
	snap.Catalog.Products[0].SKU = "mutated"
	snap.Draft.Quantities["A1"] = 99
	delete(snap.Delivery, "ORD-1")

	again := s.Snapshot()
	if again.Orders[0].Items[0].Qty != 2 {
		t.Fatalf("Snapshot should clone order items; got qty %d", again.Orders[0].Items[0].Qty)
	}
	if again.Steps[0].SKU != "A1" || again.Catalog.Products[0].SKU != "A1" {
		t.Fatalf("Snapshot should clone catalog; got %q / %q", again.Steps[0].SKU, again.Catalog.Products[0].SKU)
	}
	if again.Draft.Quantities["A1"] != 3 {
		t.Fatalf("Snapshot should clone draft; got %d", again.Draft.Quantities["A1"])
	}
	if _, ok := again.Delivery["ORD-1"]; !ok {
		t.Fatal("Snapshot should clone delivery book")
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.SetOrders([]orders.Order{{ID: "ORD-1"}}, "")
	s.Update(120*time.Millisecond, nil)
	prev := s.Snapshot()

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(0, origErr)

	snap := s.Snapshot()
	if len(snap.Orders) != 1 || snap.Latency != prev.Latency {
		t.Fatalf("data changed on error: got %#v want %#v", snap, prev)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	if snap := s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("fresh store = %d failures offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	for i, wantOffline := range []bool{false, true, true} {
		s.Update(0, fmt.Errorf("fail %d", i+1))
		snap := s.Snapshot()
		if snap.ConsecutiveFailures != i+1 {
			t.Fatalf("ConsecutiveFailures = %d, want %d", snap.ConsecutiveFailures, i+1)
		}
		if snap.IsOffline() != wantOffline {
			t.Fatalf("IsOffline() = %v after %d failures", snap.IsOffline(), i+1)
		}
	}

	s.Update(time.Millisecond, nil)
	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("success should reset failures; got %d", snap.ConsecutiveFailures)
	}
}

func TestStore_NoticesAreBounded(t *testing.T) {
	var s Store

	for i := 0; i < maxNotices+5; i++ {
		s.AddNotice(fulfillment.Notice{OrderID: fmt.Sprintf("ORD-%d", i)})
	}
	got := s.DrainNotices()
	if len(got) != maxNotices {
		t.Fatalf("notices = %d, want %d", len(got), maxNotices)
	}
	if got[0].OrderID != "ORD-5" {
		t.Fatalf("oldest kept = %s, want ORD-5", got[0].OrderID)
	}
	if left := s.DrainNotices(); len(left) != 0 {
		t.Fatalf("drain should clear notices; %d left", len(left))
	}
}

func TestStore_Message(t *testing.T) {
	var s Store
	s.SetMessage("Catalog: Fully Refreshed and Up to Date")
	if got := s.Snapshot().Message; got != "Catalog: Fully Refreshed and Up to Date" {
		t.Fatalf("Message = %q", got)
	}
}
