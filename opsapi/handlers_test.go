package opsapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greenrow/allocator/opsapi"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/persist/memory"
	"github.com/greenrow/allocator/refmodel"
)

func newTestServer(store *memory.Store) *httptest.Server {
	h := opsapi.NewHandler(store, store)
	return httptest.NewServer(opsapi.NewRouter(h))
}

func TestGetStatus_ReturnsGateState(t *testing.T) {
	store := memory.New()
	date := refmodel.NewDate(2026, time.August, 1)
	store.SeedStatus(date, persist.InventoryStatus{InventoryLoaded: true})
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ops/status/2026-08-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status persist.InventoryStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !status.InventoryLoaded {
		t.Error("expected InventoryLoaded to be true")
	}
}

func TestGetStatus_RejectsMalformedDate(t *testing.T) {
	srv := newTestServer(memory.New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ops/status/not-a-date")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed date, got %d", resp.StatusCode)
	}
}

func TestGetInventoryAllocations_ReturnsRowsForPassAndDate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	date := refmodel.NewDate(2026, time.August, 1)
	if err := store.WriteInventoryAllocations(ctx, persist.PassBaseline, date, []persist.InventoryAllocation{
		{Facility: 1, Product: 10, Customer: 100, Qty: 30},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ops/runs/baseline/2026-08-01/inventory-allocations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var rows []persist.InventoryAllocation
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(rows) != 1 || rows[0].Qty != 30 {
		t.Errorf("expected 1 row with qty 30, got %+v", rows)
	}
}

func TestGetInventoryAllocations_RejectsUnrecognizedPass(t *testing.T) {
	srv := newTestServer(memory.New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ops/runs/bogus/2026-08-01/inventory-allocations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unrecognized pass, got %d", resp.StatusCode)
	}
}

func TestGetCalculatedTransfers_ReturnsRowsForDate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	date := refmodel.NewDate(2026, time.August, 1)
	if err := store.WriteCalculatedTransfers(ctx, date, []persist.CalculatedTransfer{
		{ShipFacility: 1, ArrivalFacility: 2, Product: 10, Qty: 40, Pallets: 1, TruckIndex: 1, RouteIndex: 1},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ops/transfers/2026-08-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var rows []persist.CalculatedTransfer
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(rows) != 1 || rows[0].Qty != 40 {
		t.Errorf("expected 1 transfer with qty 40, got %+v", rows)
	}
}

func TestGetHarvestLedgerSnapshot_ReturnsOKWhenNothingWritten(t *testing.T) {
	srv := newTestServer(memory.New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ops/harvest-ledger/2026-08-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetrics_IsServedAlongsideOpsRoutes(t *testing.T) {
	srv := newTestServer(memory.New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
