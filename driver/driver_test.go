package driver_test

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/greenrow/allocator/driver"
	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/persist/memory"
	"github.com/greenrow/allocator/refmodel"
)

func newTestStore(forecastDate refmodel.Date) *memory.Store {
	store := memory.New()
	store.SeedCustomers(map[refmodel.CustomerID]refmodel.Customer{
		100: {ID: 100, FillGoal: 1.0},
	})
	store.SeedProducts(map[refmodel.ProductID]refmodel.Product{
		10: {
			ID:                 10,
			CropID:             1,
			NetWeightGrams:     100,
			ShelfLifeGuarantee: 1,
			TotalShelfLife:     7,
			Priority:           refmodel.PriorityRetail1,
			CaseEquivalent:     1,
			CasesPerPallet:     50,
		},
	})
	store.SeedDemandForecast(forecastDate, []persist.DemandForecastRow{
		{Date: forecastDate, AllocationDate: forecastDate, Facility: 1, Product: 10, Customer: 100, FillGoal: 1.0, DemandQty: 50},
	})
	store.SeedInventoryActuals(forecastDate, []persist.InventoryActualRow{
		{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(7), Qty: 100},
	})
	store.SeedStatus(forecastDate, persist.InventoryStatus{InventoryLoaded: true})
	return store
}

func TestDriver_Run_FullySatisfiedDemandProducesNoShortfall(t *testing.T) {
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	store := newTestStore(forecastDate)
	d := driver.New(store, log.Default())

	err := d.Run(context.Background(), forecastDate, []refmodel.Date{forecastDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	allocations := store.InventoryAllocations(persist.PassBaseline, forecastDate)
	if len(allocations) != 1 {
		t.Fatalf("expected 1 inventory allocation row, got %d: %+v", len(allocations), allocations)
	}
	if allocations[0].Qty != 50 {
		t.Errorf("expected allocation qty 50, got %d", allocations[0].Qty)
	}
	if allocations[0].Customer != 100 {
		t.Errorf("expected customer 100, got %d", allocations[0].Customer)
	}

	short := store.ShortDemand(persist.PassBaseline, forecastDate)
	if len(short) != 0 {
		t.Errorf("expected no short demand, got %+v", short)
	}

	status, err := store.Status(context.Background(), forecastDate)
	if err != nil {
		t.Fatalf("unexpected error reading status: %v", err)
	}
	if status.AllocationRanAt == nil {
		t.Error("expected AllocationRanAt to be set after a successful run")
	}
}

func TestDriver_Run_InsufficientInventoryFallsThroughToHarvestShortfall(t *testing.T) {
	// GIVEN: demand exceeding on-hand inventory, with no harvest forecast
	// seeded for the day
	// WHEN: Run executes
	// THEN: the unmet remainder surfaces as short demand rather than
	// erroring (spec.md §7: shortfall is never fatal)

	forecastDate := refmodel.NewDate(2026, time.August, 10)
	store := newTestStore(forecastDate)
	store.SeedInventoryActuals(forecastDate, []persist.InventoryActualRow{
		{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(7), Qty: 10},
	})
	d := driver.New(store, log.Default())

	err := d.Run(context.Background(), forecastDate, []refmodel.Date{forecastDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	short := store.ShortDemand(persist.PassBaseline, forecastDate)
	if len(short) != 1 {
		t.Fatalf("expected 1 short demand row, got %d: %+v", len(short), short)
	}
	if short[0].Qty != 40 {
		t.Errorf("expected 40 short (50 demand - 10 on hand), got %d", short[0].Qty)
	}
}

func TestDriver_Run_GateDeclinedWhenInventoryNotLoaded(t *testing.T) {
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	store := newTestStore(forecastDate)
	store.SeedStatus(forecastDate, persist.InventoryStatus{InventoryLoaded: false})
	d := driver.New(store, log.Default())

	err := d.Run(context.Background(), forecastDate, []refmodel.Date{forecastDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, _ := store.Status(context.Background(), forecastDate)
	if status.AllocationRanAt != nil {
		t.Error("expected gate to decline the run when inventory is not loaded")
	}
	allocations := store.InventoryAllocations(persist.PassBaseline, forecastDate)
	if len(allocations) != 0 {
		t.Errorf("expected no allocations to be written when the gate declines, got %+v", allocations)
	}
}

func TestDriver_Run_DropsDemandForOutOfScopeProductBeforeAllocating(t *testing.T) {
	// GIVEN: a demand row for a priority-6 (out-of-scope) product, with no
	// inventory seeded for it at all
	// WHEN: Run executes
	// THEN: the row is filtered out before allocation rather than ever
	// surfacing as short demand

	forecastDate := refmodel.NewDate(2026, time.August, 10)
	store := newTestStore(forecastDate)
	store.SeedProducts(map[refmodel.ProductID]refmodel.Product{
		10: {
			ID:                 10,
			CropID:             1,
			NetWeightGrams:     100,
			ShelfLifeGuarantee: 1,
			TotalShelfLife:     7,
			Priority:           refmodel.PriorityRetail1,
			CaseEquivalent:     1,
			CasesPerPallet:     50,
		},
		20: {
			ID:       20,
			CropID:   1,
			Priority: refmodel.PriorityOutOfScope,
		},
	})
	store.SeedDemandForecast(forecastDate, []persist.DemandForecastRow{
		{Date: forecastDate, AllocationDate: forecastDate, Facility: 1, Product: 10, Customer: 100, FillGoal: 1.0, DemandQty: 50},
		{Date: forecastDate, AllocationDate: forecastDate, Facility: 1, Product: 20, Customer: 100, FillGoal: 1.0, DemandQty: 999},
	})
	d := driver.New(store, log.Default())

	if err := d.Run(context.Background(), forecastDate, []refmodel.Date{forecastDate}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	short := store.ShortDemand(persist.PassBaseline, forecastDate)
	for _, s := range short {
		if s.Product == 20 {
			t.Errorf("expected out-of-scope product 20 to be filtered before allocation, got short demand %+v", s)
		}
	}
}

func TestDriver_Run_MultiTierPassDoesNotInflateHarvestStartingPlantSites(t *testing.T) {
	// GIVEN: two customers at different fill goals, so a pass visits the
	// same date under two distinct fill-goal tiers, and a harvest forecast
	// big enough that both tiers draw against the same (date, crop,
	// region) key
	// WHEN: Run executes
	// THEN: the harvest ledger snapshot's StartingPS reflects the
	// forecast's plant sites exactly once, not once per tier visited

	forecastDate := refmodel.NewDate(2026, time.August, 10)
	store := memory.New()
	store.SeedCustomers(map[refmodel.CustomerID]refmodel.Customer{
		100: {ID: 100, FillGoal: 1.0},
		200: {ID: 200, FillGoal: 0.5},
	})
	store.SeedProducts(map[refmodel.ProductID]refmodel.Product{
		10: {
			ID:                 10,
			CropID:             1,
			NetWeightGrams:     100,
			ShelfLifeGuarantee: 1,
			TotalShelfLife:     7,
			Priority:           refmodel.PriorityRetail1,
			CaseEquivalent:     1,
			CasesPerPallet:     50,
		},
	})
	store.SeedDemandForecast(forecastDate, []persist.DemandForecastRow{
		{Date: forecastDate, AllocationDate: forecastDate, Facility: 1, Product: 10, Customer: 100, FillGoal: 1.0, DemandQty: 50},
		{Date: forecastDate, AllocationDate: forecastDate, Facility: 1, Product: 10, Customer: 200, FillGoal: 0.5, DemandQty: 50},
	})
	store.SeedInventoryActuals(forecastDate, []persist.InventoryActualRow{
		{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(7), Qty: 10},
	})
	store.SeedHarvestForecast(forecastDate, []refmodel.HarvestForecastEntry{
		{Date: forecastDate, Facility: 1, Crop: 1, ExpectedPlantSites: 1000, MeanLooseGPerPS: 10},
	})
	store.SeedStatus(forecastDate, persist.InventoryStatus{InventoryLoaded: true})
	d := driver.New(store, log.Default())

	if err := d.Run(context.Background(), forecastDate, []refmodel.Date{forecastDate}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot, err := store.ReadHarvestLedgerSnapshot(context.Background(), forecastDate)
	if err != nil {
		t.Fatalf("unexpected error reading harvest ledger snapshot: %v", err)
	}
	key := ledger.HarvestKey{Date: forecastDate, Crop: 1, Region: refmodel.RegionOf(1)}
	found := false
	for _, row := range snapshot {
		if row.Key != key {
			continue
		}
		found = true
		if row.StartingPS != 1000 {
			t.Errorf("expected StartingPS 1000 (seeded once, not once per tier), got %d", row.StartingPS)
		}
	}
	if !found {
		t.Fatalf("expected a harvest ledger snapshot row for key %+v, got %+v", key, snapshot)
	}
}

func TestDriver_Run_GateDeclinedWhenAllocationAlreadyRan(t *testing.T) {
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	store := newTestStore(forecastDate)
	alreadyRan := time.Date(2026, time.August, 9, 6, 0, 0, 0, time.UTC)
	store.SeedStatus(forecastDate, persist.InventoryStatus{InventoryLoaded: true, AllocationRanAt: &alreadyRan})
	d := driver.New(store, log.Default())

	err := d.Run(context.Background(), forecastDate, []refmodel.Date{forecastDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allocations := store.InventoryAllocations(persist.PassBaseline, forecastDate)
	if len(allocations) != 0 {
		t.Errorf("expected no allocations to be written on a second run for the same date, got %+v", allocations)
	}
}
