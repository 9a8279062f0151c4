package forecast_test

import (
	"testing"
	"time"

	"github.com/greenrow/allocator/forecast"
	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

func TestProject_MergesInboundTransfersArrivingToday(t *testing.T) {
	inv := ledger.NewInventory()
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		10: {ID: 10, ShelfLifeGuarantee: 1},
	}
	transfers := []persist.PlannedTransferRow{
		{ArrivalFacility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(5), Qty: 40, ArrivalDate: forecastDate},
		{ArrivalFacility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(9), Qty: 10, ArrivalDate: forecastDate.AddDays(1)}, // arrives tomorrow, not today
	}

	forecast.Project(inv, products, transfers, forecastDate, 0)

	lot, ok := inv.Get(ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(5)})
	if !ok {
		t.Fatal("expected today's inbound transfer to merge into a lot")
	}
	if lot.End != 40 {
		t.Errorf("expected merged qty 40, got %d", lot.End)
	}
	if _, ok := inv.Get(ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(9)}); ok {
		t.Error("transfer arriving tomorrow should not be merged today")
	}
}

func TestProject_SkipsInboundTransferMergeOnLaterTiers(t *testing.T) {
	// GIVEN: an inbound transfer arriving today
	// WHEN: Project runs for tier 2 (tierIndex != 0), revisiting a date
	// already merged on tier 1
	// THEN: the inbound quantity is not merged again
	inv := ledger.NewInventory()
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		10: {ID: 10, ShelfLifeGuarantee: 1},
	}
	transfers := []persist.PlannedTransferRow{
		{ArrivalFacility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(5), Qty: 40, ArrivalDate: forecastDate},
	}

	forecast.Project(inv, products, transfers, forecastDate, 1)

	if _, ok := inv.Get(ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(5)}); ok {
		t.Error("expected no lot to be created by a later-tier revisit of an already-merged date")
	}
}

func TestProject_RemovesLotsPastShelfLifeGuarantee(t *testing.T) {
	// GIVEN: a lot whose shelf-life-guarantee date has already passed
	// forecastDate, with positive remaining quantity
	// WHEN: Project runs
	// THEN: a stop-sell record is emitted and the lot is removed

	inv := ledger.NewInventory()
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		10: {ID: 10, ShelfLifeGuarantee: 3},
	}
	key := ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(1)} // guarantee date = +1-3 = -2, before forecastDate
	inv.Merge(key, 25)

	result := forecast.Project(inv, products, nil, forecastDate, 0)

	if len(result.StopSell) != 1 {
		t.Fatalf("expected 1 stop-sell record, got %d", len(result.StopSell))
	}
	if result.StopSell[0].Qty != 25 {
		t.Errorf("expected stop-sell qty 25, got %d", result.StopSell[0].Qty)
	}
	if _, ok := inv.Get(key); ok {
		t.Error("expected lot to be removed after stop-sell")
	}
}

func TestProject_KeepsLotsStillWithinGuaranteeWindow(t *testing.T) {
	inv := ledger.NewInventory()
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		10: {ID: 10, ShelfLifeGuarantee: 3},
	}
	key := ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(10)} // guarantee date = +7, well after forecastDate
	inv.Merge(key, 25)

	result := forecast.Project(inv, products, nil, forecastDate, 0)
	if len(result.StopSell) != 0 {
		t.Errorf("expected no stop-sell, got %+v", result.StopSell)
	}
	if _, ok := inv.Get(key); !ok {
		t.Error("expected lot to survive within guarantee window")
	}
}

func TestProject_SkipsEmptyLots(t *testing.T) {
	inv := ledger.NewInventory()
	forecastDate := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		10: {ID: 10, ShelfLifeGuarantee: 3},
	}
	key := ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: forecastDate.AddDays(1)}
	lot := inv.Merge(key, 25)
	lot.Draw(nil, 25) // drains to zero

	result := forecast.Project(inv, products, nil, forecastDate, 0)
	if len(result.StopSell) != 0 {
		t.Errorf("expected no stop-sell for an already-drained lot, got %+v", result.StopSell)
	}
}
