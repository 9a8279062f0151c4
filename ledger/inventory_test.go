package ledger_test

import (
	"testing"
	"time"

	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/refmodel"
)

func cust(id int) refmodel.CustomerID { return refmodel.CustomerID(id) }

func TestInventory_Merge_Additive(t *testing.T) {
	// GIVEN: an empty ledger
	// WHEN: two inbound quantities land on the same lot key
	// THEN: the lot's start/end reflect the sum, not the last write

	inv := ledger.NewInventory()
	key := ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: refmodel.NewDate(2026, time.August, 1)}

	inv.Merge(key, 50)
	inv.Merge(key, 25)

	lot, ok := inv.Get(key)
	if !ok {
		t.Fatal("expected lot to exist")
	}
	if lot.Start != 75 || lot.End != 75 {
		t.Errorf("expected start=end=75, got start=%d end=%d", lot.Start, lot.End)
	}
}

func TestInventory_FEFOCandidates_SortedAscendingAndExcludesExhausted(t *testing.T) {
	// GIVEN: three lots for the same product/region with different enjoy-by
	// dates, one already drained to zero
	// WHEN: FEFOCandidates is asked for that product/facility
	// THEN: only the two non-exhausted lots come back, oldest enjoy-by first

	inv := ledger.NewInventory()
	product := refmodel.ProductID(10)
	facility := refmodel.FacilityID(1)

	late := ledger.LotKey{Facility: facility, Product: product, EnjoyBy: refmodel.NewDate(2026, time.August, 10)}
	early := ledger.LotKey{Facility: facility, Product: product, EnjoyBy: refmodel.NewDate(2026, time.August, 3)}
	exhausted := ledger.LotKey{Facility: facility, Product: product, EnjoyBy: refmodel.NewDate(2026, time.August, 1)}

	inv.Merge(late, 10)
	inv.Merge(early, 10)
	lot := inv.Merge(exhausted, 10)
	lot.Draw(nil, 10) // drains to zero

	candidates := inv.FEFOCandidates(product, facility)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if !candidates[0].Key.EnjoyBy.Equal(early.EnjoyBy) {
		t.Errorf("expected earliest enjoy-by first, got %s", candidates[0].Key.EnjoyBy)
	}
	if !candidates[1].Key.EnjoyBy.Equal(late.EnjoyBy) {
		t.Errorf("expected latest enjoy-by second, got %s", candidates[1].Key.EnjoyBy)
	}
}

func TestInventory_FEFOCandidates_SharesRegionAcrossCanonicalizedFacilities(t *testing.T) {
	// GIVEN: facilities 1 and 2, which canonicalize to region 3
	// WHEN: a lot is merged under facility 2 and candidates are requested for facility 1
	// THEN: the lot is visible (region-scoped, not facility-scoped)

	inv := ledger.NewInventory()
	product := refmodel.ProductID(10)
	key := ledger.LotKey{Facility: 2, Product: product, EnjoyBy: refmodel.NewDate(2026, time.August, 5)}
	inv.Merge(key, 10)

	candidates := inv.FEFOCandidates(product, refmodel.FacilityID(1))
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate shared across canonicalized region, got %d", len(candidates))
	}
}

func TestInventory_GetInRegion_MatchesAcrossCanonicalizedFacilities(t *testing.T) {
	inv := ledger.NewInventory()
	product := refmodel.ProductID(10)
	enjoyBy := refmodel.NewDate(2026, time.August, 5)
	key := ledger.LotKey{Facility: 2, Product: product, EnjoyBy: enjoyBy}
	inv.Merge(key, 10)

	lot, ok := inv.GetInRegion(product, refmodel.FacilityID(1), enjoyBy)
	if !ok {
		t.Fatal("expected a region-matching lot to be found")
	}
	if lot.Key != key {
		t.Errorf("expected the facility-2 lot, got %+v", lot.Key)
	}
}

func TestInventory_GetInRegion_NoMatchOutsideRegionOrEnjoyBy(t *testing.T) {
	inv := ledger.NewInventory()
	product := refmodel.ProductID(10)
	enjoyBy := refmodel.NewDate(2026, time.August, 5)
	inv.Merge(ledger.LotKey{Facility: 2, Product: product, EnjoyBy: enjoyBy}, 10)

	if _, ok := inv.GetInRegion(product, refmodel.FacilityID(4), enjoyBy); ok {
		t.Error("expected no match for a facility in a different region")
	}
	if _, ok := inv.GetInRegion(product, refmodel.FacilityID(1), enjoyBy.AddDays(1)); ok {
		t.Error("expected no match for a mismatched enjoy-by date")
	}
}

func TestLot_Draw_DecrementsEndAndRecordsPerCustomer(t *testing.T) {
	// GIVEN: a lot with 100 units
	// WHEN: two customers draw against it
	// THEN: End reflects both draws, and AllocatedTo sums per customer

	inv := ledger.NewInventory()
	key := ledger.LotKey{Facility: 1, Product: 10, EnjoyBy: refmodel.NewDate(2026, time.August, 1)}
	lot := inv.Merge(key, 100)

	c1, c2 := cust(1), cust(2)
	lot.Draw(&c1, 30)
	lot.Draw(&c2, 20)

	if lot.End != 50 {
		t.Errorf("expected end=50, got %d", lot.End)
	}
	if lot.AllocatedTo(c1) != 30 {
		t.Errorf("expected customer 1 allocated 30, got %d", lot.AllocatedTo(c1))
	}
	if lot.AllocatedTo(c2) != 20 {
		t.Errorf("expected customer 2 allocated 20, got %d", lot.AllocatedTo(c2))
	}
	if lot.Start != 100 {
		t.Errorf("start should be unaffected by draws, got %d", lot.Start)
	}
}

func TestRollForward_KeepsOnlyPackedLotsOrFoodService(t *testing.T) {
	// GIVEN: one retail lot whose pack date is still in the future (not yet
	// packed), one retail lot already packed, and one food-service lot that
	// would otherwise be excluded by pack date
	// WHEN: RollForward runs for morningDate
	// THEN: the not-yet-packed retail lot is dropped; the packed retail lot
	// and the food-service lot both survive

	morning := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		1: {ID: 1, TotalShelfLife: 5, Priority: refmodel.PriorityRetail1},
		2: {ID: 2, TotalShelfLife: 5, Priority: refmodel.PriorityFoodService},
	}

	notYetPacked := ledger.LotKey{Facility: 1, Product: 1, EnjoyBy: morning.AddDays(10)} // pack date = morning + 5, not yet packed
	packed := ledger.LotKey{Facility: 1, Product: 1, EnjoyBy: morning.AddDays(-1)}       // pack date = morning - 6, well before morning
	foodService := ledger.LotKey{Facility: 1, Product: 2, EnjoyBy: morning.AddDays(100)}

	snap := []ledger.EndOfDaySnapshot{
		{Key: notYetPacked, EndQty: 10},
		{Key: packed, EndQty: 20},
		{Key: foodService, EndQty: 30},
	}

	out := ledger.RollForward(snap, products, morning)

	if _, ok := out[notYetPacked]; ok {
		t.Error("lot not yet packed should be dropped")
	}
	if out[packed] != 20 {
		t.Errorf("expected packed lot to survive with qty 20, got %d", out[packed])
	}
	if out[foodService] != 30 {
		t.Errorf("expected food-service lot to survive regardless of pack date, got %d", out[foodService])
	}
}

func TestRollForward_DropsZeroOrNegativeEndQty(t *testing.T) {
	morning := refmodel.NewDate(2026, time.August, 10)
	products := map[refmodel.ProductID]refmodel.Product{
		1: {ID: 1, TotalShelfLife: 5, Priority: refmodel.PriorityRetail1},
	}
	key := ledger.LotKey{Facility: 1, Product: 1, EnjoyBy: morning.AddDays(-1)}
	snap := []ledger.EndOfDaySnapshot{{Key: key, EndQty: 0}}

	out := ledger.RollForward(snap, products, morning)
	if len(out) != 0 {
		t.Errorf("expected zero-qty lot to be dropped, got %v", out)
	}
}

func TestSmoothRollover_AddsNewLotsAtPrevDayPlusShelfLife(t *testing.T) {
	// GIVEN: rolled-forward lots from RollForward, plus a rollover harvest
	// quantity from the previous day
	// WHEN: SmoothRollover merges them
	// THEN: a new lot appears with enjoy-by = prevDay + TotalShelfLife,
	// additively merged into whatever was already there

	prevDay := refmodel.NewDate(2026, time.August, 9)
	products := map[refmodel.ProductID]refmodel.Product{
		1: {ID: 1, TotalShelfLife: 7},
	}
	rolled := map[ledger.LotKey]int{}
	rollHarvest := []ledger.RolloverHarvestQty{
		{Facility: 1, Product: 1, Qty: 40},
	}

	out := ledger.SmoothRollover(rolled, rollHarvest, products, prevDay)

	expectedKey := ledger.LotKey{Facility: 1, Product: 1, EnjoyBy: prevDay.AddDays(7)}
	if out[expectedKey] != 40 {
		t.Errorf("expected new lot with qty 40 at enjoy-by %s, got %v", expectedKey.EnjoyBy, out)
	}
}

func TestSmoothRollover_MergesAdditivelyIntoExistingRolledLot(t *testing.T) {
	prevDay := refmodel.NewDate(2026, time.August, 9)
	products := map[refmodel.ProductID]refmodel.Product{
		1: {ID: 1, TotalShelfLife: 7},
	}
	key := ledger.LotKey{Facility: 1, Product: 1, EnjoyBy: prevDay.AddDays(7)}
	rolled := map[ledger.LotKey]int{key: 15}
	rollHarvest := []ledger.RolloverHarvestQty{{Facility: 1, Product: 1, Qty: 40}}

	out := ledger.SmoothRollover(rolled, rollHarvest, products, prevDay)
	if out[key] != 55 {
		t.Errorf("expected additive merge to 55, got %d", out[key])
	}
}
