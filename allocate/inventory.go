/*
Package allocate contains the two demand-side allocators: inventory
draw-down (spec.md §4.3) and harvest earmarking (spec.md §4.4, plus its
prior-day continuation). Both mutate a shared ledger in place and hand
back whatever they could not satisfy as short demand, the way
generic/assignment.go's ConsumptionDistributor hands back an unfilled
remainder when a resource runs out.
*/
package allocate

import (
	"sort"

	"github.com/greenrow/allocator/demand"
	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/opsapi/metrics"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

// InventoryResult is what FromInventory hands back: the short-demand
// lines the caller must route to the harvest allocator, compacted by
// (demand-date, facility, product, customer) per spec.md §4.3 step 5.
type InventoryResult struct {
	ShortDemand []ShortLine
}

// ShortLine is one compacted residual-demand entry.
type ShortLine struct {
	DemandDate     refmodel.Date
	AllocationDate refmodel.Date
	Facility       refmodel.FacilityID
	Product        refmodel.ProductID
	Customer       refmodel.CustomerID
	Qty            int

	// RolloverQty/SafetyQty carry the "roll budget" the harvest
	// allocator needs for its rollover pass (spec.md §4.3 step 1: "the
	// latter two are preserved separately as a roll budget").
	RolloverQty int
	SafetyQty   int
}

type shortKey struct {
	demandDate refmodel.Date
	facility   refmodel.FacilityID
	product    refmodel.ProductID
	customer   refmodel.CustomerID
}

// FromInventory implements spec.md §4.3. tierIndex == 0 is tier 1 (the
// planned-transfer pre-step only runs for tier 1). plannedTransfers must
// already be filtered to ship date == forecastDate by the caller.
func FromInventory(
	inv *ledger.Inventory,
	lines []demand.Line,
	forecastDate refmodel.Date,
	tierIndex int,
	plannedTransfers []persist.PlannedTransferRow,
	warn func(format string, args ...any),
) InventoryResult {
	if tierIndex == 0 {
		applyPlannedTransferOutflows(inv, plannedTransfers, warn)
	}

	short := make(map[shortKey]*ShortLine)

	for _, line := range lines {
		if !line.AllocationDate.Equal(forecastDate) {
			continue
		}
		effective := line.NetOfRolloverAndSafety()
		if effective <= 0 {
			// spec.md §8 boundary: demand_qty - rollover - safety <= 0
			// hands the whole line to the harvest allocator untouched.
			addShort(short, line, line.DemandQty)
			continue
		}

		remaining := effective
		customer := line.Customer
		candidates := inv.FEFOCandidates(line.Product, line.Facility)
		for _, lot := range candidates {
			if remaining <= 0 {
				break
			}
			draw := remaining
			if lot.End < draw {
				draw = lot.End
			}
			lot.Draw(&customer, draw)
			metrics.LotsDrawn.Inc()
			remaining -= draw
		}

		if remaining > 0 {
			addShort(short, line, remaining)
		}
	}

	result := InventoryResult{}
	for _, s := range short {
		result.ShortDemand = append(result.ShortDemand, *s)
	}
	sort.Slice(result.ShortDemand, func(i, j int) bool {
		a, b := result.ShortDemand[i], result.ShortDemand[j]
		if !a.DemandDate.Equal(b.DemandDate) {
			return a.DemandDate.Before(b.DemandDate)
		}
		if a.Facility != b.Facility {
			return a.Facility < b.Facility
		}
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		return a.Customer < b.Customer
	})
	return result
}

func addShort(short map[shortKey]*ShortLine, line demand.Line, qty int) {
	k := shortKey{demandDate: line.DemandDate, facility: line.Facility, product: line.Product, customer: line.Customer}
	s, ok := short[k]
	if !ok {
		s = &ShortLine{
			DemandDate:     line.DemandDate,
			AllocationDate: line.AllocationDate,
			Facility:       line.Facility,
			Product:        line.Product,
			Customer:       line.Customer,
			RolloverQty:    line.RolloverQty,
			SafetyQty:      line.SafetyQty,
		}
		short[k] = s
	}
	s.Qty += qty
}

// applyPlannedTransferOutflows implements spec.md §4.3 step 4: debit the
// matching (region, product, enjoy-by-date) lot for every planned
// transfer whose ship date is today, recording an allocation with no
// customer. Shortfalls are logged and the transfer is simply not fully
// applied; per spec.md §7 "Planned-transfer shortfall" this is never
// fatal.
func applyPlannedTransferOutflows(inv *ledger.Inventory, transfers []persist.PlannedTransferRow, warn func(format string, args ...any)) {
	for _, t := range transfers {
		lot, ok := inv.GetInRegion(t.Product, t.ShipFacility, t.EnjoyBy)
		if !ok || lot.End <= 0 {
			if warn != nil {
				warn("planned transfer shortfall: no inventory for %v product=%d enjoy_by=%s requested=%d available=0",
					t.ShipFacility, t.Product, t.EnjoyBy, t.Qty)
			}
			continue
		}
		draw := t.Qty
		if lot.End < draw {
			if warn != nil {
				warn("planned transfer shortfall: facility=%v product=%d enjoy_by=%s requested=%d available=%d",
					t.ShipFacility, t.Product, t.EnjoyBy, t.Qty, lot.End)
			}
			draw = lot.End
		}
		lot.Draw(nil, draw)
	}
}
