/*
Package demand builds the tier-scaled demand lines the driver feeds into
the inventory and harvest allocators (spec.md §4.8 step 2).

Grounded on generic/accrual.go's rate-schedule-to-event expansion: a
single forecast row becomes a concrete, tier-scaled demand line the same
way an accrual schedule becomes concrete ledger transactions. Live-order
filtering is grounded on original_source's liveOrderCheck.
*/
package demand

import (
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

// Line is one tier-scaled demand row ready for the inventory and
// harvest allocators (spec.md §4.8 step 2).
type Line struct {
	DemandDate     refmodel.Date
	AllocationDate refmodel.Date
	Facility       refmodel.FacilityID
	Product        refmodel.ProductID
	Customer       refmodel.CustomerID
	FillGoal       float64

	DemandQty   int
	RolloverQty int
	SafetyQty   int
}

// roundHalfUp rounds x to the nearest integer, ties away from zero — the
// engine-wide rounding rule spec.md §9 resolves in favor of (as opposed
// to the source's occasional round-half-to-even via its host runtime).
func roundHalfUp(x float64) int {
	if x >= 0 {
		return int(x + 0.5)
	}
	return -int(-x + 0.5)
}

// ScaleTier builds the tier-time demand slice for one fill goal (spec.md
// §4.8 step 2): demand_qty = round((demand-rollover-safety)*goal) +
// round(rollover*goal) + round(safety*goal); rollover_qty and safety_qty
// are the corresponding scaled components.
func ScaleTier(row persist.DemandForecastRow, fillGoal float64) Line {
	base := float64(row.DemandQty - row.RolloverQty - row.SafetyQty)
	rollover := roundHalfUp(float64(row.RolloverQty) * fillGoal)
	safety := roundHalfUp(float64(row.SafetyQty) * fillGoal)
	baseScaled := roundHalfUp(base * fillGoal)

	return Line{
		DemandDate:     row.Date,
		AllocationDate: row.AllocationDate,
		Facility:       row.Facility,
		Product:        row.Product,
		Customer:       row.Customer,
		FillGoal:       fillGoal,
		DemandQty:      baseScaled + rollover + safety,
		RolloverQty:    rollover,
		SafetyQty:      safety,
	}
}

// Complement builds the "remaining portion" demand slice for the second
// pass (spec.md §4.8 step 3): identical shape, scaled by (1 - fillGoal)
// instead of fillGoal.
func Complement(row persist.DemandForecastRow, fillGoal float64) Line {
	return ScaleTier(row, 1-fillGoal)
}

// NetOfRolloverAndSafety reports demand_qty - rollover_qty - safety_qty,
// the quantity the inventory allocator considers before handing the rest
// to the harvest allocator (spec.md §8: "demand_qty − rollover − safety ≤
// 0 ⇒ inventory allocator skips").
func (l Line) NetOfRolloverAndSafety() int {
	return l.DemandQty - l.RolloverQty - l.SafetyQty
}

// LiveOnly filters demand rows to customers/products that are still
// "live" as of the forecast date — grounded on original_source's
// liveOrderCheck, which drops forecast rows belonging to discontinued
// customer/product combinations before they ever reach the allocator.
// isLive is supplied by the caller since liveness is itself dimension
// data (a customer-product relationship), not something demand can
// determine on its own.
func LiveOnly(rows []persist.DemandForecastRow, isLive func(customer refmodel.CustomerID, product refmodel.ProductID) bool) []persist.DemandForecastRow {
	out := make([]persist.DemandForecastRow, 0, len(rows))
	for _, r := range rows {
		if isLive == nil || isLive(r.Customer, r.Product) {
			out = append(out, r)
		}
	}
	return out
}
