/*
Package forecast advances inventory one day: stop-sell removal plus
same-day inbound planned-transfer merges (spec.md §4.6).

Grounded on generic/projection.go's forward-projection pass, which walks
a ledger and produces a point-in-time view without mutating history;
here the "projection" additionally prunes lots that have aged out, which
generic/projection.go's teacher analogue does not need to do.
*/
package forecast

import (
	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

// Result is what Project hands back: the lots removed to stop-sell, for
// the caller to persist (spec.md §4.6).
type Result struct {
	StopSell []persist.StopSell
}

// Project implements spec.md §4.6: for each lot, compute
// shelf_life_guarantee_date = enjoy_by_date - product.shelf_life_guarantee;
// if that date < forecastDate and end-of-day qty > 0, emit a stop-sell
// record and remove the lot. The stop-sell sweep runs on every tier;
// tierIndex == 0 is tier 1, the only tier where inbound planned transfers
// whose arrival date = forecastDate are merged into the active set first
// ("inbound planned transfers ... are added to the active set, merging or
// creating the matching lot") — later tiers revisit the same calendar
// date and must not re-merge the same inbound quantity.
func Project(
	inv *ledger.Inventory,
	products map[refmodel.ProductID]refmodel.Product,
	inboundTransfers []persist.PlannedTransferRow,
	forecastDate refmodel.Date,
	tierIndex int,
) Result {
	if tierIndex == 0 {
		for _, t := range inboundTransfers {
			if !t.ArrivalDate.Equal(forecastDate) {
				continue
			}
			inv.Merge(ledger.LotKey{Facility: t.ArrivalFacility, Product: t.Product, EnjoyBy: t.EnjoyBy}, t.Qty)
		}
	}

	var result Result
	for _, lot := range inv.All() {
		product, ok := products[lot.Key.Product]
		if !ok {
			continue
		}
		guaranteeDate := lot.Key.EnjoyBy.AddDays(-product.ShelfLifeGuarantee)
		if guaranteeDate.Before(forecastDate) && lot.End > 0 {
			result.StopSell = append(result.StopSell, persist.StopSell{
				Date:     forecastDate,
				Facility: lot.Key.Facility,
				Product:  lot.Key.Product,
				EnjoyBy:  lot.Key.EnjoyBy,
				Qty:      lot.End,
			})
			inv.Remove(lot.Key)
		}
	}
	return result
}
