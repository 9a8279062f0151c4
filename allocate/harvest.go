package allocate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/opsapi/metrics"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
	"github.com/greenrow/allocator/yield"
)

// HarvestResult is FromHarvest's output: committed customer-directed and
// rollover harvest-allocation records, plus whatever demand remains
// short after every priority and the tier-1 pre-step have run (spec.md
// §4.4).
type HarvestResult struct {
	Allocations       []persist.HarvestAllocation
	RolloverQuantities []ledger.RolloverHarvestQty
	ShortDemand       []ShortLine
}

type groupKey struct {
	date   refmodel.Date
	crop   refmodel.CropID
	region refmodel.FacilityID
}

func harvestKeyFor(g groupKey) ledger.HarvestKey {
	return ledger.HarvestKey{Date: g.date, Crop: g.crop, Region: g.region}
}

type stagedLine struct {
	line       ShortLine
	key        ledger.HarvestKey
	plantSites int
}

// FromHarvest implements spec.md §4.4: a nested loop over production
// priorities 1..5, tier-1-only pre-step for scheduled outbound
// transfers, per-line plant-site earmarking against the harvest ledger
// with proportional full-pack-out, and a per-priority rollover pass.
// preStepTransfers must already be filtered to the tier-1 pre-step's
// resolved ship date (refmodel.RewindToShipDay(forecastDate, 1)).
func FromHarvest(
	hv *ledger.Harvest,
	inv *ledger.Inventory,
	conv *yield.Converter,
	products map[refmodel.ProductID]refmodel.Product,
	shortLines []ShortLine,
	forecastDate refmodel.Date,
	tierIndex int,
	preStepTransfers []persist.PlannedTransferRow,
	warn func(format string, args ...any),
) HarvestResult {
	var result HarvestResult

	if tierIndex == 0 {
		result.Allocations = append(result.Allocations, preStepHarvestTransfers(hv, conv, products, preStepTransfers, forecastDate, warn)...)
	}

	remaining := shortLines

	for priority := refmodel.PriorityRetail1; priority <= refmodel.PriorityFoodService; priority++ {
		var atThisPriority, others []ShortLine
		for _, l := range remaining {
			product, ok := products[l.Product]
			if ok && product.Priority == priority {
				atThisPriority = append(atThisPriority, l)
			} else {
				others = append(others, l)
			}
		}
		if len(atThisPriority) == 0 {
			remaining = others
			continue
		}

		staged := map[groupKey][]stagedLine{}
		var stillShort []ShortLine

		groups := map[groupKey][]ShortLine{}
		for _, l := range atThisPriority {
			product, ok := products[l.Product]
			if !ok {
				continue
			}
			effDate := l.AllocationDate
			if priority.IsFoodService() {
				effDate = effDate.AddDays(-product.LeadTimeDays)
			}
			g := groupKey{date: effDate, crop: product.CropID, region: refmodel.RegionOf(l.Facility)}
			groups[g] = append(groups[g], l)
		}

		var orderedGroups []groupKey
		for g := range groups {
			orderedGroups = append(orderedGroups, g)
		}
		sort.Slice(orderedGroups, func(i, j int) bool {
			a, b := orderedGroups[i], orderedGroups[j]
			if !a.date.Equal(b.date) {
				return a.date.Before(b.date)
			}
			if a.crop != b.crop {
				return a.crop < b.crop
			}
			return a.region < b.region
		})

		for _, g := range orderedGroups {
			key := harvestKeyFor(g)
			lines := groups[g]

			if hv.IsSealed(key) {
				for _, l := range lines {
					stillShort = append(stillShort, asShort(l, l.Qty))
				}
				continue
			}

			var groupStaged []stagedLine
			fullPackOut := false

			for _, l := range lines {
				product := products[l.Product]
				gpps := conv.MeanGPPS(product.CropID, l.Facility, product.IsWhole)
				netPS := yield.PlantSitesNeeded(l.Qty, product.NetWeightGrams, gpps)

				available, ok := hv.Available(key)
				if !ok {
					if warn != nil {
						warn("missing-yield warning: no harvest for key=%s product=%d qty=%d", key, l.Product, l.Qty)
					}
					stillShort = append(stillShort, asShort(l, l.Qty))
					continue
				}
				if available >= netPS {
					if err := hv.TryAllocate(key, netPS); err != nil {
						stillShort = append(stillShort, asShort(l, l.Qty))
						continue
					}
					groupStaged = append(groupStaged, stagedLine{line: l, key: key, plantSites: netPS})
					continue
				}

				fullPackOut = true
				break
			}

			if !fullPackOut {
				staged[g] = append(staged[g], groupStaged...)
				continue
			}

			// Rebate every tentative contribution staged so far for this
			// group, then recompute the scaling ratio over every line in
			// the group (spec.md §4.4 step 6).
			for _, st := range groupStaged {
				hv.Rebate(st.key, st.plantSites)
			}

			totalShortPS := 0
			for _, l := range lines {
				product := products[l.Product]
				gpps := conv.MeanGPPS(product.CropID, l.Facility, product.IsWhole)
				totalShortPS += yield.PlantSitesNeeded(l.Qty, product.NetWeightGrams, gpps)
			}
			available, _ := hv.Available(key)
			ratio := ledger.FullPackOutRatio(available, totalShortPS)

			for _, l := range lines {
				product := products[l.Product]
				allocQty := ledger.ScaleQty(l.Qty, ratio)
				gpps := conv.MeanGPPS(product.CropID, l.Facility, product.IsWhole)
				allocPS := yield.PlantSitesNeeded(allocQty, product.NetWeightGrams, gpps)
				_ = hv.TryAllocate(key, allocPS)

				if allocQty > 0 {
					result.Allocations = append(result.Allocations, persist.HarvestAllocation{
						AllocationDate:  g.date,
						DemandDate:      l.DemandDate,
						Crop:            g.crop,
						HarvestFacility: l.Facility,
						DemandFacility:  l.Facility,
						Product:         l.Product,
						Customer:        l.Customer,
						Qty:             allocQty,
						PlantSites:      allocPS,
						EnjoyBy:         g.date.AddDays(product.TotalShelfLife),
						FullPackOut:     true,
					})
				}
				if unfilled := l.Qty - allocQty; unfilled > 0 {
					stillShort = append(stillShort, asShort(l, unfilled))
				}
			}
			hv.Seal(key)
			metrics.FullPackOuts.Inc()
		}

		// Commit every tentatively staged, non-full-pack-out allocation
		// for this priority (spec.md §4.4: "at the end of a priority
		// loop, commit staged full-fill allocations").
		for g, stagedLines := range staged {
			for _, st := range stagedLines {
				product := products[st.line.Product]
				result.Allocations = append(result.Allocations, persist.HarvestAllocation{
					AllocationDate:  g.date,
					DemandDate:      st.line.DemandDate,
					Crop:            g.crop,
					HarvestFacility: st.line.Facility,
					DemandFacility:  st.line.Facility,
					Product:         st.line.Product,
					Customer:        st.line.Customer,
					Qty:             st.line.Qty,
					PlantSites:      st.plantSites,
					EnjoyBy:         g.date.AddDays(product.TotalShelfLife),
					FullPackOut:     false,
				})
			}
		}

		rolloverAllocations, rolloverQuantities := rolloverPass(hv, inv, conv, products, atThisPriority, priority)
		result.Allocations = append(result.Allocations, rolloverAllocations...)
		result.RolloverQuantities = append(result.RolloverQuantities, rolloverQuantities...)

		remaining = append(others, stillShort...)
	}

	result.ShortDemand = remaining
	return result
}

func asShort(l ShortLine, qty int) ShortLine {
	l.Qty = qty
	return l
}

// preStepHarvestTransfers implements spec.md §4.4's tier-1-only pre-step:
// every scheduled outbound transfer whose ship date is one business day
// before forecast_date (two days if Sunday) charges the ship facility's
// (date, crop) key, customer id null.
func preStepHarvestTransfers(
	hv *ledger.Harvest,
	conv *yield.Converter,
	products map[refmodel.ProductID]refmodel.Product,
	transfers []persist.PlannedTransferRow,
	forecastDate refmodel.Date,
	warn func(format string, args ...any),
) []persist.HarvestAllocation {
	var out []persist.HarvestAllocation
	shipDay := refmodel.RewindToShipDay(forecastDate, 1)

	for _, t := range transfers {
		product, ok := products[t.Product]
		if !ok {
			continue
		}
		region := refmodel.RegionOf(t.ShipFacility)
		key := ledger.HarvestKey{Date: shipDay, Crop: product.CropID, Region: region}

		gpps := conv.MeanGPPS(product.CropID, t.ShipFacility, product.IsWhole)
		netPS := yield.PlantSitesNeeded(t.Qty, product.NetWeightGrams, gpps)

		available, ok := hv.Available(key)
		if !ok {
			if warn != nil {
				warn("tier-1 transfer pre-step: no harvest at all for key=%s, skipping", key)
			}
			continue
		}

		qty := t.Qty
		ps := netPS
		fullPackOut := false
		if available < netPS {
			ratio := ledger.FullPackOutRatio(available, netPS)
			qty = ledger.ScaleQty(t.Qty, ratio)
			ps = yield.PlantSitesNeeded(qty, product.NetWeightGrams, gpps)
			fullPackOut = true
		}
		_ = hv.TryAllocate(key, ps)

		out = append(out, persist.HarvestAllocation{
			AllocationDate:  shipDay,
			DemandDate:      t.ArrivalDate,
			Crop:            product.CropID,
			HarvestFacility: t.ShipFacility,
			DemandFacility:  t.ArrivalFacility,
			Product:         t.Product,
			Customer:        0,
			Qty:             qty,
			PlantSites:      ps,
			EnjoyBy:         t.EnjoyBy,
			FullPackOut:     fullPackOut,
		})
	}
	return out
}

// rolloverPass implements spec.md §4.4's end-of-priority rollover step:
// aggregate positive rollover_qty by (facility, product), net out
// still-unallocated inventory, request the plant-site remainder from the
// (date, crop, region) key, and satisfy proportionally if the key is
// short. Every plant-site grant it wins is also emitted as a
// customer-0 harvest-allocation record, enjoy-by one day after the
// requesting key's date, alongside the inventory-seeding quantity.
func rolloverPass(
	hv *ledger.Harvest,
	inv *ledger.Inventory,
	conv *yield.Converter,
	products map[refmodel.ProductID]refmodel.Product,
	lines []ShortLine,
	priority refmodel.ProductionPriority,
) ([]persist.HarvestAllocation, []ledger.RolloverHarvestQty) {
	type rollGroup struct {
		facility refmodel.FacilityID
		product  refmodel.ProductID
	}
	rolloverByFP := map[rollGroup]int{}
	dateByFP := map[rollGroup]refmodel.Date{}

	for _, l := range lines {
		if l.RolloverQty <= 0 {
			continue
		}
		product, ok := products[l.Product]
		if !ok || product.Priority != priority {
			continue
		}
		g := rollGroup{facility: l.Facility, product: l.Product}
		rolloverByFP[g] += l.RolloverQty
		dateByFP[g] = l.AllocationDate
	}
	if len(rolloverByFP) == 0 {
		return nil, nil
	}

	type request struct {
		group rollGroup
		key   ledger.HarvestKey
		qty   int
		ps    int
	}
	requestsByKey := map[ledger.HarvestKey][]request{}

	for g, qty := range rolloverByFP {
		product := products[g.product]
		unallocated := 0
		for _, lot := range inv.FEFOCandidates(g.product, g.facility) {
			unallocated += lot.End
		}
		remainingQty := qty - unallocated
		if remainingQty <= 0 {
			continue
		}
		effDate := dateByFP[g]
		if priority.IsFoodService() {
			effDate = effDate.AddDays(-product.LeadTimeDays)
		}
		key := ledger.HarvestKey{Date: effDate, Crop: product.CropID, Region: refmodel.RegionOf(g.facility)}
		gpps := conv.MeanGPPS(product.CropID, g.facility, product.IsWhole)
		ps := yield.PlantSitesNeeded(remainingQty, product.NetWeightGrams, gpps)
		requestsByKey[key] = append(requestsByKey[key], request{group: g, key: key, qty: remainingQty, ps: ps})
	}

	var allocations []persist.HarvestAllocation
	var out []ledger.RolloverHarvestQty
	for key, reqs := range requestsByKey {
		if hv.IsSealed(key) {
			continue
		}
		total := 0
		for _, r := range reqs {
			total += r.ps
		}
		available, ok := hv.Available(key)
		if !ok {
			continue
		}
		fullPackOut := false
		ratio := decimal.NewFromInt(1)
		if available < total {
			ratio = ledger.FullPackOutRatio(available, total)
			fullPackOut = true
		}
		for _, r := range reqs {
			qty := r.qty
			if ratio.LessThan(decimal.NewFromInt(1)) {
				qty = ledger.ScaleQty(r.qty, ratio)
			}
			if qty <= 0 {
				continue
			}
			product := products[r.group.product]
			gpps := conv.MeanGPPS(product.CropID, r.group.facility, product.IsWhole)
			ps := yield.PlantSitesNeeded(qty, product.NetWeightGrams, gpps)
			if err := hv.TryAllocate(key, ps); err != nil {
				continue
			}
			out = append(out, ledger.RolloverHarvestQty{Facility: r.group.facility, Product: r.group.product, Qty: qty})
			allocations = append(allocations, persist.HarvestAllocation{
				AllocationDate:  key.Date,
				DemandDate:      dateByFP[r.group],
				Crop:            key.Crop,
				HarvestFacility: r.group.facility,
				DemandFacility:  r.group.facility,
				Product:         r.group.product,
				Customer:        refmodel.RolloverCustomer,
				Qty:             qty,
				PlantSites:      ps,
				EnjoyBy:         key.Date.AddDays(1),
				FullPackOut:     fullPackOut,
			})
		}
	}
	return allocations, out
}
