/*
Package transfer computes cross-facility shipments that close same-region
impossibilities under a fixed weekly route calendar and pallet capacity
(spec.md §4.5).

Grounded on generic/policy.go's ReconciliationEngine: a rule table
(here, the route table) drives a deterministic pass over demand that
produces Transaction-shaped output rows without mutating the rules
themselves, only the shared ledgers the rules reference.
*/
package transfer

import (
	"sort"

	"github.com/greenrow/allocator/allocate"
	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/opsapi/metrics"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
	"github.com/greenrow/allocator/yield"
)

// Result is the output of PlanInventoryTransfers and PlanHarvestTransfers.
type Result struct {
	Transfers  []persist.CalculatedTransfer
	HarvestAllocations []persist.HarvestAllocation
	ShortDemand []allocate.ShortLine
}

// truckState tracks the running truck index and pallet total for one
// (ship_date, ship_facility, arrival_facility) triple (spec.md §4.5
// "Truck capacity").
type truckState struct {
	index       int
	palletTotal float64
}

// skipKey deduplicates (short_key, harvest_date, ship_facility) so the
// main allocator's later sweep does not re-attempt the same combination
// (spec.md §4.5 "Deduplication").
type skipKey struct {
	demandDate  refmodel.Date
	facility    refmodel.FacilityID
	product     refmodel.ProductID
	customer    refmodel.CustomerID
	harvestDate refmodel.Date
	shipFacility refmodel.FacilityID
}

// Planner accumulates truck state across a (tier, day) pending pass
// (spec.md §4.8 step 5: "zero the per-run transfer state" at the start
// of the pending pass).
type Planner struct {
	routes *refmodel.RouteTable
	trucks map[truckKey]*truckState
	skip   map[skipKey]bool
}

type truckKey struct {
	shipDate        refmodel.Date
	shipFacility    refmodel.FacilityID
	arrivalFacility refmodel.FacilityID
}

// New builds a Planner with zeroed transfer state over the given route
// table.
func New(routes *refmodel.RouteTable) *Planner {
	return &Planner{routes: routes, trucks: map[truckKey]*truckState{}, skip: map[skipKey]bool{}}
}

// assignTruck computes pallets for qty and either adds to the current
// truck or opens the next one (spec.md §4.5 "Truck capacity").
func (p *Planner) assignTruck(shipDate refmodel.Date, shipFacility, arrivalFacility refmodel.FacilityID, product refmodel.Product, qty int, maxPallets float64) (truckIndex int, pallets float64) {
	k := truckKey{shipDate: shipDate, shipFacility: shipFacility, arrivalFacility: arrivalFacility}
	st, ok := p.trucks[k]
	if !ok {
		st = &truckState{index: 1}
		p.trucks[k] = st
		metrics.TrucksOpened.Inc()
	}
	pallets = product.Pallets(qty)
	if st.palletTotal+pallets > maxPallets {
		st.index++
		st.palletTotal = pallets
		metrics.TrucksOpened.Inc()
	} else {
		st.palletTotal += pallets
	}
	return st.index, pallets
}

// PlanInventoryTransfers implements spec.md §4.5's food-service inventory
// transfer pass: for remaining short demand at the arrival facility
// (food-service, crop 3, priority 5), draw FEFO from the ship facility's
// inventory and record both the inventory-allocation decrement and the
// calculated-transfer row.
func (p *Planner) PlanInventoryTransfers(
	shipInv *ledger.Inventory,
	shortLines []allocate.ShortLine,
	products map[refmodel.ProductID]refmodel.Product,
	forecastDate refmodel.Date,
) Result {
	var result Result
	var stillShort []allocate.ShortLine

	for _, l := range shortLines {
		product, ok := products[l.Product]
		if !ok || !product.Priority.IsFoodService() || product.CropID != 3 {
			stillShort = append(stillShort, l)
			continue
		}

		remaining := l.Qty
		for _, route := range p.routes.ForArrival(l.Facility) {
			if !route.FoodServiceOnly || remaining <= 0 {
				continue
			}
			shipDay := refmodel.ShipDayFor(route, forecastDate)

			candidates := shipInv.FEFOCandidates(l.Product, route.ShipFacility)
			for _, lot := range candidates {
				if remaining <= 0 {
					break
				}
				draw := remaining
				if lot.End < draw {
					draw = lot.End
				}
				customer := l.Customer
				lot.Draw(&customer, draw)
				remaining -= draw

				truckIdx, pallets := p.assignTruck(shipDay, route.ShipFacility, l.Facility, product, draw, route.MaxPallets)
				result.Transfers = append(result.Transfers, persist.CalculatedTransfer{
					ShipDate:        shipDay,
					ArrivalDate:     forecastDate,
					ShipFacility:    route.ShipFacility,
					ArrivalFacility: l.Facility,
					Product:         l.Product,
					EnjoyBy:         lot.Key.EnjoyBy,
					Customer:        l.Customer,
					Qty:             draw,
					Pallets:         pallets,
					TruckIndex:      truckIdx,
					RouteIndex:      route.Index,
				})
			}
		}

		if remaining > 0 {
			short := l
			short.Qty = remaining
			stillShort = append(stillShort, short)
		}
	}

	result.ShortDemand = stillShort
	return result
}

// PlanHarvestTransfers implements spec.md §4.5's retail harvest transfer
// pass: for non-food-service routes and priority-2 short demand, scan
// candidate harvest days in reverse chronological order from
// last_harvest_day = ship_day - pack_lead_time_days down to
// demand_date - (total_shelf_life - shelf_life_guarantee), applying the
// §4.4 key-seal/proportional-fill discipline at the ship facility.
func (p *Planner) PlanHarvestTransfers(
	hv *ledger.Harvest,
	conv *yield.Converter,
	shortLines []allocate.ShortLine,
	products map[refmodel.ProductID]refmodel.Product,
	forecastDate refmodel.Date,
) Result {
	var result Result
	var stillShort []allocate.ShortLine

	for _, l := range shortLines {
		product, ok := products[l.Product]
		if !ok || product.Priority != refmodel.PriorityRetail2 {
			stillShort = append(stillShort, l)
			continue
		}

		remaining := l.Qty
		for _, route := range p.routes.ForArrival(l.Facility) {
			if route.FoodServiceOnly || remaining <= 0 {
				continue
			}
			shipDay := refmodel.ShipDayFor(route, forecastDate)
			lastHarvestDay := shipDay.AddDays(-route.PackLeadTimeDays)
			earliestHarvestDay := l.DemandDate.AddDays(-(product.TotalShelfLife - product.ShelfLifeGuarantee))

			var candidateDays []refmodel.Date
			for d := lastHarvestDay; !d.Before(earliestHarvestDay); d = d.AddDays(-1) {
				candidateDays = append(candidateDays, d)
			}
			sort.Slice(candidateDays, func(i, j int) bool { return candidateDays[i].After(candidateDays[j]) })

			for _, harvestDay := range candidateDays {
				if remaining <= 0 {
					break
				}
				sk := skipKey{demandDate: l.DemandDate, facility: l.Facility, product: l.Product, customer: l.Customer, harvestDate: harvestDay, shipFacility: route.ShipFacility}
				if p.skip[sk] {
					continue
				}
				p.skip[sk] = true

				key := ledger.HarvestKey{Date: harvestDay, Crop: product.CropID, Region: refmodel.RegionOf(route.ShipFacility)}
				if hv.IsSealed(key) {
					continue
				}
				available, ok := hv.Available(key)
				if !ok || available <= 0 {
					continue
				}

				gpps := conv.MeanGPPS(product.CropID, route.ShipFacility, product.IsWhole)
				netPS := yield.PlantSitesNeeded(remaining, product.NetWeightGrams, gpps)

				qty := remaining
				ps := netPS
				fullPackOut := false
				if available < netPS {
					ratio := ledger.FullPackOutRatio(available, netPS)
					qty = ledger.ScaleQty(remaining, ratio)
					ps = yield.PlantSitesNeeded(qty, product.NetWeightGrams, gpps)
					fullPackOut = true
				}
				if qty <= 0 {
					continue
				}
				if err := hv.TryAllocate(key, ps); err != nil {
					continue
				}
				if fullPackOut {
					hv.Seal(key)
					metrics.FullPackOuts.Inc()
				}

				enjoyBy := harvestDay.AddDays(product.TotalShelfLife)
				result.HarvestAllocations = append(result.HarvestAllocations, persist.HarvestAllocation{
					AllocationDate:  harvestDay,
					DemandDate:      l.DemandDate,
					Crop:            product.CropID,
					HarvestFacility: route.ShipFacility,
					DemandFacility:  l.Facility,
					Product:         l.Product,
					Customer:        l.Customer,
					Qty:             qty,
					PlantSites:      ps,
					EnjoyBy:         enjoyBy,
					FullPackOut:     fullPackOut,
				})

				truckIdx, pallets := p.assignTruck(shipDay, route.ShipFacility, l.Facility, product, qty, route.MaxPallets)
				result.Transfers = append(result.Transfers, persist.CalculatedTransfer{
					ShipDate:        shipDay,
					ArrivalDate:     forecastDate,
					ShipFacility:    route.ShipFacility,
					ArrivalFacility: l.Facility,
					Product:         l.Product,
					EnjoyBy:         enjoyBy,
					Customer:        l.Customer,
					Qty:             qty,
					Pallets:         pallets,
					TruckIndex:      truckIdx,
					RouteIndex:      route.Index,
				})

				remaining -= qty
			}
		}

		if remaining > 0 {
			short := l
			short.Qty = remaining
			stillShort = append(stillShort, short)
		}
	}

	result.ShortDemand = stillShort
	return result
}
