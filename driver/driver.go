/*
Package driver sequences the tier x time outer loop (spec.md §4.8):
inventory rollover, stop-sell projection, inventory allocation, harvest
allocation, prior-day harvest allocation, and — on the pending pass only
— transfer planning, for each (fill-goal tier, date) pair in turn.

Grounded on api/scheduler.go's periodic-pass runner, collapsed from a
ticker-driven background loop into a single daily invocation the way
spec.md §5 describes ("the core is a batch computation invoked by an
external scheduler once per day").
*/
package driver

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenrow/allocator/allocate"
	"github.com/greenrow/allocator/demand"
	"github.com/greenrow/allocator/forecast"
	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/opsapi/metrics"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
	"github.com/greenrow/allocator/transfer"
	"github.com/greenrow/allocator/yield"
)

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// Driver owns one run over a closed window of allocation dates.
type Driver struct {
	store  persist.Store
	logger *log.Logger
}

// New builds a Driver against a persistence backend.
func New(store persist.Store, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{store: store, logger: logger}
}

// Run implements spec.md §6's single entry point: run(forecast_date).
// It checks the gate condition, then executes the two-pass driver loop
// over allocationDates, the window the caller builds from forecastDate.
func (d *Driver) Run(ctx context.Context, forecastDate refmodel.Date, allocationDates []refmodel.Date) (err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		metrics.RunDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	status, err := d.store.Status(ctx, forecastDate)
	if err != nil {
		return fmt.Errorf("read inventory status: %w", err)
	}
	if !status.InventoryLoaded || status.AllocationRanAt != nil {
		d.logger.Printf("gate declined for %s: inventory_loaded=%v allocation_already_ran=%v",
			forecastDate, status.InventoryLoaded, status.AllocationRanAt != nil)
		outcome = "declined"
		return nil
	}
	if err = d.store.MarkAllocationStarted(ctx, forecastDate); err != nil {
		return fmt.Errorf("mark allocation started: %w", err)
	}

	dims, err := d.loadDimensions(ctx)
	if err != nil {
		return fmt.Errorf("load dimensions: %w", err)
	}

	customers := sortedFillGoals(dims.customers)

	// First pass: baseline tables, descending fill-goal tiers (spec.md
	// §4.8 step 2).
	if err = d.runPasses(ctx, dims, customers, allocationDates, persist.PassBaseline, false); err != nil {
		return fmt.Errorf("baseline pass: %w", err)
	}

	// Pending pass: zero transfer state, repeat with transfer planning
	// enabled (spec.md §4.8 step 5).
	if err = d.runPasses(ctx, dims, customers, allocationDates, persist.PassPending, true); err != nil {
		return fmt.Errorf("pending pass: %w", err)
	}

	return nil
}

type dimensions struct {
	crops         map[refmodel.CropID]refmodel.Crop
	facilities    map[refmodel.FacilityID]refmodel.Facility
	facilityLines map[int]refmodel.FacilityLine
	customers     map[refmodel.CustomerID]refmodel.Customer
	products      map[refmodel.ProductID]refmodel.Product
	routes        *refmodel.RouteTable
}

func (d *Driver) loadDimensions(ctx context.Context) (dimensions, error) {
	var dims dimensions
	var err error
	if dims.crops, err = d.store.Crops(ctx); err != nil {
		return dims, err
	}
	if dims.facilities, err = d.store.Facilities(ctx); err != nil {
		return dims, err
	}
	if dims.facilityLines, err = d.store.FacilityLines(ctx); err != nil {
		return dims, err
	}
	if dims.customers, err = d.store.Customers(ctx); err != nil {
		return dims, err
	}
	if dims.products, err = d.store.Products(ctx); err != nil {
		return dims, err
	}
	if dims.routes, err = d.store.Routes(ctx); err != nil {
		return dims, err
	}
	return dims, nil
}

// sortedFillGoals returns each distinct fill goal present in the
// customer dimension, descending (spec.md §4.8 step 1).
func sortedFillGoals(customers map[refmodel.CustomerID]refmodel.Customer) []float64 {
	seen := map[float64]bool{}
	var goals []float64
	for _, c := range customers {
		if !seen[c.FillGoal] {
			seen[c.FillGoal] = true
			goals = append(goals, c.FillGoal)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(goals)))
	return goals
}

// runState carries the day-over-day ledgers and rollover carry that
// persist across the chronological date loop within one pass, the way
// the driver lends the harvest ledger to each component "by move-style
// transfer" (spec.md §5).
type runState struct {
	harvest         *ledger.Harvest
	inventory       *ledger.Inventory
	lastRollHarvest []ledger.RolloverHarvestQty
	planner         *transfer.Planner
	seededDates     map[refmodel.Date]bool
}

func (d *Driver) runPasses(ctx context.Context, dims dimensions, fillGoals []float64, dates []refmodel.Date, pass persist.Pass, withTransfers bool) error {
	state := &runState{harvest: ledger.NewHarvest(), inventory: ledger.NewInventory(), seededDates: make(map[refmodel.Date]bool)}
	if withTransfers {
		state.planner = transfer.New(dims.routes)
	}
	if err := d.hydratePriorHarvestLedger(ctx, dims, state, dates); err != nil {
		return err
	}

	live := liveOrderPredicate(dims)
	isLive := func(customer refmodel.CustomerID, product refmodel.ProductID) bool {
		if live(customer, product) {
			return true
		}
		d.logger.Printf("skipping demand row: customer=%d product=%d is unknown or out of scope", customer, product)
		return false
	}

	for tierIdx, goal := range fillGoals {
		for dateIdx, date := range dates {
			first := tierIdx == 0 && dateIdx == 0

			demandRows, err := d.store.DemandForecast(ctx, date)
			if err != nil {
				return err
			}
			demandRows = demand.LiveOnly(demandRows, isLive)
			var lines []demand.Line
			for _, row := range demandRows {
				lines = append(lines, demand.ScaleTier(row, goal))
			}

			if err := d.runTierDay(ctx, dims, state, lines, date, tierIdx, pass, withTransfers, first); err != nil {
				return err
			}
		}
	}

	// Second pass shape: complemented demand for every tier after the
	// first (spec.md §4.8 step 3), writing to the same tables as the loop
	// above (this pass's baseline or pending set).
	for tierIdx, goal := range fillGoals {
		if tierIdx == 0 {
			continue
		}
		for _, date := range dates {
			demandRows, err := d.store.DemandForecast(ctx, date)
			if err != nil {
				return err
			}
			demandRows = demand.LiveOnly(demandRows, isLive)
			var lines []demand.Line
			for _, row := range demandRows {
				lines = append(lines, demand.Complement(row, goal))
			}
			if err := d.runTierDay(ctx, dims, state, lines, date, tierIdx, pass, withTransfers, false); err != nil {
				return err
			}
		}
	}

	return d.emitHarvestUnallocated(ctx, dims, state, dates, pass)
}

func (d *Driver) runTierDay(
	ctx context.Context,
	dims dimensions,
	state *runState,
	lines []demand.Line,
	date refmodel.Date,
	tierIdx int,
	pass persist.Pass,
	withTransfers bool,
	seedFromActuals bool,
) error {
	warn := func(format string, args ...any) { d.logger.Printf(format, args...) }

	if seedFromActuals {
		actuals, err := d.store.InventoryActuals(ctx, date)
		if err != nil {
			return err
		}
		for _, a := range actuals {
			state.inventory.Merge(ledger.LotKey{Facility: a.Facility, Product: a.Product, EnjoyBy: a.EnjoyBy}, a.Qty)
		}
	} else {
		prevSnapshot := snapshotOf(state.inventory)
		rolled := ledger.RollForward(prevSnapshot, dims.products, date)
		rolled = ledger.SmoothRollover(rolled, state.lastRollHarvest, dims.products, date.AddDays(-1))
		state.inventory = ledger.NewInventory()
		for key, qty := range rolled {
			state.inventory.Merge(key, qty)
		}
	}

	inboundTransfers, err := d.plannedTransfersArriving(ctx, date)
	if err != nil {
		return err
	}
	projResult := forecast.Project(state.inventory, dims.products, inboundTransfers, date, tierIdx)
	if err := d.store.WriteStopSell(ctx, pass, date, projResult.StopSell); err != nil {
		return err
	}

	forecastEntries, err := d.store.HarvestForecast(ctx, date)
	if err != nil {
		return err
	}
	conv := yield.NewConverter(forecastEntries)
	if !state.seededDates[date] {
		seedHarvestKeys(state.harvest, forecastEntries)
		state.seededDates[date] = true
	}

	shipDay := refmodel.RewindToShipDay(date, 1)
	preStepTransfers, err := d.store.PlannedTransfers(ctx, shipDay)
	if err != nil {
		return err
	}
	sameDayTransfers, err := d.store.PlannedTransfers(ctx, date)
	if err != nil {
		return err
	}

	invResult := allocate.FromInventory(state.inventory, lines, date, tierIdx, sameDayTransfers, warn)

	harvResult := allocate.FromHarvest(state.harvest, state.inventory, conv, dims.products, invResult.ShortDemand, date, tierIdx, preStepTransfers, warn)
	state.lastRollHarvest = harvResult.RolloverQuantities

	priorDayResult := d.priorDayHarvest(state.harvest, conv, dims.products, harvResult.ShortDemand, date)

	finalShort := priorDayResult.ShortDemand
	allocations := append(append([]persist.HarvestAllocation{}, harvResult.Allocations...), priorDayResult.Allocations...)
	var transfers []persist.CalculatedTransfer

	if withTransfers && state.planner != nil {
		invXfer := state.planner.PlanInventoryTransfers(state.inventory, finalShort, dims.products, date)
		transfers = append(transfers, invXfer.Transfers...)
		finalShort = invXfer.ShortDemand

		harvXfer := state.planner.PlanHarvestTransfers(state.harvest, conv, finalShort, dims.products, date)
		transfers = append(transfers, harvXfer.Transfers...)
		allocations = append(allocations, harvXfer.HarvestAllocations...)
		finalShort = harvXfer.ShortDemand
	}

	if err := d.store.WriteInventoryAllocations(ctx, pass, date, inventoryAllocationRows(state.inventory, date)); err != nil {
		return err
	}
	if err := d.store.WriteHarvestAllocations(ctx, pass, date, allocations); err != nil {
		return err
	}
	if err := d.store.WriteShortDemand(ctx, pass, date, shortDemandRows(finalShort)); err != nil {
		return err
	}
	var shortQty int
	for _, l := range finalShort {
		shortQty += l.Qty
	}
	metrics.ShortDemandQty.WithLabelValues(string(pass)).Add(float64(shortQty))
	if len(transfers) > 0 {
		if err := d.store.WriteCalculatedTransfers(ctx, date, transfers); err != nil {
			return err
		}
	}
	if err := d.store.WriteHarvestLedgerSnapshot(ctx, date, harvestSnapshotRows(state.harvest)); err != nil {
		return err
	}

	return nil
}

// priorDayHarvest implements the §4.4 continuation: still-short
// priority-2 demand is attempted against prior harvest days within
// [demand_date − (total_shelf_life − shelf_life_guarantee), demand_date
// − 1], scanned in reverse chronological order, using the same key
// seal/partial-fill discipline.
func (d *Driver) priorDayHarvest(
	hv *ledger.Harvest,
	conv *yield.Converter,
	products map[refmodel.ProductID]refmodel.Product,
	shortLines []allocate.ShortLine,
	forecastDate refmodel.Date,
) allocate.HarvestResult {
	var result allocate.HarvestResult
	var stillShort []allocate.ShortLine

	for _, l := range shortLines {
		product, ok := products[l.Product]
		if !ok || product.Priority != refmodel.PriorityRetail2 {
			stillShort = append(stillShort, l)
			continue
		}

		remaining := l.Qty
		from := l.DemandDate.AddDays(-(product.TotalShelfLife - product.ShelfLifeGuarantee))
		to := l.DemandDate.AddDays(-1)
		keys := hv.CarryForward(product.CropID, refmodel.RegionOf(l.Facility), from, to)
		sort.Slice(keys, func(i, j int) bool { return keys[i].Date.After(keys[j].Date) })

		for _, key := range keys {
			if remaining <= 0 {
				break
			}
			if hv.IsSealed(key) {
				continue
			}
			available, ok := hv.Available(key)
			if !ok || available <= 0 {
				continue
			}
			gpps := conv.MeanGPPS(product.CropID, l.Facility, product.IsWhole)
			netPS := yield.PlantSitesNeeded(remaining, product.NetWeightGrams, gpps)

			qty := remaining
			ps := netPS
			full := false
			if available < netPS {
				ratio := ledger.FullPackOutRatio(available, netPS)
				qty = ledger.ScaleQty(remaining, ratio)
				ps = yield.PlantSitesNeeded(qty, product.NetWeightGrams, gpps)
				full = true
			}
			if qty <= 0 {
				continue
			}
			if err := hv.TryAllocate(key, ps); err != nil {
				continue
			}
			if full {
				hv.Seal(key)
				metrics.FullPackOuts.Inc()
			}

			result.Allocations = append(result.Allocations, persist.HarvestAllocation{
				AllocationDate:  key.Date,
				DemandDate:      l.DemandDate,
				Crop:            key.Crop,
				HarvestFacility: l.Facility,
				DemandFacility:  l.Facility,
				Product:         l.Product,
				Customer:        l.Customer,
				Qty:             qty,
				PlantSites:      ps,
				EnjoyBy:         key.Date.AddDays(product.TotalShelfLife),
				FullPackOut:     full,
			})
			remaining -= qty
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

// plannedTransfersArriving collects planned-transfer rows that could
// arrive on date, filtering to ArrivalDate == date. The underlying store
// is only indexed by ship date, so this scans the week preceding date —
// wider than any route's transit time in the reference calendar.
func (d *Driver) plannedTransfersArriving(ctx context.Context, date refmodel.Date) ([]persist.PlannedTransferRow, error) {
	var out []persist.PlannedTransferRow
	for offset := 0; offset <= 7; offset++ {
		rows, err := d.store.PlannedTransfers(ctx, date.AddDays(-offset))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// emitHarvestUnallocated implements spec.md §4.7: for every key with
// remaining = starting - allocated > 0, convert plant sites to whole
// grams, loose grams, and a generic unit qty via the weighted-mean gpps
// and crop-specific grams-per-unit.
func (d *Driver) emitHarvestUnallocated(ctx context.Context, dims dimensions, state *runState, dates []refmodel.Date, pass persist.Pass) error {
	for _, date := range dates {
		forecastEntries, err := d.store.HarvestForecast(ctx, date)
		if err != nil {
			return err
		}
		conv := yield.NewConverter(forecastEntries)

		var rows []persist.HarvestUnallocated
		for _, st := range state.harvest.Remaining() {
			if !st.Key.Date.Equal(date) {
				continue
			}
			remainingPS := st.StartingPS - st.AllocatedPS
			gppsWhole := conv.MeanGPPS(st.Key.Crop, st.Key.Region, true)
			gppsLoose := conv.MeanGPPS(st.Key.Crop, st.Key.Region, false)
			wholeGrams := gppsWhole.Mul(decimalFromInt(remainingPS))
			looseGrams := gppsLoose.Mul(decimalFromInt(remainingPS))
			gramsPerUnit := st.Key.Crop.GramsPerUnit()
			units := 0
			if !gramsPerUnit.IsZero() {
				units = int(looseGrams.Div(gramsPerUnit).Floor().IntPart())
			}

			wholeF, _ := wholeGrams.Float64()
			looseF, _ := looseGrams.Float64()
			rows = append(rows, persist.HarvestUnallocated{
				Date:       st.Key.Date,
				Crop:       st.Key.Crop,
				Facility:   st.Key.Region,
				PlantSites: remainingPS,
				WholeGrams: wholeF,
				LooseGrams: looseF,
				Units:      units,
			})
		}
		if err := d.store.WriteHarvestUnallocated(ctx, pass, date, rows); err != nil {
			return err
		}
	}
	return nil
}

// hydratePriorHarvestLedger loads persisted harvest-ledger state for keys
// the prior-day allocator's carry-forward lookback (driver.go's
// priorDayHarvest) may reach behind the run's own date window, since
// state.harvest is otherwise only ever seeded from the current window's
// harvest forecast rows (persist.HarvestLedgerLoader's "used by ... a
// resumed run" case is this same call with an empty prior ledger: every
// key comes back unseen and Hydrate is a no-op).
func (d *Driver) hydratePriorHarvestLedger(ctx context.Context, dims dimensions, state *runState, dates []refmodel.Date) error {
	if len(dates) == 0 {
		return nil
	}
	maxLookback := 0
	for _, p := range dims.products {
		if lb := p.TotalShelfLife - p.ShelfLifeGuarantee; lb > maxLookback {
			maxLookback = lb
		}
	}
	if maxLookback <= 0 {
		return nil
	}

	regions := map[refmodel.FacilityID]bool{}
	for facilityID := range dims.facilities {
		regions[refmodel.RegionOf(facilityID)] = true
	}

	first := dates[0]
	var keys []ledger.HarvestKey
	for cropID := range dims.crops {
		for region := range regions {
			for back := 1; back <= maxLookback; back++ {
				keys = append(keys, ledger.HarvestKey{Date: first.AddDays(-back), Crop: cropID, Region: region})
			}
		}
	}

	prior, err := d.store.LoadHarvestLedger(ctx, keys)
	if err != nil {
		return err
	}
	state.harvest.Hydrate(prior)
	return nil
}

// liveOrderPredicate restores original_source's liveOrderCheck as a
// demand.LiveOnly pre-filter: a demand line is live if its customer is a
// known dimension row and its product's production priority is in scope
// for allocation (refmodel.PriorityOutOfScope rows never reach a harvest
// or inventory allocator).
func liveOrderPredicate(dims dimensions) func(customer refmodel.CustomerID, product refmodel.ProductID) bool {
	return func(customer refmodel.CustomerID, product refmodel.ProductID) bool {
		if _, ok := dims.customers[customer]; !ok {
			return false
		}
		p, ok := dims.products[product]
		if !ok {
			return false
		}
		return p.Priority != refmodel.PriorityOutOfScope
	}
}

func seedHarvestKeys(hv *ledger.Harvest, entries []refmodel.HarvestForecastEntry) {
	totals := map[ledger.HarvestKey]int{}
	for _, e := range entries {
		key := ledger.HarvestKey{Date: e.Date, Crop: e.Crop, Region: refmodel.RegionOf(e.Facility)}
		totals[key] += e.ExpectedPlantSites
	}
	for key, total := range totals {
		hv.Seed(key, total)
	}
}

func snapshotOf(inv *ledger.Inventory) []ledger.EndOfDaySnapshot {
	var out []ledger.EndOfDaySnapshot
	for _, lot := range inv.All() {
		out = append(out, ledger.EndOfDaySnapshot{Key: lot.Key, EndQty: lot.End})
	}
	return out
}

func inventoryAllocationRows(inv *ledger.Inventory, date refmodel.Date) []persist.InventoryAllocation {
	var out []persist.InventoryAllocation
	for _, lot := range inv.All() {
		for _, draw := range lot.Draws {
			customer := refmodel.RolloverCustomer
			if draw.Customer != nil {
				customer = *draw.Customer
			}
			out = append(out, persist.InventoryAllocation{
				Date:     date,
				Facility: lot.Key.Facility,
				Product:  lot.Key.Product,
				EnjoyBy:  lot.Key.EnjoyBy,
				Customer: customer,
				Qty:      draw.Qty,
			})
		}
	}
	return out
}

func shortDemandRows(lines []allocate.ShortLine) []persist.ShortDemand {
	var out []persist.ShortDemand
	for _, l := range lines {
		out = append(out, persist.ShortDemand{
			DemandDate:     l.DemandDate,
			AllocationDate: l.AllocationDate,
			Facility:       l.Facility,
			Product:        l.Product,
			Customer:       l.Customer,
			Qty:            l.Qty,
		})
	}
	return out
}

func harvestSnapshotRows(hv *ledger.Harvest) []persist.HarvestLedgerSnapshot {
	var out []persist.HarvestLedgerSnapshot
	for _, st := range hv.Remaining() {
		out = append(out, persist.HarvestLedgerSnapshot{Key: st.Key, StartingPS: st.StartingPS, AllocatedPS: st.AllocatedPS, Sealed: st.Sealed})
	}
	return out
}
