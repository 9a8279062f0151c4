/*
inventory.go - Per-lot inventory ledger

PURPOSE:
  The ordered sequence of (facility, product, enjoy-by-date) lots, each
  carrying a start-of-day quantity, an end-of-day quantity, and the
  per-customer allocations drawn against it today (spec.md §3/§4.2).

CRITICAL INVARIANTS (spec.md §3, §8):
  1. Quantity never goes negative.
  2. Two inbound entries for the same (facility, product, enjoy-by-date)
     merge additively.
  3. A lot with quantity 0 is considered absent (FEFO candidate lists skip it).
  4. Conservation: start = Σ allocated(customer) + end, for every lot,
     every day.

WHY A MAP + SORTED VIEW, NOT PARALLEL LISTS:
  The source (per spec.md §9) represents every table as parallel lists
  indexed in lockstep and does O(n) list.index() scans to find a lot.
  Lots here are a map keyed by the (facility, product, enjoy-by-date)
  triple, grounded on the teacher's generic/ledger.go append/compact
  discipline; FEFO candidate selection sorts a filtered view once per
  call rather than maintaining a second structure, since a day's lot
  count per (product, region) is small.

SEE ALSO:
  - harvest.go: the companion per-(date,crop,facility) plant-site ledger
  - ../forecast/projector.go: stop-sell removal and inbound-transfer merges
    (next-day rollforward is RollForward below)
*/
package ledger

import (
	"sort"

	"github.com/greenrow/allocator/refmodel"
)

// LotKey identifies one inventory lot.
type LotKey struct {
	Facility refmodel.FacilityID
	Product  refmodel.ProductID
	EnjoyBy  refmodel.Date
}

// CustomerDraw records one customer's (or, for customer id 0 / nil, one
// planned-transfer outflow's) draw against a lot on the current forecast
// day.
type CustomerDraw struct {
	Customer *refmodel.CustomerID // nil = planned-transfer outflow (spec.md §4.3 step 4)
	Qty      int
}

// Lot is one (facility, product, enjoy-by-date) inventory position for
// the current forecast day.
type Lot struct {
	Key   LotKey
	Start int
	End   int
	Draws []CustomerDraw
}

// Inventory is the per-lot ledger for a single forecast day. A new
// Inventory is built each day by RollForward + SmoothRollover +
// inbound-transfer merges (§4.2), then mutated in place by the
// inventory→demand allocator and the stop-sell projector.
type Inventory struct {
	lots map[LotKey]*Lot
}

// NewInventory builds an empty ledger.
func NewInventory() *Inventory {
	return &Inventory{lots: make(map[LotKey]*Lot)}
}

// Merge adds qty to the lot at key, creating it if absent. This is the
// one place additive-merge semantics (spec.md §3 invariant 2) live: it
// backs actuals loading, smooth-rollover, and inbound planned-transfer
// merges alike.
func (inv *Inventory) Merge(key LotKey, qty int) *Lot {
	lot, ok := inv.lots[key]
	if !ok {
		lot = &Lot{Key: key}
		inv.lots[key] = lot
	}
	lot.Start += qty
	lot.End += qty
	return lot
}

// Get returns the lot at key, if any.
func (inv *Inventory) Get(key LotKey) (*Lot, bool) {
	lot, ok := inv.lots[key]
	return lot, ok
}

// Remove deletes a lot outright (used by stop-sell projection to excise
// lots that have aged past their shelf-life-guarantee window).
func (inv *Inventory) Remove(key LotKey) {
	delete(inv.lots, key)
}

// All returns every lot currently in the ledger, in unspecified order.
func (inv *Inventory) All() []*Lot {
	out := make([]*Lot, 0, len(inv.lots))
	for _, lot := range inv.lots {
		out = append(out, lot)
	}
	return out
}

// FEFOCandidates returns lots for product in facility's region with
// End > 0, sorted by ascending enjoy-by-date (spec.md §4.3 step 2: "Sort
// by ascending enjoy-by-date (FEFO)"; §8 invariant: "lots consumed ... are
// a prefix of the candidate lots sorted by ascending enjoy-by-date").
func (inv *Inventory) FEFOCandidates(product refmodel.ProductID, facility refmodel.FacilityID) []*Lot {
	region := refmodel.RegionOf(facility)
	var out []*Lot
	for _, lot := range inv.lots {
		if lot.Key.Product != product || refmodel.RegionOf(lot.Key.Facility) != region {
			continue
		}
		if lot.End <= 0 {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.EnjoyBy.Before(out[j].Key.EnjoyBy)
	})
	return out
}

// GetInRegion returns the lot for product and enjoyBy in facility's
// region, if any, the same region-canonicalized match FEFOCandidates uses
// (spec.md §4.3 step 4: "debit the matching (region, product,
// enjoy-by-date) lot"). Facility id need not match the lot's recorded
// facility id, only its region.
func (inv *Inventory) GetInRegion(product refmodel.ProductID, facility refmodel.FacilityID, enjoyBy refmodel.Date) (*Lot, bool) {
	region := refmodel.RegionOf(facility)
	for _, lot := range inv.lots {
		if lot.Key.Product == product && lot.Key.EnjoyBy.Equal(enjoyBy) && refmodel.RegionOf(lot.Key.Facility) == region {
			return lot, true
		}
	}
	return nil, false
}

// Draw decrements a lot's end-of-day quantity by qty and records the
// draw. Callers must ensure qty <= lot.End; Draw does not clamp, matching
// the allocator's own "drain the lot, else decrement" branching (spec.md
// §4.3 step 3) rather than silently tolerating an over-draw.
func (lot *Lot) Draw(customer *refmodel.CustomerID, qty int) {
	lot.End -= qty
	lot.Draws = append(lot.Draws, CustomerDraw{Customer: customer, Qty: qty})
}

// AllocatedTo sums every draw recorded against a specific customer
// (spec.md §3 invariant: start = Σ allocated(customer) + end).
func (lot *Lot) AllocatedTo(customer refmodel.CustomerID) int {
	total := 0
	for _, d := range lot.Draws {
		if d.Customer != nil && *d.Customer == customer {
			total += d.Qty
		}
	}
	return total
}

// EndOfDaySnapshot is what RollForward reads from the prior day's
// persisted inventory-allocation records: just enough to rebuild
// tomorrow's starting lots.
type EndOfDaySnapshot struct {
	Key    LotKey
	EndQty int
}

// RollForward implements spec.md §4.2: keep only lots whose pack date
// (enjoy-by minus total shelf life) is before morningDate, OR whose
// product is food-service (priority 5, which carries indefinitely within
// shelf life); everything else is dropped. The result is a compacted
// qty-by-key map ready to seed tomorrow's Inventory via Merge.
func RollForward(prevDay []EndOfDaySnapshot, products map[refmodel.ProductID]refmodel.Product, morningDate refmodel.Date) map[LotKey]int {
	out := make(map[LotKey]int)
	for _, snap := range prevDay {
		if snap.EndQty <= 0 {
			continue
		}
		product, ok := products[snap.Key.Product]
		if !ok {
			continue
		}
		packDate := snap.Key.EnjoyBy.AddDays(-product.TotalShelfLife)
		if !(packDate.Before(morningDate) || product.Priority.IsFoodService()) {
			continue
		}
		out[snap.Key] += snap.EndQty
	}
	return out
}

// RolloverHarvestQty is one manufactured harvest-to-inventory quantity
// produced by the harvest allocator's rollover pass on the previous day
// (customer id 0, spec.md §3).
type RolloverHarvestQty struct {
	Facility refmodel.FacilityID
	Product  refmodel.ProductID
	Qty      int
}

// SmoothRollover implements spec.md §4.2: add prevDay's manufactured
// rollover harvest as new lots with enjoy-by = prevDay + total shelf
// life, additively merging into whatever RollForward already produced.
func SmoothRollover(rolled map[LotKey]int, rollHarvest []RolloverHarvestQty, products map[refmodel.ProductID]refmodel.Product, prevDay refmodel.Date) map[LotKey]int {
	for _, rh := range rollHarvest {
		product, ok := products[rh.Product]
		if !ok {
			continue
		}
		key := LotKey{
			Facility: rh.Facility,
			Product:  rh.Product,
			EnjoyBy:  prevDay.AddDays(product.TotalShelfLife),
		}
		rolled[key] += rh.Qty
	}
	return rolled
}
