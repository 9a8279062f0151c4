/*
harvest.go - Per-key plant-site ledger

PURPOSE:
  Tracks starting and allocated plant sites for each (date, crop, region)
  harvest key (spec.md §4.4), and implements the proportional full-pack-out
  rebate-and-reapply discipline that keeps the ledger's running allocated
  count consistent when a priority tier oversubscribes a key.

GROUNDING:
  The staging/rebate/reapply shape mirrors generic/assignment.go's
  ConsumptionDistributor: tentatively register consumption against a
  resource, and when the resource can't cover every claim, reverse the
  tentative claims and re-apply them scaled by the available/requested
  ratio. Key sealing and carry-forward into the next day's pass are
  grounded on original_source's remainingHarvest/allocateToNextDay.
*/
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/greenrow/allocator/refmodel"
)

// HarvestKeyState is one (date, crop, region) harvest key's plant-site
// bookkeeping.
type HarvestKeyState struct {
	Key               HarvestKey
	StartingPS        int
	AllocatedPS       int
	Sealed            bool
}

// Harvest is the per-run plant-site ledger (spec.md §4.4, §8 "Harvest
// ledger monotonicity" / "Key seal" invariants).
type Harvest struct {
	keys map[HarvestKey]*HarvestKeyState
}

// NewHarvest builds an empty harvest ledger.
func NewHarvest() *Harvest {
	return &Harvest{keys: make(map[HarvestKey]*HarvestKeyState)}
}

// Seed registers a key's starting plant-site total, additively merging
// with any forecast entries already seeded for that key.
func (h *Harvest) Seed(key HarvestKey, startingPS int) *HarvestKeyState {
	st, ok := h.keys[key]
	if !ok {
		st = &HarvestKeyState{Key: key}
		h.keys[key] = st
	}
	st.StartingPS += startingPS
	return st
}

// Hydrate seeds keys from previously persisted ledger state — a resumed
// run, or the prior-day allocator's carry-forward lookback reaching
// behind the current run's date window — without disturbing any key the
// current run has already seeded or allocated against.
func (h *Harvest) Hydrate(prior map[HarvestKey]HarvestKeyState) {
	for key, st := range prior {
		if _, ok := h.keys[key]; ok {
			continue
		}
		copied := st
		h.keys[key] = &copied
	}
}

// Get returns the state for a key, if it has been seeded.
func (h *Harvest) Get(key HarvestKey) (*HarvestKeyState, bool) {
	st, ok := h.keys[key]
	return st, ok
}

// Available returns starting_plant_sites - allocated_plant_sites for a
// key, or (0, false) if the key has never been seeded (spec.md §4.4 step
// 4; ErrNoHarvest at the call site distinguishes "zero available" from
// "no such key").
func (h *Harvest) Available(key HarvestKey) (int, bool) {
	st, ok := h.keys[key]
	if !ok {
		return 0, false
	}
	return st.StartingPS - st.AllocatedPS, true
}

// IsSealed reports whether Seal has been called for key (no further
// allocations permitted; spec.md §3, §8 "Key seal"). A key whose allocated
// count has reached its starting count through ordinary allocations is not
// reported as sealed unless Seal was also called for it.
func (h *Harvest) IsSealed(key HarvestKey) bool {
	st, ok := h.keys[key]
	return ok && st.Sealed
}

// TryAllocate tentatively commits plantSites of consumption against key.
// It returns a *SealedKeyError (which matches ErrKeySealed) if the key is
// sealed, ErrNoHarvest if the key was never seeded, and otherwise
// increments the allocated count and returns nil; it does not check
// plantSites against the key's remaining capacity. This is the "register in staging" half of spec.md
// §4.4 step 5 — staging itself (keyed by date/product/facility/customer)
// lives in the allocate package; this method only updates the shared
// ledger's running count, which the allocator reverses via Rebate if a
// full-pack-out later forces a scale-down.
func (h *Harvest) TryAllocate(key HarvestKey, plantSites int) error {
	st, ok := h.keys[key]
	if !ok {
		return ErrNoHarvest
	}
	if st.Sealed {
		return &SealedKeyError{Key: key}
	}
	st.AllocatedPS += plantSites
	return nil
}

// Rebate reverses a previously tentative allocation so it can be
// re-applied at a scaled-down quantity during full-pack-out (spec.md
// §4.4 step 6: "Reverse those staged contributions from the ledger's
// running allocated count"). It never drives AllocatedPS negative.
func (h *Harvest) Rebate(key HarvestKey, plantSites int) {
	st, ok := h.keys[key]
	if !ok {
		return
	}
	st.AllocatedPS -= plantSites
	if st.AllocatedPS < 0 {
		st.AllocatedPS = 0
	}
}

// Seal marks key as sealed: a full pack-out has occurred and no further
// allocation against it is permitted (spec.md §4.4 step 6, §8 "Key
// seal").
func (h *Harvest) Seal(key HarvestKey) {
	st, ok := h.keys[key]
	if !ok {
		return
	}
	st.Sealed = true
}

// FullPackOutRatio computes the spec.md §4.4 step 6 scaling ratio:
// priority_available / total_short_ps, clamped to [0, 1]. available is
// the key's current AllocatedPS-adjusted remaining capacity plus every
// staged plant-site quantity the caller has already rebated into it;
// totalShortPS is the sum of short-demand plant sites across every
// product sharing the (date, crop, region, priority) grouping.
func FullPackOutRatio(available, totalShortPS int) decimal.Decimal {
	if totalShortPS <= 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(int64(available)).Div(decimal.NewFromInt(int64(totalShortPS)))
	if ratio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}
	return ratio
}

// ScaleQty applies a full-pack-out ratio to a short quantity, flooring
// per spec.md §4.4 step 6 ("allocated_qty = floor(short_qty × ratio)").
func ScaleQty(shortQty int, ratio decimal.Decimal) int {
	return int(decimal.NewFromInt(int64(shortQty)).Mul(ratio).Floor().IntPart())
}

// Remaining reports, for every seeded key, starting - allocated where
// positive (spec.md §4.7: harvest-unallocated writer).
func (h *Harvest) Remaining() []HarvestKeyState {
	var out []HarvestKeyState
	for _, st := range h.keys {
		if st.StartingPS-st.AllocatedPS > 0 {
			out = append(out, *st)
		}
	}
	return out
}

// CarryForward returns every key whose region equals region and whose
// date lies in [from, to] inclusive, for the prior-day harvest allocator
// (spec.md §4.4 continuation: "attempted against prior harvest days
// lying within [demand_date − (total_shelf_life − shelf_life_guarantee),
// demand_date − 1], scanned in reverse chronological order"). The caller
// is responsible for sorting; CarryForward returns keys unordered to
// keep the "reverse chronological" policy visible at the call site
// rather than buried here.
func (h *Harvest) CarryForward(crop refmodel.CropID, region refmodel.FacilityID, from, to refmodel.Date) []HarvestKey {
	var out []HarvestKey
	for key, st := range h.keys {
		if key.Crop != crop || key.Region != region {
			continue
		}
		if st.StartingPS-st.AllocatedPS <= 0 {
			continue
		}
		if key.Date.Before(from) || key.Date.After(to) {
			continue
		}
		out = append(out, key)
	}
	return out
}
