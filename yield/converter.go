/*
Package yield converts between plant sites (a growing-line quantity) and
packed product quantities (what customers actually order), using a
plant-site-weighted mean yield figure derived from the harvest forecast.

PURPOSE:
  The allocation engine never allocates "products" directly out of a
  harvest — harvests report plant sites, and products are packed goods
  with a net weight in grams. Converter is the one place that bridges the
  two units, the way generic/accrual.go bridges a rate schedule into
  concrete accrual events in the teacher engine.

WHY PLANT-SITE-WEIGHTED:
  A facility's forecast entries span multiple lines, each with its own
  mean headweight/loose-grams-per-plant-site. A simple arithmetic mean
  across lines would under-weight a line that's carrying most of the
  plant sites. Weighting by plant sites keeps the mean representative of
  what will actually be harvested.

SEE ALSO:
  - refmodel/harvest_forecast.go: the HarvestForecastEntry rows consumed here
  - ledger/harvest.go: the harvest ledger that Converter's output feeds
*/
package yield

import (
	"github.com/shopspring/decimal"

	"github.com/greenrow/allocator/refmodel"
)

// Converter computes mean grams-per-plant-site figures and converts
// between plant sites and packed quantities (spec.md §4.1).
type Converter struct {
	forecast []refmodel.HarvestForecastEntry

	// historicalFallback, when set, supplies a trailing-average gpps for
	// a (crop, facility) pair that has zero plant sites in the current
	// day's forecast. Grounded on original_source's trailingAverage /
	// yearOverYearAverage fallback; off by default so the documented
	// "gpps = 0 ⇒ short" boundary behavior (spec.md §8) holds unless a
	// caller explicitly opts in.
	historicalFallback func(crop refmodel.CropID, facility refmodel.FacilityID, whole bool) (decimal.Decimal, bool)
}

// NewConverter builds a Converter over one day's harvest forecast.
func NewConverter(forecast []refmodel.HarvestForecastEntry) *Converter {
	return &Converter{forecast: forecast}
}

// WithHistoricalFallback attaches a trailing-average fallback used when
// the current day's plant-site total for a (crop, facility) is zero.
func (c *Converter) WithHistoricalFallback(fn func(crop refmodel.CropID, facility refmodel.FacilityID, whole bool) (decimal.Decimal, bool)) *Converter {
	c.historicalFallback = fn
	return c
}

// MeanGPPS returns the plant-site-weighted mean grams-per-plant-site for
// the region containing facility, on the forecast's date, for the given
// crop. whole selects between headweight (whole-sold) and loose
// (cut/packaged) yield figures. Returns zero if there are no matching
// plant sites anywhere in the region (spec.md §4.1: "If total plant
// sites = 0, return 0").
func (c *Converter) MeanGPPS(crop refmodel.CropID, facility refmodel.FacilityID, whole bool) decimal.Decimal {
	region := refmodel.RegionOf(facility)

	totalPS := 0
	weighted := decimal.Zero

	for _, e := range c.forecast {
		if e.Crop != crop || refmodel.RegionOf(e.Facility) != region {
			continue
		}
		g := e.MeanLooseGPerPS
		if whole {
			g = e.MeanHeadweightG
		}
		totalPS += e.ExpectedPlantSites
		weighted = weighted.Add(decimal.NewFromInt(int64(e.ExpectedPlantSites)).Mul(decimal.NewFromFloat(g)))
	}

	if totalPS == 0 {
		if c.historicalFallback != nil {
			if g, ok := c.historicalFallback(crop, facility, whole); ok {
				return g
			}
		}
		return decimal.Zero
	}

	return weighted.Div(decimal.NewFromInt(int64(totalPS)))
}

// PlantSitesNeeded converts a packed-product quantity into the plant
// sites required to produce it: ceil(qty * net_weight_g / gpps), or zero
// if gpps is zero (spec.md §4.1).
func PlantSitesNeeded(qty int, netWeightG float64, gpps decimal.Decimal) int {
	if gpps.IsZero() {
		return 0
	}
	grams := decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromFloat(netWeightG))
	return int(grams.Div(gpps).Ceil().IntPart())
}

// QtyFromPlantSites converts plant sites into a packed-product quantity:
// floor(ps * gpps / net_weight_g) (spec.md §4.1).
func QtyFromPlantSites(plantSites int, gpps decimal.Decimal, netWeightG float64) int {
	if netWeightG == 0 {
		return 0
	}
	grams := decimal.NewFromInt(int64(plantSites)).Mul(gpps)
	return int(grams.Div(decimal.NewFromFloat(netWeightG)).Floor().IntPart())
}
