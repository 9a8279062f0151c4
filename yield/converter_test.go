package yield_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenrow/allocator/refmodel"
	"github.com/greenrow/allocator/yield"
)

func TestConverter_MeanGPPS_WeightedByPlantSites(t *testing.T) {
	// GIVEN: two forecast lines for the same crop/region, one carrying
	// far more plant sites than the other
	// WHEN: MeanGPPS is computed
	// THEN: the heavier line dominates the mean, not a simple average

	forecast := []refmodel.HarvestForecastEntry{
		{Date: refmodel.NewDate(2026, time.August, 1), Facility: 1, Crop: 1, ExpectedPlantSites: 900, MeanLooseGPerPS: 10},
		{Date: refmodel.NewDate(2026, time.August, 1), Facility: 1, Crop: 1, ExpectedPlantSites: 100, MeanLooseGPerPS: 100},
	}
	conv := yield.NewConverter(forecast)

	got := conv.MeanGPPS(1, 1, false)
	// weighted mean = (900*10 + 100*100) / 1000 = (9000+10000)/1000 = 19
	want := decimal.NewFromInt(19)
	if !got.Equal(want) {
		t.Errorf("expected weighted mean %s, got %s", want, got)
	}
}

func TestConverter_MeanGPPS_SharesAcrossCanonicalizedRegion(t *testing.T) {
	forecast := []refmodel.HarvestForecastEntry{
		{Facility: 2, Crop: 1, ExpectedPlantSites: 100, MeanLooseGPerPS: 50}, // facility 2 canonicalizes to region 3
	}
	conv := yield.NewConverter(forecast)

	got := conv.MeanGPPS(1, refmodel.FacilityID(1), false) // facility 1 also canonicalizes to region 3
	if got.IsZero() {
		t.Fatal("expected region-shared forecast to contribute, got zero")
	}
}

func TestConverter_MeanGPPS_ZeroWhenNoMatchingPlantSites(t *testing.T) {
	conv := yield.NewConverter(nil)
	got := conv.MeanGPPS(1, 1, false)
	if !got.IsZero() {
		t.Errorf("expected zero gpps with no forecast, got %s", got)
	}
}

func TestConverter_MeanGPPS_FallsBackToHistoricalWhenZeroPlantSites(t *testing.T) {
	conv := yield.NewConverter(nil).WithHistoricalFallback(
		func(crop refmodel.CropID, facility refmodel.FacilityID, whole bool) (decimal.Decimal, bool) {
			return decimal.NewFromInt(42), true
		},
	)
	got := conv.MeanGPPS(1, 1, false)
	if !got.Equal(decimal.NewFromInt(42)) {
		t.Errorf("expected fallback gpps 42, got %s", got)
	}
}

func TestConverter_MeanGPPS_SelectsWholeVsLooseFigure(t *testing.T) {
	forecast := []refmodel.HarvestForecastEntry{
		{Facility: 1, Crop: 1, ExpectedPlantSites: 100, MeanHeadweightG: 200, MeanLooseGPerPS: 50},
	}
	conv := yield.NewConverter(forecast)

	whole := conv.MeanGPPS(1, 1, true)
	loose := conv.MeanGPPS(1, 1, false)
	if !whole.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected whole figure 200, got %s", whole)
	}
	if !loose.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected loose figure 50, got %s", loose)
	}
}

func TestPlantSitesNeeded_CeilsAndZerosOnZeroGPPS(t *testing.T) {
	ps := yield.PlantSitesNeeded(10, 15, decimal.NewFromInt(100)) // 150/100 = 1.5 -> ceil 2
	if ps != 2 {
		t.Errorf("expected ceil(1.5)=2, got %d", ps)
	}
	if got := yield.PlantSitesNeeded(10, 15, decimal.Zero); got != 0 {
		t.Errorf("expected 0 plant sites for zero gpps, got %d", got)
	}
}

func TestQtyFromPlantSites_FloorsAndZerosOnZeroWeight(t *testing.T) {
	qty := yield.QtyFromPlantSites(10, decimal.NewFromInt(15), 100) // 150/100 = 1.5 -> floor 1
	if qty != 1 {
		t.Errorf("expected floor(1.5)=1, got %d", qty)
	}
	if got := yield.QtyFromPlantSites(10, decimal.NewFromInt(15), 0); got != 0 {
		t.Errorf("expected 0 qty for zero net weight, got %d", got)
	}
}
