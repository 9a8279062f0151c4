package refmodel

import "github.com/shopspring/decimal"

// CropID identifies a crop family (e.g. a lettuce variety, a basil
// variety). Yield and grams-per-unit figures are tracked per crop.
type CropID int

// Default and crop-specific grams-per-retail-unit overrides (spec.md §3).
var defaultGramsPerUnit = decimal.NewFromInt(128)

var gramsPerUnitOverrides = map[CropID]decimal.Decimal{
	1: decimal.NewFromInt(114),
	3: decimal.NewFromFloat(35.4),
}

// Crop is a harvested crop family.
type Crop struct {
	ID CropID
}

// GramsPerUnit returns the crop-specific grams-per-retail-unit figure used
// by the harvest-unallocated writer (§4.7) to convert plant sites into a
// generic unit quantity.
func (c CropID) GramsPerUnit() decimal.Decimal {
	if g, ok := gramsPerUnitOverrides[c]; ok {
		return g
	}
	return defaultGramsPerUnit
}
