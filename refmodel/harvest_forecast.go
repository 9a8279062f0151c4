package refmodel

// HarvestForecastEntry is one row of the harvest forecast input (spec.md
// §3/§6): expected plant sites and yield figures for a facility/line/crop
// on a given date.
type HarvestForecastEntry struct {
	Date              Date
	Facility          FacilityID
	Line              int
	Crop              CropID
	ExpectedPlantSites int
	MeanHeadweightG   float64 // "whole" yield figure
	MeanLooseGPerPS   float64 // "loose" yield figure
}
