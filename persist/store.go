package persist

import (
	"context"

	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/refmodel"
)

// Dimensions reads the read-only reference data loaded once at the start
// of a run (spec.md §6 "Inputs consumed at start of run").
type Dimensions interface {
	Crops(ctx context.Context) (map[refmodel.CropID]refmodel.Crop, error)
	Facilities(ctx context.Context) (map[refmodel.FacilityID]refmodel.Facility, error)
	FacilityLines(ctx context.Context) (map[int]refmodel.FacilityLine, error)
	Customers(ctx context.Context) (map[refmodel.CustomerID]refmodel.Customer, error)
	Products(ctx context.Context) (map[refmodel.ProductID]refmodel.Product, error)
	Routes(ctx context.Context) (*refmodel.RouteTable, error)
}

// Facts reads the daily, date-scoped input rows (spec.md §6: harvest
// forecast, demand forecast, inventory actuals, planned transfers,
// calendar).
type Facts interface {
	HarvestForecast(ctx context.Context, date refmodel.Date) ([]refmodel.HarvestForecastEntry, error)
	DemandForecast(ctx context.Context, allocationDate refmodel.Date) ([]DemandForecastRow, error)
	InventoryActuals(ctx context.Context, date refmodel.Date) ([]InventoryActualRow, error)
	PlannedTransfers(ctx context.Context, shipDate refmodel.Date) ([]PlannedTransferRow, error)
	CalendarWeek(ctx context.Context, date refmodel.Date) (refmodel.CalendarWeek, error)
}

// DemandForecastRow is one row of the customer demand forecast input
// (spec.md §6).
type DemandForecastRow struct {
	Date           refmodel.Date
	AllocationDate refmodel.Date
	Facility       refmodel.FacilityID
	Product        refmodel.ProductID
	Customer       refmodel.CustomerID
	FillGoal       float64
	SafetyQty      int
	RolloverQty    int
	DemandQty      int
}

// InventoryActualRow is one counted on-hand row (spec.md §6 "Inventory
// actuals").
type InventoryActualRow struct {
	Facility refmodel.FacilityID
	Product  refmodel.ProductID
	EnjoyBy  refmodel.Date
	Qty      int
}

// PlannedTransferRow is one scheduled outbound shipment already on the
// books (spec.md §6 "Planned transfers"), consumed by the harvest
// allocator's tier-1 pre-step, the inventory allocator's tier-1 outflow
// debit, and the forecast projector's tier-1 inbound merge.
type PlannedTransferRow struct {
	ShipDate        refmodel.Date
	ArrivalDate     refmodel.Date
	ShipFacility    refmodel.FacilityID
	ArrivalFacility refmodel.FacilityID
	Product         refmodel.ProductID
	EnjoyBy         refmodel.Date
	Qty             int
}

// StatusStore reads and marks the inventory-status log (spec.md §6 gate
// condition).
type StatusStore interface {
	Status(ctx context.Context, date refmodel.Date) (InventoryStatus, error)
	MarkAllocationStarted(ctx context.Context, date refmodel.Date) error
}

// FactWriter is the append-only, CDC-aware output sink every component
// writes through (spec.md §6). Each Write call supersedes the prior
// active rows for the pass/date it targets before inserting new ones —
// generic.Store's "no Update, no Delete, corrections are reversals"
// discipline applied at fact-table granularity instead of per-row.
type FactWriter interface {
	WriteInventoryAllocations(ctx context.Context, pass Pass, date refmodel.Date, rows []InventoryAllocation) error
	WriteHarvestAllocations(ctx context.Context, pass Pass, date refmodel.Date, rows []HarvestAllocation) error
	WriteShortDemand(ctx context.Context, pass Pass, date refmodel.Date, rows []ShortDemand) error
	WriteStopSell(ctx context.Context, pass Pass, date refmodel.Date, rows []StopSell) error
	WriteHarvestUnallocated(ctx context.Context, pass Pass, date refmodel.Date, rows []HarvestUnallocated) error
	WriteHarvestLedgerSnapshot(ctx context.Context, date refmodel.Date, rows []HarvestLedgerSnapshot) error
	WriteCalculatedTransfers(ctx context.Context, date refmodel.Date, rows []CalculatedTransfer) error
}

// HarvestLedgerLoader rehydrates a harvest ledger's prior state, used by
// the prior-day allocator's carry-forward lookups and by a resumed run.
type HarvestLedgerLoader interface {
	LoadHarvestLedger(ctx context.Context, keys []ledger.HarvestKey) (map[ledger.HarvestKey]ledger.HarvestKeyState, error)
}

// Store is the full persistence surface the driver depends on.
type Store interface {
	Dimensions
	Facts
	StatusStore
	FactWriter
	HarvestLedgerLoader
}

// ReportReader reads back active output-fact rows for the read-only ops
// surface (spec.md §6 "last-run summary"/ledger snapshots). It is
// separate from Store because the driver never needs to read its own
// output back; only opsapi does.
type ReportReader interface {
	ReadInventoryAllocations(ctx context.Context, pass Pass, date refmodel.Date) ([]InventoryAllocation, error)
	ReadHarvestAllocations(ctx context.Context, pass Pass, date refmodel.Date) ([]HarvestAllocation, error)
	ReadShortDemand(ctx context.Context, pass Pass, date refmodel.Date) ([]ShortDemand, error)
	ReadCalculatedTransfers(ctx context.Context, date refmodel.Date) ([]CalculatedTransfer, error)
	ReadHarvestLedgerSnapshot(ctx context.Context, date refmodel.Date) ([]HarvestLedgerSnapshot, error)
}
