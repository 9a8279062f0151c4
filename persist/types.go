/*
Package persist defines the records the allocation engine reads at
startup and the append-only, change-data-capture output facts it writes
at the close of each pass (spec.md §6).

Grounded on generic/store.go's append-only Store contract (no Update, no
Delete — corrections are reversals or superseding rows) and
store/sqlite/sqlite.go's migrate-on-New schema discipline, generalized
from a single transactions table into the seven output fact tables
spec.md §6 enumerates, each carrying the same id/load_date/to_date/
is_active CDC columns.
*/
package persist

import (
	"time"

	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/refmodel"
)

// Pass distinguishes the driver's two output variants (spec.md §4.8):
// baseline tables receive the first two passes, pending tables receive
// the transfer-aware re-run.
type Pass string

const (
	PassBaseline Pass = "baseline"
	PassPending  Pass = "pending"
)

// InventoryAllocation is one customer-order fulfillment drawn from an
// inventory lot (spec.md §4.3).
type InventoryAllocation struct {
	ID         string
	Date       refmodel.Date
	Facility   refmodel.FacilityID
	Product    refmodel.ProductID
	EnjoyBy    refmodel.Date
	Customer   refmodel.CustomerID
	Qty        int
}

// HarvestAllocation is one customer- or rollover-directed draw against a
// harvest key (spec.md §4.4).
type HarvestAllocation struct {
	ID             string
	AllocationDate refmodel.Date
	DemandDate     refmodel.Date
	Crop           refmodel.CropID
	HarvestFacility refmodel.FacilityID
	DemandFacility refmodel.FacilityID
	Product        refmodel.ProductID
	Customer       refmodel.CustomerID // 0 = rollover
	Qty            int
	PlantSites     int
	EnjoyBy        refmodel.Date
	FullPackOut    bool
}

// ShortDemand is a customer-order line that could not be fully satisfied
// from inventory or harvest (spec.md §4.3/§4.4).
type ShortDemand struct {
	ID           string
	DemandDate   refmodel.Date
	AllocationDate refmodel.Date
	Facility     refmodel.FacilityID
	Product      refmodel.ProductID
	Customer     refmodel.CustomerID
	Qty          int
}

// StopSell is a lot removed from the active inventory set because it
// will age out of its shelf-life guarantee before forecast_date (spec.md
// §4.6).
type StopSell struct {
	ID       string
	Date     refmodel.Date
	Facility refmodel.FacilityID
	Product  refmodel.ProductID
	EnjoyBy  refmodel.Date
	Qty      int
}

// HarvestUnallocated is a (date, crop, facility) key's leftover capacity,
// or a no-allocation-at-all key, expressed in whole grams, loose grams,
// and generic units (spec.md §4.7).
type HarvestUnallocated struct {
	ID           string
	Date         refmodel.Date
	Crop         refmodel.CropID
	Facility     refmodel.FacilityID
	PlantSites   int
	WholeGrams   float64
	LooseGrams   float64
	Units        int
}

// HarvestLedgerSnapshot is a persisted point-in-time copy of one harvest
// key's state, written after each (tier, day) per spec.md §4.8 step 2.
type HarvestLedgerSnapshot struct {
	ID          string
	Key         ledger.HarvestKey
	StartingPS  int
	AllocatedPS int
	Sealed      bool
}

// CalculatedTransfer is one cross-facility shipment the transfer planner
// creates (spec.md §4.5), covering both the inventory-transfer and
// harvest-transfer variants.
type CalculatedTransfer struct {
	ID              string
	ShipDate        refmodel.Date
	ArrivalDate     refmodel.Date
	ShipFacility    refmodel.FacilityID
	ArrivalFacility refmodel.FacilityID
	Product         refmodel.ProductID
	EnjoyBy         refmodel.Date
	Customer        refmodel.CustomerID
	Qty             int
	Pallets         float64
	TruckIndex      int
	RouteIndex      int
}

// CDCMeta is the change-data-capture envelope shared by every output
// fact (spec.md §6: "id, a natural key, value columns, load_date,
// to_date, is_active").
type CDCMeta struct {
	LoadDate time.Time
	ToDate   time.Time
	IsActive bool
}

// FarFutureSentinel is the default to_date for an active CDC row.
var FarFutureSentinel = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// InventoryStatus reports whether today's actual inventory has been
// loaded and whether allocation has already run today (spec.md §6 gate
// condition).
type InventoryStatus struct {
	Date             refmodel.Date
	InventoryLoaded  bool
	AllocationRanAt  *time.Time
}
