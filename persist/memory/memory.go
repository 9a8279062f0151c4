/*
Package memory implements persist.Store entirely in-process, for tests
and local runs.

Grounded on generic/store/memory.go: a mutex-guarded map keyed by the
natural dimension (here, pass+date) instead of by (entity, policy), with
the same append/replace-the-active-set discipline instead of per-row
update.
*/
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

func defaultNow() time.Time { return time.Now() }

// Store is an in-memory persist.Store.
type Store struct {
	mu sync.RWMutex

	crops         map[refmodel.CropID]refmodel.Crop
	facilities    map[refmodel.FacilityID]refmodel.Facility
	facilityLines map[int]refmodel.FacilityLine
	customers     map[refmodel.CustomerID]refmodel.Customer
	products      map[refmodel.ProductID]refmodel.Product
	routes        *refmodel.RouteTable

	harvestForecast  map[string][]refmodel.HarvestForecastEntry
	demandForecast   map[string][]persist.DemandForecastRow
	inventoryActuals map[string][]persist.InventoryActualRow
	plannedTransfers map[string][]persist.PlannedTransferRow
	calendar         map[string]refmodel.CalendarWeek

	status map[string]persist.InventoryStatus

	inventoryAllocations map[string][]persist.InventoryAllocation
	harvestAllocations   map[string][]persist.HarvestAllocation
	shortDemand          map[string][]persist.ShortDemand
	stopSell             map[string][]persist.StopSell
	harvestUnallocated   map[string][]persist.HarvestUnallocated
	calculatedTransfers  map[string][]persist.CalculatedTransfer

	harvestLedger map[ledger.HarvestKey]ledger.HarvestKeyState
}

// New builds an empty in-memory store. Dimensions must be loaded via the
// Seed* helpers before a driver run.
func New() *Store {
	return &Store{
		crops:                make(map[refmodel.CropID]refmodel.Crop),
		facilities:           make(map[refmodel.FacilityID]refmodel.Facility),
		facilityLines:        make(map[int]refmodel.FacilityLine),
		customers:            make(map[refmodel.CustomerID]refmodel.Customer),
		products:             make(map[refmodel.ProductID]refmodel.Product),
		routes:               refmodel.NewRouteTable(nil),
		harvestForecast:      make(map[string][]refmodel.HarvestForecastEntry),
		demandForecast:       make(map[string][]persist.DemandForecastRow),
		inventoryActuals:     make(map[string][]persist.InventoryActualRow),
		plannedTransfers:     make(map[string][]persist.PlannedTransferRow),
		calendar:             make(map[string]refmodel.CalendarWeek),
		status:               make(map[string]persist.InventoryStatus),
		inventoryAllocations: make(map[string][]persist.InventoryAllocation),
		harvestAllocations:   make(map[string][]persist.HarvestAllocation),
		shortDemand:          make(map[string][]persist.ShortDemand),
		stopSell:             make(map[string][]persist.StopSell),
		harvestUnallocated:   make(map[string][]persist.HarvestUnallocated),
		calculatedTransfers:  make(map[string][]persist.CalculatedTransfer),
		harvestLedger:        make(map[ledger.HarvestKey]ledger.HarvestKeyState),
	}
}

// --- Seeding helpers (test/bootstrap only) ---

func (s *Store) SeedCrops(m map[refmodel.CropID]refmodel.Crop)                 { s.crops = m }
func (s *Store) SeedFacilities(m map[refmodel.FacilityID]refmodel.Facility)    { s.facilities = m }
func (s *Store) SeedFacilityLines(m map[int]refmodel.FacilityLine)             { s.facilityLines = m }
func (s *Store) SeedCustomers(m map[refmodel.CustomerID]refmodel.Customer)     { s.customers = m }
func (s *Store) SeedProducts(m map[refmodel.ProductID]refmodel.Product)       { s.products = m }
func (s *Store) SeedRoutes(rt *refmodel.RouteTable)                            { s.routes = rt }

func (s *Store) SeedHarvestForecast(date refmodel.Date, rows []refmodel.HarvestForecastEntry) {
	s.harvestForecast[date.String()] = rows
}
func (s *Store) SeedDemandForecast(allocationDate refmodel.Date, rows []persist.DemandForecastRow) {
	s.demandForecast[allocationDate.String()] = rows
}
func (s *Store) SeedInventoryActuals(date refmodel.Date, rows []persist.InventoryActualRow) {
	s.inventoryActuals[date.String()] = rows
}
func (s *Store) SeedPlannedTransfers(shipDate refmodel.Date, rows []persist.PlannedTransferRow) {
	s.plannedTransfers[shipDate.String()] = rows
}
func (s *Store) SeedCalendar(date refmodel.Date, week refmodel.CalendarWeek) {
	s.calendar[date.String()] = week
}
func (s *Store) SeedStatus(date refmodel.Date, status persist.InventoryStatus) {
	s.status[date.String()] = status
}

// --- Dimensions ---

func (s *Store) Crops(_ context.Context) (map[refmodel.CropID]refmodel.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crops, nil
}

func (s *Store) Facilities(_ context.Context) (map[refmodel.FacilityID]refmodel.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facilities, nil
}

func (s *Store) FacilityLines(_ context.Context) (map[int]refmodel.FacilityLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facilityLines, nil
}

func (s *Store) Customers(_ context.Context) (map[refmodel.CustomerID]refmodel.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customers, nil
}

func (s *Store) Products(_ context.Context) (map[refmodel.ProductID]refmodel.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products, nil
}

func (s *Store) Routes(_ context.Context) (*refmodel.RouteTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routes, nil
}

// --- Facts ---

func (s *Store) HarvestForecast(_ context.Context, date refmodel.Date) ([]refmodel.HarvestForecastEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.harvestForecast[date.String()], nil
}

func (s *Store) DemandForecast(_ context.Context, allocationDate refmodel.Date) ([]persist.DemandForecastRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.demandForecast[allocationDate.String()], nil
}

func (s *Store) InventoryActuals(_ context.Context, date refmodel.Date) ([]persist.InventoryActualRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventoryActuals[date.String()], nil
}

func (s *Store) PlannedTransfers(_ context.Context, shipDate refmodel.Date) ([]persist.PlannedTransferRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plannedTransfers[shipDate.String()], nil
}

func (s *Store) CalendarWeek(_ context.Context, date refmodel.Date) (refmodel.CalendarWeek, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calendar[date.String()], nil
}

// --- Status / gate ---

func (s *Store) Status(_ context.Context, date refmodel.Date) (persist.InventoryStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[date.String()], nil
}

func (s *Store) MarkAllocationStarted(_ context.Context, date refmodel.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[date.String()]
	now := nowFunc()
	st.AllocationRanAt = &now
	s.status[date.String()] = st
	return nil
}

// nowFunc supplies the timestamp MarkAllocationStarted records. It
// defaults to time.Now and is a package variable so the clock can be
// swapped from inside this package.
var nowFunc = defaultNow

// --- Fact writers (CDC: replace the active set for pass+date) ---

func (s *Store) WriteInventoryAllocations(_ context.Context, pass persist.Pass, date refmodel.Date, rows []persist.InventoryAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventoryAllocations[factKey(pass, date)] = rows
	return nil
}

func (s *Store) WriteHarvestAllocations(_ context.Context, pass persist.Pass, date refmodel.Date, rows []persist.HarvestAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.harvestAllocations[factKey(pass, date)] = rows
	return nil
}

func (s *Store) WriteShortDemand(_ context.Context, pass persist.Pass, date refmodel.Date, rows []persist.ShortDemand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortDemand[factKey(pass, date)] = rows
	return nil
}

func (s *Store) WriteStopSell(_ context.Context, pass persist.Pass, date refmodel.Date, rows []persist.StopSell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSell[factKey(pass, date)] = rows
	return nil
}

func (s *Store) WriteHarvestUnallocated(_ context.Context, pass persist.Pass, date refmodel.Date, rows []persist.HarvestUnallocated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.harvestUnallocated[factKey(pass, date)] = rows
	return nil
}

func (s *Store) WriteHarvestLedgerSnapshot(_ context.Context, date refmodel.Date, rows []persist.HarvestLedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.harvestLedger[r.Key] = ledger.HarvestKeyState{
			Key:         r.Key,
			StartingPS:  r.StartingPS,
			AllocatedPS: r.AllocatedPS,
			Sealed:      r.Sealed,
		}
	}
	return nil
}

func (s *Store) WriteCalculatedTransfers(_ context.Context, date refmodel.Date, rows []persist.CalculatedTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculatedTransfers[date.String()] = rows
	return nil
}

func (s *Store) LoadHarvestLedger(_ context.Context, keys []ledger.HarvestKey) (map[ledger.HarvestKey]ledger.HarvestKeyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ledger.HarvestKey]ledger.HarvestKeyState, len(keys))
	for _, k := range keys {
		if st, ok := s.harvestLedger[k]; ok {
			out[k] = st
		}
	}
	return out, nil
}

// --- Read helpers for tests ---

func (s *Store) InventoryAllocations(pass persist.Pass, date refmodel.Date) []persist.InventoryAllocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventoryAllocations[factKey(pass, date)]
}

func (s *Store) HarvestAllocations(pass persist.Pass, date refmodel.Date) []persist.HarvestAllocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.harvestAllocations[factKey(pass, date)]
}

func (s *Store) ShortDemand(pass persist.Pass, date refmodel.Date) []persist.ShortDemand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shortDemand[factKey(pass, date)]
}

func (s *Store) CalculatedTransfers(date refmodel.Date) []persist.CalculatedTransfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calculatedTransfers[date.String()]
}

func factKey(pass persist.Pass, date refmodel.Date) string {
	return string(pass) + "/" + date.String()
}

// --- persist.ReportReader ---

func (s *Store) ReadInventoryAllocations(_ context.Context, pass persist.Pass, date refmodel.Date) ([]persist.InventoryAllocation, error) {
	return s.InventoryAllocations(pass, date), nil
}

func (s *Store) ReadHarvestAllocations(_ context.Context, pass persist.Pass, date refmodel.Date) ([]persist.HarvestAllocation, error) {
	return s.HarvestAllocations(pass, date), nil
}

func (s *Store) ReadShortDemand(_ context.Context, pass persist.Pass, date refmodel.Date) ([]persist.ShortDemand, error) {
	return s.ShortDemand(pass, date), nil
}

func (s *Store) ReadCalculatedTransfers(_ context.Context, date refmodel.Date) ([]persist.CalculatedTransfer, error) {
	return s.CalculatedTransfers(date), nil
}

func (s *Store) ReadHarvestLedgerSnapshot(_ context.Context, date refmodel.Date) ([]persist.HarvestLedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persist.HarvestLedgerSnapshot
	for key, st := range s.harvestLedger {
		if !key.Date.Equal(date) {
			continue
		}
		out = append(out, persist.HarvestLedgerSnapshot{Key: st.Key, StartingPS: st.StartingPS, AllocatedPS: st.AllocatedPS, Sealed: st.Sealed})
	}
	return out, nil
}
