/*
Package sqlite is the CDC-style persist.Store backing the allocation
engine's output fact tables, and reads the dimension/fact inputs over
the same database (spec.md §6).

Grounded on store/sqlite/sqlite.go's migrate-on-New, mutex-guarded
*sql.DB pattern, generalized from one append-only transactions table to
spec.md §6's seven output fact tables, each carrying id/load_date/
to_date/is_active. Where the teacher enforces append-only with no
UPDATE at all, here a re-run legitimately supersedes a day's prior
active rows (spec.md §6: "Re-runs set the prior active rows to
is_active=0 and to_date=now() before inserting new rows with
is_active=1") — so Write* does exactly that UPDATE-then-INSERT pair,
inside a transaction, instead of a raw append.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"

	"github.com/greenrow/allocator/ledger"
	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

// Store implements persist.Store against a SQLite database.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// New opens (and migrates) a SQLite-backed store. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crops (
		id INTEGER PRIMARY KEY,
		grams_per_unit REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facilities (
		id INTEGER PRIMARY KEY,
		city_code TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facility_lines (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		fill_goal REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		crop_id INTEGER NOT NULL,
		net_weight_g REAL NOT NULL,
		is_whole BOOLEAN NOT NULL,
		shelf_life_guarantee INTEGER NOT NULL,
		total_shelf_life INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		lead_time_days INTEGER NOT NULL,
		case_equivalent REAL NOT NULL,
		cases_per_pallet REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routes (
		idx INTEGER PRIMARY KEY,
		ship_facility INTEGER NOT NULL,
		arrival_facility INTEGER NOT NULL,
		ship_weekday INTEGER NOT NULL,
		pack_lead_time_days INTEGER NOT NULL,
		transit_days INTEGER NOT NULL,
		max_pallets REAL NOT NULL,
		food_service_only BOOLEAN NOT NULL
	);

	CREATE TABLE IF NOT EXISTS harvest_forecast (
		date TEXT NOT NULL,
		facility INTEGER NOT NULL,
		line INTEGER NOT NULL,
		crop INTEGER NOT NULL,
		expected_plant_sites INTEGER NOT NULL,
		mean_headweight_g REAL NOT NULL,
		mean_loose_g_per_ps REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_harvest_forecast_date ON harvest_forecast(date);

	CREATE TABLE IF NOT EXISTS demand_forecast (
		date TEXT NOT NULL,
		allocation_date TEXT NOT NULL,
		facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		customer INTEGER NOT NULL,
		fill_goal REAL NOT NULL,
		safety_qty INTEGER NOT NULL,
		rollover_qty INTEGER NOT NULL,
		demand_qty INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_demand_forecast_alloc_date ON demand_forecast(allocation_date);

	CREATE TABLE IF NOT EXISTS inventory_actuals (
		date TEXT NOT NULL,
		facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		enjoy_by TEXT NOT NULL,
		qty INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_actuals_date ON inventory_actuals(date);

	CREATE TABLE IF NOT EXISTS planned_transfers (
		ship_date TEXT NOT NULL,
		arrival_date TEXT NOT NULL,
		ship_facility INTEGER NOT NULL,
		arrival_facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		enjoy_by TEXT NOT NULL,
		qty INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_planned_transfers_ship_date ON planned_transfers(ship_date);

	CREATE TABLE IF NOT EXISTS calendar (
		date TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		week INTEGER NOT NULL,
		weekday INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS inventory_status (
		date TEXT PRIMARY KEY,
		inventory_loaded BOOLEAN NOT NULL DEFAULT 0,
		allocation_ran_at TEXT
	);

	-- Output facts: every table below carries the spec's CDC envelope
	-- (id, natural key columns, value columns, load_date, to_date, is_active).

	CREATE TABLE IF NOT EXISTS customer_inventory_allocation (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		date TEXT NOT NULL,
		facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		enjoy_by TEXT NOT NULL,
		customer INTEGER NOT NULL,
		qty INTEGER NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cia_active ON customer_inventory_allocation(pass, date, is_active);

	CREATE TABLE IF NOT EXISTS customer_harvest_allocation (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		allocation_date TEXT NOT NULL,
		demand_date TEXT NOT NULL,
		crop INTEGER NOT NULL,
		harvest_facility INTEGER NOT NULL,
		demand_facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		customer INTEGER NOT NULL,
		qty INTEGER NOT NULL,
		plant_sites INTEGER NOT NULL,
		enjoy_by TEXT NOT NULL,
		full_packout BOOLEAN NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cha_active ON customer_harvest_allocation(pass, allocation_date, is_active);

	CREATE TABLE IF NOT EXISTS customer_short_demand (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		demand_date TEXT NOT NULL,
		allocation_date TEXT NOT NULL,
		facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		customer INTEGER NOT NULL,
		qty INTEGER NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_csd_active ON customer_short_demand(pass, demand_date, is_active);

	CREATE TABLE IF NOT EXISTS stop_sell (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		date TEXT NOT NULL,
		facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		enjoy_by TEXT NOT NULL,
		qty INTEGER NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stop_sell_active ON stop_sell(pass, date, is_active);

	CREATE TABLE IF NOT EXISTS harvest_unallocated (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		date TEXT NOT NULL,
		crop INTEGER NOT NULL,
		facility INTEGER NOT NULL,
		plant_sites INTEGER NOT NULL,
		whole_grams REAL NOT NULL,
		loose_grams REAL NOT NULL,
		units INTEGER NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_hu_active ON harvest_unallocated(pass, date, is_active);

	CREATE TABLE IF NOT EXISTS harvest_allocated (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		harvest_date TEXT NOT NULL,
		crop INTEGER NOT NULL,
		region INTEGER NOT NULL,
		starting_ps INTEGER NOT NULL,
		allocated_ps INTEGER NOT NULL,
		sealed BOOLEAN NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ha_active ON harvest_allocated(date, is_active);

	CREATE TABLE IF NOT EXISTS calculated_transfers (
		id TEXT PRIMARY KEY,
		ship_date TEXT NOT NULL,
		arrival_date TEXT NOT NULL,
		ship_facility INTEGER NOT NULL,
		arrival_facility INTEGER NOT NULL,
		product INTEGER NOT NULL,
		enjoy_by TEXT NOT NULL,
		customer INTEGER NOT NULL,
		qty INTEGER NOT NULL,
		pallets REAL NOT NULL,
		truck_index INTEGER NOT NULL,
		route_index INTEGER NOT NULL,
		load_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ct_active ON calculated_transfers(ship_date, is_active);
	`
	_, err := s.db.Exec(schema)
	return err
}

func farFuture() string { return persist.FarFutureSentinel.Format(time.RFC3339) }

// supersede marks every currently-active row for the given WHERE clause
// as inactive, stamping to_date = now (spec.md §6 CDC rule).
func supersede(tx *sql.Tx, now time.Time, table, whereClause string, args ...any) error {
	q := fmt.Sprintf(`UPDATE %s SET is_active = 0, to_date = ? WHERE is_active = 1 AND %s`, table, whereClause)
	full := append([]any{now.Format(time.RFC3339)}, args...)
	_, err := tx.Exec(q, full...)
	return err
}

func (s *Store) WriteInventoryAllocations(ctx context.Context, pass persist.Pass, date refmodel.Date, rows []persist.InventoryAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "customer_inventory_allocation", "pass = ? AND date = ?", string(pass), date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO customer_inventory_allocation
			(id, pass, date, facility, product, enjoy_by, customer, qty, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, string(pass), date.String(), int(r.Facility), int(r.Product), r.EnjoyBy.String(), int(r.Customer), r.Qty,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) WriteHarvestAllocations(ctx context.Context, pass persist.Pass, date refmodel.Date, rows []persist.HarvestAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "customer_harvest_allocation", "pass = ? AND allocation_date = ?", string(pass), date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO customer_harvest_allocation
			(id, pass, allocation_date, demand_date, crop, harvest_facility, demand_facility, product, customer, qty, plant_sites, enjoy_by, full_packout, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, string(pass), date.String(), r.DemandDate.String(), int(r.Crop), int(r.HarvestFacility), int(r.DemandFacility),
			int(r.Product), int(r.Customer), r.Qty, r.PlantSites, r.EnjoyBy.String(), r.FullPackOut,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) WriteShortDemand(ctx context.Context, pass persist.Pass, date refmodel.Date, rows []persist.ShortDemand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "customer_short_demand", "pass = ? AND demand_date = ?", string(pass), date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO customer_short_demand
			(id, pass, demand_date, allocation_date, facility, product, customer, qty, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, string(pass), date.String(), r.AllocationDate.String(), int(r.Facility), int(r.Product), int(r.Customer), r.Qty,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) WriteStopSell(ctx context.Context, pass persist.Pass, date refmodel.Date, rows []persist.StopSell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "stop_sell", "pass = ? AND date = ?", string(pass), date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO stop_sell
			(id, pass, date, facility, product, enjoy_by, qty, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, string(pass), date.String(), int(r.Facility), int(r.Product), r.EnjoyBy.String(), r.Qty,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) WriteHarvestUnallocated(ctx context.Context, pass persist.Pass, date refmodel.Date, rows []persist.HarvestUnallocated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "harvest_unallocated", "pass = ? AND date = ?", string(pass), date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO harvest_unallocated
			(id, pass, date, crop, facility, plant_sites, whole_grams, loose_grams, units, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, string(pass), date.String(), int(r.Crop), int(r.Facility), r.PlantSites, r.WholeGrams, r.LooseGrams, r.Units,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) WriteHarvestLedgerSnapshot(ctx context.Context, date refmodel.Date, rows []persist.HarvestLedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "harvest_allocated", "date = ?", date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO harvest_allocated
			(id, date, harvest_date, crop, region, starting_ps, allocated_ps, sealed, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, date.String(), r.Key.Date.String(), int(r.Key.Crop), int(r.Key.Region), r.StartingPS, r.AllocatedPS, r.Sealed,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) WriteCalculatedTransfers(ctx context.Context, date refmodel.Date, rows []persist.CalculatedTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := supersede(tx, now, "calculated_transfers", "ship_date = ?", date.String()); err != nil {
		return err
	}
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.Exec(`INSERT INTO calculated_transfers
			(id, ship_date, arrival_date, ship_facility, arrival_facility, product, enjoy_by, customer, qty, pallets, truck_index, route_index, load_date, to_date, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, r.ShipDate.String(), r.ArrivalDate.String(), int(r.ShipFacility), int(r.ArrivalFacility), int(r.Product),
			r.EnjoyBy.String(), int(r.Customer), r.Qty, r.Pallets, r.TruckIndex, r.RouteIndex,
			now.Format(time.RFC3339), farFuture())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) LoadHarvestLedger(ctx context.Context, keys []ledger.HarvestKey) (map[ledger.HarvestKey]ledger.HarvestKeyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ledger.HarvestKey]ledger.HarvestKeyState, len(keys))
	for _, k := range keys {
		row := s.db.QueryRowContext(ctx, `SELECT starting_ps, allocated_ps, sealed FROM harvest_allocated
			WHERE is_active = 1 AND harvest_date = ? AND crop = ? AND region = ?`,
			k.Date.String(), int(k.Crop), int(k.Region))
		var startingPS, allocatedPS int
		var sealed bool
		if err := row.Scan(&startingPS, &allocatedPS, &sealed); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, err
		}
		out[k] = ledger.HarvestKeyState{Key: k, StartingPS: startingPS, AllocatedPS: allocatedPS, Sealed: sealed}
	}
	return out, nil
}

// --- Dimensions ---

func (s *Store) Crops(ctx context.Context) (map[refmodel.CropID]refmodel.Crop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM crops`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[refmodel.CropID]refmodel.Crop)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[refmodel.CropID(id)] = refmodel.Crop{ID: refmodel.CropID(id)}
	}
	return out, rows.Err()
}

func (s *Store) Facilities(ctx context.Context) (map[refmodel.FacilityID]refmodel.Facility, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, city_code, latitude, longitude FROM facilities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[refmodel.FacilityID]refmodel.Facility)
	for rows.Next() {
		var f refmodel.Facility
		var id int
		if err := rows.Scan(&id, &f.CityCode, &f.Latitude, &f.Longitude); err != nil {
			return nil, err
		}
		f.ID = refmodel.FacilityID(id)
		out[f.ID] = f
	}
	return out, rows.Err()
}

func (s *Store) FacilityLines(ctx context.Context) (map[int]refmodel.FacilityLine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM facility_lines`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int]refmodel.FacilityLine)
	for rows.Next() {
		var l refmodel.FacilityLine
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out[l.ID] = l
	}
	return out, rows.Err()
}

func (s *Store) Customers(ctx context.Context) (map[refmodel.CustomerID]refmodel.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fill_goal FROM customers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[refmodel.CustomerID]refmodel.Customer)
	for rows.Next() {
		var id int
		var c refmodel.Customer
		if err := rows.Scan(&id, &c.FillGoal); err != nil {
			return nil, err
		}
		c.ID = refmodel.CustomerID(id)
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (s *Store) Products(ctx context.Context) (map[refmodel.ProductID]refmodel.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, crop_id, net_weight_g, is_whole, shelf_life_guarantee, total_shelf_life, priority, lead_time_days, case_equivalent, cases_per_pallet FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[refmodel.ProductID]refmodel.Product)
	for rows.Next() {
		var id, cropID, priority int
		var p refmodel.Product
		if err := rows.Scan(&id, &cropID, &p.NetWeightGrams, &p.IsWhole, &p.ShelfLifeGuarantee, &p.TotalShelfLife, &priority, &p.LeadTimeDays, &p.CaseEquivalent, &p.CasesPerPallet); err != nil {
			return nil, err
		}
		p.ID = refmodel.ProductID(id)
		p.CropID = refmodel.CropID(cropID)
		p.Priority = refmodel.ProductionPriority(priority)
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) Routes(ctx context.Context) (*refmodel.RouteTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, ship_facility, arrival_facility, ship_weekday, pack_lead_time_days, transit_days, max_pallets, food_service_only FROM routes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []refmodel.RouteConstraint
	for rows.Next() {
		var r refmodel.RouteConstraint
		var shipFacility, arrivalFacility, weekday int
		if err := rows.Scan(&r.Index, &shipFacility, &arrivalFacility, &weekday, &r.PackLeadTimeDays, &r.TransitDays, &r.MaxPallets, &r.FoodServiceOnly); err != nil {
			return nil, err
		}
		r.ShipFacility = refmodel.FacilityID(shipFacility)
		r.ArrivalFacility = refmodel.FacilityID(arrivalFacility)
		r.ShipWeekday = time.Weekday(weekday)
		out = append(out, r)
	}
	return refmodel.NewRouteTable(out), rows.Err()
}

// --- Facts ---

func (s *Store) HarvestForecast(ctx context.Context, date refmodel.Date) ([]refmodel.HarvestForecastEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT facility, line, crop, expected_plant_sites, mean_headweight_g, mean_loose_g_per_ps FROM harvest_forecast WHERE date = ?`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []refmodel.HarvestForecastEntry
	for rows.Next() {
		var e refmodel.HarvestForecastEntry
		var facility int
		var crop int
		if err := rows.Scan(&facility, &e.Line, &crop, &e.ExpectedPlantSites, &e.MeanHeadweightG, &e.MeanLooseGPerPS); err != nil {
			return nil, err
		}
		e.Date = date
		e.Facility = refmodel.FacilityID(facility)
		e.Crop = refmodel.CropID(crop)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DemandForecast(ctx context.Context, allocationDate refmodel.Date) ([]persist.DemandForecastRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, facility, product, customer, fill_goal, safety_qty, rollover_qty, demand_qty FROM demand_forecast WHERE allocation_date = ?`, allocationDate.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persist.DemandForecastRow
	for rows.Next() {
		var dateStr string
		var facility, product, customer int
		var r persist.DemandForecastRow
		if err := rows.Scan(&dateStr, &facility, &product, &customer, &r.FillGoal, &r.SafetyQty, &r.RolloverQty, &r.DemandQty); err != nil {
			return nil, err
		}
		r.Date = parseDate(dateStr)
		r.AllocationDate = allocationDate
		r.Facility = refmodel.FacilityID(facility)
		r.Product = refmodel.ProductID(product)
		r.Customer = refmodel.CustomerID(customer)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InventoryActuals(ctx context.Context, date refmodel.Date) ([]persist.InventoryActualRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT facility, product, enjoy_by, qty FROM inventory_actuals WHERE date = ?`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persist.InventoryActualRow
	for rows.Next() {
		var facility, product int
		var enjoyByStr string
		var r persist.InventoryActualRow
		if err := rows.Scan(&facility, &product, &enjoyByStr, &r.Qty); err != nil {
			return nil, err
		}
		r.Facility = refmodel.FacilityID(facility)
		r.Product = refmodel.ProductID(product)
		r.EnjoyBy = parseDate(enjoyByStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PlannedTransfers(ctx context.Context, shipDate refmodel.Date) ([]persist.PlannedTransferRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT arrival_date, ship_facility, arrival_facility, product, enjoy_by, qty FROM planned_transfers WHERE ship_date = ?`, shipDate.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persist.PlannedTransferRow
	for rows.Next() {
		var arrivalDateStr, enjoyByStr string
		var shipFacility, arrivalFacility, product int
		var r persist.PlannedTransferRow
		if err := rows.Scan(&arrivalDateStr, &shipFacility, &arrivalFacility, &product, &enjoyByStr, &r.Qty); err != nil {
			return nil, err
		}
		r.ShipDate = shipDate
		r.ArrivalDate = parseDate(arrivalDateStr)
		r.ShipFacility = refmodel.FacilityID(shipFacility)
		r.ArrivalFacility = refmodel.FacilityID(arrivalFacility)
		r.Product = refmodel.ProductID(product)
		r.EnjoyBy = parseDate(enjoyByStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CalendarWeek(ctx context.Context, date refmodel.Date) (refmodel.CalendarWeek, error) {
	row := s.db.QueryRowContext(ctx, `SELECT year, week, weekday FROM calendar WHERE date = ?`, date.String())
	var w refmodel.CalendarWeek
	var weekday int
	if err := row.Scan(&w.Year, &w.Week, &weekday); err != nil {
		if err == sql.ErrNoRows {
			return refmodel.WeekOf(date), nil
		}
		return refmodel.CalendarWeek{}, err
	}
	w.Weekday = time.Weekday(weekday)
	return w, nil
}

func (s *Store) Status(ctx context.Context, date refmodel.Date) (persist.InventoryStatus, error) {
	row := s.db.QueryRowContext(ctx, `SELECT inventory_loaded, allocation_ran_at FROM inventory_status WHERE date = ?`, date.String())
	var status persist.InventoryStatus
	status.Date = date
	var ranAt sql.NullString
	if err := row.Scan(&status.InventoryLoaded, &ranAt); err != nil {
		if err == sql.ErrNoRows {
			return status, nil
		}
		return status, err
	}
	if ranAt.Valid {
		t, err := time.Parse(time.RFC3339, ranAt.String)
		if err == nil {
			status.AllocationRanAt = &t
		}
	}
	return status, nil
}

func (s *Store) MarkAllocationStarted(ctx context.Context, date refmodel.Date) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory_status (date, inventory_loaded, allocation_ran_at)
		VALUES (?, 1, ?)
		ON CONFLICT(date) DO UPDATE SET allocation_ran_at = excluded.allocation_ran_at`,
		date.String(), now.Format(time.RFC3339))
	return err
}

func parseDate(s string) refmodel.Date {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return refmodel.Date{}
	}
	return refmodel.DateOf(t)
}

// --- persist.ReportReader: read-only access for opsapi ---

func (s *Store) ReadInventoryAllocations(ctx context.Context, pass persist.Pass, date refmodel.Date) ([]persist.InventoryAllocation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, facility, product, enjoy_by, customer, qty
		FROM customer_inventory_allocation WHERE is_active = 1 AND pass = ? AND date = ?`,
		string(pass), date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persist.InventoryAllocation
	for rows.Next() {
		var r persist.InventoryAllocation
		var enjoyBy string
		var facility, product, customer int
		if err := rows.Scan(&r.ID, &facility, &product, &enjoyBy, &customer, &r.Qty); err != nil {
			return nil, err
		}
		r.Date = date
		r.Facility = refmodel.FacilityID(facility)
		r.Product = refmodel.ProductID(product)
		r.EnjoyBy = parseDate(enjoyBy)
		r.Customer = refmodel.CustomerID(customer)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadHarvestAllocations(ctx context.Context, pass persist.Pass, date refmodel.Date) ([]persist.HarvestAllocation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, demand_date, crop, harvest_facility, demand_facility, product, customer, qty, plant_sites, enjoy_by, full_packout
		FROM customer_harvest_allocation WHERE is_active = 1 AND pass = ? AND allocation_date = ?`,
		string(pass), date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persist.HarvestAllocation
	for rows.Next() {
		var r persist.HarvestAllocation
		var demandDate, enjoyBy string
		var crop, harvestFacility, demandFacility, product, customer int
		if err := rows.Scan(&r.ID, &demandDate, &crop, &harvestFacility, &demandFacility, &product, &customer, &r.Qty, &r.PlantSites, &enjoyBy, &r.FullPackOut); err != nil {
			return nil, err
		}
		r.AllocationDate = date
		r.DemandDate = parseDate(demandDate)
		r.Crop = refmodel.CropID(crop)
		r.HarvestFacility = refmodel.FacilityID(harvestFacility)
		r.DemandFacility = refmodel.FacilityID(demandFacility)
		r.Product = refmodel.ProductID(product)
		r.Customer = refmodel.CustomerID(customer)
		r.EnjoyBy = parseDate(enjoyBy)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadShortDemand(ctx context.Context, pass persist.Pass, date refmodel.Date) ([]persist.ShortDemand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, allocation_date, facility, product, customer, qty
		FROM customer_short_demand WHERE is_active = 1 AND pass = ? AND demand_date = ?`,
		string(pass), date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persist.ShortDemand
	for rows.Next() {
		var r persist.ShortDemand
		var allocationDate string
		var facility, product, customer int
		if err := rows.Scan(&r.ID, &allocationDate, &facility, &product, &customer, &r.Qty); err != nil {
			return nil, err
		}
		r.DemandDate = date
		r.AllocationDate = parseDate(allocationDate)
		r.Facility = refmodel.FacilityID(facility)
		r.Product = refmodel.ProductID(product)
		r.Customer = refmodel.CustomerID(customer)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadCalculatedTransfers(ctx context.Context, date refmodel.Date) ([]persist.CalculatedTransfer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, arrival_date, ship_facility, arrival_facility, product, enjoy_by, customer, qty, pallets, truck_index, route_index
		FROM calculated_transfers WHERE is_active = 1 AND ship_date = ?`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persist.CalculatedTransfer
	for rows.Next() {
		var r persist.CalculatedTransfer
		var arrivalDate, enjoyBy string
		var shipFacility, arrivalFacility, product, customer int
		if err := rows.Scan(&r.ID, &arrivalDate, &shipFacility, &arrivalFacility, &product, &enjoyBy, &customer, &r.Qty, &r.Pallets, &r.TruckIndex, &r.RouteIndex); err != nil {
			return nil, err
		}
		r.ShipDate = date
		r.ArrivalDate = parseDate(arrivalDate)
		r.ShipFacility = refmodel.FacilityID(shipFacility)
		r.ArrivalFacility = refmodel.FacilityID(arrivalFacility)
		r.Product = refmodel.ProductID(product)
		r.EnjoyBy = parseDate(enjoyBy)
		r.Customer = refmodel.CustomerID(customer)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadHarvestLedgerSnapshot(ctx context.Context, date refmodel.Date) ([]persist.HarvestLedgerSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, harvest_date, crop, region, starting_ps, allocated_ps, sealed
		FROM harvest_allocated WHERE is_active = 1 AND date = ?`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persist.HarvestLedgerSnapshot
	for rows.Next() {
		var r persist.HarvestLedgerSnapshot
		var harvestDate string
		var crop, region int
		if err := rows.Scan(&r.ID, &harvestDate, &crop, &region, &r.StartingPS, &r.AllocatedPS, &r.Sealed); err != nil {
			return nil, err
		}
		r.Key = ledger.HarvestKey{Date: parseDate(harvestDate), Crop: refmodel.CropID(crop), Region: refmodel.FacilityID(region)}
		out = append(out, r)
	}
	return out, rows.Err()
}
