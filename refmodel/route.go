package refmodel

import "time"

// RouteConstraint enumerates one edge of the weekly inter-facility
// shipping calendar (spec.md §3). The full calendar is a closed table of
// these tuples; there is no dynamic route discovery.
type RouteConstraint struct {
	Index            int
	ShipFacility     FacilityID
	ArrivalFacility  FacilityID
	ShipWeekday      time.Weekday
	PackLeadTimeDays int
	TransitDays      int
	MaxPallets       float64
	FoodServiceOnly  bool
}

// RouteTable is the closed set of route constraints the transfer planner
// iterates (spec.md §4.5).
type RouteTable struct {
	routes []RouteConstraint
}

// NewRouteTable builds a route table from a literal set of constraints.
func NewRouteTable(routes []RouteConstraint) *RouteTable {
	return &RouteTable{routes: append([]RouteConstraint{}, routes...)}
}

// All returns every route constraint in the table.
func (rt *RouteTable) All() []RouteConstraint {
	return rt.routes
}

// ForArrival returns every route that delivers into the given facility,
// in table order.
func (rt *RouteTable) ForArrival(arrival FacilityID) []RouteConstraint {
	var out []RouteConstraint
	for _, r := range rt.routes {
		if r.ArrivalFacility == arrival {
			out = append(out, r)
		}
	}
	return out
}

// ByIndex looks up a single route by its table index.
func (rt *RouteTable) ByIndex(index int) (RouteConstraint, bool) {
	for _, r := range rt.routes {
		if r.Index == index {
			return r, true
		}
	}
	return RouteConstraint{}, false
}
