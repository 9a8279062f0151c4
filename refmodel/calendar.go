package refmodel

import "time"

// CalendarWeek is the (year, ISO week, weekday) triple the date→calendar
// lookup of spec.md §6 provides to the driver preamble.
type CalendarWeek struct {
	Year    int
	Week    int
	Weekday time.Weekday
}

// WeekOf returns the calendar-week triple for a date.
func WeekOf(d Date) CalendarWeek {
	year, week := d.Time().ISOWeek()
	return CalendarWeek{Year: year, Week: week, Weekday: d.Weekday()}
}

// ShipDayFor resolves the ship day for a route delivering on forecastDate,
// per spec.md §4.5: rewind transit_days from forecast_date, then rewind
// further if needed so the ship day falls on the route's scheduled
// day-of-week (the weekly calendar only ships on one fixed weekday per
// route), then apply the same Sunday-adjacent rewind rule used by the
// harvest allocator's tier-1 pre-step (spec.md §9: align both call sites
// to the same rule).
func ShipDayFor(route RouteConstraint, forecastDate Date) Date {
	candidate := forecastDate.AddDays(-route.TransitDays)

	// Rewind to the most recent occurrence of the route's scheduled
	// ship weekday at or before candidate.
	for i := 0; i < 7; i++ {
		if candidate.Weekday() == route.ShipWeekday {
			break
		}
		candidate = candidate.AddDays(-1)
	}

	if candidate.Weekday() == time.Sunday {
		candidate = candidate.AddDays(-1)
	}

	return candidate
}
