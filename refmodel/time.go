// Package refmodel holds the typed domain shared by every other package:
// facilities, crops, products, customers, routes, and the calendar.
package refmodel

import "time"

// Date is a calendar-day time point. Allocation runs always operate at
// day granularity; there is no hour/minute component anywhere in this
// engine.
type Date struct {
	t time.Time
}

// NewDate builds a Date from a year/month/day triple, normalized to UTC
// midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time.Time to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func (d Date) Time() time.Time       { return d.t }
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return d.Before(o) || d.Equal(o) }
func (d Date) AfterOrEqual(o Date) bool  { return d.After(o) || d.Equal(o) }

// DaysBetween returns to-from in whole days.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// RewindToShipDay rewinds days calendar days, then an additional day if
// that lands on a Sunday; with days = 1 it gives the previous business
// day. The spec calls this out in two places (§4.4's tier-1 pre-step and
// §4.5's route resolution) and flags in §9 that both call sites must share
// the exact same rule; the harvest allocator's pre-step calls this
// function, and ShipDayFor applies the same Sunday step after its weekday
// rewind.
func RewindToShipDay(from Date, days int) Date {
	d := from.AddDays(-days)
	if d.Weekday() == time.Sunday {
		d = d.AddDays(-1)
	}
	return d
}
