// Package timeunit models the time-aggregation granularities (day, month,
// quarter, year) of the warehouse's pre-aggregated fact tables.
package timeunit

import (
	"strings"
	"time"

	"duck-warehouse/internal/domain"
)

// Unit names.
const (
	Day     = "day"
	Month   = "month"
	Quarter = "quarter"
	Year    = "year"

	// Auto asks DeriveName to pick a unit from the date range.
	Auto = "auto"
)

type granularity struct {
	days       int
	minPerYear int
	maxPerYear int
}

// Fixed day-equivalents used to compare unit durations.
var units = map[string]granularity{
	Day:     {days: 1, minPerYear: 1, maxPerYear: 366},
	Month:   {days: 30, minPerYear: 1, maxPerYear: 12},
	Quarter: {days: 90, minPerYear: 1, maxPerYear: 4},
	Year:    {days: 365, minPerYear: 1, maxPerYear: 1},
}

// Names lists the units from finest to coarsest.
var Names = []string{Day, Month, Quarter, Year}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Unit is one aggregation granularity bound to the aggregate table prefix
// whose "<prefix><unit>" tables hold data at that granularity.
type Unit struct {
	name        string
	spec        granularity
	tablePrefix string
}

// New returns the named unit bound to tablePrefix (e.g. "agg.jobfact_by_").
func New(name, tablePrefix string) (*Unit, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	s, ok := units[name]
	if !ok {
		return nil, domain.ErrInvalidPeriod("", name)
	}
	return &Unit{name: name, spec: s, tablePrefix: tablePrefix}, nil
}

// Name returns the unit name.
func (u *Unit) Name() string { return u.name }

// Days returns the unit's fixed day-equivalent.
func (u *Unit) Days() int { return u.spec.days }

// MinPeriodPerYear returns the smallest sub-period index within a year.
func (u *Unit) MinPeriodPerYear() int { return u.spec.minPerYear }

// MaxPeriodPerYear returns the largest sub-period index within a year.
func (u *Unit) MaxPeriodPerYear() int { return u.spec.maxPerYear }

// TablePrefix returns the aggregate table prefix bound at construction.
func (u *Unit) TablePrefix() string { return u.tablePrefix }

// FactTable returns the aggregate table name for this unit.
func (u *Unit) FactTable() string { return u.tablePrefix + u.name }

// IDColumn returns the period foreign key column of the aggregate table.
func (u *Unit) IDColumn() string { return u.name + "_id" }

// PeriodTable returns the period-dimension table for this unit in schema.
func (u *Unit) PeriodTable(schema string) string {
	return PeriodTable(schema, u.name)
}

// PeriodTable returns the period-dimension table name for unit in schema.
func PeriodTable(schema, unit string) string {
	if schema == "" {
		return unit + "s"
	}
	return schema + "." + unit + "s"
}

// IsUnitName reports whether s names a known unit.
func IsUnitName(s string) bool {
	_, ok := units[strings.ToLower(s)]
	return ok
}

// CompareUnits orders two known units by duration (-1, 0, 1).
// Unknown names compare as equal.
func CompareUnits(a, b string) int {
	sa, okA := units[strings.ToLower(a)]
	sb, okB := units[strings.ToLower(b)]
	if !okA || !okB {
		return 0
	}
	switch {
	case sa.days < sb.days:
		return -1
	case sa.days > sb.days:
		return 1
	default:
		return 0
	}
}

// MaxUnit returns the coarser of a and b. If one name is unknown the other
// is returned unchanged.
func MaxUnit(a, b string) string {
	sa, okA := units[strings.ToLower(a)]
	sb, okB := units[strings.ToLower(b)]
	switch {
	case !okA:
		return b
	case !okB:
		return a
	case sb.days > sa.days:
		return b
	default:
		return a
	}
}

// DeriveName resolves period to a unit name. "auto" picks quarter for ranges
// of ten years or more, month for six months or more, and day otherwise,
// then raises the result to at least minUnit when one is given. Any other
// period is returned lowercased.
func DeriveName(period, start, end, minUnit string) (string, error) {
	if !strings.EqualFold(period, Auto) {
		return strings.ToLower(period), nil
	}

	startT, endT, err := ParseRange(start, end)
	if err != nil {
		return "", err
	}

	years, months := calendarDiff(startT, endT)
	name := Day
	switch {
	case years >= 10:
		name = Quarter
	case years*12+months >= 6:
		name = Month
	}

	if minUnit != "" {
		if m, ok := units[strings.ToLower(minUnit)]; ok && units[name].days < m.days {
			name = strings.ToLower(minUnit)
		}
	}
	return name, nil
}

// ParseRange parses a start/end date pair.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	startT, err := parseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidDateRange(start, end, "unparsable start date")
	}
	endT, err := parseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidDateRange(start, end, "unparsable end date")
	}
	if endT.Before(startT) {
		return time.Time{}, time.Time{}, domain.ErrInvalidDateRange(start, end, "end precedes start")
	}
	return startT, endT, nil
}

// RawPeriodBounds returns the first and last day of the period of unit that
// starts at timestamp.
func RawPeriodBounds(timestamp, unit string) (string, string, error) {
	unit = strings.ToLower(unit)
	if _, ok := units[unit]; !ok {
		return "", "", domain.ErrInvalidPeriod(timestamp, unit)
	}
	t, err := parseDate(timestamp)
	if err != nil {
		return "", "", domain.ErrInvalidPeriod(timestamp, unit)
	}

	var end time.Time
	switch unit {
	case Day:
		end = t
	case Month:
		end = t.AddDate(0, 1, -1)
	case Quarter:
		end = t.AddDate(0, 3, -1)
	case Year:
		end = t.AddDate(1, 0, -1)
	}
	return t.Format("2006-01-02"), end.Format("2006-01-02"), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// calendarDiff returns the whole years and remaining months between a and b (a <= b).
func calendarDiff(a, b time.Time) (years, months int) {
	total := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() || (b.Day() == a.Day() && clock(b) < clock(a)) {
		total--
	}
	if total < 0 {
		total = 0
	}
	return total / 12, total % 12
}

func clock(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}
