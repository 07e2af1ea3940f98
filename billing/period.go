/*
period.go - Billing periods (calendar months)

PURPOSE:
  Invoices, exchange rates, and class-session queries are all scoped to
  a calendar month. Period is the shared key type for that scope.

CONVENTIONS:
  - Months are 1-12 (time.Month), years are four-digit.
  - Period bounds are half-open: Start() is inclusive, End() is the
    first instant of the next month (exclusive). Contains() follows
    the same convention, so a class at 23:59 on the last day of the
    month bills into that month and midnight on the 1st bills into
    the next.
  - All period math is UTC.

SEE ALSO:
  - currency.go: exchange rates are snapshotted per Period
*/
package billing

import (
	"fmt"
	"time"
)

// Period identifies one billing month.
type Period struct {
	Month time.Month
	Year  int
}

// NewPeriod validates month and year and returns the Period.
func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range 1-12", ErrInvalidPeriod, month)
	}
	if year < 2015 || year > 2100 {
		return Period{}, fmt.Errorf("%w: year %d out of range 2015-2100", ErrInvalidPeriod, year)
	}
	return Period{Month: time.Month(month), Year: year}, nil
}

// MustPeriod is NewPeriod for trusted inputs; it panics on invalid ones.
func MustPeriod(month, year int) Period {
	p, err := NewPeriod(month, year)
	if err != nil {
		panic(err)
	}
	return p
}

// PeriodOf returns the Period containing t (interpreted in UTC).
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Month: u.Month(), Year: u.Year()}
}

// String renders the period as "2025-08".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

// Start returns the first instant of the month (inclusive).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month (exclusive).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Next returns the following billing month.
func (p Period) Next() Period {
	return PeriodOf(p.End())
}

// Contains reports whether t falls inside the period, [Start, End).
func (p Period) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(p.Start()) && u.Before(p.End())
}
