/*
pricing.go - Rate resolution, surcharge resolution, amount calculation

The source system computed rate x surcharge x duration in several read
paths with copy-pasted logic; here it is one pure module consumed by
every read path. Nothing in this file touches storage or the clock:
callers load the rate records and surcharge rules once and pass them in.

PRICING RULES:
  - rate: the unique record covering the entry date; 0 if none exists
    (a missing rate never blocks the workflow, it prices the line at 0)
  - multiplier: 1.0 unless the date is a holiday AND a surcharge rule
    covers it; overlapping rules resolve newest-validFrom-first
  - line amount: round(duration * rate * multiplier, 2)
  - statement total: sum of line amounts, each rounded before summation
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolveRate returns the hourly rate valid on date, or zero when no
// record covers it. Records are per (worker, department); the caller
// passes the records for the right pair.
func ResolveRate(records []RateRecord, date time.Time) decimal.Decimal {
	d := Day(date)
	for _, r := range records {
		if r.Covers(d) {
			return r.Amount
		}
	}
	return decimal.Zero
}

// ResolveMultiplier returns the holiday-pay multiplier for date. Rules
// must be sorted newest-first by ValidFrom (the store guarantees this);
// the first covering rule wins. A holiday without a configured rule
// still pays the base rate.
func ResolveMultiplier(rules []SurchargeRule, date time.Time, isHoliday bool) decimal.Decimal {
	if !isHoliday {
		return decimal.NewFromInt(1)
	}
	d := Day(date)
	for _, r := range rules {
		if r.Covers(d) {
			return r.Multiplier
		}
	}
	return decimal.NewFromInt(1)
}

// LineAmount prices one entry: duration * rate * multiplier, rounded to
// two decimal places.
func LineAmount(duration, rate, multiplier decimal.Decimal) decimal.Decimal {
	return duration.Mul(rate).Mul(multiplier).Round(2)
}

// =============================================================================
// PRICED VIEWS
// =============================================================================

// PricedEntry is a time entry with its freshly computed line amount.
type PricedEntry struct {
	Entry      TimeEntry
	Rate       decimal.Decimal
	Multiplier decimal.Decimal
	IsHoliday  bool
	Amount     decimal.Decimal
}

// PriceEntries prices a set of entries belonging to one (worker,
// department) pair. Amounts are never persisted; every read recomputes
// them from the current rate records and surcharge rules.
func PriceEntries(entries []TimeEntry, rates []RateRecord, rules []SurchargeRule, cal HolidayCalendar, jurisdiction string) []PricedEntry {
	priced := make([]PricedEntry, 0, len(entries))
	for _, e := range entries {
		holiday := cal.IsHoliday(e.Date, jurisdiction)
		rate := ResolveRate(rates, e.Date)
		mult := ResolveMultiplier(rules, e.Date, holiday)
		priced = append(priced, PricedEntry{
			Entry:      e,
			Rate:       rate,
			Multiplier: mult,
			IsHoliday:  holiday,
			Amount:     LineAmount(e.Duration, rate, mult),
		})
	}
	return priced
}

// Total sums already-rounded line amounts.
func Total(priced []PricedEntry) decimal.Decimal {
	total := decimal.Zero
	for _, p := range priced {
		total = total.Add(p.Amount)
	}
	return total
}

// TotalHours sums entry durations, rounded to two places for display.
func TotalHours(entries []TimeEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Duration)
	}
	return total.Round(2)
}
