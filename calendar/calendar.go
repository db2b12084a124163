/*
Package calendar resolves public holidays for the surcharge pricing.

Wraps rickar/cal business calendars with the German national holiday set
plus per-state additions, keyed by jurisdiction codes such as "DE-NW".
Unknown jurisdictions fall back to the national set, so a misconfigured
code never silently disables all holidays.
*/
package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"

	"github.com/vereinswerk/billing-engine/billing"
)

// German implements billing.HolidayCalendar for German jurisdictions.
type German struct {
	calendars map[string]*cal.BusinessCalendar
	national  *cal.BusinessCalendar
}

// NewGerman builds the calendar set. The calendars are immutable after
// construction, so German is safe for concurrent use.
func NewGerman() *German {
	build := func(extra ...*cal.Holiday) *cal.BusinessCalendar {
		c := cal.NewBusinessCalendar()
		c.AddHoliday(de.Holidays...)
		c.AddHoliday(extra...)
		return c
	}

	national := build()
	return &German{
		national: national,
		calendars: map[string]*cal.BusinessCalendar{
			"DE":    national,
			"DE-NW": build(de.Fronleichnam, de.Allerheiligen),
			"DE-RP": build(de.Fronleichnam, de.Allerheiligen),
			"DE-HE": build(de.Fronleichnam),
			"DE-BY": build(de.Fronleichnam, de.Allerheiligen, de.MariaHimmelfahrt),
		},
	}
}

// IsHoliday reports whether date is a public holiday in the given
// jurisdiction. Observed substitutes count as holidays too.
func (g *German) IsHoliday(date time.Time, jurisdiction string) bool {
	c, ok := g.calendars[jurisdiction]
	if !ok {
		c = g.national
	}
	actual, observed, _ := c.IsHoliday(billing.Day(date))
	return actual || observed
}
