// Package recurrence computes the concrete calendar dates implied by an
// event template's recurrence rule. It is pure: no I/O, no clock, and a
// malformed rule yields an empty expansion rather than an error, so one
// misconfigured template can never block a generation batch.
package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Type enumerates the supported recurrence kinds.
type Type string

const (
	None    Type = "none"
	Weekly  Type = "weekly"
	Monthly Type = "monthly"
)

// Rule is the normalized, strict form of a template's recurrence fields.
// Loose database shapes are converted into this via the Parse helpers
// before the calculator ever sees them.
type Rule struct {
	Type        Type
	DaysOfWeek  []int // 0=Sunday .. 6=Saturday, only meaningful for Weekly
	DaysOfMonth []int // 1..31, only meaningful for Monthly
	StartTime   TimeOfDay
	EndTime     *TimeOfDay
	StartDate   *time.Time // optional bound on top of the caller's window
	EndDate     *time.Time
}

// Occurrence is a single candidate date produced by a rule, before it is
// checked against already-materialized events.
type Occurrence struct {
	Date  time.Time // calendar day, midnight UTC
	Start time.Time // Date combined with the rule's start time
	End   *time.Time
}

// rrule weekday constants indexed by our Sunday=0 convention.
var weekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// Expand returns every occurrence of rule inside [windowStart, windowEnd],
// both ends inclusive, in ascending date order. The window is further
// intersected with the rule's own StartDate/EndDate bounds; an empty
// intersection yields an empty slice.
//
// A "none" rule yields exactly one occurrence, on the first day of the
// effective window. Weekly and monthly rules with an empty day set yield
// nothing.
func Expand(rule Rule, windowStart, windowEnd time.Time) []Occurrence {
	start := dateOnly(windowStart)
	end := dateOnly(windowEnd)

	if rule.StartDate != nil {
		if d := dateOnly(*rule.StartDate); d.After(start) {
			start = d
		}
	}
	if rule.EndDate != nil {
		if d := dateOnly(*rule.EndDate); d.Before(end) {
			end = d
		}
	}
	if start.After(end) {
		return nil
	}

	switch rule.Type {
	case None:
		return []Occurrence{rule.occurrenceOn(start)}
	case Weekly:
		return rule.expand(start, end, weeklyOption(rule.DaysOfWeek, start))
	case Monthly:
		return rule.expand(start, end, monthlyOption(rule.DaysOfMonth, start))
	}
	return nil
}

func weeklyOption(days []int, dtstart time.Time) *rrule.ROption {
	var byday []rrule.Weekday
	for _, d := range days {
		if d >= 0 && d <= 6 {
			byday = append(byday, weekdays[d])
		}
	}
	if len(byday) == 0 {
		return nil
	}
	return &rrule.ROption{Freq: rrule.WEEKLY, Byweekday: byday, Dtstart: dtstart}
}

func monthlyOption(days []int, dtstart time.Time) *rrule.ROption {
	var bymonthday []int
	for _, d := range days {
		if d >= 1 && d <= 31 {
			bymonthday = append(bymonthday, d)
		}
	}
	if len(bymonthday) == 0 {
		return nil
	}
	// A day beyond a month's length (31 in April) is simply never matched
	// that month; RRULE semantics do not roll over.
	return &rrule.ROption{Freq: rrule.MONTHLY, Bymonthday: bymonthday, Dtstart: dtstart}
}

func (r Rule) expand(start, end time.Time, opt *rrule.ROption) []Occurrence {
	if opt == nil {
		return nil
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil
	}

	times := rule.Between(start, end, true)
	occurrences := make([]Occurrence, 0, len(times))
	for _, t := range times {
		occurrences = append(occurrences, r.occurrenceOn(dateOnly(t)))
	}
	return occurrences
}

func (r Rule) occurrenceOn(date time.Time) Occurrence {
	occ := Occurrence{
		Date:  date,
		Start: r.StartTime.On(date),
	}
	if r.EndTime != nil {
		end := r.EndTime.On(date)
		occ.End = &end
	}
	return occ
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
