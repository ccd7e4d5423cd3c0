package availability

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

const maxLookaheadDays = 366

// resolveLocation picks the slot's zone, then the calendar's, then fallback.
func resolveLocation(slot CalendarSlot, cal Calendar, fallback *time.Location) (*time.Location, error) {
	name := slot.Timezone
	if name == "" {
		name = cal.Timezone
	}
	if name == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("slot %s: load timezone %q: %w", slot.ID, name, err)
	}
	return loc, nil
}

// overrideDates collects the dates on which a calendar has an active one-off slot.
func overrideDates(slots []CalendarSlot) map[civil.Date]bool {
	out := make(map[civil.Date]bool)
	for _, s := range slots {
		if s.IsActive && s.IsOverride() {
			out[*s.SpecificDate] = true
		}
	}
	return out
}

// appliesOn reports whether slot produces an occurrence on d. An override on d
// replaces the whole recurring schedule for that date.
func appliesOn(slot CalendarSlot, d civil.Date, overridden bool) bool {
	if !slot.IsActive {
		return false
	}
	if slot.IsOverride() {
		return *slot.SpecificDate == d
	}
	if overridden {
		return false
	}
	return d.Weekday() == slot.DayOfWeek
}

// project expands slots into concrete occurrences for [today, today+lookahead]
// in each slot's zone, dropping occurrences that already started or are full.
func project(cal Calendar, slots []CalendarSlot, booked map[WindowKey]int, now time.Time, lookahead int, fallback *time.Location) ([]Occurrence, error) {
	overrides := overrideDates(slots)

	var out []Occurrence
	for _, slot := range slots {
		if !slot.IsActive {
			continue
		}
		loc, err := resolveLocation(slot, cal, fallback)
		if err != nil {
			return nil, err
		}

		today := civil.DateOf(now.In(loc))
		last := today.AddDays(lookahead)

		for d := today; !d.After(last); d = d.AddDays(1) {
			if !appliesOn(slot, d, overrides[d]) {
				continue
			}
			startsAt := slot.StartTime.On(d, loc)
			if !startsAt.After(now) {
				continue
			}
			remaining := slot.MaxBookings - booked[WindowKey{Date: d, Start: slot.StartTime, End: slot.EndTime}]
			if remaining <= 0 {
				continue
			}
			out = append(out, Occurrence{
				SlotID:      slot.ID,
				CalendarID:  slot.CalendarID,
				Date:        d,
				StartTime:   slot.StartTime,
				EndTime:     slot.EndTime,
				StartsAt:    startsAt,
				EndsAt:      slot.EndTime.On(d, loc),
				Timezone:    loc.String(),
				MaxBookings: slot.MaxBookings,
				Remaining:   remaining,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.Before(b.StartsAt)
		}
		return a.SlotID.String() < b.SlotID.String()
	})

	return out, nil
}

func clampLookahead(days, def int) int {
	if days <= 0 {
		days = def
	}
	if days > maxLookaheadDays {
		days = maxLookaheadDays
	}
	return days
}
