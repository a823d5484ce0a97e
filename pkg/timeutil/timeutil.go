// Package timeutil provides timezone-aware calendar helpers for HabitLoop Core.
// Habit periods are evaluated in each user's own timezone, so every boundary
// computation here takes an explicit *time.Location instead of assuming a
// server-local zone. Weeks are ISO weeks (Monday start).
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// locationCache avoids repeated tzdata lookups for hot user timezones.
var locationCache sync.Map // map[string]*time.Location

// LoadLocation resolves an IANA timezone name, falling back to UTC for an
// empty name. The result is cached process-wide.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if cached, ok := locationCache.Load(name); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown timezone %q: %w", name, err)
	}
	locationCache.Store(name, loc)
	return loc, nil
}

// StartOfDay returns 00:00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// NextDay returns the start of the day after t in loc.
// Uses AddDate so DST transitions keep midnight alignment.
func NextDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// StartOfWeek returns Monday 00:00:00 of t's ISO week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday-1)), loc)
}

// NextWeek returns the start of the ISO week after t in loc.
func NextWeek(t time.Time, loc *time.Location) time.Time {
	return StartOfWeek(t, loc).AddDate(0, 0, 7)
}

// DayKey formats the calendar day of t in loc as "2006-01-02".
// Used as the stable period key for daily habits.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// WeekKey formats the ISO week of t in loc as "2006-W02".
func WeekKey(t time.Time, loc *time.Location) string {
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Weekday returns the ISO weekday of t in loc (1 = Monday ... 7 = Sunday).
func Weekday(t time.Time, loc *time.Location) int {
	wd := int(t.In(loc).Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// FractionElapsed returns how far t has progressed through [start, end),
// clamped to [0, 1]. Returns 1 for a degenerate interval.
func FractionElapsed(t, start, end time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 1
	}
	elapsed := t.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= total {
		return 1
	}
	return float64(elapsed) / float64(total)
}
