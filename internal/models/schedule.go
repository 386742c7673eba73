package models

import (
	"fmt"
	"time"
)

// ParseClock parses an HH:MM wall-clock time into minutes after midnight
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil || len(value) != 5 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// StartOfDay returns midnight of t's calendar day in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b, both taken in loc.
// Counting is done on dates, so DST transitions do not shift the result.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// NotifiedOn reports whether the habit already fired on now's calendar day,
// at or after its scheduled time.
func (h *Habit) NotifiedOn(now time.Time) bool {
	if h.LastNotifiedAt == nil {
		return false
	}
	scheduled, err := ParseClock(h.NotificationTime)
	if err != nil {
		return false
	}
	last := h.LastNotifiedAt.In(now.Location())
	if DaysBetween(last, now, now.Location()) != 0 {
		return false
	}
	return last.Hour()*60+last.Minute() >= scheduled
}

// DueAt reports whether a reminder for the habit should fire at now.
// now must already be in the location the schedule is expressed in.
func (h *Habit) DueAt(now time.Time) bool {
	if !h.Active {
		return false
	}
	scheduled, err := ParseClock(h.NotificationTime)
	if err != nil {
		return false
	}
	if now.Hour()*60+now.Minute() < scheduled {
		return false
	}
	return !h.NotifiedOn(now)
}
