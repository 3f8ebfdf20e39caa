package reminders

import (
	"time"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// Trigger yields the next firing instant strictly after a given time.
type Trigger interface {
	Next(after time.Time) time.Time
}

// DailyAt fires once a day at a local wall-clock time.
type DailyAt struct {
	At  schedule.TimeOfDay
	Loc *time.Location
}

func (d DailyAt) Next(after time.Time) time.Time {
	loc := d.Loc
	if loc == nil {
		loc = time.UTC
	}
	day := schedule.Today(after, loc)
	next := day.At(d.At, loc)
	if !next.After(after) {
		next = day.AddDays(1).At(d.At, loc)
	}
	return next
}

// HourlyBetween fires on the hour from StartHour to EndHour inclusive.
type HourlyBetween struct {
	StartHour int
	EndHour   int
	Loc       *time.Location
}

func (h HourlyBetween) Next(after time.Time) time.Time {
	loc := h.Loc
	if loc == nil {
		loc = time.UTC
	}
	local := after.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, loc)
	for i := 0; i < 48; i++ {
		if hr := candidate.Hour(); hr >= h.StartHour && hr <= h.EndHour {
			return candidate
		}
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), candidate.Hour()+1, 0, 0, 0, loc)
	}
	return candidate
}
