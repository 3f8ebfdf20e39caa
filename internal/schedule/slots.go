package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Weekday wraps time.Weekday with lowercase-name JSON encoding ("monday").
type Weekday time.Weekday

// ParseWeekday accepts a full English day name in any case.
func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return Weekday(d), nil
		}
	}
	return 0, fmt.Errorf("schedule: invalid day of week %q", s)
}

func (w Weekday) String() string { return strings.ToLower(time.Weekday(w).String()) }

func (w Weekday) MarshalJSON() ([]byte, error) { return json.Marshal(w.String()) }

func (w *Weekday) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Window is a doctor's recurring weekly working interval.
type Window struct {
	DoctorID    string    `json:"doctor_id"`
	DayOfWeek   Weekday   `json:"day_of_week"`
	StartTime   TimeOfDay `json:"start_time"`
	EndTime     TimeOfDay `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
}

// Block removes [StartTime, EndTime) on a specific date from a doctor's availability.
type Block struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	Date      Date      `json:"date"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
	Reason    string    `json:"reason,omitempty"`
}

// Covers reports whether slot starts inside the block.
func (b Block) Covers(slot TimeOfDay) bool {
	return b.StartTime <= slot && slot < b.EndTime
}

// SlotResult is the outcome of slot generation for one doctor and date.
// Available is false when the doctor has no usable window that weekday,
// which callers render differently from a fully booked day.
type SlotResult struct {
	Date      Date        `json:"date"`
	Slots     []TimeOfDay `json:"slots"`
	Available bool        `json:"available"`
}

// Contains reports whether t is one of the free slots.
func (r SlotResult) Contains(t TimeOfDay) bool {
	for _, s := range r.Slots {
		if s == t {
			return true
		}
	}
	return false
}

// GenerateSlots enumerates the free 30-minute slot starts for date.
// windows may span several weekdays; only the one matching date's weekday is
// used. blocks for other dates are ignored. booked holds the start times of
// non-cancelled appointments already on that date.
func GenerateSlots(date Date, windows []Window, blocks []Block, booked []TimeOfDay) SlotResult {
	result := SlotResult{Date: date, Slots: []TimeOfDay{}}

	var window *Window
	for i := range windows {
		if time.Weekday(windows[i].DayOfWeek) == date.Weekday() {
			window = &windows[i]
			break
		}
	}
	if window == nil || !window.IsAvailable {
		return result
	}
	result.Available = true

	taken := make(map[TimeOfDay]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	step := TimeOfDay(SlotLength / time.Minute)
	for slot := window.StartTime; slot < window.EndTime; slot += step {
		if _, ok := taken[slot]; ok {
			continue
		}
		if blockedAt(blocks, date, slot) {
			continue
		}
		result.Slots = append(result.Slots, slot)
	}
	sort.Slice(result.Slots, func(i, j int) bool { return result.Slots[i] < result.Slots[j] })
	return result
}

func blockedAt(blocks []Block, date Date, slot TimeOfDay) bool {
	for _, b := range blocks {
		if b.Date == date && b.Covers(slot) {
			return true
		}
	}
	return false
}
