package appointments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

var (
	// ErrNotFound is returned when no appointment has the requested id.
	ErrNotFound = errors.New("appointments: not found")
	// ErrSlotConflict is returned when a write would leave two active
	// appointments on the same doctor, date and time.
	ErrSlotConflict = errors.New("appointments: slot already booked")
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusRescheduled Status = "rescheduled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

// Active reports whether an appointment in this status occupies its slot.
func (s Status) Active() bool { return s != StatusCancelled }

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("appointments: unknown status %q", raw)
	}
	return s, nil
}

// Source records how the booking was made. It carries no behavior.
type Source string

const (
	SourceOnline Source = "online"
	SourceWalkIn Source = "walk-in"
	SourcePhone  Source = "phone"
	SourceStaff  Source = "staff"
)

func (s Source) Valid() bool {
	switch s {
	case SourceOnline, SourceWalkIn, SourcePhone, SourceStaff:
		return true
	}
	return false
}

// Appointment is a booking of one slot with one doctor.
type Appointment struct {
	ID           uuid.UUID          `json:"id"`
	PatientID    *string            `json:"patient_id,omitempty"`
	PatientName  string             `json:"patient_name,omitempty"`
	PatientPhone string             `json:"patient_phone,omitempty"`
	DoctorID     string             `json:"doctor_id"`
	Date         schedule.Date      `json:"date"`
	Time         schedule.TimeOfDay `json:"time"`
	Reason       string             `json:"reason"`
	Symptoms     string             `json:"symptoms,omitempty"`
	Status       Status             `json:"status"`
	Source       Source             `json:"source"`
	Notes        string             `json:"notes,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// SlotKey identifies the (doctor, date, time) triple guarded by the
// one-active-appointment rule.
type SlotKey struct {
	DoctorID string
	Date     schedule.Date
	Time     schedule.TimeOfDay
}

func (a *Appointment) Slot() SlotKey {
	return SlotKey{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

// Patch lists the fields an Update may change. Nil fields are left alone.
type Patch struct {
	Status   *Status
	Notes    *string
	Reason   *string
	Symptoms *string
	Date     *schedule.Date
	Time     *schedule.TimeOfDay
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.Notes == nil && p.Reason == nil && p.Symptoms == nil && p.Date == nil && p.Time == nil
}

// Apply writes the patch onto a copy of a and returns it.
func (p Patch) Apply(a Appointment) Appointment {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.Reason != nil {
		a.Reason = *p.Reason
	}
	if p.Symptoms != nil {
		a.Symptoms = *p.Symptoms
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Time != nil {
		a.Time = *p.Time
	}
	return a
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	DoctorID  string
	PatientID string
	Date      *schedule.Date
	Statuses  []Status
	Limit     int
}
