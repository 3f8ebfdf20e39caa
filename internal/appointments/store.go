package appointments

import (
	"context"

	"github.com/google/uuid"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// Store persists appointments. Implementations must reject, atomically, any
// Insert or Update that would put a second active appointment on a SlotKey,
// returning ErrSlotConflict.
type Store interface {
	Insert(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]Appointment, error)
	// SlotTaken reports whether an active appointment other than exclude holds key.
	SlotTaken(ctx context.Context, key SlotKey, exclude uuid.UUID) (bool, error)
	// BookedTimes returns start times of active appointments for a doctor on date.
	BookedTimes(ctx context.Context, doctorID string, date schedule.Date) ([]schedule.TimeOfDay, error)
}
