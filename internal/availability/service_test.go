package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

var tuesday = schedule.Date{Year: 2025, Month: time.June, Day: 10}

func newTestService(t *testing.T) (*Service, *MemoryStore, *appointments.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	appts := appointments.NewMemoryStore()
	svc := NewService(store, appts, time.UTC, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC) }
	return svc, store, appts
}

func TestServiceSlotsCombinesSources(t *testing.T) {
	ctx := context.Background()
	svc, _, appts := newTestService(t)

	require.NoError(t, svc.SetWindow(ctx, schedule.Window{
		DoctorID: "7", DayOfWeek: schedule.Weekday(time.Tuesday),
		StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(11, 0), IsAvailable: true,
	}))
	require.NoError(t, svc.AddBlock(ctx, &schedule.Block{
		DoctorID: "7", Date: tuesday, StartTime: schedule.Clock(10, 0), EndTime: schedule.Clock(10, 30),
	}))
	require.NoError(t, appts.Insert(ctx, &appointments.Appointment{
		DoctorID: "7", Date: tuesday, Time: schedule.Clock(9, 30), Reason: "checkup", Status: appointments.StatusPending,
	}))
	// Cancelled appointments do not occupy a slot.
	require.NoError(t, appts.Insert(ctx, &appointments.Appointment{
		DoctorID: "7", Date: tuesday, Time: schedule.Clock(9, 0), Reason: "x", Status: appointments.StatusCancelled,
	}))

	got, err := svc.Slots(ctx, "7", tuesday)
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Equal(t, []schedule.TimeOfDay{schedule.Clock(9, 0), schedule.Clock(10, 30)}, got.Slots)
}

func TestServiceUpsertReplacesWindow(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	w := schedule.Window{DoctorID: "7", DayOfWeek: schedule.Weekday(time.Monday),
		StartTime: schedule.Clock(8, 0), EndTime: schedule.Clock(12, 0), IsAvailable: true}
	require.NoError(t, svc.SetWindow(ctx, w))
	w.EndTime = schedule.Clock(16, 0)
	require.NoError(t, svc.SetWindow(ctx, w))

	windows, err := store.Windows(ctx, "7")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, schedule.Clock(16, 0), windows[0].EndTime)
}

func TestServiceRejectsEmptyIntervals(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	err := svc.SetWindow(ctx, schedule.Window{DoctorID: "7", StartTime: schedule.Clock(10, 0), EndTime: schedule.Clock(9, 0), IsAvailable: true})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.AddBlock(ctx, &schedule.Block{DoctorID: "7", Date: tuesday, StartTime: schedule.Clock(10, 0), EndTime: schedule.Clock(10, 0)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// An unavailable day may carry no hours.
	assert.NoError(t, svc.SetWindow(ctx, schedule.Window{DoctorID: "7", DayOfWeek: schedule.Weekday(time.Sunday)}))
}

func TestServiceRejectsOffGridWindows(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	err := svc.SetWindow(ctx, schedule.Window{DoctorID: "7", DayOfWeek: schedule.Weekday(time.Tuesday),
		StartTime: schedule.Clock(9, 15), EndTime: schedule.Clock(10, 15), IsAvailable: true})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.SetWindow(ctx, schedule.Window{DoctorID: "7", DayOfWeek: schedule.Weekday(time.Tuesday),
		StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(10, 45), IsAvailable: true})
	assert.ErrorIs(t, err, ErrInvalidInput)

	windows, err := store.Windows(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, windows)

	res, err := svc.Slots(ctx, "7", tuesday)
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
}

func TestServiceScheduleHidesPastBlocks(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	past := &schedule.Block{DoctorID: "7", Date: tuesday.AddDays(-7), StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(10, 0)}
	future := &schedule.Block{DoctorID: "7", Date: tuesday, StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(10, 0)}
	require.NoError(t, svc.AddBlock(ctx, past))
	require.NoError(t, svc.AddBlock(ctx, future))

	sched, err := svc.Schedule(ctx, "7")
	require.NoError(t, err)
	require.Len(t, sched.Blocks, 1)
	assert.Equal(t, future.ID, sched.Blocks[0].ID)
	assert.NotNil(t, sched.Windows)
}

func TestServiceRemoveBlockScopedToDoctor(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	b := &schedule.Block{DoctorID: "7", Date: tuesday, StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(10, 0)}
	require.NoError(t, svc.AddBlock(ctx, b))

	assert.ErrorIs(t, svc.RemoveBlock(ctx, "8", b.ID), ErrBlockNotFound)
	assert.NoError(t, svc.RemoveBlock(ctx, "7", b.ID))
	assert.ErrorIs(t, svc.RemoveBlock(ctx, "7", b.ID), ErrBlockNotFound)
}
