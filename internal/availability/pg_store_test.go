package availability

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

func TestPGStoreUpsertWindowUsesConflictClause(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPGStore(mock)

	mock.ExpectExec(`ON CONFLICT \(doctor_id, day_of_week\)`).
		WithArgs("7", int16(time.Tuesday), pgxmock.AnyArg(), pgxmock.AnyArg(), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.UpsertWindow(context.Background(), schedule.Window{
		DoctorID: "7", DayOfWeek: schedule.Weekday(time.Tuesday),
		StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(17, 0), IsAvailable: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreWindowsScan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPGStore(mock)

	mock.ExpectQuery("FROM doctor_availability").WithArgs("7").
		WillReturnRows(pgxmock.NewRows([]string{"doctor_id", "day_of_week", "start_time", "end_time", "is_available"}).
			AddRow("7", int16(2), "09:00:00", "17:00:00", true))

	windows, err := store.Windows(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, schedule.Weekday(time.Tuesday), windows[0].DayOfWeek)
	assert.Equal(t, schedule.Clock(9, 0), windows[0].StartTime)
	assert.Equal(t, schedule.Clock(17, 0), windows[0].EndTime)
}

func TestPGStoreDeleteBlockScopedToDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPGStore(mock)

	mock.ExpectExec("DELETE FROM blocked_slots").WithArgs("b-1", "8").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.DeleteBlock(context.Background(), "8", "b-1"), ErrBlockNotFound)

	mock.ExpectExec("DELETE FROM blocked_slots").WithArgs("b-1", "7").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	assert.NoError(t, store.DeleteBlock(context.Background(), "7", "b-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreAddBlockAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPGStore(mock)

	mock.ExpectExec("INSERT INTO blocked_slots").
		WithArgs(pgxmock.AnyArg(), "7", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "leave").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b := &schedule.Block{DoctorID: "7", Date: tuesday, StartTime: schedule.Clock(9, 0), EndTime: schedule.Clock(12, 0), Reason: "leave"}
	require.NoError(t, store.AddBlock(context.Background(), b))
	assert.NotEmpty(t, b.ID)
}
