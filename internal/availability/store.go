package availability

import (
	"context"
	"errors"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

var (
	// ErrBlockNotFound is returned when deleting a block the doctor does not own.
	ErrBlockNotFound = errors.New("availability: blocked slot not found")
	// ErrInvalidInput marks caller mistakes such as an empty interval.
	ErrInvalidInput = errors.New("availability: invalid input")
)

// Store keeps weekly windows and dated blocks per doctor.
type Store interface {
	Windows(ctx context.Context, doctorID string) ([]schedule.Window, error)
	// UpsertWindow replaces the doctor's window for w.DayOfWeek.
	UpsertWindow(ctx context.Context, w schedule.Window) error
	// Blocks returns blocks dated on or after from, ordered by date and start.
	Blocks(ctx context.Context, doctorID string, from schedule.Date) ([]schedule.Block, error)
	BlocksOn(ctx context.Context, doctorID string, date schedule.Date) ([]schedule.Block, error)
	AddBlock(ctx context.Context, b *schedule.Block) error
	DeleteBlock(ctx context.Context, doctorID, blockID string) error
}
