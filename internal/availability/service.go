package availability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic-scheduler/availability")

// BookedTimes reports start times already taken by active appointments.
type BookedTimes interface {
	BookedTimes(ctx context.Context, doctorID string, date schedule.Date) ([]schedule.TimeOfDay, error)
}

// DoctorSchedule is a doctor's weekly windows plus upcoming blocks.
type DoctorSchedule struct {
	DoctorID string            `json:"doctor_id"`
	Windows  []schedule.Window `json:"availability"`
	Blocks   []schedule.Block  `json:"blocked_slots"`
}

// Service answers slot queries and validates availability edits.
type Service struct {
	store  Store
	booked BookedTimes
	loc    *time.Location
	now    func() time.Time
	logger *logging.Logger
}

// NewService wires the availability store with the appointment lookup.
func NewService(store Store, booked BookedTimes, loc *time.Location, logger *logging.Logger) *Service {
	if store == nil || booked == nil {
		panic("availability: store and booked-times source required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, booked: booked, loc: loc, now: time.Now, logger: logger}
}

// Slots returns the free slots for doctorID on date.
func (s *Service) Slots(ctx context.Context, doctorID string, date schedule.Date) (schedule.SlotResult, error) {
	ctx, span := tracer.Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(attribute.String("doctor_id", doctorID), attribute.String("date", date.String()))

	windows, err := s.store.Windows(ctx, doctorID)
	if err != nil {
		span.RecordError(err)
		return schedule.SlotResult{}, err
	}
	blocks, err := s.store.BlocksOn(ctx, doctorID, date)
	if err != nil {
		span.RecordError(err)
		return schedule.SlotResult{}, err
	}
	booked, err := s.booked.BookedTimes(ctx, doctorID, date)
	if err != nil {
		span.RecordError(err)
		return schedule.SlotResult{}, err
	}
	result := schedule.GenerateSlots(date, windows, blocks, booked)
	span.SetAttributes(attribute.Int("slots", len(result.Slots)))
	return result, nil
}

// Schedule returns windows and blocks from today onward.
func (s *Service) Schedule(ctx context.Context, doctorID string) (*DoctorSchedule, error) {
	windows, err := s.store.Windows(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.store.Blocks(ctx, doctorID, schedule.Today(s.now(), s.loc))
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = []schedule.Window{}
	}
	if blocks == nil {
		blocks = []schedule.Block{}
	}
	return &DoctorSchedule{DoctorID: doctorID, Windows: windows, Blocks: blocks}, nil
}

// SetWindow upserts the doctor's window for one weekday.
func (s *Service) SetWindow(ctx context.Context, w schedule.Window) error {
	if w.DoctorID == "" {
		return fmt.Errorf("%w: doctor id required", ErrInvalidInput)
	}
	if w.IsAvailable && w.EndTime <= w.StartTime {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidInput)
	}
	if !w.StartTime.OnGrid() || !w.EndTime.OnGrid() {
		return fmt.Errorf("%w: window must start and end on a 30-minute boundary", ErrInvalidInput)
	}
	if err := s.store.UpsertWindow(ctx, w); err != nil {
		return err
	}
	s.logger.Info("availability: window saved", "doctor_id", w.DoctorID, "day", w.DayOfWeek.String(),
		"start", w.StartTime.String(), "end", w.EndTime.String(), "available", w.IsAvailable)
	return nil
}

// AddBlock records a blocked interval on a specific date.
func (s *Service) AddBlock(ctx context.Context, b *schedule.Block) error {
	if b.DoctorID == "" || b.Date.IsZero() {
		return fmt.Errorf("%w: doctor id and date required", ErrInvalidInput)
	}
	if b.EndTime <= b.StartTime {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidInput)
	}
	if err := s.store.AddBlock(ctx, b); err != nil {
		return err
	}
	s.logger.Info("availability: slot blocked", "doctor_id", b.DoctorID, "block_id", b.ID, "date", b.Date.String())
	return nil
}

// RemoveBlock deletes a block owned by doctorID.
func (s *Service) RemoveBlock(ctx context.Context, doctorID, blockID string) error {
	return s.store.DeleteBlock(ctx, doctorID, blockID)
}
