package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore persists availability in doctor_availability and blocked_slots.
type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	if db == nil {
		panic("availability: db required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Windows(ctx context.Context, doctorID string) ([]schedule.Window, error) {
	rows, err := s.db.Query(ctx, `
		SELECT doctor_id, day_of_week, start_time, end_time, is_available
		FROM doctor_availability
		WHERE doctor_id = $1
		ORDER BY day_of_week`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("availability: list windows: %w", err)
	}
	defer rows.Close()

	var out []schedule.Window
	for rows.Next() {
		var (
			w          schedule.Window
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&w.DoctorID, &day, &start, &end, &w.IsAvailable); err != nil {
			return nil, fmt.Errorf("availability: scan window: %w", err)
		}
		w.DayOfWeek = schedule.Weekday(day)
		w.StartTime = fromPGTime(start)
		w.EndTime = fromPGTime(end)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PGStore) UpsertWindow(ctx context.Context, w schedule.Window) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO doctor_availability (doctor_id, day_of_week, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, day_of_week)
		DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, is_available = EXCLUDED.is_available`,
		w.DoctorID, int16(w.DayOfWeek), toPGTime(w.StartTime), toPGTime(w.EndTime), w.IsAvailable,
	)
	if err != nil {
		return fmt.Errorf("availability: upsert window: %w", err)
	}
	return nil
}

func (s *PGStore) Blocks(ctx context.Context, doctorID string, from schedule.Date) ([]schedule.Block, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, doctor_id, blocked_date, start_time, end_time, reason
		FROM blocked_slots
		WHERE doctor_id = $1 AND blocked_date >= $2
		ORDER BY blocked_date, start_time`, doctorID, from.Time())
	if err != nil {
		return nil, fmt.Errorf("availability: list blocks: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (s *PGStore) BlocksOn(ctx context.Context, doctorID string, date schedule.Date) ([]schedule.Block, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, doctor_id, blocked_date, start_time, end_time, reason
		FROM blocked_slots
		WHERE doctor_id = $1 AND blocked_date = $2
		ORDER BY start_time`, doctorID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("availability: list blocks on date: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (s *PGStore) AddBlock(ctx context.Context, b *schedule.Block) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocked_slots (id, doctor_id, blocked_date, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.DoctorID, b.Date.Time(), toPGTime(b.StartTime), toPGTime(b.EndTime), b.Reason,
	)
	if err != nil {
		return fmt.Errorf("availability: add block: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteBlock(ctx context.Context, doctorID, blockID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM blocked_slots WHERE id = $1 AND doctor_id = $2`, blockID, doctorID)
	if err != nil {
		return fmt.Errorf("availability: delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func scanBlocks(rows pgx.Rows) ([]schedule.Block, error) {
	var out []schedule.Block
	for rows.Next() {
		var (
			b          schedule.Block
			date       time.Time
			start, end pgtype.Time
		)
		if err := rows.Scan(&b.ID, &b.DoctorID, &date, &start, &end, &b.Reason); err != nil {
			return nil, fmt.Errorf("availability: scan block: %w", err)
		}
		b.Date = schedule.DateOf(date)
		b.StartTime = fromPGTime(start)
		b.EndTime = fromPGTime(end)
		out = append(out, b)
	}
	return out, rows.Err()
}

func toPGTime(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func fromPGTime(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDayFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}
