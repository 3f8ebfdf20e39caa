package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// ActiveSlotConstraint is the partial unique index over
// (doctor_id, appointment_date, appointment_time) WHERE status <> 'cancelled'.
const ActiveSlotConstraint = "appointments_active_slot_uidx"

const uniqueViolation = "23505"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps appointments in Postgres and relies on the active-slot index
// for conflict detection.
type PGStore struct {
	db  DB
	now func() time.Time
}

// NewPGStore creates a Postgres-backed store.
func NewPGStore(db DB) *PGStore {
	if db == nil {
		panic("appointments: db required")
	}
	return &PGStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectColumns = `id, patient_id, patient_name, patient_phone, doctor_id, appointment_date, appointment_time,
		reason, symptoms, status, source, notes, created_at, updated_at`

func (s *PGStore) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := s.now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, patient_name, patient_phone, doctor_id, appointment_date, appointment_time,
			reason, symptoms, status, source, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.PatientID, a.PatientName, a.PatientPhone, a.DoctorID, a.Date.Time(), toPGTime(a.Time),
		a.Reason, a.Symptoms, string(a.Status), string(a.Source), a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isSlotConflict(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = s.now()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $1, appointment_time = $2, reason = $3, symptoms = $4,
			status = $5, notes = $6, updated_at = $7
		WHERE id = $8`,
		a.Date.Time(), toPGTime(a.Time), a.Reason, a.Symptoms, string(a.Status), a.Notes, a.UpdatedAt, a.ID,
	)
	if err != nil {
		if isSlotConflict(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("appointments: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	defer rows.Close()
	list, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.Date != nil {
		add("appointment_date = $%d", f.Date.Time())
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	query := `SELECT ` + selectColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY appointment_date DESC, appointment_time DESC LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *PGStore) SlotTaken(ctx context.Context, key SlotKey, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3
				AND status <> 'cancelled' AND id <> $4
		)`, key.DoctorID, key.Date.Time(), toPGTime(key.Time), exclude).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("appointments: slot taken: %w", err)
	}
	return taken, nil
}

func (s *PGStore) BookedTimes(ctx context.Context, doctorID string, date schedule.Date) ([]schedule.TimeOfDay, error) {
	rows, err := s.db.Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> 'cancelled'
		ORDER BY appointment_time`, doctorID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	defer rows.Close()

	var out []schedule.TimeOfDay
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("appointments: scan booked time: %w", err)
		}
		out = append(out, fromPGTime(t))
	}
	return out, rows.Err()
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var (
			a              Appointment
			date           time.Time
			tod            pgtype.Time
			status, source string
		)
		err := rows.Scan(
			&a.ID, &a.PatientID, &a.PatientName, &a.PatientPhone, &a.DoctorID, &date, &tod,
			&a.Reason, &a.Symptoms, &status, &source, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		a.Date = schedule.DateOf(date)
		a.Time = fromPGTime(tod)
		a.Status = Status(status)
		a.Source = Source(source)
		result = append(result, a)
	}
	return result, rows.Err()
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == ActiveSlotConstraint
}

func toPGTime(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func fromPGTime(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDayFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}
