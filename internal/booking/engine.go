package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/auth"
	"github.com/gynoconnect/clinic-scheduler/internal/identity"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic-scheduler/booking")

// SlotFinder returns the free slots for a doctor on a date.
type SlotFinder interface {
	Slots(ctx context.Context, doctorID string, date schedule.Date) (schedule.SlotResult, error)
}

// Options carries the engine's optional collaborators.
type Options struct {
	Slots     SlotFinder
	Directory identity.Directory
	// Policy defaults to FirstDoctorPolicy over Directory.
	Policy  AssignmentPolicy
	Metrics *metrics.BookingMetrics
	// EnforceAvailability rejects bookings and moves outside the generated slots.
	EnforceAvailability bool
}

// Engine owns the appointment lifecycle: it validates requests, applies
// transitions, persists through the store and hands intents to the
// dispatcher.
type Engine struct {
	store      appointments.Store
	dispatcher Dispatcher
	slots      SlotFinder
	directory  identity.Directory
	policy     AssignmentPolicy
	metrics    *metrics.BookingMetrics
	enforce    bool
	now        func() time.Time
	logger     *logging.Logger
}

func NewEngine(store appointments.Store, dispatcher Dispatcher, opts Options, logger *logging.Logger) *Engine {
	if store == nil {
		panic("booking: store required")
	}
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	if opts.Policy == nil && opts.Directory != nil {
		opts.Policy = FirstDoctorPolicy{Directory: opts.Directory}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		slots:      opts.Slots,
		directory:  opts.Directory,
		policy:     opts.Policy,
		metrics:    opts.Metrics,
		enforce:    opts.EnforceAvailability,
		now:        time.Now,
		logger:     logger,
	}
}

// CreateRequest is a booking request. DoctorID may be empty, in which case
// the assignment policy picks one.
type CreateRequest struct {
	PatientID    string              `json:"patient_id"`
	PatientEmail string              `json:"patient_email" validate:"omitempty,email"`
	PatientName  string              `json:"patient_name" validate:"max=200"`
	PatientPhone string              `json:"patient_phone" validate:"max=32"`
	DoctorID     string              `json:"doctor_id"`
	Date         *schedule.Date      `json:"date" validate:"required"`
	Time         *schedule.TimeOfDay `json:"time" validate:"required"`
	Reason       string              `json:"reason" validate:"required,max=500"`
	Symptoms     string              `json:"symptoms" validate:"max=2000"`
	Notes        string              `json:"notes" validate:"max=2000"`
	Status       appointments.Status `json:"status" validate:"omitempty,oneof=pending confirmed"`
	Source       appointments.Source `json:"source" validate:"omitempty,oneof=online walk-in phone staff"`
}

// Create books a slot. It never notifies.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer func() { e.finish(span, "create", err) }()

	req.Reason = strings.TrimSpace(req.Reason)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if !req.Time.OnGrid() {
		return nil, invalid("time", "must be on a %d-minute boundary", int(schedule.SlotLength/time.Minute))
	}

	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" && req.PatientEmail != "" {
		if patientID, err = e.patientByEmail(ctx, req.PatientEmail); err != nil {
			return nil, err
		}
	}

	doctorID := strings.TrimSpace(req.DoctorID)
	if doctorID == "" {
		if e.policy == nil {
			return nil, invalid("doctor_id", "is required")
		}
		if doctorID, err = e.policy.Assign(ctx); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("doctor_id", doctorID), attribute.String("date", req.Date.String()))

	key := appointments.SlotKey{DoctorID: doctorID, Date: *req.Date, Time: *req.Time}
	if err := e.ensureFree(ctx, key, uuid.Nil); err != nil {
		return nil, err
	}
	if err := e.ensureAvailable(ctx, "create", key); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = appointments.StatusPending
	}
	source := req.Source
	if source == "" {
		source = appointments.SourceOnline
	}
	now := e.now().UTC()
	appt = &appointments.Appointment{
		ID:           uuid.New(),
		PatientName:  strings.TrimSpace(req.PatientName),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		DoctorID:     doctorID,
		Date:         *req.Date,
		Time:         *req.Time,
		Reason:       req.Reason,
		Symptoms:     req.Symptoms,
		Status:       status,
		Source:       source,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if patientID != "" {
		appt.PatientID = &patientID
	}
	if err := e.store.Insert(ctx, appt); err != nil {
		return nil, err
	}

	e.logger.Info("booking: appointment created",
		"appointment_id", appt.ID.String(), "doctor_id", doctorID, "date", appt.Date.String(), "time", appt.Time.String(), "status", appt.Status)
	return appt, nil
}

// ensureAvailable checks key against the generated slots when availability
// is enforced. Callers skip it when the appointment keeps its own slot, since
// that slot is booked and never offered.
func (e *Engine) ensureAvailable(ctx context.Context, op string, key appointments.SlotKey) error {
	if !e.enforce || e.slots == nil {
		return nil
	}
	result, err := e.slots.Slots(ctx, key.DoctorID, key.Date)
	if err != nil {
		return fmt.Errorf("booking: %s: slots: %w", op, err)
	}
	if !result.Contains(key.Time) {
		return invalid("time", "%s is outside the doctor's available slots on %s", key.Time, key.Date)
	}
	return nil
}

func (e *Engine) patientByEmail(ctx context.Context, email string) (string, error) {
	if e.directory == nil {
		return "", invalid("patient_email", "cannot be resolved")
	}
	person, err := e.directory.FindPatientByEmail(ctx, email)
	if errors.Is(err, identity.ErrPersonNotFound) {
		return "", invalid("patient_email", "no patient registered with %s", email)
	}
	if err != nil {
		return "", fmt.Errorf("booking: resolve patient: %w", err)
	}
	return person.ID, nil
}

// Update applies a partial change. Status changes go through Transition;
// a confirmation is sent when the appointment becomes confirmed or moves.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, patch appointments.Patch) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.update")
	defer func() { e.finish(span, "update", err) }()
	span.SetAttributes(attribute.String("appointment_id", id.String()))

	if patch.Empty() {
		return nil, invalid("", "no fields to update")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, invalid("status", "unknown status %q", *patch.Status)
	}
	if patch.Time != nil && !patch.Time.OnGrid() {
		return nil, invalid("time", "must be on a %d-minute boundary", int(schedule.SlotLength/time.Minute))
	}
	if patch.Date != nil && patch.Date.IsZero() {
		return nil, invalid("date", "is required")
	}

	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*current)
	var intents []Intent
	if next.Status != current.Status {
		action, ok := actionFor(next.Status)
		if !ok {
			return nil, &ValidationError{
				Field:   "status",
				Message: fmt.Sprintf("cannot move an appointment from %s to %s", current.Status, next.Status),
				Err:     ErrInvalidTransition,
			}
		}
		if next.Status, intents, err = Transition(current.Status, action); err != nil {
			return nil, err
		}
	}

	moved := next.Slot() != current.Slot()
	if moved && next.Status.Active() {
		if err := e.ensureFree(ctx, next.Slot(), id); err != nil {
			return nil, err
		}
		if err := e.ensureAvailable(ctx, "update", next.Slot()); err != nil {
			return nil, err
		}
	}
	if moved && len(intents) == 0 && next.Status.Active() {
		intents = []Intent{{Kind: notify.KindConfirmation}}
	}

	next.UpdatedAt = e.now().UTC()
	if err := e.store.Update(ctx, &next); err != nil {
		return nil, err
	}
	e.logger.Info("booking: appointment updated", "appointment_id", id.String(), "status", next.Status, "moved", moved)
	e.dispatcher.Dispatch(ctx, next, intents)
	return &next, nil
}

// Cancel frees the slot and notifies the patient. Cancelling an already
// cancelled appointment returns it unchanged without notifying again.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer func() { e.finish(span, "cancel", err) }()
	span.SetAttributes(attribute.String("appointment_id", id.String()))

	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == appointments.StatusCancelled {
		e.logger.Info("booking: cancel on cancelled appointment ignored", "appointment_id", id.String())
		return current, nil
	}
	return e.apply(ctx, current, ActionCancel)
}

// Reschedule moves the appointment to date and time and marks it
// rescheduled. Moving onto its own current slot is allowed.
func (e *Engine) Reschedule(ctx context.Context, id uuid.UUID, date schedule.Date, at schedule.TimeOfDay) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.reschedule")
	defer func() { e.finish(span, "reschedule", err) }()
	span.SetAttributes(attribute.String("appointment_id", id.String()), attribute.String("date", date.String()))

	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if !at.OnGrid() {
		return nil, invalid("time", "must be on a %d-minute boundary", int(schedule.SlotLength/time.Minute))
	}

	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status, intents, err := Transition(current.Status, ActionReschedule)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Date, next.Time, next.Status = date, at, status
	if next.Slot() != current.Slot() {
		if err := e.ensureFree(ctx, next.Slot(), id); err != nil {
			return nil, err
		}
		if err := e.ensureAvailable(ctx, "reschedule", next.Slot()); err != nil {
			return nil, err
		}
	}
	next.UpdatedAt = e.now().UTC()
	if err := e.store.Update(ctx, &next); err != nil {
		return nil, err
	}
	e.logger.Info("booking: appointment rescheduled",
		"appointment_id", id.String(), "date", date.String(), "time", at.String())
	e.dispatcher.Dispatch(ctx, next, intents)
	return &next, nil
}

// Accept confirms a rescheduled appointment.
func (e *Engine) Accept(ctx context.Context, id uuid.UUID) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.accept")
	defer func() { e.finish(span, "accept", err) }()
	return e.transitionByID(ctx, id, ActionAccept)
}

// Decline cancels a rescheduled appointment.
func (e *Engine) Decline(ctx context.Context, id uuid.UUID) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.decline")
	defer func() { e.finish(span, "decline", err) }()
	return e.transitionByID(ctx, id, ActionDecline)
}

func (e *Engine) transitionByID(ctx context.Context, id uuid.UUID, action Action) (*appointments.Appointment, error) {
	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, current, action)
}

func (e *Engine) apply(ctx context.Context, current *appointments.Appointment, action Action) (*appointments.Appointment, error) {
	status, intents, err := Transition(current.Status, action)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Status = status
	next.UpdatedAt = e.now().UTC()
	if err := e.store.Update(ctx, &next); err != nil {
		return nil, err
	}
	e.logger.Info("booking: status changed",
		"appointment_id", next.ID.String(), "action", action, "from", current.Status, "to", next.Status)
	e.dispatcher.Dispatch(ctx, next, intents)
	return &next, nil
}

// Delete removes the appointment. Only admins and doctors may delete.
func (e *Engine) Delete(ctx context.Context, actor auth.Principal, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "booking.delete")
	defer func() { e.finish(span, "delete", err) }()
	span.SetAttributes(attribute.String("appointment_id", id.String()), attribute.String("actor_role", string(actor.Role)))

	if !actor.HasRole(auth.RoleAdmin, auth.RoleDoctor) {
		return fmt.Errorf("%w: role %q may not delete appointments", ErrForbidden, actor.Role)
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.logger.Info("booking: appointment deleted", "appointment_id", id.String(), "actor", actor.UserID)
	return nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, f appointments.Filter) ([]appointments.Appointment, error) {
	return e.store.List(ctx, f)
}

// AssignDoctor exposes the assignment policy for slot queries without a
// doctor.
func (e *Engine) AssignDoctor(ctx context.Context) (string, error) {
	if e.policy == nil {
		return "", identity.ErrNoDoctor
	}
	return e.policy.Assign(ctx)
}

func (e *Engine) ensureFree(ctx context.Context, key appointments.SlotKey, exclude uuid.UUID) error {
	taken, err := e.store.SlotTaken(ctx, key, exclude)
	if err != nil {
		return fmt.Errorf("booking: slot check: %w", err)
	}
	if taken {
		return appointments.ErrSlotConflict
	}
	return nil
}

func (e *Engine) finish(span trace.Span, op string, err error) {
	outcome := Outcome(err)
	if err != nil && outcome == "error" {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	e.metrics.ObserveOperation(op, outcome)
}

// Outcome classifies an engine error for metrics and logs.
func Outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, appointments.ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, appointments.ErrNotFound), errors.Is(err, identity.ErrNoDoctor):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "error"
}
