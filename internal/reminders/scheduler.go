package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/identity"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic-scheduler/reminders")

// Pass names a reminder sweep.
type Pass string

const (
	PassDayAhead Pass = "day_ahead"
	PassSameDay  Pass = "same_day"
)

const passLimit = 1000

var remindable = []appointments.Status{appointments.StatusPending, appointments.StatusConfirmed}

// Config sets the trigger times, all in Location.
type Config struct {
	DayAheadAt     schedule.TimeOfDay
	SameDayAt      schedule.TimeOfDay
	SweepStartHour int
	SweepEndHour   int
	StartupDelay   time.Duration
	Location       *time.Location
	ClinicName     string
}

// DefaultConfig returns 18:00 day-ahead, 07:00 same-day, hourly 08-17 and a
// ten second startup delay.
func DefaultConfig() Config {
	return Config{
		DayAheadAt:     schedule.Clock(18, 0),
		SameDayAt:      schedule.Clock(7, 0),
		SweepStartHour: 8,
		SweepEndHour:   17,
		StartupDelay:   10 * time.Second,
		Location:       time.UTC,
	}
}

// PassSummary counts what one pass did. Duplicates are appointments already
// claimed in the ledger today.
type PassSummary struct {
	Pass       Pass          `json:"pass"`
	Date       schedule.Date `json:"date"`
	Candidates int           `json:"candidates"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duplicates int           `json:"duplicates"`
}

func (s *PassSummary) count(status notify.DeliveryStatus) {
	switch status {
	case notify.StatusSent:
		s.Sent++
	case notify.StatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}

// Scheduler runs the reminder passes on their triggers.
type Scheduler struct {
	store    appointments.Store
	ledger   Ledger
	notifier *notify.Notifier
	resolver *identity.Resolver
	toggles  notify.ToggleSource
	cfg      Config
	metrics  *metrics.NotificationMetrics
	now      func() time.Time
	logger   *logging.Logger

	running sync.Mutex
}

func NewScheduler(store appointments.Store, ledger Ledger, notifier *notify.Notifier, resolver *identity.Resolver, toggles notify.ToggleSource, cfg Config, m *metrics.NotificationMetrics, logger *logging.Logger) *Scheduler {
	if store == nil || notifier == nil || resolver == nil {
		panic("reminders: store, notifier and resolver required")
	}
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	if toggles == nil {
		toggles = notify.StaticToggles{Email: true}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		resolver: resolver,
		toggles:  toggles,
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// RunDayAhead reminds patients with appointments tomorrow, by email and SMS.
func (s *Scheduler) RunDayAhead(ctx context.Context) (PassSummary, error) {
	today := schedule.Today(s.now(), s.cfg.Location)
	return s.run(ctx, PassDayAhead, today, today.AddDays(1))
}

// RunSameDay texts patients whose appointment is later today.
func (s *Scheduler) RunSameDay(ctx context.Context) (PassSummary, error) {
	today := schedule.Today(s.now(), s.cfg.Location)
	return s.run(ctx, PassSameDay, today, today)
}

// TriggerNow runs both passes immediately.
func (s *Scheduler) TriggerNow(ctx context.Context) ([]PassSummary, error) {
	dayAhead, err1 := s.RunDayAhead(ctx)
	sameDay, err2 := s.RunSameDay(ctx)
	return []PassSummary{dayAhead, sameDay}, errors.Join(err1, err2)
}

func (s *Scheduler) run(ctx context.Context, pass Pass, today, target schedule.Date) (summary PassSummary, err error) {
	ctx, span := tracer.Start(ctx, "reminders.pass")
	defer span.End()
	span.SetAttributes(attribute.String("pass", string(pass)), attribute.String("target_date", target.String()))

	s.running.Lock()
	defer s.running.Unlock()

	started := time.Now()
	defer func() {
		s.metrics.ObservePass(string(pass), time.Since(started), err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	summary = PassSummary{Pass: pass, Date: target}
	toggles := s.toggles.Toggles(ctx)
	if pass == PassSameDay {
		toggles.Email = false
	}
	if !toggles.Email && !toggles.SMS {
		s.logger.Debug("reminders: pass skipped, channels disabled", "pass", pass)
		return summary, nil
	}

	appts, err := s.store.List(ctx, appointments.Filter{Date: &target, Statuses: remindable, Limit: passLimit})
	if err != nil {
		return summary, fmt.Errorf("reminders: %s: list: %w", pass, err)
	}

	kind := notify.KindReminderDayAhead
	if pass == PassSameDay {
		kind = notify.KindReminderSameDay
	}
	nowLocal := s.now().In(s.cfg.Location)
	for i := range appts {
		appt := &appts[i]
		if pass == PassSameDay && appt.Date.At(appt.Time, s.cfg.Location).Before(nowLocal) {
			continue
		}
		summary.Candidates++
		s.remind(ctx, kind, appt, today, toggles, &summary)
	}

	span.SetAttributes(attribute.Int("candidates", summary.Candidates), attribute.Int("sent", summary.Sent))
	s.logger.Info("reminders: pass complete",
		"pass", pass, "date", target.String(), "candidates", summary.Candidates,
		"sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped, "duplicates", summary.Duplicates)
	return summary, nil
}

func (s *Scheduler) remind(ctx context.Context, kind notify.Kind, appt *appointments.Appointment, today schedule.Date, toggles notify.Toggles, summary *PassSummary) {
	rec := s.resolver.Recipient(ctx, appt)
	sendEmail := toggles.Email && rec.PatientEmail != ""
	sendSMS := toggles.SMS && rec.PatientPhone != ""
	if !sendEmail && !sendSMS {
		summary.Skipped++
		return
	}

	claimed, err := s.ledger.Claim(ctx, Key(kind, appt.ID, today), today)
	if err != nil {
		s.logger.Error("reminders: ledger claim failed", "appointment_id", appt.ID.String(), "error", err)
		summary.Failed++
		return
	}
	if !claimed {
		summary.Duplicates++
		return
	}

	data := notify.TemplateData{
		PatientName: rec.PatientName,
		DoctorName:  rec.DoctorName,
		Date:        appt.Date,
		Time:        appt.Time,
		Reason:      appt.Reason,
		ClinicName:  s.cfg.ClinicName,
	}
	if sendEmail {
		status, _ := s.notifier.Deliver(ctx, notify.Delivery{AppointmentID: appt.ID, Kind: kind, Channel: notify.ChannelEmail, To: rec.PatientEmail, Data: data})
		summary.count(status)
	}
	if sendSMS {
		status, _ := s.notifier.Deliver(ctx, notify.Delivery{AppointmentID: appt.ID, Kind: kind, Channel: notify.ChannelSMS, To: rec.PatientPhone, Data: data})
		summary.count(status)
	}
}

// TestRequest asks for one notification to an arbitrary address. When
// AppointmentID is set its details fill the template.
type TestRequest struct {
	Kind          notify.Kind    `json:"kind"`
	Channel       notify.Channel `json:"channel"`
	To            string         `json:"to"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
}

// SendTest delivers a single notification regardless of the channel
// toggles and records it in history.
func (s *Scheduler) SendTest(ctx context.Context, req TestRequest) (notify.DeliveryStatus, error) {
	tomorrow := schedule.Today(s.now(), s.cfg.Location).AddDays(1)
	data := notify.TemplateData{
		PatientName: "Test Patient",
		DoctorName:  "Test Doctor",
		Date:        tomorrow,
		Time:        schedule.Clock(10, 0),
		Reason:      "Test notification",
		ClinicName:  s.cfg.ClinicName,
	}
	var apptID uuid.UUID
	if req.AppointmentID != nil {
		appt, err := s.store.Get(ctx, *req.AppointmentID)
		if err != nil {
			return notify.StatusFailed, fmt.Errorf("reminders: test: %w", err)
		}
		rec := s.resolver.Recipient(ctx, appt)
		apptID = appt.ID
		data.PatientName, data.DoctorName = rec.PatientName, rec.DoctorName
		data.Date, data.Time, data.Reason = appt.Date, appt.Time, appt.Reason
	}

	s.logger.Info("reminders: sending test notification", "kind", req.Kind, "channel", req.Channel)
	return s.notifier.Deliver(ctx, notify.Delivery{
		AppointmentID: apptID,
		Kind:          req.Kind,
		Channel:       req.Channel,
		To:            req.To,
		Data:          data,
	})
}

// Start runs the catch-up passes after the startup delay and then fires
// passes on their triggers. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	jobs := []struct {
		name    string
		trigger Trigger
		passes  []Pass
	}{
		{"day_ahead", DailyAt{At: s.cfg.DayAheadAt, Loc: s.cfg.Location}, []Pass{PassDayAhead}},
		{"same_day", DailyAt{At: s.cfg.SameDayAt, Loc: s.cfg.Location}, []Pass{PassSameDay}},
		{"hourly_sweep", HourlyBetween{StartHour: s.cfg.SweepStartHour, EndHour: s.cfg.SweepEndHour, Loc: s.cfg.Location}, []Pass{PassDayAhead, PassSameDay}},
	}
	s.logger.Info("reminders: scheduler started",
		"day_ahead_at", s.cfg.DayAheadAt.String(), "same_day_at", s.cfg.SameDayAt.String(),
		"sweep_start", s.cfg.SweepStartHour, "sweep_end", s.cfg.SweepEndHour, "timezone", s.cfg.Location.String())

	startup := time.NewTimer(s.cfg.StartupDelay)
	select {
	case <-ctx.Done():
		startup.Stop()
		return
	case <-startup.C:
		s.runPasses(ctx, "startup", PassDayAhead, PassSameDay)
	}

	for {
		now := s.now()
		nextAt := time.Time{}
		var due []Pass
		var name string
		for _, job := range jobs {
			at := job.trigger.Next(now)
			switch {
			case nextAt.IsZero() || at.Before(nextAt):
				nextAt, due, name = at, append([]Pass(nil), job.passes...), job.name
			case at.Equal(nextAt):
				due = appendMissing(due, job.passes...)
				name += "+" + job.name
			}
		}

		timer := time.NewTimer(nextAt.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("reminders: scheduler stopped")
			return
		case <-timer.C:
			s.runPasses(ctx, name, due...)
		}
	}
}

func (s *Scheduler) runPasses(ctx context.Context, trigger string, passes ...Pass) {
	for _, p := range passes {
		var err error
		switch p {
		case PassDayAhead:
			_, err = s.RunDayAhead(ctx)
		case PassSameDay:
			_, err = s.RunSameDay(ctx)
		}
		if err != nil {
			s.logger.Error("reminders: pass failed", "trigger", trigger, "pass", p, "error", err)
		}
	}
}

func appendMissing(list []Pass, passes ...Pass) []Pass {
	for _, p := range passes {
		found := false
		for _, existing := range list {
			if existing == p {
				found = true
				break
			}
		}
		if !found {
			list = append(list, p)
		}
	}
	return list
}
