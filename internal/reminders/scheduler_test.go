package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/identity"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

var (
	monday  = schedule.Date{Year: 2025, Month: time.June, Day: 9}
	tuesday = schedule.Date{Year: 2025, Month: time.June, Day: 10}
)

type rig struct {
	store   *appointments.MemoryStore
	email   *notify.StubEmailSender
	sms     *notify.StubSMSSender
	history *notify.MemoryHistory
	reg     *prometheus.Registry
	ledger  *MemoryLedger
}

func newScheduler(t *testing.T, now time.Time, toggles notify.Toggles) (*Scheduler, *rig) {
	t.Helper()
	r := &rig{
		store:   appointments.NewMemoryStore(),
		email:   notify.NewStubEmailSender(nil),
		sms:     notify.NewStubSMSSender(nil),
		history: notify.NewMemoryHistory(100),
		reg:     prometheus.NewRegistry(),
		ledger:  NewMemoryLedger(),
	}
	dir := identity.NewMemoryDirectory(
		identity.Person{ID: "7", Name: "Dr. Wanjiru", Role: "doctor"},
		identity.Person{ID: "p-1", Name: "Jane Doe", Email: "jane@example.com", Phone: "0712345678", Role: "patient"},
		identity.Person{ID: "p-2", Name: "Mary Akinyi", Role: "patient"},
	)
	m := metrics.NewNotificationMetrics(r.reg)
	gateway := notify.NewService(r.email, r.sms, notify.ServiceConfig{ClinicName: "Gynoconnect Hospital"}, m, nil)
	notifier := notify.NewNotifier(gateway, r.history, nil)

	cfg := DefaultConfig()
	cfg.ClinicName = "Gynoconnect Hospital"
	s := NewScheduler(r.store, r.ledger, notifier, identity.NewResolver(dir, nil), notify.StaticToggles(toggles), cfg, m, nil)
	s.now = func() time.Time { return now }
	return s, r
}

func (r *rig) book(t *testing.T, patientID string, date schedule.Date, at schedule.TimeOfDay, status appointments.Status) *appointments.Appointment {
	t.Helper()
	a := &appointments.Appointment{
		DoctorID: "7",
		Date:     date,
		Time:     at,
		Reason:   "checkup",
		Status:   status,
		Source:   appointments.SourceOnline,
	}
	if patientID != "" {
		a.PatientID = &patientID
	}
	require.NoError(t, r.store.Insert(context.Background(), a))
	return a
}

func TestDayAheadPassSendsOncePerAppointmentPerDay(t *testing.T) {
	s, r := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{Email: true, SMS: true})
	r.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)
	r.book(t, "p-1", tuesday, schedule.Clock(10, 0), appointments.StatusCancelled)
	r.book(t, "p-1", tuesday.AddDays(1), schedule.Clock(9, 0), appointments.StatusPending)

	first, err := s.RunDayAhead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassSummary{Pass: PassDayAhead, Date: tuesday, Candidates: 1, Sent: 2}, first)

	second, err := s.RunDayAhead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Duplicates)
	assert.Zero(t, second.Sent)

	emails := r.email.Sent()
	require.Len(t, emails, 1)
	assert.Equal(t, "jane@example.com", emails[0].To)
	assert.Contains(t, emails[0].Body, "Tuesday, June 10, 2025")

	texts := r.sms.Sent()
	require.Len(t, texts, 1)
	assert.Equal(t, "+254712345678", texts[0].To)
}

func TestDayAheadPassSkipsPatientsWithoutContact(t *testing.T) {
	s, r := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{Email: true, SMS: true})
	r.book(t, "p-2", tuesday, schedule.Clock(9, 0), appointments.StatusPending)

	summary, err := s.RunDayAhead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, r.ledger.Size(), "nothing claimed when nothing can be sent")
}

func TestDayAheadPassHonoursToggles(t *testing.T) {
	s, r := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{SMS: true})
	r.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)

	_, err := s.RunDayAhead(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.email.Sent())
	assert.Len(t, r.sms.Sent(), 1)

	off, offRig := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{})
	offRig.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)
	summary, err := off.RunDayAhead(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Candidates)
}

func TestSameDayPassTextsUpcomingOnly(t *testing.T) {
	s, r := newScheduler(t, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC), notify.Toggles{Email: true, SMS: true})
	r.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)
	upcoming := r.book(t, "p-1", tuesday, schedule.Clock(11, 0), appointments.StatusPending)

	summary, err := s.RunSameDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Sent)
	assert.Empty(t, r.email.Sent(), "same-day reminders are SMS only")
	require.Len(t, r.sms.Sent(), 1)

	recs, _ := r.history.Recent(context.Background(), 0)
	require.Len(t, recs, 1)
	assert.Equal(t, notify.KindReminderSameDay, recs[0].Kind)
	require.NotNil(t, recs[0].AppointmentID)
	assert.Equal(t, upcoming.ID, *recs[0].AppointmentID)
}

func TestTriggerNowRunsBothPasses(t *testing.T) {
	s, r := newScheduler(t, time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC), notify.Toggles{Email: true, SMS: true})
	r.book(t, "p-1", monday, schedule.Clock(15, 0), appointments.StatusConfirmed)
	r.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)

	summaries, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, PassDayAhead, summaries[0].Pass)
	assert.Equal(t, 2, summaries[0].Sent)
	assert.Equal(t, PassSameDay, summaries[1].Pass)
	assert.Equal(t, 1, summaries[1].Sent)

	families, err := r.reg.Gather()
	require.NoError(t, err)
	var passes float64
	for _, mf := range families {
		if mf.GetName() == "clinic_reminders_pass_duration_seconds" {
			for _, m := range mf.GetMetric() {
				passes += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, float64(2), passes)
}

type failingStore struct {
	appointments.Store
}

func (failingStore) List(context.Context, appointments.Filter) ([]appointments.Appointment, error) {
	return nil, errors.New("connection reset")
}

func TestPassReportsStoreErrors(t *testing.T) {
	s, _ := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{Email: true})
	s.store = failingStore{}

	_, err := s.RunDayAhead(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reminders: day_ahead: list")
}

func TestSendTestBypassesToggles(t *testing.T) {
	s, r := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{})

	status, err := s.SendTest(context.Background(), TestRequest{Kind: notify.KindConfirmation, Channel: notify.ChannelEmail, To: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, notify.StatusSent, status)
	emails := r.email.Sent()
	require.Len(t, emails, 1)
	assert.Contains(t, emails[0].Body, "Test Patient")

	appt := r.book(t, "p-1", tuesday, schedule.Clock(9, 0), appointments.StatusConfirmed)
	id := appt.ID
	status, err = s.SendTest(context.Background(), TestRequest{Kind: notify.KindReminderSameDay, Channel: notify.ChannelSMS, To: "0700111222", AppointmentID: &id})
	require.NoError(t, err)
	assert.Equal(t, notify.StatusSent, status)
	texts := r.sms.Sent()
	require.Len(t, texts, 1)
	assert.Equal(t, "+254700111222", texts[0].To)

	missing := uuid.New()
	_, err = s.SendTest(context.Background(), TestRequest{Kind: notify.KindConfirmation, Channel: notify.ChannelEmail, To: "ops@example.com", AppointmentID: &missing})
	assert.ErrorIs(t, err, appointments.ErrNotFound)

	recs, _ := r.history.Recent(context.Background(), 0)
	assert.Len(t, recs, 2)
}

func TestStartStopsOnCancel(t *testing.T) {
	s, _ := newScheduler(t, time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC), notify.Toggles{})
	s.cfg.StartupDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
