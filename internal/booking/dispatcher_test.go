package booking

import (
	"context"
	"sync"
	"testing"

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

type dispatchRig struct {
	email   *notify.StubEmailSender
	sms     *notify.StubSMSSender
	history *notify.MemoryHistory
	reg     *prometheus.Registry
}

func newDispatcher(t *testing.T, toggles notify.Toggles, cfg DispatchConfig, dir identity.Directory) (*AsyncDispatcher, *dispatchRig) {
	t.Helper()
	rig := &dispatchRig{
		email:   notify.NewStubEmailSender(nil),
		sms:     notify.NewStubSMSSender(nil),
		history: notify.NewMemoryHistory(100),
		reg:     prometheus.NewRegistry(),
	}
	m := metrics.NewNotificationMetrics(rig.reg)
	gateway := notify.NewService(rig.email, rig.sms, notify.ServiceConfig{ClinicName: "Gynoconnect Hospital"}, m, nil)
	notifier := notify.NewNotifier(gateway, rig.history, nil)
	resolver := identity.NewResolver(dir, nil)
	return NewAsyncDispatcher(notifier, resolver, notify.StaticToggles(toggles), cfg, m, nil), rig
}

func patientAppointment() appointments.Appointment {
	pid := "p-1"
	return appointments.Appointment{
		ID:        uuid.New(),
		PatientID: &pid,
		DoctorID:  "7",
		Date:      june10,
		Time:      schedule.Clock(9, 0),
		Reason:    "checkup",
		Status:    appointments.StatusConfirmed,
	}
}

func testDirectory() *identity.MemoryDirectory {
	return identity.NewMemoryDirectory(
		identity.Person{ID: "7", Name: "Dr. Wanjiru", Role: "doctor"},
		identity.Person{ID: "p-1", Name: "Jane Doe", Email: "jane@example.com", Phone: "0712345678", Role: "patient"},
	)
}

func TestAsyncDispatcherDeliversBothChannels(t *testing.T) {
	d, rig := newDispatcher(t, notify.Toggles{Email: true, SMS: true}, DispatchConfig{ClinicName: "Gynoconnect Hospital"}, testDirectory())
	d.Start()

	d.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindConfirmation}})
	d.Close()

	emails := rig.email.Sent()
	require.Len(t, emails, 1)
	assert.Equal(t, "jane@example.com", emails[0].To)
	assert.Contains(t, emails[0].Body, "Dr. Wanjiru")

	texts := rig.sms.Sent()
	require.Len(t, texts, 1)
	assert.Equal(t, "+254712345678", texts[0].To)

	recs, _ := rig.history.Recent(context.Background(), 0)
	assert.Len(t, recs, 2)
}

func TestAsyncDispatcherRespectsToggles(t *testing.T) {
	d, rig := newDispatcher(t, notify.Toggles{Email: true}, DispatchConfig{}, testDirectory())
	d.Start()
	d.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindCancellation}})
	d.Close()

	assert.Len(t, rig.email.Sent(), 1)
	assert.Empty(t, rig.sms.Sent())

	off, offRig := newDispatcher(t, notify.Toggles{}, DispatchConfig{}, testDirectory())
	off.Start()
	off.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindCancellation}})
	off.Close()
	assert.Empty(t, offRig.email.Sent())
}

func TestAsyncDispatcherDirectoryDownUsesAppointmentFields(t *testing.T) {
	dir := testDirectory()
	dir.Err = identity.ErrUnavailable
	d, rig := newDispatcher(t, notify.Toggles{Email: true, SMS: true}, DispatchConfig{}, dir)
	d.Start()

	appt := patientAppointment()
	appt.PatientPhone = "0722000111"
	d.Dispatch(context.Background(), appt, []Intent{{Kind: notify.KindReschedule}})
	d.Close()

	assert.Empty(t, rig.email.Sent(), "no address without the directory")
	texts := rig.sms.Sent()
	require.Len(t, texts, 1)
	assert.Equal(t, "+254722000111", texts[0].To)
}

func TestAsyncDispatcherOverflowDeliversAnyway(t *testing.T) {
	d, rig := newDispatcher(t, notify.Toggles{Email: true}, DispatchConfig{QueueSize: 1}, testDirectory())

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindConfirmation}})
	}
	d.Close()

	assert.Len(t, rig.email.Sent(), 3)

	families, err := rig.reg.Gather()
	require.NoError(t, err)
	var overflow float64
	for _, mf := range families {
		if mf.GetName() == "clinic_notifications_queue_overflow_total" {
			overflow = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), overflow)
}

func TestAsyncDispatcherAfterClose(t *testing.T) {
	d, rig := newDispatcher(t, notify.Toggles{Email: true}, DispatchConfig{}, testDirectory())
	d.Start()
	d.Close()

	d.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindCancellation}})
	assert.Len(t, rig.email.Sent(), 1)
}

func TestAsyncDispatcherCloseRacingDispatch(t *testing.T) {
	d, rig := newDispatcher(t, notify.Toggles{Email: true}, DispatchConfig{Workers: 1, QueueSize: 4}, testDirectory())
	d.Start()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindConfirmation}})
		}()
	}
	d.Close()
	wg.Wait()

	assert.Len(t, rig.email.Sent(), n)
}

func TestNopDispatcher(t *testing.T) {
	NopDispatcher{}.Dispatch(context.Background(), patientAppointment(), []Intent{{Kind: notify.KindConfirmation}})
}
