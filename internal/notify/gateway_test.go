package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
)

type failingEmail struct{}

func (failingEmail) Send(context.Context, EmailMessage) error { return errors.New("smtp 550") }

func newTestService(t *testing.T, email EmailSender, sms SMSSender) (*Service, prometheus.Gatherer) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewNotificationMetrics(reg)
	return NewService(email, sms, ServiceConfig{ClinicName: "Gynoconnect Hospital"}, m, nil), reg
}

func TestServiceSendEmail(t *testing.T) {
	stub := NewStubEmailSender(nil)
	svc, reg := newTestService(t, stub, nil)

	err := svc.SendEmail(context.Background(), KindConfirmation, " jane@example.com ", sampleData)
	require.NoError(t, err)

	sent := stub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@example.com", sent[0].To)
	assert.Equal(t, "✅ Appointment Confirmed - Gynoconnect Hospital", sent[0].Subject)

	stats := metrics.SnapshotDeliveries(reg)
	assert.Equal(t, float64(1), stats.ByStatus["sent"])
}

func TestServiceSendEmailSkipsInvalidAddress(t *testing.T) {
	svc, _ := newTestService(t, NewStubEmailSender(nil), nil)

	err := svc.SendEmail(context.Background(), KindConfirmation, "not-an-email", sampleData)
	assert.ErrorIs(t, err, ErrCannotNotify)
	assert.Equal(t, StatusSkipped, StatusOf(err))
}

func TestServiceSendEmailProviderFailure(t *testing.T) {
	svc, reg := newTestService(t, failingEmail{}, nil)

	err := svc.SendEmail(context.Background(), KindCancellation, "jane@example.com", sampleData)
	assert.ErrorIs(t, err, ErrNotificationFailed)
	assert.Equal(t, StatusFailed, StatusOf(err))
	assert.Equal(t, float64(1), metrics.SnapshotDeliveries(reg).ByStatus["failed"])
}

func TestServiceSendSMS(t *testing.T) {
	sms := NewStubSMSSender(nil)
	svc, _ := newTestService(t, nil, sms)

	require.NoError(t, svc.SendSMS(context.Background(), KindReminderSameDay, "0712 345 678", sampleData))
	sent := sms.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+254712345678", sent[0].To)
	assert.Contains(t, sent[0].Body, "TODAY at 3:30 PM")
}

func TestServiceChannelWithoutSender(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	assert.ErrorIs(t, svc.SendEmail(context.Background(), KindConfirmation, "a@b.c", sampleData), ErrCannotNotify)
	assert.ErrorIs(t, svc.SendSMS(context.Background(), KindConfirmation, "0712345678", sampleData), ErrCannotNotify)
	assert.ErrorIs(t, svc.SendSMS(context.Background(), KindConfirmation, "", sampleData), ErrCannotNotify)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSent, StatusOf(nil))
	assert.Equal(t, StatusSkipped, StatusOf(ErrCannotNotify))
	assert.Equal(t, StatusFailed, StatusOf(errors.New("boom")))
}
