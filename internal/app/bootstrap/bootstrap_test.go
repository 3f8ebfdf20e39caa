package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/gynoconnect/clinic-scheduler/internal/config"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/reminders"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

func baseConfig() *appconfig.Config {
	return &appconfig.Config{
		ClinicName:             "Gynoconnect Hospital",
		ClinicTimezone:         "UTC",
		PhoneCountryCode:       "254",
		EmailProvider:          "auto",
		SMSProvider:            "auto",
		ReminderDayAheadAt:     "18:00",
		ReminderSameDayAt:      "07:00",
		ReminderSweepStartHour: 8,
		ReminderSweepEndHour:   17,
		ReminderStartupDelay:   time.Second,
		AuthJWTSecret:          "secret",
		RateLimitRPS:           10,
		RateLimitBurst:         20,
	}
}

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	cfg := baseConfig()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logger, true), "no address")

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logger, true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	_, ok := BuildLedger(client).(*reminders.RedisLedger)
	assert.True(t, ok)

	cfg.RedisAddr = "127.0.0.1:1"
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logger, true), "unreachable redis")
	_, ok = BuildLedger(nil).(*reminders.MemoryLedger)
	assert.True(t, ok)
}

func TestConnectPostgresEmptyURL(t *testing.T) {
	pool, err := ConnectPostgres(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, pool)

	_, err = ConnectPostgres(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")

	cfg := baseConfig()
	sender, provider, reason := BuildEmailSender(context.Background(), cfg, logger)
	assert.IsType(t, &notify.StubEmailSender{}, sender)
	assert.Equal(t, EmailProviderStub, provider)
	assert.NotEmpty(t, reason)

	cfg.SendGridAPIKey, cfg.SendGridFromEmail = "SG.key", "clinic@example.com"
	sender, provider, _ = BuildEmailSender(context.Background(), cfg, logger)
	assert.IsType(t, &notify.SendGridSender{}, sender)
	assert.Equal(t, EmailProviderSendGrid, provider)

	cfg = baseConfig()
	cfg.EmailProvider = "ses"
	cfg.SESFromEmail = "clinic@example.com"
	cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey = "eu-west-1", "AKID", "secret"
	sender, provider, _ = BuildEmailSender(context.Background(), cfg, logger)
	assert.IsType(t, &notify.SESSender{}, sender)
	assert.Equal(t, EmailProviderSES, provider)

	cfg.EmailProvider = "pigeon"
	_, provider, reason = BuildEmailSender(context.Background(), cfg, logger)
	assert.Equal(t, EmailProviderStub, provider)
	assert.Contains(t, reason, "pigeon")
}

func TestReminderConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.ClinicTimezone = "Africa/Nairobi"
	out, err := ReminderConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, schedule.Clock(18, 0), out.DayAheadAt)
	assert.Equal(t, schedule.Clock(7, 0), out.SameDayAt)
	assert.Equal(t, "Gynoconnect Hospital", out.ClinicName)

	cfg.ReminderDayAheadAt = "6pm"
	_, err = ReminderConfig(cfg)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.ReminderSweepStartHour, cfg.ReminderSweepEndHour = 18, 8
	_, err = ReminderConfig(cfg)
	assert.Error(t, err)
}

func TestBuildInMemoryApp(t *testing.T) {
	app, err := Build(context.Background(), baseConfig(), logging.New("error"))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Nil(t, app.Pool)
	assert.IsType(t, &notify.MemoryHistory{}, app.History)

	h := app.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, nil)
	assert.Error(t, err)
}
