package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gynoconnect/clinic-scheduler/internal/api/router"
	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/availability"
	"github.com/gynoconnect/clinic-scheduler/internal/booking"
	appconfig "github.com/gynoconnect/clinic-scheduler/internal/config"
	httpmiddleware "github.com/gynoconnect/clinic-scheduler/internal/http/middleware"
	"github.com/gynoconnect/clinic-scheduler/internal/identity"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/internal/reminders"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// App is the wired scheduler: stores, engine, notification pipeline and
// reminder scheduler. Build falls back to in-memory stores without
// DATABASE_URL and to an in-memory reminder ledger without Redis.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry

	Pool  *pgxpool.Pool
	SQL   *sql.DB
	Redis *redis.Client

	Appointments appointments.Store
	Slots        *availability.Service
	Directory    identity.Directory
	History      notify.History
	Notifier     *notify.Notifier
	Dispatcher   *booking.AsyncDispatcher
	Engine       *booking.Engine
	Scheduler    *reminders.Scheduler
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.ClinicLocation()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)
	notifyMetrics := metrics.NewNotificationMetrics(reg)

	app := &App{Config: cfg, Logger: logger, Registry: reg}

	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	app.Pool = pool
	if pool != nil {
		if app.SQL, err = OpenSQL(cfg.DatabaseURL); err != nil {
			app.Close()
			return nil, err
		}
		app.Appointments = appointments.NewPGStore(pool)
		app.Directory = identity.NewSQLDirectory(app.SQL)
		app.History = notify.NewPGHistory(pool)
		app.Slots = availability.NewService(availability.NewPGStore(pool), app.Appointments, loc, logger.Component("availability"))
		logger.Info("bootstrap: postgres stores enabled")
	} else {
		app.Appointments = appointments.NewMemoryStore()
		app.Directory = identity.NewMemoryDirectory()
		app.History = notify.NewMemoryHistory(notify.HistoryLimit)
		app.Slots = availability.NewService(availability.NewMemoryStore(), app.Appointments, loc, logger.Component("availability"))
		logger.Warn("bootstrap: DATABASE_URL not set, using in-memory stores")
	}

	app.Redis = BuildRedisClient(ctx, cfg, logger, true)

	emailSender, emailProvider, _ := BuildEmailSender(ctx, cfg, logger)
	smsSender, smsProvider, smsReason := BuildSMSSender(cfg, logger)
	if smsReason != "" {
		logger.Warn("bootstrap: sms delivery degraded", "provider", smsProvider, "reason", smsReason)
	}
	logger.Info("bootstrap: notification providers", "email", emailProvider, "sms", smsProvider)

	gateway := notify.NewService(emailSender, smsSender, notify.ServiceConfig{
		ClinicName:  cfg.ClinicName,
		CountryCode: cfg.PhoneCountryCode,
	}, notifyMetrics, logger.Component("notify"))
	app.Notifier = notify.NewNotifier(gateway, app.History, logger.Component("notify"))

	toggles := notify.StaticToggles{Email: cfg.EmailNotificationsEnabled, SMS: cfg.SMSNotificationsEnabled}
	resolver := identity.NewResolver(app.Directory, logger.Component("identity"))

	app.Dispatcher = booking.NewAsyncDispatcher(app.Notifier, resolver, toggles, booking.DispatchConfig{
		Workers:    cfg.NotifyWorkers,
		QueueSize:  cfg.NotifyQueueSize,
		ClinicName: cfg.ClinicName,
	}, notifyMetrics, logger.Component("dispatcher"))

	app.Engine = booking.NewEngine(app.Appointments, app.Dispatcher, booking.Options{
		Slots:               app.Slots,
		Directory:           app.Directory,
		Metrics:             bookingMetrics,
		EnforceAvailability: cfg.BookingEnforceAvailability,
	}, logger.Component("booking"))

	remCfg, err := ReminderConfig(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Scheduler = reminders.NewScheduler(app.Appointments, BuildLedger(app.Redis), app.Notifier, resolver, toggles,
		remCfg, notifyMetrics, logger.Component("reminders"))

	return app, nil
}

// ReminderConfig translates the reminder settings.
func ReminderConfig(cfg *appconfig.Config) (reminders.Config, error) {
	out := reminders.DefaultConfig()
	var err error
	if out.DayAheadAt, err = schedule.ParseTimeOfDay(cfg.ReminderDayAheadAt); err != nil {
		return out, fmt.Errorf("bootstrap: REMINDER_DAY_AHEAD_AT: %w", err)
	}
	if out.SameDayAt, err = schedule.ParseTimeOfDay(cfg.ReminderSameDayAt); err != nil {
		return out, fmt.Errorf("bootstrap: REMINDER_SAME_DAY_AT: %w", err)
	}
	if cfg.ReminderSweepStartHour < 0 || cfg.ReminderSweepEndHour > 23 || cfg.ReminderSweepStartHour > cfg.ReminderSweepEndHour {
		return out, fmt.Errorf("bootstrap: reminder sweep hours %d-%d out of range", cfg.ReminderSweepStartHour, cfg.ReminderSweepEndHour)
	}
	out.SweepStartHour = cfg.ReminderSweepStartHour
	out.SweepEndHour = cfg.ReminderSweepEndHour
	out.StartupDelay = cfg.ReminderStartupDelay
	out.Location = cfg.ClinicLocation()
	out.ClinicName = cfg.ClinicName
	return out, nil
}

// Handler builds the HTTP surface.
func (a *App) Handler() http.Handler {
	checks := map[string]router.HealthCheck{}
	if a.Pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return a.Pool.Ping(ctx) }
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	logger := a.Logger
	return router.New(&router.Config{
		Logger:             logger,
		Availability:       availability.NewHandler(a.Slots, logger.Component("availability")),
		Booking:            booking.NewHandler(a.Engine, a.Slots, a.Directory, logger.Component("booking")),
		Notifications:      reminders.NewHandler(a.Scheduler, a.History, a.Registry, logger.Component("reminders")),
		AuthSecret:         a.Config.AuthJWTSecret,
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		RateLimiter:        httpmiddleware.NewRateLimiter(a.Config.RateLimitRPS, a.Config.RateLimitBurst),
		MetricsHandler:     promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}),
		Checks:             checks,
	})
}

// Close drains the dispatcher and releases connections.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.SQL != nil {
		_ = a.SQL.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
