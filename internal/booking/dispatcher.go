package booking

import (
	"context"
	"sync"
	"time"

	"github.com/gynoconnect/clinic-scheduler/internal/appointments"
	"github.com/gynoconnect/clinic-scheduler/internal/identity"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// Dispatcher executes notification intents after a booking write. It must
// not block the caller on delivery and never reports delivery errors back.
type Dispatcher interface {
	Dispatch(ctx context.Context, appt appointments.Appointment, intents []Intent)
}

// NopDispatcher drops every intent.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, appointments.Appointment, []Intent) {}

// DispatchConfig sizes the worker pool.
type DispatchConfig struct {
	Workers     int
	QueueSize   int
	ClinicName  string
	SendTimeout time.Duration
}

type dispatchJob struct {
	appt    appointments.Appointment
	intents []Intent
	toggles notify.Toggles
}

// AsyncDispatcher delivers intents on a pool of background workers. When the
// queue is full the job is delivered on its own goroutine instead of being
// dropped.
type AsyncDispatcher struct {
	notifier *notify.Notifier
	resolver *identity.Resolver
	toggles  notify.ToggleSource
	cfg      DispatchConfig
	metrics  *metrics.NotificationMetrics
	logger   *logging.Logger

	queue     chan dispatchJob
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}

	// mu orders enqueues and wg.Add against Close.
	mu     sync.RWMutex
	closed bool
}

func NewAsyncDispatcher(notifier *notify.Notifier, resolver *identity.Resolver, toggles notify.ToggleSource, cfg DispatchConfig, m *metrics.NotificationMetrics, logger *logging.Logger) *AsyncDispatcher {
	if notifier == nil || resolver == nil {
		panic("booking: notifier and resolver required")
	}
	if toggles == nil {
		toggles = notify.StaticToggles{Email: true}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AsyncDispatcher{
		notifier: notifier,
		resolver: resolver,
		toggles:  toggles,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		queue:    make(chan dispatchJob, cfg.QueueSize),
		stop:     make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *AsyncDispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
		d.logger.Info("booking dispatcher: started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
	})
}

// Close stops accepting work, drains the queue and waits for in-flight
// deliveries. Intents dispatched after Close are delivered inline.
func (d *AsyncDispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
		d.Start()
		d.wg.Wait()
	})
}

// Dispatch snapshots the toggles and enqueues the job. The request context is
// only consulted for toggles; delivery runs on its own context.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, appt appointments.Appointment, intents []Intent) {
	if len(intents) == 0 {
		return
	}
	job := dispatchJob{appt: appt, intents: intents, toggles: d.toggles.Toggles(ctx)}
	if !job.toggles.Email && !job.toggles.SMS {
		d.logger.Debug("booking dispatcher: all channels disabled", "appointment_id", appt.ID.String())
		return
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.logger.Warn("booking dispatcher: closed, delivering inline", "appointment_id", appt.ID.String())
		d.deliver(job)
		return
	}
	defer d.mu.RUnlock()

	select {
	case d.queue <- job:
	default:
		d.metrics.ObserveQueueOverflow()
		d.logger.Warn("booking dispatcher: queue full, delivering on detached goroutine", "appointment_id", appt.ID.String())
		d.deliverDetached(job)
	}
}

func (d *AsyncDispatcher) deliverDetached(job dispatchJob) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(job)
	}()
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.deliver(job)
		case <-d.stop:
			for {
				select {
				case job := <-d.queue:
					d.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (d *AsyncDispatcher) deliver(job dispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	rec := d.resolver.Recipient(ctx, &job.appt)
	data := notify.TemplateData{
		PatientName: rec.PatientName,
		DoctorName:  rec.DoctorName,
		Date:        job.appt.Date,
		Time:        job.appt.Time,
		Reason:      job.appt.Reason,
		ClinicName:  d.cfg.ClinicName,
	}

	for _, intent := range job.intents {
		if job.toggles.Email && rec.PatientEmail != "" {
			_, _ = d.notifier.Deliver(ctx, notify.Delivery{
				AppointmentID: job.appt.ID,
				Kind:          intent.Kind,
				Channel:       notify.ChannelEmail,
				To:            rec.PatientEmail,
				Data:          data,
			})
		}
		if job.toggles.SMS && rec.PatientPhone != "" {
			_, _ = d.notifier.Deliver(ctx, notify.Delivery{
				AppointmentID: job.appt.ID,
				Kind:          intent.Kind,
				Channel:       notify.ChannelSMS,
				To:            rec.PatientPhone,
				Data:          data,
			})
		}
	}
}
