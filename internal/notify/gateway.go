package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gynoconnect/clinic-scheduler/internal/observability/metrics"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

var tracer = otel.Tracer("clinic-scheduler/notify")

var (
	// ErrCannotNotify means the recipient has no usable address or number.
	// Callers treat it as a skip, not a failure.
	ErrCannotNotify = errors.New("notify: recipient cannot be notified")
	// ErrNotificationFailed wraps provider errors.
	ErrNotificationFailed = errors.New("notify: delivery failed")
)

// Gateway sends templated notifications. It never changes appointment state.
type Gateway interface {
	SendEmail(ctx context.Context, kind Kind, to string, data TemplateData) error
	SendSMS(ctx context.Context, kind Kind, phone string, data TemplateData) error
}

// Toggles are the global per-channel switches.
type Toggles struct {
	Email bool
	SMS   bool
}

// ToggleSource is consulted once at the start of each operation.
type ToggleSource interface {
	Toggles(ctx context.Context) Toggles
}

// StaticToggles serves fixed toggles loaded from configuration.
type StaticToggles Toggles

func (t StaticToggles) Toggles(context.Context) Toggles { return Toggles(t) }

// ServiceConfig holds presentation settings shared by all messages.
type ServiceConfig struct {
	ClinicName  string
	CountryCode string
}

// Service is the provider-backed Gateway.
type Service struct {
	email   EmailSender
	sms     SMSSender
	cfg     ServiceConfig
	metrics *metrics.NotificationMetrics
	logger  *logging.Logger
}

// NewService builds a gateway. A nil sender disables that channel: sends on
// it return ErrCannotNotify.
func NewService(email EmailSender, sms SMSSender, cfg ServiceConfig, m *metrics.NotificationMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "254"
	}
	return &Service{email: email, sms: sms, cfg: cfg, metrics: m, logger: logger}
}

var _ Gateway = (*Service)(nil)

func (s *Service) SendEmail(ctx context.Context, kind Kind, to string, data TemplateData) error {
	ctx, span := tracer.Start(ctx, "notify.send_email")
	defer span.End()
	span.SetAttributes(attribute.String("notify.kind", string(kind)))

	err := s.sendEmail(ctx, kind, to, data)
	s.observe(kind, ChannelEmail, err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *Service) sendEmail(ctx context.Context, kind Kind, to string, data TemplateData) error {
	to = strings.TrimSpace(to)
	if to == "" || !strings.Contains(to, "@") {
		return fmt.Errorf("%w: invalid email address %q", ErrCannotNotify, to)
	}
	if s.email == nil {
		return fmt.Errorf("%w: no email sender configured", ErrCannotNotify)
	}
	data = s.withDefaults(data)
	rendered, err := RenderEmail(kind, data)
	if err != nil {
		return err
	}
	if err := s.email.Send(ctx, EmailMessage{
		To:      to,
		ToName:  data.PatientName,
		Subject: rendered.Subject,
		Body:    rendered.Text,
		HTML:    rendered.HTML,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

func (s *Service) SendSMS(ctx context.Context, kind Kind, phone string, data TemplateData) error {
	ctx, span := tracer.Start(ctx, "notify.send_sms")
	defer span.End()
	span.SetAttributes(attribute.String("notify.kind", string(kind)))

	err := s.sendSMS(ctx, kind, phone, data)
	s.observe(kind, ChannelSMS, err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *Service) sendSMS(ctx context.Context, kind Kind, phone string, data TemplateData) error {
	to, err := NormalizePhone(phone, s.cfg.CountryCode)
	if err != nil {
		return err
	}
	if s.sms == nil {
		return fmt.Errorf("%w: no sms sender configured", ErrCannotNotify)
	}
	body, err := RenderSMS(kind, s.withDefaults(data))
	if err != nil {
		return err
	}
	if err := s.sms.SendSMS(ctx, SMSMessage{To: to, Body: body}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

func (s *Service) withDefaults(d TemplateData) TemplateData {
	if d.ClinicName == "" {
		d.ClinicName = s.cfg.ClinicName
	}
	return d
}

func (s *Service) observe(kind Kind, channel Channel, err error) {
	s.metrics.ObserveDelivery(string(kind), string(channel), string(StatusOf(err)))
}

// DeliveryStatus is the recorded outcome of one delivery attempt.
type DeliveryStatus string

const (
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
	StatusSkipped DeliveryStatus = "skipped"
)

// StatusOf classifies a Gateway error.
func StatusOf(err error) DeliveryStatus {
	switch {
	case err == nil:
		return StatusSent
	case errors.Is(err, ErrCannotNotify):
		return StatusSkipped
	default:
		return StatusFailed
	}
}
