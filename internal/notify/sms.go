package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// SMSSender delivers one text message through a provider.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}

// SMSMessage is an outbound text. To is E.164.
type SMSMessage struct {
	To   string
	Body string
}

const (
	// SMSProviderAuto tries Telnyx first, then Twilio.
	SMSProviderAuto   = "auto"
	SMSProviderTelnyx = "telnyx"
	SMSProviderTwilio = "twilio"
	SMSProviderStub   = "stub"
)

// SMSProviderConfig captures the credentials needed to build senders.
type SMSProviderConfig struct {
	Preference       string
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TelnyxFromNumber string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// BuildSMSSender picks a sender for the configured preference. In auto mode
// with both providers configured, Telnyx is primary and Twilio the fallback.
// It returns the sender, the provider name, and a reason when it had to fall
// back to the stub.
func BuildSMSSender(cfg SMSProviderConfig, logger *logging.Logger) (SMSSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}
	if preference == SMSProviderStub {
		return NewStubSMSSender(logger), SMSProviderStub, ""
	}

	missing := map[string]string{}
	var telnyx, twilio SMSSender
	if cfg.TelnyxAPIKey != "" && cfg.TelnyxFromNumber != "" {
		telnyx = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.TelnyxFromNumber, logger)
	} else {
		missing[SMSProviderTelnyx] = "TELNYX_API_KEY or TELNYX_FROM_NUMBER missing"
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		twilio = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		missing[SMSProviderTwilio] = "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN or TWILIO_FROM_NUMBER missing"
	}

	switch preference {
	case SMSProviderTelnyx:
		if telnyx != nil {
			return telnyx, SMSProviderTelnyx, ""
		}
	case SMSProviderTwilio:
		if twilio != nil {
			return twilio, SMSProviderTwilio, ""
		}
	case SMSProviderAuto:
		switch {
		case telnyx != nil && twilio != nil:
			return NewFailoverSender(telnyx, SMSProviderTelnyx, twilio, SMSProviderTwilio, logger), SMSProviderTelnyx, ""
		case telnyx != nil:
			return telnyx, SMSProviderTelnyx, ""
		case twilio != nil:
			return twilio, SMSProviderTwilio, ""
		}
		return NewStubSMSSender(logger), SMSProviderStub,
			fmt.Sprintf("no sms provider configured (%s; %s)", missing[SMSProviderTelnyx], missing[SMSProviderTwilio])
	}

	reason := missing[preference]
	if reason == "" {
		reason = fmt.Sprintf("unknown sms provider %q", preference)
	}
	return NewStubSMSSender(logger), SMSProviderStub, reason
}

// FailoverSender tries the primary provider, then the secondary on error.
type FailoverSender struct {
	primary       SMSSender
	secondary     SMSSender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

func NewFailoverSender(primary SMSSender, primaryName string, secondary SMSSender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

func (f *FailoverSender) SendSMS(ctx context.Context, msg SMSMessage) error {
	if f == nil || f.primary == nil {
		return errors.New("notify: failover primary sender not configured")
	}
	err := f.primary.SendSMS(ctx, msg)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("notify: primary sms send failed; attempting fallback",
		"provider", f.primaryName, "fallback", f.secondaryName, "error", err)
	if fallbackErr := f.secondary.SendSMS(ctx, msg); fallbackErr != nil {
		return fmt.Errorf("notify: %s and %s both failed: %w", f.primaryName, f.secondaryName, fallbackErr)
	}
	return nil
}

// StubSMSSender logs instead of sending and keeps what it saw.
type StubSMSSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []SMSMessage
}

func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

func (s *StubSMSSender) SendSMS(_ context.Context, msg SMSMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("notify: stub sms sender, not delivered", "to", msg.To)
	return nil
}

func (s *StubSMSSender) Sent() []SMSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SMSMessage(nil), s.sent...)
}
