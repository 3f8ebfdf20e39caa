package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/gynoconnect/clinic-scheduler/internal/config"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

const (
	EmailProviderAuto     = "auto"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
	EmailProviderStub     = "stub"
)

// LoadAWSConfig builds the SDK config, with static credentials when both keys
// are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewSESClient returns an SESv2 client honouring AWS_ENDPOINT_OVERRIDE.
func NewSESClient(awsCfg aws.Config, endpoint string) *sesv2.Client {
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// BuildEmailSender picks an email provider. Auto prefers SendGrid when a key
// is set, then SES when a from address is set, then the stub. The returned
// reason explains a fallback to the stub.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	if preference == "" {
		preference = EmailProviderAuto
	}

	sendgrid := func() (notify.EmailSender, string) {
		if cfg.SendGridAPIKey == "" || cfg.SendGridFromEmail == "" {
			return nil, "SENDGRID_API_KEY and SENDGRID_FROM_EMAIL are required"
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger), ""
	}
	ses := func() (notify.EmailSender, string) {
		if cfg.SESFromEmail == "" {
			return nil, "SES_FROM_EMAIL is required"
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err.Error()
		}
		return notify.NewSESSender(NewSESClient(awsCfg, cfg.AWSEndpointOverride), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger), ""
	}

	var (
		sender notify.EmailSender
		reason string
	)
	switch preference {
	case EmailProviderStub:
		return notify.NewStubEmailSender(logger), EmailProviderStub, ""
	case EmailProviderSendGrid:
		if sender, reason = sendgrid(); sender != nil {
			return sender, EmailProviderSendGrid, ""
		}
	case EmailProviderSES:
		if sender, reason = ses(); sender != nil {
			return sender, EmailProviderSES, ""
		}
	case EmailProviderAuto:
		if sender, _ = sendgrid(); sender != nil {
			return sender, EmailProviderSendGrid, ""
		}
		if sender, reason = ses(); sender != nil {
			return sender, EmailProviderSES, ""
		}
		reason = "no email provider configured"
	default:
		reason = fmt.Sprintf("unknown EMAIL_PROVIDER %q", preference)
	}
	logger.Warn("bootstrap: email delivery disabled, using stub sender", "preference", preference, "reason", reason)
	return notify.NewStubEmailSender(logger), EmailProviderStub, reason
}

// BuildSMSSender maps configuration onto notify.BuildSMSSender.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) (notify.SMSSender, string, string) {
	return notify.BuildSMSSender(notify.SMSProviderConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TelnyxFromNumber: cfg.TelnyxFromNumber,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}, logger)
}
