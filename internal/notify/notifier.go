package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

// Delivery describes one message on one channel.
type Delivery struct {
	AppointmentID uuid.UUID
	Kind          Kind
	Channel       Channel
	To            string
	Data          TemplateData
}

// Notifier sends through a Gateway and appends the outcome to History.
// Neither a failed send nor a failed history write is returned as an error.
type Notifier struct {
	gateway Gateway
	history History
	logger  *logging.Logger
}

func NewNotifier(gateway Gateway, history History, logger *logging.Logger) *Notifier {
	if gateway == nil {
		panic("notify: gateway required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{gateway: gateway, history: history, logger: logger}
}

// Deliver returns the outcome and the underlying error, if any.
func (n *Notifier) Deliver(ctx context.Context, d Delivery) (DeliveryStatus, error) {
	var err error
	switch d.Channel {
	case ChannelEmail:
		err = n.gateway.SendEmail(ctx, d.Kind, d.To, d.Data)
	case ChannelSMS:
		err = n.gateway.SendSMS(ctx, d.Kind, d.To, d.Data)
	default:
		err = ErrCannotNotify
	}
	status := StatusOf(err)

	logArgs := []any{"kind", d.Kind, "channel", d.Channel, "status", status, "appointment_id", d.AppointmentID.String()}
	switch status {
	case StatusFailed:
		n.logger.Error("notify: delivery failed", append(logArgs, "error", err)...)
	case StatusSkipped:
		n.logger.Info("notify: delivery skipped", append(logArgs, "reason", err)...)
	default:
		n.logger.Info("notify: delivered", logArgs...)
	}

	if n.history != nil {
		rec := &Record{Kind: d.Kind, Channel: d.Channel, Status: status, Recipient: d.To}
		if d.AppointmentID != uuid.Nil {
			id := d.AppointmentID
			rec.AppointmentID = &id
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if histErr := n.history.Append(ctx, rec); histErr != nil {
			n.logger.Warn("notify: history write failed", "error", histErr, "kind", d.Kind, "channel", d.Channel)
		}
	}
	return status, err
}
