package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

var telnyxTracer = otel.Tracer("clinic-scheduler/notify/telnyx")

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	from               string
	endpoint           string
	httpClient         *http.Client
	backoff            func(attempt int) time.Duration
	logger             *logging.Logger
}

func NewTelnyxSender(apiKey, messagingProfileID, from string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		from:               from,
		endpoint:           "https://api.telnyx.com/v2/messages",
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		backoff:            jitterBackoff,
		logger:             logger,
	}
}

func (s *TelnyxSender) SendSMS(ctx context.Context, msg SMSMessage) error {
	if s.apiKey == "" {
		return errors.New("notify: telnyx api key missing")
	}
	if msg.To == "" || strings.TrimSpace(msg.Body) == "" {
		return errors.New("notify: telnyx to and body required")
	}

	ctx, span := telnyxTracer.Start(ctx, "notify.telnyx.send")
	defer span.End()
	span.SetAttributes(attribute.String("sms.to", msg.To))

	payload := map[string]any{"from": s.from, "to": msg.To, "text": msg.Body}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Debug("notify: telnyx sms sent", "to", msg.To)
				return nil
			}
			lastErr = fmt.Errorf("notify: telnyx send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}
		if attempt < 3 {
			time.Sleep(s.backoff(attempt))
		}
	}

	span.RecordError(lastErr)
	return lastErr
}
