package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

// WebhookDeliverer POSTs outward notifications to the configured endpoint.
type WebhookDeliverer struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookDeliverer constructs a deliverer. An empty endpoint is valid and
// turns every delivery into a logged no-op.
func NewWebhookDeliverer(endpoint string, logger *slog.Logger) *WebhookDeliverer {
	return &WebhookDeliverer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handle processes TaskTypeWebhookNotify tasks.
func (d *WebhookDeliverer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload WebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := d.Deliver(ctx, payload); err != nil {
		// At-most-once: record the failure and swallow it.
		if d.logger != nil {
			d.logger.Warn("webhook delivery failed",
				slog.String("event", payload.Event),
				slog.String("endpoint", d.endpoint),
				slog.Any("error", err))
		}
	}
	return nil
}

// Deliver sends one notification. Each attempt is recorded so operators can
// audit outbound traffic.
func (d *WebhookDeliverer) Deliver(ctx context.Context, payload WebhookPayload) error {
	if d.endpoint == "" {
		if d.logger != nil {
			d.logger.Debug("webhook endpoint not configured, dropping notification", slog.String("event", payload.Event))
		}
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	if d.logger != nil {
		d.logger.Info("webhook delivered",
			slog.String("event", payload.Event),
			slog.Int("status", resp.StatusCode))
	}
	return nil
}
