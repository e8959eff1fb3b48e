package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/memberline/memberline/internal/provision"
)

// Client submits notification jobs to the queue. It implements the
// provisioning orchestrator's Notifier port.
type Client struct {
	client  *asynq.Client
	enabled bool
	logger  *slog.Logger
}

// NewClient constructs an Asynq-backed client. enabled should be false when
// no webhook endpoint is configured; enqueueing is then skipped entirely.
func NewClient(redisOpts asynq.RedisClientOpt, enabled bool, logger *slog.Logger) *Client {
	return &Client{client: asynq.NewClient(redisOpts), enabled: enabled, logger: logger}
}

// MemberCreated enqueues the outward member.created notification.
func (c *Client) MemberCreated(ctx context.Context, event provision.MemberCreatedEvent) error {
	if !c.enabled {
		if c.logger != nil {
			c.logger.Debug("webhook notifications disabled, skipping member.created",
				slog.String("identity_id", event.IdentityID.String()))
		}
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task, err := NewWebhookNotifyTask(WebhookPayload{
		Event:     "member.created",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ provision.Notifier = (*Client)(nil)
