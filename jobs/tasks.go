package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWebhookNotify is the task type for delivering outward webhook
	// notifications.
	TaskTypeWebhookNotify = "notify:webhook"
)

// WebhookPayload is the wire shape of an outward notification.
type WebhookPayload struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewWebhookNotifyTask constructs an Asynq task. Delivery is at-most-once:
// a failed POST is logged, never retried.
func NewWebhookNotifyTask(payload WebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWebhookNotify, data, asynq.MaxRetry(0)), nil
}
