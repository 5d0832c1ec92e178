package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending notification emails.
	TaskTypeSendEmail = "mail:send"
	// TaskLowStockDigest scans stock for entities at or below their reorder point.
	TaskLowStockDigest = "inventory:low-stock-digest"
	// TaskDashboardWarmup refreshes the cached dashboard summary.
	TaskDashboardWarmup = "dashboard:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// EmailMaxRetry bounds delivery attempts for a single email.
	EmailMaxRetry = 3
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(EmailMaxRetry), asynq.Queue(QueueDefault)), nil
}

// ScheduledPayload carries scheduling metadata for cron-driven tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewScheduledTask builds a cron task of the given type.
func NewScheduledTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func decodeScheduled(t *asynq.Task) (ScheduledPayload, error) {
	var payload ScheduledPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
