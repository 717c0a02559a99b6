package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/promanage/promanage/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePrunePasswordResets removes expired password-reset rows.
	TaskTypePrunePasswordResets = "auth:prune_password_resets"
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
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewPrunePasswordResetsTask constructs the maintenance task the scheduler
// enqueues on its cron spec.
func NewPrunePasswordResetsTask() *asynq.Task {
	return asynq.NewTask(TaskTypePrunePasswordResets, nil)
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("send_email")
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		// Placeholder: integrate with SMTP/Mailpit in phase 2.
		logger.Info("send email",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject))
		return tracker.End(nil)
	}
}

// PasswordResetPruner deletes expired password-reset rows.
type PasswordResetPruner interface {
	DeleteExpiredPasswordResets(ctx context.Context) (int64, error)
}

// HandlePrunePasswordResetsTask processes TaskTypePrunePasswordResets tasks.
func HandlePrunePasswordResetsTask(pruner PasswordResetPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("prune_password_resets")
		deleted, err := pruner.DeleteExpiredPasswordResets(ctx)
		if err != nil {
			return tracker.End(fmt.Errorf("prune password resets: %w", err))
		}
		if deleted > 0 {
			logger.Info("pruned expired password resets", slog.Int64("deleted", deleted))
		}
		return tracker.End(nil)
	}
}
