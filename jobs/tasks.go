// Package jobs runs Sabha's background work on Asynq: the security event
// export and the outgoing mail it produces.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
)

// Queue names. Weights are set in NewWorker.
const (
	QueueDefault = "default"
	QueueMail    = "mail"
)

// TaskTypeSendEmail delivers one SendEmailPayload through the Mailer.
const TaskTypeSendEmail = "mail:send"

// SendEmailPayload is a plain-text message.
type SendEmailPayload struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body"`
}

var payloadValidator = validator.New()

// Validate reports a malformed payload. Such tasks are never retried.
func (p SendEmailPayload) Validate() error {
	return payloadValidator.Struct(p)
}

// NewSendEmailTask validates payload and wraps it in a task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("jobs: send email: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Mailer delivers an email.
type Mailer interface {
	Send(ctx context.Context, payload SendEmailPayload) error
}

// LogMailer logs the envelope instead of delivering. Used when no mailer is
// configured.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs recipient, subject and body size. The body itself is not logged.
func (m LogMailer) Send(ctx context.Context, payload SendEmailPayload) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail not delivered, no mailer configured",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject),
		slog.Int("bytes", len(payload.Body)),
	)
	return nil
}

// SendEmailHandler decodes and validates the task before handing it to mailer.
// Undecodable or invalid payloads skip retry.
func SendEmailHandler(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		if err := payload.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		return mailer.Send(ctx, payload)
	}
}
