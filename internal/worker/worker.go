// Package worker delivers queued notification emails.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatherly/backend/internal/emaillogs"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/email"
	"github.com/gatherly/backend/pkg/queue"
)

// EmailProcessor processes notification email jobs: record the attempt,
// deliver over SMTP, stamp the outcome.
type EmailProcessor struct {
	logs   *emaillogs.Repository
	mailer *email.Mailer
	queue  *queue.Queue
	logger *zap.Logger
}

// NewEmailProcessor creates a notification email processor.
func NewEmailProcessor(logs *emaillogs.Repository, mailer *email.Mailer, q *queue.Queue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{logs: logs, mailer: mailer, queue: q, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	el := &models.EmailLog{
		EventID:        payload.EventID,
		RegistrationID: payload.RegistrationID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
		Status:         models.EmailQueued,
	}
	if err := p.logs.Insert(ctx, el); err != nil {
		// Delivery matters more than the audit row.
		p.logger.Warn("email log insert failed", zap.Error(err))
	}

	if err := p.mailer.Send(payload.RecipientEmail, payload.Subject, payload.BodyHTML); err != nil {
		if el.ID != uuid.Nil {
			_ = p.logs.MarkFailed(ctx, el.ID, err.Error())
		}
		return fmt.Errorf("send: %w", err)
	}
	if el.ID != uuid.Nil {
		_ = p.logs.MarkSent(ctx, el.ID)
	}

	p.logger.Info("email delivered",
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", payload.RegistrationID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
