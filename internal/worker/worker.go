package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homies-app/backend/internal/auth"
	"github.com/homies-app/backend/internal/events"
	"github.com/homies-app/backend/internal/metrics"
	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/internal/notifications"
	"github.com/homies-app/backend/pkg/queue"
)

// EventLookup resolves event details.
type EventLookup interface {
	GetEventDetails(ctx context.Context, id int64) (*models.EventDetails, error)
}

// UserLookup resolves accounts by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Sender delivers e-mail.
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// LogWriter records notification attempts.
type LogWriter interface {
	Create(ctx context.Context, l *models.NotificationLog) error
}

// JobSource is the queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context, name string, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ParticipationProcessor e-mails organisers when helpers join or leave their
// events and records each attempt.
type ParticipationProcessor struct {
	events      EventLookup
	users       UserLookup
	mailer      Sender
	logs        LogWriter
	queue       JobSource
	pollTimeout time.Duration
	backoff     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Config wires a ParticipationProcessor.
type Config struct {
	Events      EventLookup
	Users       UserLookup
	Mailer      Sender
	Logs        LogWriter
	Queue       JobSource
	PollTimeout time.Duration
	Logger      *zap.Logger
}

// NewParticipationProcessor creates a participation notification processor.
func NewParticipationProcessor(cfg Config) *ParticipationProcessor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &ParticipationProcessor{
		events:      cfg.Events,
		users:       cfg.Users,
		mailer:      cfg.Mailer,
		logs:        cfg.Logs,
		queue:       cfg.Queue,
		pollTimeout: cfg.PollTimeout,
		backoff:     queue.RetryBackoff,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Process handles one participation job. A returned error means the job
// should be retried.
func (p *ParticipationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeParticipation {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ParticipationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	event, err := p.events.GetEventDetails(ctx, payload.EventID)
	if errors.Is(err, events.ErrEventNotFound) {
		p.logger.Info("event gone, dropping notification", zap.Int64("event_id", payload.EventID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event %d: %w", payload.EventID, err)
	}
	if payload.UserID == event.OrganiserID {
		return nil
	}

	entry := &models.NotificationLog{
		EventID:  payload.EventID,
		HelperID: payload.UserID,
		Action:   payload.Action,
	}

	organiser, err := p.lookupUser(ctx, event.OrganiserID)
	if err != nil {
		return err
	}
	if organiser == nil {
		return p.record(ctx, entry, models.NotificationStatusSkipped, "organiser has no account")
	}
	entry.RecipientEmail = organiser.Email

	if !p.mailer.Enabled() {
		return p.record(ctx, entry, models.NotificationStatusSkipped, "mailer disabled")
	}

	helperName := payload.UserID
	if helper, err := p.lookupUser(ctx, payload.UserID); err == nil && helper != nil {
		helperName = helper.DisplayName()
	}
	subject, html, err := notifications.ParticipationMessage{
		Organiser: organiser.DisplayName(),
		Helper:    helperName,
		Event:     event,
		Action:    payload.Action,
	}.Render()
	if err != nil {
		return err
	}
	entry.Subject = subject

	if _, err := p.mailer.Send(ctx, organiser.Email, subject, html); err != nil {
		if logErr := p.record(ctx, entry, models.NotificationStatusFailed, err.Error()); logErr != nil {
			p.logger.Error("write notification log", zap.Error(logErr))
		}
		return err
	}
	sentAt := p.now().UTC()
	entry.SentAt = &sentAt
	return p.record(ctx, entry, models.NotificationStatusSent, "")
}

// lookupUser returns nil without error when id is not a known account.
func (p *ParticipationProcessor) lookupUser(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	u, err := p.users.GetByID(ctx, uid)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

func (p *ParticipationProcessor) record(ctx context.Context, entry *models.NotificationLog, status, reason string) error {
	entry.Status = status
	entry.ErrorMessage = reason
	metrics.Notifications.WithLabelValues(status).Inc()
	if err := p.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("write notification log: %w", err)
	}
	p.logger.Info("participation notification",
		zap.Int64("event_id", entry.EventID),
		zap.String("action", entry.Action),
		zap.String("status", status))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *ParticipationProcessor) Run(ctx context.Context) {
	p.logger.Info("participation worker started", zap.String("queue", queue.QueueParticipation))
	for {
		if ctx.Err() != nil {
			p.logger.Info("participation worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, queue.QueueParticipation, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ParticipationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
