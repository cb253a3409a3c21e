package notifications

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homies-app/backend/internal/models"
)

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a log row and fills in its id and created_at.
func (r *Repository) Create(ctx context.Context, l *models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (event_id, helper_id, action, recipient_email, subject, status, sent_at, error_message)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''))
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, l.EventID, l.HelperID, l.Action, l.RecipientEmail, l.Subject, l.Status, l.SentAt, l.ErrorMessage).
		Scan(&l.ID, &l.CreatedAt)
}

// ListByEvent returns notification logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]*models.NotificationLog, error) {
	const q = `SELECT id, event_id, helper_id, action, recipient_email, subject, status, sent_at, error_message, created_at
		FROM notification_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.NotificationLog{}
	for rows.Next() {
		var l models.NotificationLog
		var recipient, subject, errMsg *string
		if err := rows.Scan(&l.ID, &l.EventID, &l.HelperID, &l.Action, &recipient, &subject, &l.Status, &l.SentAt, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		if recipient != nil {
			l.RecipientEmail = *recipient
		}
		if subject != nil {
			l.Subject = *subject
		}
		if errMsg != nil {
			l.ErrorMessage = *errMsg
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
