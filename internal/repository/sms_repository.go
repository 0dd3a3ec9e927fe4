package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const notificationColumns = `id, student_id, phone_number, message, status, sent_at, created_at`

// SMSRepository persists SMS notifications.
type SMSRepository struct {
	db *sqlx.DB
}

// NewSMSRepository creates a new instance of SMSRepository.
func NewSMSRepository(db *sqlx.DB) *SMSRepository {
	return &SMSRepository{db: db}
}

// Create inserts a notification in the queued state.
func (r *SMSRepository) Create(ctx context.Context, n *models.SmsNotification) error {
	n.ID = newID(n.ID)
	n.Status = models.NotificationQueued
	n.SentAt = nil
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sms_notifications (id, student_id, phone_number, message, status, sent_at, created_at) VALUES (:id, :student_id, :phone_number, :message, :status, :sent_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create sms notification: %w", err)
	}
	return nil
}

// FindByID returns a notification.
func (r *SMSRepository) FindByID(ctx context.Context, id string) (*models.SmsNotification, error) {
	query := fmt.Sprintf(`SELECT %s FROM sms_notifications WHERE id = $1`, notificationColumns)
	var n models.SmsNotification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find sms notification: %w", err)
	}
	return &n, nil
}

// ListByStudent returns a student's notifications, newest first.
func (r *SMSRepository) ListByStudent(ctx context.Context, studentID string) ([]models.SmsNotification, error) {
	query := fmt.Sprintf(`SELECT %s FROM sms_notifications WHERE student_id = $1 ORDER BY created_at DESC`, notificationColumns)
	out := make([]models.SmsNotification, 0)
	if err := r.db.SelectContext(ctx, &out, query, studentID); err != nil {
		return nil, fmt.Errorf("list sms notifications: %w", err)
	}
	return out, nil
}

// ResolveQueuedForStudent moves every queued notification of a student to a terminal status.
func (r *SMSRepository) ResolveQueuedForStudent(ctx context.Context, studentID string, status models.NotificationStatus, sentAt *time.Time) (int64, error) {
	const query = `UPDATE sms_notifications SET status = $2, sent_at = $3 WHERE student_id = $1 AND status = 'queued'`
	res, err := r.db.ExecContext(ctx, query, studentID, status, sentAt)
	if err != nil {
		return 0, fmt.Errorf("resolve queued notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolve queued notifications: %w", err)
	}
	return n, nil
}

// Resolve moves one queued notification to a terminal status. It reports false
// when the notification was no longer queued.
func (r *SMSRepository) Resolve(ctx context.Context, id string, status models.NotificationStatus, sentAt *time.Time) (bool, error) {
	const query = `UPDATE sms_notifications SET status = $2, sent_at = $3 WHERE id = $1 AND status = 'queued'`
	res, err := r.db.ExecContext(ctx, query, id, status, sentAt)
	if err != nil {
		return false, fmt.Errorf("resolve notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve notification: %w", err)
	}
	return n > 0, nil
}
