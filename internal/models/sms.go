package models

import "time"

// NotificationStatus tracks an SMS through delivery.
type NotificationStatus string

const (
	NotificationQueued NotificationStatus = "queued"
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// SmsNotification is a message addressed to a student's contact.
type SmsNotification struct {
	ID          string             `db:"id" json:"id"`
	StudentID   string             `db:"student_id" json:"student_id"`
	PhoneNumber string             `db:"phone_number" json:"phone_number"`
	Message     string             `db:"message" json:"message"`
	Status      NotificationStatus `db:"status" json:"status"`
	SentAt      *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// QueueNotificationRequest queues a message to the student's guardian.
type QueueNotificationRequest struct {
	Message string `json:"message" validate:"required,max=1600"`
}
