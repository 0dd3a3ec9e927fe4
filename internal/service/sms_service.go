package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/jobs"
	"github.com/noah-isme/tuition-api/pkg/sms"
)

// SMSDispatchJob is the job type consumed by HandleDispatch.
const SMSDispatchJob = "sms.dispatch"

type notificationRepository interface {
	Create(ctx context.Context, n *models.SmsNotification) error
	FindByID(ctx context.Context, id string) (*models.SmsNotification, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.SmsNotification, error)
	ResolveQueuedForStudent(ctx context.Context, studentID string, status models.NotificationStatus, sentAt *time.Time) (int64, error)
	Resolve(ctx context.Context, id string, status models.NotificationStatus, sentAt *time.Time) (bool, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// SMSService delivers text messages through the configured carrier and keeps
// the notification log in step with the outcome. Deliveries are attempted once.
type SMSService struct {
	notifications notificationRepository
	students      studentLookup
	sender        sms.Sender
	queue         jobEnqueuer
	audit         auditRecorder
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewSMSService constructs the SMS service.
func NewSMSService(notifications notificationRepository, students studentLookup, sender sms.Sender, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SMSService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSService{
		notifications: notifications,
		students:      students,
		sender:        sender,
		audit:         audit,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AttachQueue wires the dispatch queue. The queue's handler is HandleDispatch,
// so it is created after the service.
func (s *SMSService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Send delivers a message immediately. When StudentID is set, that student's
// queued notifications are resolved to the delivery outcome.
func (s *SMSService) Send(ctx context.Context, caller *models.Principal, req models.SendSMSRequest, meta models.RequestMeta) (*models.SendSMSResult, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only")
	}
	if strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "phoneNumber and message are required")
	}
	phone, err := sms.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid phoneNumber")
	}

	studentID := ""
	if req.StudentID != nil {
		studentID = strings.TrimSpace(*req.StudentID)
	}
	log := s.logger.With(zap.String("actor_user_id", caller.UserID), zap.String("student_id", studentID))

	receipt, sendErr := s.sender.Send(ctx, sms.Message{To: phone, Body: req.Message})
	if sendErr != nil {
		s.metrics.RecordSMSDelivery("direct", string(models.NotificationFailed))
		log.Warn("sms delivery failed", zap.Error(sendErr))
		s.resolveStudent(ctx, log, studentID, models.NotificationFailed, nil)
		return nil, carrierError(sendErr, "failed to send SMS")
	}

	s.metrics.RecordSMSDelivery("direct", string(models.NotificationSent))
	sentAt := s.now()
	s.resolveStudent(ctx, log, studentID, models.NotificationSent, &sentAt)

	if s.audit != nil {
		resourceID := receipt.SID
		if err := s.audit.Create(ctx, &models.AuditLog{
			UserID:     &caller.UserID,
			Action:     models.AuditActionSMSSend,
			Resource:   "sms",
			ResourceID: &resourceID,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		}); err != nil {
			log.Warn("failed to record sms audit log", zap.Error(err))
		}
	}
	return &models.SendSMSResult{Success: true, MessageSid: receipt.SID}, nil
}

func (s *SMSService) resolveStudent(ctx context.Context, log *zap.Logger, studentID string, status models.NotificationStatus, sentAt *time.Time) {
	if studentID == "" {
		return
	}
	n, err := s.notifications.ResolveQueuedForStudent(ctx, studentID, status, sentAt)
	if err != nil {
		log.Warn("failed to update notification log", zap.String("status", string(status)), zap.Error(err))
		return
	}
	log.Debug("notification log updated", zap.String("status", string(status)), zap.Int64("rows", n))
}

// Queue records a notification to the student's guardian and schedules delivery.
func (s *SMSService) Queue(ctx context.Context, caller *models.Principal, studentID string, req models.QueueNotificationRequest) (*models.SmsNotification, error) {
	if !caller.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	notification := &models.SmsNotification{
		StudentID:   student.ID,
		PhoneNumber: student.GuardianNumber,
		Message:     req.Message,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue notification")
	}

	if s.queue == nil {
		return notification, nil
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: notification.ID, Type: SMSDispatchJob, Payload: notification.ID}); err != nil {
		s.logger.Warn("sms dispatch queue rejected job", zap.String("notification_id", notification.ID), zap.Error(err))
		if _, resolveErr := s.notifications.Resolve(ctx, notification.ID, models.NotificationFailed, nil); resolveErr != nil {
			s.logger.Warn("failed to mark notification failed", zap.Error(resolveErr))
		}
		notification.Status = models.NotificationFailed
	}
	return notification, nil
}

// HandleDispatch delivers one queued notification. Delivery failures are
// recorded on the notification rather than returned, so the job is never retried.
func (s *SMSService) HandleDispatch(ctx context.Context, job jobs.Job) error {
	id, _ := job.Payload.(string)
	if id == "" {
		id = job.ID
	}
	notification, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("queued notification vanished", zap.String("notification_id", id))
			return nil
		}
		return err
	}
	if notification.Status != models.NotificationQueued {
		return nil
	}

	status := models.NotificationSent
	var sentAt *time.Time
	to, err := sms.NormalizePhone(notification.PhoneNumber)
	if err == nil {
		_, err = s.sender.Send(ctx, sms.Message{To: to, Body: notification.Message})
	}
	if err != nil {
		status = models.NotificationFailed
		s.logger.Warn("queued sms delivery failed", zap.String("notification_id", id), zap.Error(err))
	} else {
		now := s.now()
		sentAt = &now
	}
	s.metrics.RecordSMSDelivery("queued", string(status))

	if _, err := s.notifications.Resolve(ctx, id, status, sentAt); err != nil {
		s.logger.Warn("failed to resolve notification", zap.String("notification_id", id), zap.Error(err))
	}
	return nil
}

// List returns a student's notification log.
func (s *SMSService) List(ctx context.Context, studentID string) ([]models.SmsNotification, error) {
	items, err := s.notifications.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, nil
}
