package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type notificationService interface {
	Queue(ctx context.Context, caller *models.Principal, studentID string, req models.QueueNotificationRequest) (*models.SmsNotification, error)
	List(ctx context.Context, studentID string) ([]models.SmsNotification, error)
}

// NotificationHandler exposes the per-student SMS log.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Queue godoc
// @Summary Queue an SMS to the guardian
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body models.QueueNotificationRequest true "Message"
// @Success 202 {object} response.Envelope
// @Router /students/{id}/notifications [post]
func (h *NotificationHandler) Queue(c *gin.Context) {
	var req models.QueueNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid notification payload"))
		return
	}
	notification, err := h.notifications.Queue(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, notification, nil)
}

// List godoc
// @Summary List a student's notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.notifications.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
