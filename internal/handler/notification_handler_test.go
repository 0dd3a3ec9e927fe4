package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
)

type fakeNotificationSrv struct {
	queuedFor string
	message   string
}

func (f *fakeNotificationSrv) Queue(_ context.Context, _ *models.Principal, studentID string, req models.QueueNotificationRequest) (*models.SmsNotification, error) {
	f.queuedFor = studentID
	f.message = req.Message
	return &models.SmsNotification{ID: "n-1", StudentID: studentID, Message: req.Message, Status: models.NotificationQueued}, nil
}

func (f *fakeNotificationSrv) List(_ context.Context, studentID string) ([]models.SmsNotification, error) {
	return []models.SmsNotification{{ID: "n-1", StudentID: studentID, Status: models.NotificationSent}}, nil
}

func TestNotificationHandlerQueueAccepted(t *testing.T) {
	notifications := &fakeNotificationSrv{}
	h := NewNotificationHandler(notifications)

	c, rec := newTestContext(http.MethodPost, "/students/s-1/notifications", map[string]string{"message": "Fees due"})
	c.Params = append(c.Params, ginParam("id", "s-1"))
	withPrincipal(c, "admin-1", models.RoleAdmin)
	h.Queue(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "s-1", notifications.queuedFor)
	assert.Equal(t, "Fees due", notifications.message)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "queued", data["status"])
}

func TestNotificationHandlerList(t *testing.T) {
	h := NewNotificationHandler(&fakeNotificationSrv{})

	c, rec := newTestContext(http.MethodGet, "/students/s-1/notifications", nil)
	c.Params = append(c.Params, ginParam("id", "s-1"))
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].([]interface{})
	assert.Len(t, data, 1)
}
