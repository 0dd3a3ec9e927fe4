package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
)

func TestSMSCreateForcesQueued(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSMSRepository(db)

	mock.ExpectExec("INSERT INTO sms_notifications").WillReturnResult(sqlmock.NewResult(1, 1))

	sentAt := time.Now()
	n := &models.SmsNotification{StudentID: "s1", PhoneNumber: "+919876543210", Message: "hi", Status: models.NotificationSent, SentAt: &sentAt}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.Equal(t, models.NotificationQueued, n.Status)
	assert.Nil(t, n.SentAt)
	assert.NotEmpty(t, n.ID)
}

func TestSMSResolveQueuedForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSMSRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sms_notifications SET status = $2, sent_at = $3 WHERE student_id = $1 AND status = 'queued'")).
		WithArgs("s1", models.NotificationFailed, nil).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ResolveQueuedForStudent(context.Background(), "s1", models.NotificationFailed, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSMSResolveSkipsTerminalRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSMSRepository(db)

	mock.ExpectExec("UPDATE sms_notifications SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Resolve(context.Background(), "n1", models.NotificationSent, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
