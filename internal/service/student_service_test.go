package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

var studentAdmin = &models.Principal{UserID: "admin", Roles: models.NewRoleSet(models.RoleAdmin)}

func newStudentFixture(t *testing.T, cache *CacheService) (*memDB, *StudentService) {
	t.Helper()
	db := newMemDB()
	svc := NewStudentService(memStudents{db}, memIdentities{db}, memAudit{db}, cache, time.Minute, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC) }
	return db, svc
}

func boolPtr(v bool) *bool { return &v }

func TestStudentServiceUpdateKeepsActiveAndLeftDateInStep(t *testing.T) {
	db, svc := newStudentFixture(t, nil)
	student := db.addStudent(activeStudent("Asha Rao", 1500))
	ctx := context.Background()

	updated, err := svc.Update(ctx, studentAdmin, student.ID, models.UpdateStudentRequest{IsActive: boolPtr(false)}, models.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	require.NotNil(t, updated.LeftDate)
	assert.Equal(t, 2024, updated.LeftDate.Year())

	updated, err = svc.Update(ctx, studentAdmin, student.ID, models.UpdateStudentRequest{IsActive: boolPtr(true)}, models.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Nil(t, updated.LeftDate)
	assert.Equal(t, []string{models.AuditActionStudentUpdate, models.AuditActionStudentUpdate}, db.auditActions())
}

func TestStudentServiceUpdateRefusesReactivatingDeletedAccount(t *testing.T) {
	db, svc := newStudentFixture(t, nil)
	student := db.addStudent(activeStudent("Asha Rao", 1500))
	ctx := context.Background()

	_, err := svc.Update(ctx, studentAdmin, student.ID, models.UpdateStudentRequest{IsActive: boolPtr(false)}, models.RequestMeta{})
	require.NoError(t, err)
	delete(db.identities, student.UserID)

	_, err = svc.Update(ctx, studentAdmin, student.ID, models.UpdateStudentRequest{IsActive: boolPtr(true)}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.False(t, db.students[student.ID].IsActive)
	assert.NotNil(t, db.students[student.ID].LeftDate)

	stats, _, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveStudents)
	assert.Equal(t, 0.0, stats.MonthlyRevenue)
}

func TestStudentServiceUpdateFields(t *testing.T) {
	db, svc := newStudentFixture(t, nil)
	student := db.addStudent(activeStudent("Asha Rao", 1500))
	fees := 1750.0
	dob := "2011-02-03"
	class := "Grade 9"

	updated, err := svc.Update(context.Background(), studentAdmin, student.ID, models.UpdateStudentRequest{MonthlyFees: &fees, DateOfBirth: &dob, ClassLevel: &class}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1750.0, updated.MonthlyFees)
	assert.Equal(t, "Grade 9", updated.ClassLevel)
	assert.Equal(t, time.Date(2011, time.February, 3, 0, 0, 0, 0, time.UTC), updated.DateOfBirth)
	assert.Equal(t, "Asha Rao", db.students[student.ID].FullName)
}

func TestStudentServiceUpdateGuards(t *testing.T) {
	db, svc := newStudentFixture(t, nil)
	student := db.addStudent(activeStudent("Asha Rao", 1500))
	ctx := context.Background()

	_, err := svc.Update(ctx, &models.Principal{UserID: student.UserID, Roles: models.NewRoleSet(models.RoleStudent)}, student.ID, models.UpdateStudentRequest{}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	bad := "12"
	_, err = svc.Update(ctx, studentAdmin, student.ID, models.UpdateStudentRequest{GuardianNumber: &bad}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Update(ctx, studentAdmin, "missing", models.UpdateStudentRequest{}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceListAndLookup(t *testing.T) {
	db, svc := newStudentFixture(t, nil)
	student := db.addStudent(activeStudent("Asha Rao", 1500))
	db.addStudent(activeStudent("Bindu K", 1200))

	items, pagination, err := svc.List(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 2}, pagination)

	own, err := svc.GetByUser(context.Background(), &models.Principal{UserID: student.UserID})
	require.NoError(t, err)
	assert.Equal(t, student.ID, own.ID)

	_, err = svc.GetByUser(context.Background(), &models.Principal{UserID: "nobody"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceStatsCachedUntilUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCacheService(repository.NewCacheRepository(client, nil), NewMetricsService(), time.Minute, nil, true)

	db, svc := newStudentFixture(t, cache)
	student := db.addStudent(activeStudent("Asha Rao", 1500))
	db.addStudent(activeStudent("Bindu K", 1200))
	ctx := context.Background()

	stats, hit, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, &models.StudentStats{TotalStudents: 2, ActiveStudents: 2, MonthlyRevenue: 2700}, stats)

	_, hit, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, db.statsCalls)

	_, err = svc.Update(ctx, studentAdmin, student.ID, models.UpdateStudentRequest{IsActive: boolPtr(false)}, models.RequestMeta{})
	require.NoError(t, err)

	stats, hit, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, db.statsCalls)
	assert.Equal(t, 1, stats.ActiveStudents)
	assert.Equal(t, 1200.0, stats.MonthlyRevenue)
}
