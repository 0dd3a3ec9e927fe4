package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
)

func TestRolesFor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("student").AddRow("admin"))

	roles, err := repo.RolesFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, roles.Has(models.RoleAdmin))
	assert.True(t, roles.Has(models.RoleStudent))
}

func TestRolesForRejectsUnknownRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	mock.ExpectQuery("SELECT role FROM user_roles").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("superuser"))

	_, err := repo.RolesFor(context.Background(), "u1")
	assert.Error(t, err)
}

func TestGrantIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	query := regexp.QuoteMeta("INSERT INTO user_roles (id, user_id, role, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, role) DO NOTHING")
	mock.ExpectExec(query).WithArgs(sqlmock.AnyArg(), "u2", "admin", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(query).WithArgs(sqlmock.AnyArg(), "u2", "admin", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Grant(context.Background(), "u2", models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Grant(context.Background(), "u2", models.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
