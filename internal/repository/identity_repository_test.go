package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var identityRowColumns = []string{"id", "username", "phone", "password_hash", "created_at", "updated_at", "last_sign_in_at"}

func TestFindIdentityByUsername(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(identityRowColumns).AddRow("u1", "ashar", nil, "hash", now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, phone, password_hash, created_at, updated_at, last_sign_in_at FROM identities WHERE username = $1 LIMIT 1")).
		WithArgs("ashar").
		WillReturnRows(rows)

	identity, err := repo.FindByUsername(context.Background(), "ashar")
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.ID)
	assert.Equal(t, "ashar", models.StringValue(identity.Username))
	assert.Nil(t, identity.Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindIdentityMissingReturnsErrNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery("FROM identities WHERE id = \\$1").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateIdentityDuplicateUsername(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO identities").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "identities_username_key"})

	username := "ashar"
	err := repo.Create(context.Background(), &models.Identity{Username: &username})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.Exists(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{UserID: "u1", Token: "token", ExpiresAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
