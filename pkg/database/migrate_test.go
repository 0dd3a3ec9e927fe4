package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockMigrator(t *testing.T, files fstest.MapFS) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMigratorFS(sqlx.NewDb(db, "sqlmock"), files, nil), mock
}

func TestSplitStatementsIgnoresSemicolonsInLiterals(t *testing.T) {
	stmts := splitStatements("INSERT INTO t VALUES ('a;b');\nSELECT 1;\n  ")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "'a;b'")
	assert.Contains(t, stmts[1], "SELECT 1")
}

func TestMigratorUpAppliesPendingOnly(t *testing.T) {
	files := fstest.MapFS{
		"0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
		"0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"0002_more.down.sql": {Data: []byte("DROP TABLE b;")},
	}
	m, mock := newMockMigrator(t, files)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0002_more.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorDownWithoutHistory(t *testing.T) {
	m, mock := newMockMigrator(t, fstest.MapFS{})

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err := m.Down(context.Background())
	assert.ErrorIs(t, err, ErrNoMigrationsApplied)
}

func TestMigratorDownRollsBackLatest(t *testing.T) {
	files := fstest.MapFS{
		"0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
	}
	m, mock := newMockMigrator(t, files)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("DELETE FROM schema_migrations").WithArgs("0001_init.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.Down(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrationsDeclareFeeUniqueness(t *testing.T) {
	body, err := embeddedMigrations.ReadFile("migrations/0001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNIQUE (student_id, month, year)")
	assert.Contains(t, string(body), "UNIQUE (user_id, role)")
}
