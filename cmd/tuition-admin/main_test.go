package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/pkg/database"
)

type fakeMigrator struct {
	ups, downs int
	downErr    error
	history    []string
}

func (f *fakeMigrator) Up(context.Context) error { f.ups++; return nil }

func (f *fakeMigrator) Down(context.Context) error { f.downs++; return f.downErr }

func (f *fakeMigrator) Status(context.Context) ([]string, error) { return f.history, nil }

func TestRunMigrateDispatch(t *testing.T) {
	m := &fakeMigrator{history: []string{"0001_init.up.sql"}}
	var out bytes.Buffer

	require.NoError(t, runMigrate(context.Background(), m, []string{"up"}, &out))
	require.NoError(t, runMigrate(context.Background(), m, []string{"down"}, &out))
	require.NoError(t, runMigrate(context.Background(), m, []string{"status"}, &out))

	assert.Equal(t, 1, m.ups)
	assert.Equal(t, 1, m.downs)
	assert.Equal(t, "0001_init.up.sql\n", out.String())
}

func TestRunMigrateDownWithEmptyHistory(t *testing.T) {
	m := &fakeMigrator{downErr: database.ErrNoMigrationsApplied}
	var out bytes.Buffer

	require.NoError(t, runMigrate(context.Background(), m, []string{"down"}, &out))
	assert.Contains(t, out.String(), "nothing to roll back")
}

func TestRunMigrateRejectsUnknownAction(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runMigrate(context.Background(), &fakeMigrator{}, []string{"sideways"}, &out))
	assert.Error(t, runMigrate(context.Background(), &fakeMigrator{}, nil, &out))
}

func TestReadLine(t *testing.T) {
	password, err := readLine(strings.NewReader("s3cret-pass\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", password)

	_, err = readLine(strings.NewReader(""))
	assert.Error(t, err)
}
