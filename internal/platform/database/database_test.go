package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteInMemory(t *testing.T) {
	db, err := New(context.Background(), DriverSQLite, "file::memory:")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())

	assert.NoError(t, EnableVector(context.Background(), db))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), "oracle", "x")
	assert.ErrorContains(t, err, "unsupported database driver")
}
