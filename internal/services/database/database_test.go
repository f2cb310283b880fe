package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/streamvault/internal/models"
)

func TestNewSQLiteReportsDialectName(t *testing.T) {
	db, err := New(models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: "file:database_test?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	defer db.Close()

	// The reported name matches the gorm dialect, the string the
	// row-lock helpers branch on.
	assert.Equal(t, "sqlite", db.DriverName())
	assert.Equal(t, db.DB.Dialector.Name(), db.DriverName())
	assert.NoError(t, db.Ping())
}

func TestNewSQLiteRequiresFilePath(t *testing.T) {
	_, err := New(models.DatabaseConfig{Type: models.SQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_path")
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(models.DatabaseConfig{Type: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}
