package database

import (
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/driver/sqlite"
)

func newSQLite(config models.DatabaseConfig) (*DB, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for SQLite")
	}

	return open(sqlite.Open(config.FilePath), config)
}
