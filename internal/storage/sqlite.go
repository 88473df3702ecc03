// File: internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// SQLiteStorage implements Storage using the pure Go SQLite driver
type SQLiteStorage struct {
	*journal
	config *StorageConfig
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		journal: &journal{
			bind:       questionMarks,
			logger:     utils.ComponentLogger("storage").WithField("driver", "sqlite"),
			migrations: GetSQLiteMigrations(),
		},
		config: config,
	}
}

// Connect opens the database file, creating its directory when needed
func (s *SQLiteStorage) Connect() error {
	path, params, _ := strings.Cut(s.config.ConnectionString, "?")
	inMemory := path == ":memory:" || strings.Contains(params, "mode=memory")

	if !inMemory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return utils.WrapError(utils.ErrCodeDatabase, "Failed to create database directory", err)
			}
		}
	}

	// round-trip time.Time through DATETIME columns
	dsn := s.config.ConnectionString
	if !strings.Contains(params, "_time_format") {
		if params == "" {
			dsn += "?_time_format=sqlite"
		} else {
			dsn += "&_time_format=sqlite"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to open SQLite database", err)
	}

	maxConns := s.config.MaxConnections
	if maxConns <= 0 || inMemory {
		// every connection to :memory: is a separate database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if !inMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to set busy timeout", err)
	}

	s.db = db
	s.logger.WithFields(logrus.Fields{"path": path}).Info("SQLite database connected")
	return nil
}
