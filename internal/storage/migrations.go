package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// Migration represents a database migration
type Migration struct {
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
	Checksum    string    `db:"checksum"`
}

// checksum fingerprints the migration body
func (m *Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:8])
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create submissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS submissions (
					id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					contract TEXT NOT NULL,
					address TEXT NOT NULL,
					address_hex TEXT NOT NULL,
					tx_hash TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					error TEXT,
					created_at DATETIME NOT NULL,
					accepted_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_submissions_address ON submissions(address);
				CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
				CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					level TEXT NOT NULL,
					title TEXT NOT NULL,
					message TEXT NOT NULL,
					data TEXT NOT NULL DEFAULT '{}', -- JSON
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create submissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS submissions (
					id VARCHAR(64) PRIMARY KEY,
					kind VARCHAR(16) NOT NULL,
					contract VARCHAR(42) NOT NULL,
					address VARCHAR(64) NOT NULL,
					address_hex VARCHAR(68) NOT NULL,
					tx_hash VARCHAR(66) NOT NULL DEFAULT '',
					status VARCHAR(16) NOT NULL,
					error TEXT,
					created_at TIMESTAMPTZ NOT NULL,
					accepted_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_submissions_address ON submissions(address);
				CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
				CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id VARCHAR(64) PRIMARY KEY,
					level VARCHAR(16) NOT NULL,
					title TEXT NOT NULL,
					message TEXT NOT NULL,
					data JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
			`,
		},
	}
}

const createMigrationTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(16) PRIMARY KEY,
		description TEXT NOT NULL,
		checksum VARCHAR(32) NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)
`

// applyMigrations runs every migration whose version is not yet recorded in
// schema_migrations, each in its own transaction
func applyMigrations(ctx context.Context, db *sql.DB, bind func(string) string, migrations []*Migration, logger *logrus.Entry) error {
	if _, err := db.ExecContext(ctx, createMigrationTable); err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to create migration table", err)
	}

	applied := make(map[string]string)
	rows, err := db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to read applied migrations", err)
	}
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to scan migration", err)
		}
		applied[version] = checksum
	}
	rows.Close()

	for _, migration := range migrations {
		if checksum, ok := applied[migration.Version]; ok {
			if checksum != migration.checksum() {
				logger.WithField("version", migration.Version).Warn("Applied migration differs from current definition")
			}
			continue
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to begin migration", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			_ = tx.Rollback()
			return utils.WrapError(utils.ErrCodeDatabase, fmt.Sprintf("Migration %s failed", migration.Version), err)
		}
		if _, err := tx.ExecContext(ctx,
			bind("INSERT INTO schema_migrations (version, description, checksum, applied_at) VALUES (?, ?, ?, ?)"),
			migration.Version, migration.Description, migration.checksum(), time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return utils.WrapError(utils.ErrCodeDatabase, fmt.Sprintf("Failed to record migration %s", migration.Version), err)
		}
		if err := tx.Commit(); err != nil {
			return utils.WrapError(utils.ErrCodeDatabase, fmt.Sprintf("Failed to commit migration %s", migration.Version), err)
		}
	}

	return nil
}
