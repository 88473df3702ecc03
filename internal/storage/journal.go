package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// journal holds the SQL shared by the SQLite and PostgreSQL stores. Queries
// are written with ? placeholders and passed through bind.
type journal struct {
	db         *sql.DB
	bind       func(string) string
	logger     *logrus.Entry
	migrations []*Migration
}

func questionMarks(query string) string { return query }

// dollarPlaceholders rewrites ? placeholders as $1, $2, ... A ? inside a
// single-quoted literal is left alone. Double-quoted identifiers and
// dollar-quoted bodies are not recognised, so queries must not use them.
func dollarPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			// '' inside a literal toggles twice and stays quoted
			quoted = !quoted
		case r == '?' && !quoted:
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j *journal) conn() (*sql.DB, error) {
	if j.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return j.db, nil
}

// Close closes the database connection
func (j *journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	j.logger.Info("Database connection closed")
	return err
}

// Ping checks database connectivity
func (j *journal) Ping(ctx context.Context) error {
	db, err := j.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Database ping failed", err)
	}
	return nil
}

// Migrate runs pending database migrations
func (j *journal) Migrate() error {
	db, err := j.conn()
	if err != nil {
		return err
	}

	j.logger.Info("Starting database migrations")
	if err := applyMigrations(context.Background(), db, j.bind, j.migrations, j.logger); err != nil {
		return err
	}
	j.logger.Info("Database migrations completed")
	return nil
}

// SaveSubmission inserts a journal row
func (j *journal) SaveSubmission(ctx context.Context, s *models.WatchSubmission) error {
	db, err := j.conn()
	if err != nil {
		return err
	}

	query := j.bind(`
		INSERT INTO submissions
		(id, kind, contract, address, address_hex, tx_hash, status, error, created_at, accepted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = db.ExecContext(ctx, query,
		s.ID, string(s.Kind), s.Contract, s.Address, s.AddressHex, s.TxHash,
		s.Status, nullString(s.Error), s.CreatedAt.UTC(), nullTime(s.AcceptedAt))
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to save submission", err)
	}

	j.logger.WithFields(logrus.Fields{
		"id":      s.ID,
		"kind":    s.Kind,
		"tx_hash": s.TxHash,
	}).Debug("Submission saved")
	return nil
}

// MarkSubmissionAccepted moves a submission to the accepted status
func (j *journal) MarkSubmissionAccepted(ctx context.Context, id string, acceptedAt time.Time) error {
	return j.updateStatus(ctx, id,
		"UPDATE submissions SET status = ?, accepted_at = ? WHERE id = ?",
		models.SubmissionStatusAccepted, acceptedAt.UTC(), id)
}

// MarkSubmissionFailed records why a submission did not go through
func (j *journal) MarkSubmissionFailed(ctx context.Context, id string, reason string) error {
	return j.updateStatus(ctx, id,
		"UPDATE submissions SET status = ?, error = ? WHERE id = ?",
		models.SubmissionStatusFailed, reason, id)
}

func (j *journal) updateStatus(ctx context.Context, id, query string, args ...any) error {
	db, err := j.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, j.bind(query), args...)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to update submission", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to update submission", err)
	}
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Submission not found", id)
	}
	return nil
}

const submissionColumns = `id, kind, contract, address, address_hex, tx_hash, status, error, created_at, accepted_at`

// GetSubmission returns one submission by id
func (j *journal) GetSubmission(ctx context.Context, id string) (*models.WatchSubmission, error) {
	db, err := j.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, j.bind("SELECT "+submissionColumns+" FROM submissions WHERE id = ?"), id)
	submission, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Submission not found", id)
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get submission", err)
	}
	return submission, nil
}

// GetSubmissions lists submissions, newest first
func (j *journal) GetSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.WatchSubmission, error) {
	db, err := j.conn()
	if err != nil {
		return nil, err
	}

	query := "SELECT " + submissionColumns + " FROM submissions WHERE 1=1"
	var args []any

	if filter.Kind != nil {
		query += " AND kind = ?"
		args = append(args, string(*filter.Kind))
	}
	if filter.Address != nil {
		query += " AND address = ?"
		args = append(args, *filter.Address)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := db.QueryContext(ctx, j.bind(query), args...)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to query submissions", err)
	}
	defer rows.Close()

	var submissions []*models.WatchSubmission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to scan submission", err)
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to iterate submissions", err)
	}

	return submissions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*models.WatchSubmission, error) {
	var (
		s          models.WatchSubmission
		kind       string
		errMsg     sql.NullString
		acceptedAt sql.NullTime
	)

	err := row.Scan(&s.ID, &kind, &s.Contract, &s.Address, &s.AddressHex, &s.TxHash,
		&s.Status, &errMsg, &s.CreatedAt, &acceptedAt)
	if err != nil {
		return nil, err
	}

	s.Kind = models.SubmissionKind(kind)
	if errMsg.Valid {
		s.Error = &errMsg.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		s.AcceptedAt = &t
	}
	return &s, nil
}

// SaveNotification stores a notification
func (j *journal) SaveNotification(ctx context.Context, n *models.Notification) error {
	db, err := j.conn()
	if err != nil {
		return err
	}

	data := n.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to marshal notification data", err)
	}

	_, err = db.ExecContext(ctx, j.bind(`
		INSERT INTO notifications (id, level, title, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), n.ID, string(n.Level), n.Title, n.Message, string(dataJSON), n.CreatedAt.UTC())
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to save notification", err)
	}
	return nil
}

// GetNotifications returns the most recent notifications
func (j *journal) GetNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	db, err := j.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := db.QueryContext(ctx, j.bind(`
		SELECT id, level, title, message, data, created_at
		FROM notifications ORDER BY created_at DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to query notifications", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var (
			n        models.Notification
			level    string
			dataJSON string
		)
		if err := rows.Scan(&n.ID, &level, &n.Title, &n.Message, &dataJSON, &n.CreatedAt); err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to scan notification", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &n.Data); err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to unmarshal notification data", err)
		}
		n.Level = models.NotificationLevel(level)
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to iterate notifications", err)
	}

	return notifications, nil
}

// GetStorageStats returns journal statistics
func (j *journal) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	db, err := j.conn()
	if err != nil {
		return nil, err
	}

	stats := &StorageStats{}
	counts := []struct {
		query string
		args  []any
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM submissions", nil, &stats.TotalSubmissions},
		{"SELECT COUNT(*) FROM submissions WHERE status = ?", []any{models.SubmissionStatusAccepted}, &stats.AcceptedSubmissions},
		{"SELECT COUNT(*) FROM submissions WHERE status = ?", []any{models.SubmissionStatusSubmitted}, &stats.PendingSubmissions},
		{"SELECT COUNT(*) FROM submissions WHERE status = ?", []any{models.SubmissionStatusFailed}, &stats.FailedSubmissions},
		{"SELECT COUNT(*) FROM notifications", nil, &stats.TotalNotifications},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, j.bind(c.query), c.args...).Scan(c.dest); err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get storage stats", err)
		}
	}

	var latest sql.NullTime
	row := db.QueryRowContext(ctx, "SELECT created_at FROM submissions ORDER BY created_at DESC LIMIT 1")
	if err := row.Scan(&latest); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get latest submission", err)
	}
	if latest.Valid {
		t := latest.Time
		stats.LatestSubmission = &t
	}

	var version sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get schema version", err)
	}
	stats.SchemaVersion = version.String

	return stats, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
