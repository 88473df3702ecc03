// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/coinwatch-gateway/internal/models"
)

// Storage is the local journal of transactions submitted by this process and
// the notifications they produced. Contract state is never stored here.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping(ctx context.Context) error
	Migrate() error

	// Submission journal
	SaveSubmission(ctx context.Context, submission *models.WatchSubmission) error
	MarkSubmissionAccepted(ctx context.Context, id string, acceptedAt time.Time) error
	MarkSubmissionFailed(ctx context.Context, id string, reason string) error
	GetSubmission(ctx context.Context, id string) (*models.WatchSubmission, error)
	GetSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.WatchSubmission, error)

	// Notification history
	SaveNotification(ctx context.Context, notification *models.Notification) error
	GetNotifications(ctx context.Context, limit int) ([]*models.Notification, error)

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalSubmissions    int64      `json:"total_submissions"`
	AcceptedSubmissions int64      `json:"accepted_submissions"`
	PendingSubmissions  int64      `json:"pending_submissions"`
	FailedSubmissions   int64      `json:"failed_submissions"`
	TotalNotifications  int64      `json:"total_notifications"`
	LatestSubmission    *time.Time `json:"latest_submission,omitempty"`
	SchemaVersion       string     `json:"schema_version"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// DefaultListLimit caps journal listings when the filter sets no limit
const DefaultListLimit = 100
