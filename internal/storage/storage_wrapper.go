package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metrics *metrics.PrometheusMetrics
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage: storage,
		metrics: metricsManager.GetPrometheusMetrics(),
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// SaveSubmission saves a submission and records metrics
func (s *StorageWithMetrics) SaveSubmission(ctx context.Context, submission *models.WatchSubmission) error {
	start := time.Now()
	err := s.Storage.SaveSubmission(ctx, submission)
	s.record("insert", "submissions", start, err)
	return err
}

// MarkSubmissionAccepted updates a submission and records metrics
func (s *StorageWithMetrics) MarkSubmissionAccepted(ctx context.Context, id string, acceptedAt time.Time) error {
	start := time.Now()
	err := s.Storage.MarkSubmissionAccepted(ctx, id, acceptedAt)
	s.record("update", "submissions", start, err)
	return err
}

// MarkSubmissionFailed updates a submission and records metrics
func (s *StorageWithMetrics) MarkSubmissionFailed(ctx context.Context, id string, reason string) error {
	start := time.Now()
	err := s.Storage.MarkSubmissionFailed(ctx, id, reason)
	s.record("update", "submissions", start, err)
	return err
}

// GetSubmissions lists submissions and records metrics
func (s *StorageWithMetrics) GetSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.WatchSubmission, error) {
	start := time.Now()
	submissions, err := s.Storage.GetSubmissions(ctx, filter)
	s.record("select", "submissions", start, err)
	return submissions, err
}

// SaveNotification saves a notification and records metrics
func (s *StorageWithMetrics) SaveNotification(ctx context.Context, notification *models.Notification) error {
	start := time.Now()
	err := s.Storage.SaveNotification(ctx, notification)
	s.record("insert", "notifications", start, err)
	return err
}
