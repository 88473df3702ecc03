// File: internal/notification/notification.go
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// Notifier delivers a notification over one channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, notification *models.Notification) error
}

// NotificationManager fans notifications out to every registered notifier
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers []Notifier
	stats     NotificationStats
	metrics   *metrics.PrometheusMetrics
	logger    *logrus.Entry
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64     `json:"total_notifications_sent"`
	TotalNotificationsFailed uint64     `json:"total_notifications_failed"`
	ActiveChannels           int        `json:"active_channels"`
	LastError                *string    `json:"last_error,omitempty"`
	LastErrorTime            *time.Time `json:"last_error_time,omitempty"`
}

// NewNotificationManager creates a notification manager over notifiers
func NewNotificationManager(metricsManager *metrics.Manager, notifiers ...Notifier) *NotificationManager {
	return &NotificationManager{
		notifiers: notifiers,
		metrics:   metricsManager.GetPrometheusMetrics(),
		logger:    utils.ComponentLogger("notification"),
	}
}

// AddNotifier registers another channel
func (nm *NotificationManager) AddNotifier(n Notifier) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.notifiers = append(nm.notifiers, n)
}

// Info sends an info level notification
func (nm *NotificationManager) Info(ctx context.Context, title, message string, data map[string]interface{}) error {
	return nm.Send(ctx, models.NotificationLevelInfo, title, message, data)
}

// Error sends an error level notification
func (nm *NotificationManager) Error(ctx context.Context, title, message string, data map[string]interface{}) error {
	return nm.Send(ctx, models.NotificationLevelError, title, message, data)
}

// Send builds a notification and delivers it to every notifier. A failing
// channel does not stop the others; their errors are joined.
func (nm *NotificationManager) Send(ctx context.Context, level models.NotificationLevel, title, message string, data map[string]interface{}) error {
	notification := &models.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	return nm.Dispatch(ctx, notification)
}

// Dispatch delivers an already built notification
func (nm *NotificationManager) Dispatch(ctx context.Context, notification *models.Notification) error {
	nm.mu.RLock()
	notifiers := make([]Notifier, len(nm.notifiers))
	copy(notifiers, nm.notifiers)
	nm.mu.RUnlock()

	var errs []error
	for _, n := range notifiers {
		start := time.Now()
		err := n.Notify(ctx, notification)
		nm.updateNotificationStats(n.Name(), notification, start, err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (nm *NotificationManager) updateNotificationStats(channel string, notification *models.Notification, start time.Time, err error) {
	level := string(notification.Level)

	nm.mu.Lock()
	defer nm.mu.Unlock()

	if err != nil {
		nm.stats.TotalNotificationsFailed++
		msg := err.Error()
		now := time.Now()
		nm.stats.LastError = &msg
		nm.stats.LastErrorTime = &now
		nm.metrics.RecordNotificationFailure(channel, level)
		nm.logger.WithFields(logrus.Fields{
			"channel":         channel,
			"notification_id": notification.ID,
			"error":           err,
		}).Warn("Notification delivery failed")
		return
	}

	nm.stats.TotalNotificationsSent++
	nm.metrics.RecordNotificationSent(channel, level, time.Since(start))
}

// GetStats returns notification statistics
func (nm *NotificationManager) GetStats() NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	stats := nm.stats
	stats.ActiveChannels = len(nm.notifiers)
	return stats
}
