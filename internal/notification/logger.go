// File: internal/notification/logger.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: utils.ComponentLogger("notification").WithField("channel", "log")}
}

// Name returns the channel name
func (ln *LogNotifier) Name() string { return "log" }

// Notify logs the notification at a level matching its severity
func (ln *LogNotifier) Notify(_ context.Context, n *models.Notification) error {
	entry := ln.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"title":           n.Title,
	})
	if len(n.Data) > 0 {
		entry = entry.WithFields(logrus.Fields(n.Data))
	}

	if n.Level == models.NotificationLevelError {
		entry.Error(n.Message)
	} else {
		entry.Info(n.Message)
	}
	return nil
}
