// File: internal/notification/notification_wrapper.go
package notification

import (
	"context"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
)

// Recorder persists notifications
type Recorder interface {
	SaveNotification(ctx context.Context, notification *models.Notification) error
}

// JournalNotifier records every notification in the local journal
type JournalNotifier struct {
	recorder Recorder
}

// NewJournalNotifier creates a notifier backed by recorder
func NewJournalNotifier(recorder Recorder) *JournalNotifier {
	return &JournalNotifier{recorder: recorder}
}

// Name returns the channel name
func (jn *JournalNotifier) Name() string { return "journal" }

// Notify stores the notification
func (jn *JournalNotifier) Notify(ctx context.Context, n *models.Notification) error {
	return jn.recorder.SaveNotification(ctx, n)
}

// FromConfig assembles the notification manager: log always, the journal
// when recorder is non-nil and the webhook when a URL is configured
func FromConfig(cfg config.NotificationConfig, recorder Recorder, metricsManager *metrics.Manager) *NotificationManager {
	notifiers := []Notifier{NewLogNotifier()}
	if recorder != nil {
		notifiers = append(notifiers, NewJournalNotifier(recorder))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(cfg))
	}
	return NewNotificationManager(metricsManager, notifiers...)
}
