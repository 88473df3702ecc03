// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/pkg/httpclient"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// WebhookNotifier posts notifications as JSON to a URL
type WebhookNotifier struct {
	url        string
	httpClient *retryablehttp.Client
	logger     *logrus.Entry
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Timestamp time.Time            `json:"timestamp"`
	Source    string               `json:"source"`
	Type      string               `json:"type"`
	Data      *models.Notification `json:"data"`
	Version   string               `json:"version"`
}

// NewWebhookNotifier creates a webhook notifier from configuration
func NewWebhookNotifier(cfg config.NotificationConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url: cfg.WebhookURL,
		httpClient: httpclient.New(
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithRetryMax(cfg.RetryMax),
		),
		logger: utils.ComponentLogger("notification").WithField("channel", "webhook"),
	}
}

// Name returns the channel name
func (wn *WebhookNotifier) Name() string { return "webhook" }

// Notify sends the notification, retrying transient failures
func (wn *WebhookNotifier) Notify(ctx context.Context, n *models.Notification) error {
	start := time.Now()

	body, err := json.Marshal(&WebhookPayload{
		Timestamp: time.Now().UTC(),
		Source:    "coinwatch-gateway",
		Type:      "notification",
		Data:      n,
		Version:   "1.0",
	})
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(body))
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "coinwatch-gateway/1.0")
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return utils.WrapError(utils.ErrCodeExternalCall, "Failed to send webhook", err)
	}
	defer resp.Body.Close()

	// limited to keep error details small
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	log := wn.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("Webhook failed")
		return utils.NewAppError(utils.ErrCodeExternalCall,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, string(respBody)))
	}

	log.Debug("Webhook completed")
	return nil
}
