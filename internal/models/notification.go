package models

import (
	"time"
)

// NotificationLevel defines how a notification is presented
type NotificationLevel string

const (
	NotificationLevelInfo  NotificationLevel = "info"
	NotificationLevelError NotificationLevel = "error"
)

// Notification represents a user-visible notice
type Notification struct {
	ID        string                 `json:"id"`
	Level     NotificationLevel      `json:"level"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
