package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies in-app notifications
type NotificationType string

const (
	NotificationModerationDecision NotificationType = "MODERATION_DECISION"
	NotificationGeneric            NotificationType = "GENERIC"
	NotificationRepublishReminder  NotificationType = "REPUBLISH_REMINDER"
	NotificationVipExpired         NotificationType = "VIP_EXPIRED"
)

// Notification is a user-facing inbox message
type Notification struct {
	ID              uuid.UUID              `json:"id" db:"id"`
	UserID          uuid.UUID              `json:"user_id" db:"user_id"`
	Type            NotificationType       `json:"type" db:"type"`
	Title           string                 `json:"title" db:"title"`
	Body            string                 `json:"body" db:"body"`
	Payload         map[string]interface{} `json:"payload,omitempty" db:"payload"`
	ModerationLogID *uuid.UUID             `json:"moderation_log_id,omitempty" db:"moderation_log_id"`
	IsRead          bool                   `json:"is_read" db:"is_read"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
}

// NotificationRequest carries everything needed to enqueue a notification
type NotificationRequest struct {
	UserID          uuid.UUID
	Type            NotificationType
	Title           string
	Body            string
	Payload         map[string]interface{}
	ModerationLogID *uuid.UUID
}
