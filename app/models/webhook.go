package models

import "time"

// WebhookDelivery records a processed webhook-id so redeliveries are no-ops.
type WebhookDelivery struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	EventType   string    `gorm:"type:varchar(64);not null" json:"event_type"`
	ProcessedAt time.Time `gorm:"not null;index" json:"processed_at"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
