package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent records every payment processor notification received.
type WebhookEvent struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider        string          `gorm:"column:provider;not null"`
	EventID         string          `gorm:"column:event_id;not null"`
	EventType       string          `gorm:"column:event_type;not null"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb"`
	DeliveryCount   int             `gorm:"column:delivery_count;not null;default:1"`
	ReceivedAt      time.Time       `gorm:"column:received_at;not null"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at"`
	Outcome         *string         `gorm:"column:outcome"`
	ProcessingError *string         `gorm:"column:processing_error"`
}

func (w *WebhookEvent) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
