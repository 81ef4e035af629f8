package paddlewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/paddle"
)

// AuditLog keeps one webhook_events row per Paddle event id.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record upserts the delivery and returns the stored row. Redeliveries bump
// delivery_count and keep the outcome of earlier attempts.
func (a *AuditLog) Record(ctx context.Context, n paddle.Notification, raw []byte, now time.Time) (*models.WebhookEvent, error) {
	eventID := n.DeliveryID()
	row := models.WebhookEvent{
		Provider:      provider,
		EventID:       eventID,
		EventType:     string(n.EventType),
		DeliveryCount: 1,
		ReceivedAt:    now,
	}
	if json.Valid(raw) {
		row.Payload = json.RawMessage(raw)
	}
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"delivery_count": gorm.Expr("webhook_events.delivery_count + 1"),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}

	var stored models.WebhookEvent
	if err := a.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// Finish stamps the processing outcome. tx may be the delivery transaction or
// nil to write outside of it.
func (a *AuditLog) Finish(ctx context.Context, tx *gorm.DB, id uuid.UUID, outcome Outcome, procErr error, now time.Time) error {
	if id == uuid.Nil {
		return errors.New("webhook event id required")
	}
	conn := a.db
	if tx != nil {
		conn = tx
	}
	updates := map[string]any{
		"processed_at":     now,
		"outcome":          string(outcome),
		"processing_error": nil,
	}
	if procErr != nil {
		updates["processing_error"] = procErr.Error()
	}
	return conn.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// settled reports whether an earlier delivery already reached a final outcome.
func settled(row *models.WebhookEvent) bool {
	if row == nil || row.Outcome == nil {
		return false
	}
	switch Outcome(*row.Outcome) {
	case OutcomeProcessed, OutcomeIgnored:
		return true
	}
	return false
}
