package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// PaymentMethod is a saved payment instrument snapshot for a clinic.
type PaymentMethod struct {
	ID                    uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClinicID              uuid.UUID               `gorm:"column:clinic_id;type:uuid;not null;index"`
	UserID                *uuid.UUID              `gorm:"column:user_id;type:uuid"`
	PaddlePaymentMethodID *string                 `gorm:"column:paddle_payment_method_id"`
	Type                  enums.PaymentMethodType `gorm:"column:type;type:payment_method_type;not null;default:'card'"`
	CardType              *string                 `gorm:"column:card_type"`
	CardLast4             *string                 `gorm:"column:card_last4"`
	CardExpiryMonth       *int                    `gorm:"column:card_expiry_month"`
	CardExpiryYear        *int                    `gorm:"column:card_expiry_year"`
	CardholderName        *string                 `gorm:"column:cardholder_name"`
	IsDefault             bool                    `gorm:"column:is_default;not null;default:false"`
	IsActive              bool                    `gorm:"column:is_active;not null;default:true"`
	BillingAddress        json.RawMessage         `gorm:"column:billing_address;type:jsonb"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentMethod) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
