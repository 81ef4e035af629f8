package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// Invoice is the immutable billing record of one settled Paddle transaction.
type Invoice struct {
	ID                   uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceNumber        string              `gorm:"column:invoice_number;not null"`
	SubscriptionID       uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	ClinicID             uuid.UUID           `gorm:"column:clinic_id;type:uuid;not null;index"`
	Amount               decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	OriginalPrice        decimal.Decimal     `gorm:"column:original_price;type:numeric(12,2);not null"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                  decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	Discount             decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null"`
	Currency             string              `gorm:"column:currency;not null"`
	Status               enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null"`
	BillingPeriodStart   time.Time           `gorm:"column:billing_period_start;not null"`
	BillingPeriodEnd     time.Time           `gorm:"column:billing_period_end;not null"`
	DueDate              time.Time           `gorm:"column:due_date;not null"`
	PaidAt               *time.Time          `gorm:"column:paid_at"`
	PaymentMethod        string              `gorm:"column:payment_method;not null"`
	PaddleTransactionID  string              `gorm:"column:paddle_transaction_id;not null;uniqueIndex"`
	PaddleSubscriptionID *string             `gorm:"column:paddle_subscription_id"`
	IsTrialPeriod        bool                `gorm:"column:is_trial_period;not null;default:false"`
	Details              json.RawMessage     `gorm:"column:details;type:jsonb"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
