package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// Subscription is a clinic's billing relationship for one plan.
type Subscription struct {
	ID                      uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ClinicID                uuid.UUID                `gorm:"column:clinic_id;type:uuid;not null;index"`
	PlanID                  uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	UserID                  *uuid.UUID               `gorm:"column:user_id;type:uuid"`
	Status                  enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'pending_payment'"`
	StartDate               time.Time                `gorm:"column:start_date;not null"`
	EndDate                 time.Time                `gorm:"column:end_date;not null"`
	NextBillingDate         *time.Time               `gorm:"column:next_billing_date"`
	TrialEndDate            *time.Time               `gorm:"column:trial_end_date"`
	IsTrialPeriod           bool                     `gorm:"column:is_trial_period;not null;default:false"`
	AmountPaid              decimal.Decimal          `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	Currency                string                   `gorm:"column:currency;not null;default:'USD'"`
	PaddleTransactionID     *string                  `gorm:"column:paddle_transaction_id"`
	PaddleSubscriptionID    *string                  `gorm:"column:paddle_subscription_id"`
	TransactionID           *string                  `gorm:"column:transaction_id"`
	PaymentMethod           string                   `gorm:"column:payment_method;not null;default:'paddle'"`
	HasActivePaymentProcess bool                     `gorm:"column:has_active_payment_process;not null;default:false"`
	AutoRenew               bool                     `gorm:"column:auto_renew;not null;default:true"`
	CancelledAt             *time.Time               `gorm:"column:cancelled_at"`
	CancellationReason      *string                  `gorm:"column:cancellation_reason"`
	Notes                   *string                  `gorm:"column:notes"`
	CreatedAt               time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                `gorm:"column:updated_at;autoUpdateTime"`

	Plan *SubscriptionPlan `gorm:"foreignKey:PlanID"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsLive reports whether the subscription grants access at now.
func (s *Subscription) IsLive(now time.Time) bool {
	return s != nil && s.Status == enums.SubscriptionStatusActive && s.EndDate.After(now)
}
