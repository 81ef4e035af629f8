package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// SubscriptionChangedEvent describes a subscription lifecycle transition.
type SubscriptionChangedEvent struct {
	SubscriptionID       uuid.UUID                `json:"subscription_id"`
	ClinicID             uuid.UUID                `json:"clinic_id"`
	PlanID               uuid.UUID                `json:"plan_id"`
	Status               enums.SubscriptionStatus `json:"status"`
	PaddleTransactionID  string                   `json:"paddle_transaction_id,omitempty"`
	PaddleSubscriptionID string                   `json:"paddle_subscription_id,omitempty"`
	EndDate              time.Time                `json:"end_date"`
	IsTrialPeriod        bool                     `json:"is_trial_period"`
}

// InvoiceCreatedEvent announces a new paid invoice.
type InvoiceCreatedEvent struct {
	InvoiceID           uuid.UUID       `json:"invoice_id"`
	InvoiceNumber       string          `json:"invoice_number"`
	SubscriptionID      uuid.UUID       `json:"subscription_id"`
	ClinicID            uuid.UUID       `json:"clinic_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	PaddleTransactionID string          `json:"paddle_transaction_id"`
}
