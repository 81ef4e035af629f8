package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
)

// StatusView summarises whether a clinic currently holds a live subscription.
type StatusView struct {
	HasActiveSubscription bool       `json:"hasActiveSubscription"`
	SubscriptionType      *string    `json:"subscriptionType"`
	ExpiresAt             *time.Time `json:"expiresAt"`
	StartedAt             *time.Time `json:"startedAt"`
	IsTrialPeriod         bool       `json:"isTrialPeriod"`
	TrialEndDate          *time.Time `json:"trialEndDate"`
}

// SubscriptionView is the full client-facing subscription record.
type SubscriptionView struct {
	ID                   uuid.UUID                `json:"id"`
	ClinicID             uuid.UUID                `json:"clinicId"`
	PlanID               uuid.UUID                `json:"planId"`
	PlanName             string                   `json:"planName,omitempty"`
	Period               string                   `json:"period,omitempty"`
	Status               enums.SubscriptionStatus `json:"status"`
	StartDate            time.Time                `json:"startDate"`
	EndDate              time.Time                `json:"endDate"`
	NextBillingDate      *time.Time               `json:"nextBillingDate"`
	TrialEndDate         *time.Time               `json:"trialEndDate"`
	IsTrialPeriod        bool                     `json:"isTrialPeriod"`
	AmountPaid           decimal.Decimal          `json:"amountPaid"`
	Currency             string                   `json:"currency"`
	AutoRenew            bool                     `json:"autoRenew"`
	PaddleSubscriptionID *string                  `json:"paddleSubscriptionId,omitempty"`
	CancelledAt          *time.Time               `json:"cancelledAt,omitempty"`
}

// InvoiceView is one invoice in a clinic's billing history.
type InvoiceView struct {
	ID                  uuid.UUID           `json:"id"`
	InvoiceNumber       string              `json:"invoiceNumber"`
	SubscriptionID      uuid.UUID           `json:"subscriptionId"`
	Amount              decimal.Decimal     `json:"amount"`
	OriginalPrice       decimal.Decimal     `json:"originalPrice"`
	Currency            string              `json:"currency"`
	Status              enums.InvoiceStatus `json:"status"`
	BillingPeriodStart  time.Time           `json:"billingPeriodStart"`
	BillingPeriodEnd    time.Time           `json:"billingPeriodEnd"`
	PaidAt              *time.Time          `json:"paidAt"`
	IsTrialPeriod       bool                `json:"isTrialPeriod"`
	PaddleTransactionID string              `json:"paddleTransactionId"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// InvoicePage is a cursor page of invoices, newest first.
type InvoicePage struct {
	Invoices   []InvoiceView `json:"invoices"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// PaymentMethodView is a saved card without any sensitive data.
type PaymentMethodView struct {
	ID             uuid.UUID               `json:"id"`
	Type           enums.PaymentMethodType `json:"type"`
	CardType       *string                 `json:"cardType,omitempty"`
	Last4          *string                 `json:"last4,omitempty"`
	ExpiryMonth    *int                    `json:"expiryMonth,omitempty"`
	ExpiryYear     *int                    `json:"expiryYear,omitempty"`
	CardholderName *string                 `json:"cardholderName,omitempty"`
	IsDefault      bool                    `json:"isDefault"`
}

func statusFromSubscription(sub *models.Subscription) *StatusView {
	if sub == nil {
		return &StatusView{}
	}
	start := sub.StartDate
	end := sub.EndDate
	view := &StatusView{
		HasActiveSubscription: true,
		ExpiresAt:             &end,
		StartedAt:             &start,
		IsTrialPeriod:         sub.IsTrialPeriod,
		TrialEndDate:          sub.TrialEndDate,
	}
	if sub.Plan != nil {
		name := sub.Plan.Name
		view.SubscriptionType = &name
	}
	return view
}

func subscriptionView(sub *models.Subscription) *SubscriptionView {
	view := &SubscriptionView{
		ID:                   sub.ID,
		ClinicID:             sub.ClinicID,
		PlanID:               sub.PlanID,
		Status:               sub.Status,
		StartDate:            sub.StartDate,
		EndDate:              sub.EndDate,
		NextBillingDate:      sub.NextBillingDate,
		TrialEndDate:         sub.TrialEndDate,
		IsTrialPeriod:        sub.IsTrialPeriod,
		AmountPaid:           sub.AmountPaid,
		Currency:             sub.Currency,
		AutoRenew:            sub.AutoRenew,
		PaddleSubscriptionID: sub.PaddleSubscriptionID,
		CancelledAt:          sub.CancelledAt,
	}
	if sub.Plan != nil {
		view.PlanName = sub.Plan.Name
		view.Period = sub.Plan.Period.String()
	}
	return view
}

func invoiceViews(invoices []models.Invoice) []InvoiceView {
	views := make([]InvoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, InvoiceView{
			ID:                  inv.ID,
			InvoiceNumber:       inv.InvoiceNumber,
			SubscriptionID:      inv.SubscriptionID,
			Amount:              inv.Amount,
			OriginalPrice:       inv.OriginalPrice,
			Currency:            inv.Currency,
			Status:              inv.Status,
			BillingPeriodStart:  inv.BillingPeriodStart,
			BillingPeriodEnd:    inv.BillingPeriodEnd,
			PaidAt:              inv.PaidAt,
			IsTrialPeriod:       inv.IsTrialPeriod,
			PaddleTransactionID: inv.PaddleTransactionID,
			CreatedAt:           inv.CreatedAt,
		})
	}
	return views
}

func paymentMethodViews(methods []models.PaymentMethod) []PaymentMethodView {
	views := make([]PaymentMethodView, 0, len(methods))
	for _, m := range methods {
		views = append(views, PaymentMethodView{
			ID:             m.ID,
			Type:           m.Type,
			CardType:       m.CardType,
			Last4:          m.CardLast4,
			ExpiryMonth:    m.CardExpiryMonth,
			ExpiryYear:     m.CardExpiryYear,
			CardholderName: m.CardholderName,
			IsDefault:      m.IsDefault,
		})
	}
	return views
}
