package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/paymentmethods"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/outbox"
)

// Activation sources recorded on outbox actors.
const (
	SourceWebhook = "paddle_webhook"
	SourceManual  = "manual_activation"
)

// Activation describes a settled payment for a pending subscription.
type Activation struct {
	TransactionID        string
	PaddleSubscriptionID string
	Card                 *paymentmethods.SnapshotInput
	Payload              json.RawMessage
	Source               string
	UserID               *uuid.UUID
}

// ActivationResult reports which writes an activation performed.
type ActivationResult struct {
	Subscription       *models.Subscription
	Activated          bool
	Invoice            *models.Invoice
	InvoiceCreated     bool
	PaymentMethodSaved bool
}

// ErrNotActivatable is returned when the subscription already left the
// payment flow (cancelled or expired) and a late confirmation arrives.
var ErrNotActivatable = errors.New("subscription can no longer be activated")

// ActivatorParams groups dependencies for the activator.
type ActivatorParams struct {
	Repo     billing.Repository
	Payments paymentmethods.Service
	Outbox   outbox.Emitter
	Trial    billing.TrialPolicy
	Clock    func() time.Time
}

// Activator moves a pending subscription to Active once Paddle confirms the
// payment. Webhooks and manual activation share it.
type Activator struct {
	repo     billing.Repository
	payments paymentmethods.Service
	outbox   outbox.Emitter
	trial    billing.TrialPolicy
	now      func() time.Time
}

func NewActivator(params ActivatorParams) (*Activator, error) {
	if params.Repo == nil {
		return nil, errors.New("billing repo required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Activator{
		repo:     params.Repo,
		payments: params.Payments,
		outbox:   params.Outbox,
		trial:    params.Trial,
		now:      clock,
	}, nil
}

// Activate applies a confirmed payment to sub inside tx. Replays are safe: an
// Active row keeps its dates, and at most one invoice exists per transaction.
func (a *Activator) Activate(ctx context.Context, tx *gorm.DB, sub *models.Subscription, in Activation) (*ActivationResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if sub == nil {
		return nil, errors.New("subscription required")
	}
	repo := a.repo.WithTx(tx)
	now := a.now()
	result := &ActivationResult{Subscription: sub}

	plan := sub.Plan
	if plan == nil {
		loaded, err := repo.FindPlan(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, errors.New("subscription plan missing")
		}
		plan = loaded
	}

	switch {
	case sub.Status == enums.SubscriptionStatusActive:
	case sub.Status.CanTransitionTo(enums.SubscriptionStatusActive):
		sub.Status = enums.SubscriptionStatusActive
		if a.trial.Enabled {
			a.trial.Window(now, plan.Period).Apply(sub)
		}
		result.Activated = true
	default:
		return nil, ErrNotActivatable
	}

	sub.HasActivePaymentProcess = false
	if txID := strings.TrimSpace(in.TransactionID); txID != "" {
		sub.TransactionID = &txID
	}
	if paddleSubID := strings.TrimSpace(in.PaddleSubscriptionID); paddleSubID != "" {
		sub.PaddleSubscriptionID = &paddleSubID
	}
	sub.UpdatedAt = now
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	actor := &outbox.ActorRef{UserID: in.UserID, ClinicID: &sub.ClinicID, Source: in.Source}
	if result.Activated {
		if err := billing.EmitSubscriptionEvent(ctx, tx, a.outbox, enums.EventSubscriptionActivated, sub, actor); err != nil {
			return nil, err
		}
	}

	if in.Card != nil && a.payments != nil {
		card := *in.Card
		card.ClinicID = sub.ClinicID
		if card.UserID == nil {
			card.UserID = sub.UserID
		}
		_, saved, err := a.payments.SaveSnapshot(ctx, tx, card)
		if err != nil {
			return nil, err
		}
		result.PaymentMethodSaved = saved
	}

	invoiceTxID := a.invoiceTransactionID(sub, in)
	existing, err := repo.FindInvoiceByTransactionID(ctx, invoiceTxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		result.Invoice = existing
		return result, nil
	}

	invoice := buildInvoice(sub, plan, invoiceTxID, in.Payload, now)
	if err := repo.CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	result.Invoice = invoice
	result.InvoiceCreated = true

	if a.outbox != nil {
		err := a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceCreated,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         actor,
			Data: outbox.InvoiceCreatedEvent{
				InvoiceID:           invoice.ID,
				InvoiceNumber:       invoice.InvoiceNumber,
				SubscriptionID:      sub.ID,
				ClinicID:            sub.ClinicID,
				Amount:              invoice.Amount,
				Currency:            invoice.Currency,
				PaddleTransactionID: invoice.PaddleTransactionID,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *Activator) invoiceTransactionID(sub *models.Subscription, in Activation) string {
	if sub.PaddleTransactionID != nil && *sub.PaddleTransactionID != "" {
		return *sub.PaddleTransactionID
	}
	return strings.TrimSpace(in.TransactionID)
}

// buildInvoice bills the plan price, or zero while the subscription is in its trial.
func buildInvoice(sub *models.Subscription, plan *models.SubscriptionPlan, transactionID string, payload json.RawMessage, now time.Time) *models.Invoice {
	amount := plan.Price
	if sub.IsTrialPeriod {
		amount = decimal.Zero
	}
	paidAt := now
	return &models.Invoice{
		InvoiceNumber:        transactionID,
		SubscriptionID:       sub.ID,
		ClinicID:             sub.ClinicID,
		Amount:               amount,
		OriginalPrice:        plan.Price,
		Subtotal:             plan.Price,
		Tax:                  decimal.Zero,
		Discount:             decimal.Zero,
		Currency:             plan.Currency,
		Status:               enums.InvoiceStatusPaid,
		BillingPeriodStart:   sub.StartDate,
		BillingPeriodEnd:     sub.EndDate,
		DueDate:              sub.StartDate,
		PaidAt:               &paidAt,
		PaymentMethod:        billing.PaymentMethodPaddle,
		PaddleTransactionID:  transactionID,
		PaddleSubscriptionID: sub.PaddleSubscriptionID,
		IsTrialPeriod:        sub.IsTrialPeriod,
		Details:              payload,
	}
}
