package billing

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/outbox"
)

// PaymentMethodPaddle is the payment_method value stamped on subscriptions and invoices.
const PaymentMethodPaddle = "paddle"

// TrialPolicy is the deployment-level free trial configuration.
type TrialPolicy struct {
	Enabled bool
	Months  int
}

// TrialPolicyFrom reads the trial settings from billing config.
func TrialPolicyFrom(cfg config.BillingConfig) TrialPolicy {
	return TrialPolicy{Enabled: cfg.TrialEnabled && cfg.TrialMonths > 0, Months: cfg.TrialMonths}
}

// Window is the date range of one subscription lease.
type Window struct {
	Start       time.Time
	End         time.Time
	NextBilling time.Time
	TrialEnd    *time.Time
}

// Window computes the lease starting at start: one billing cycle, extended by
// the trial length when the policy is enabled. Billing resumes when the trial ends.
func (p TrialPolicy) Window(start time.Time, period enums.BillingPeriod) Window {
	start = start.UTC()
	w := Window{Start: start, End: period.AddTo(start)}
	w.NextBilling = w.End
	if p.Enabled {
		trialEnd := start.AddDate(0, p.Months, 0)
		w.End = w.End.AddDate(0, p.Months, 0)
		w.TrialEnd = &trialEnd
		w.NextBilling = trialEnd
	}
	return w
}

// Apply stamps the window onto the subscription.
func (w Window) Apply(sub *models.Subscription) {
	sub.StartDate = w.Start
	sub.EndDate = w.End
	next := w.NextBilling
	sub.NextBillingDate = &next
	sub.TrialEndDate = w.TrialEnd
	sub.IsTrialPeriod = w.TrialEnd != nil
}

// SubscriptionEvent builds the outbox payload for a subscription transition.
func SubscriptionEvent(sub *models.Subscription) outbox.SubscriptionChangedEvent {
	evt := outbox.SubscriptionChangedEvent{
		SubscriptionID: sub.ID,
		ClinicID:       sub.ClinicID,
		PlanID:         sub.PlanID,
		Status:         sub.Status,
		EndDate:        sub.EndDate,
		IsTrialPeriod:  sub.IsTrialPeriod,
	}
	if sub.PaddleTransactionID != nil {
		evt.PaddleTransactionID = *sub.PaddleTransactionID
	}
	if sub.PaddleSubscriptionID != nil {
		evt.PaddleSubscriptionID = *sub.PaddleSubscriptionID
	}
	return evt
}

// EmitSubscriptionEvent queues a subscription transition on the outbox in tx.
func EmitSubscriptionEvent(ctx context.Context, tx *gorm.DB, emitter outbox.Emitter, eventType enums.OutboxEventType, sub *models.Subscription, actor *outbox.ActorRef) error {
	if emitter == nil {
		return nil
	}
	return emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         actor,
		Data:          SubscriptionEvent(sub),
	})
}

// RefreshOnRead applies the read-time repairs to a loaded subscription: an
// Active row whose end date has passed becomes Expired, and an elapsed trial
// loses its flag. Changes are persisted through repo, which must be bound to
// tx. It reports whether the row was expired.
func RefreshOnRead(ctx context.Context, tx *gorm.DB, repo Repository, emitter outbox.Emitter, sub *models.Subscription, now time.Time) (bool, error) {
	if sub == nil {
		return false, nil
	}
	changed := false
	expired := false
	if sub.Status == enums.SubscriptionStatusActive && !sub.EndDate.After(now) {
		sub.Status = enums.SubscriptionStatusExpired
		changed = true
		expired = true
	}
	if sub.IsTrialPeriod && sub.TrialEndDate != nil && !sub.TrialEndDate.After(now) {
		sub.IsTrialPeriod = false
		changed = true
	}
	if !changed {
		return false, nil
	}
	sub.UpdatedAt = now
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return false, err
	}
	if expired {
		if err := EmitSubscriptionEvent(ctx, tx, emitter, enums.EventSubscriptionExpired, sub, &outbox.ActorRef{ClinicID: &sub.ClinicID, Source: "read_expiry"}); err != nil {
			return false, err
		}
	}
	return expired, nil
}
