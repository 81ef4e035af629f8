package paddlewebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/paymentmethods"
	"github.com/salymed/salymed-backend/internal/subscriptions"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/paddle"
)

const actorSource = subscriptions.SourceWebhook

// handleTransactionSettled activates the pending subscription behind a
// completed or paid transaction.
func (s *Service) handleTransactionSettled(ctx context.Context, tx *gorm.DB, repo billing.Repository, n paddle.Notification, raw []byte) (Outcome, error) {
	sub, err := repo.FindSubscriptionByTransactionID(ctx, n.Data.ID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return OutcomeNotFound, nil
	}

	_, err = s.activator.Activate(ctx, tx, sub, subscriptions.Activation{
		TransactionID:        n.Data.ID,
		PaddleSubscriptionID: n.Data.SubscriptionID,
		Card:                 cardSnapshot(n.Data),
		Payload:              raw,
		Source:               actorSource,
		UserID:               parseID(n.Data.CustomData.UserID),
	})
	if errors.Is(err, subscriptions.ErrNotActivatable) {
		s.logg.Warn(s.logg.WithField(ctx, "status", string(sub.Status)), "settled transaction for closed subscription")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, tx *gorm.DB, repo billing.Repository, n paddle.Notification, _ []byte) (Outcome, error) {
	sub, err := repo.FindSubscriptionByTransactionID(ctx, n.Data.ID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return OutcomeNotFound, nil
	}
	switch {
	case sub.Status == enums.SubscriptionStatusPaymentFailed:
		return OutcomeProcessed, nil
	case !sub.Status.CanTransitionTo(enums.SubscriptionStatusPaymentFailed):
		return OutcomeIgnored, nil
	}

	sub.Status = enums.SubscriptionStatusPaymentFailed
	if s.releaseOnFailure {
		sub.HasActivePaymentProcess = false
	}
	sub.UpdatedAt = s.now()
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}
	if err := billing.EmitSubscriptionEvent(ctx, tx, s.outbox, enums.EventSubscriptionPaymentErr, sub, s.actor(sub, n)); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// handleSubscriptionCreated links the Paddle subscription id to the row of the
// originating checkout, falling back to the clinic's latest subscription.
func (s *Service) handleSubscriptionCreated(ctx context.Context, _ *gorm.DB, repo billing.Repository, n paddle.Notification, _ []byte) (Outcome, error) {
	paddleID := n.Data.PaddleSubscriptionID()
	if paddleID == "" {
		return OutcomeIgnored, nil
	}

	var sub *models.Subscription
	var err error
	if txnID := strings.TrimSpace(n.Data.TransactionID); txnID != "" {
		if sub, err = repo.FindSubscriptionByTransactionID(ctx, txnID); err != nil {
			return "", err
		}
	}
	if sub == nil {
		clinicID := parseID(n.Data.CustomData.ClinicID)
		if clinicID == nil {
			return OutcomeNotFound, nil
		}
		if sub, err = repo.FindLatestSubscription(ctx, *clinicID); err != nil {
			return "", err
		}
	}
	if sub == nil {
		return OutcomeNotFound, nil
	}
	if sub.PaddleSubscriptionID != nil && *sub.PaddleSubscriptionID == paddleID {
		return OutcomeProcessed, nil
	}

	sub.PaddleSubscriptionID = &paddleID
	sub.UpdatedAt = s.now()
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, _ *gorm.DB, repo billing.Repository, n paddle.Notification, _ []byte) (Outcome, error) {
	sub, err := s.subscriptionFor(ctx, repo, n)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return OutcomeNotFound, nil
	}
	sub.UpdatedAt = s.now()
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionCanceled(ctx context.Context, tx *gorm.DB, repo billing.Repository, n paddle.Notification, _ []byte) (Outcome, error) {
	sub, err := s.subscriptionFor(ctx, repo, n)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return OutcomeNotFound, nil
	}
	switch {
	case sub.Status == enums.SubscriptionStatusCancelled:
		return OutcomeProcessed, nil
	case !sub.Status.CanTransitionTo(enums.SubscriptionStatusCancelled):
		return OutcomeIgnored, nil
	}

	now := s.now()
	sub.Status = enums.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.AutoRenew = false
	sub.UpdatedAt = now
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}
	if err := billing.EmitSubscriptionEvent(ctx, tx, s.outbox, enums.EventSubscriptionCancelled, sub, s.actor(sub, n)); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// subscriptionFor resolves the row a subscription.* event targets. Events
// without any subscription id match nothing.
func (s *Service) subscriptionFor(ctx context.Context, repo billing.Repository, n paddle.Notification) (*models.Subscription, error) {
	paddleID := n.Data.PaddleSubscriptionID()
	if paddleID == "" {
		return nil, nil
	}
	return repo.FindSubscriptionByPaddleID(ctx, paddleID)
}

func (s *Service) actor(sub *models.Subscription, n paddle.Notification) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:   parseID(n.Data.CustomData.UserID),
		ClinicID: &sub.ClinicID,
		Source:   actorSource,
	}
}

func cardSnapshot(data paddle.EventData) *paymentmethods.SnapshotInput {
	payment, ok := data.FirstCard()
	if !ok || payment.MethodDetails.Card.Last4 == "" {
		return nil
	}
	card := payment.MethodDetails.Card
	methodID := payment.PaymentMethodID
	if methodID == "" {
		methodID = data.PrimaryPaymentMethodID()
	}
	return &paymentmethods.SnapshotInput{
		UserID:                parseID(data.CustomData.UserID),
		PaddlePaymentMethodID: methodID,
		MethodType:            payment.MethodDetails.Type,
		CardType:              card.Type,
		Last4:                 card.Last4,
		ExpiryMonth:           card.ExpiryMonth,
		ExpiryYear:            card.ExpiryYear,
		CardholderName:        card.CardholderName,
	}
}

func parseID(raw paddle.FlexString) *uuid.UUID {
	id, err := uuid.Parse(raw.String())
	if err != nil {
		return nil
	}
	return &id
}
