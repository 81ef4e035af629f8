package checkout

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

// CheckoutState is the recoverable UI state of a clinic's checkout.
type CheckoutState struct {
	IsValid                 bool
	RegistrationCompleted   bool
	HasActivePaymentProcess bool
	HasActiveSubscription   bool
	ActiveTransactionID     *string
	Message                 *string
}

// CheckoutLookup identifies the subscription behind a Paddle transaction.
type CheckoutLookup struct {
	TransactionID string
	ClinicID      uuid.UUID
	PlanID        uuid.UUID
	Status        enums.SubscriptionStatus
}

func (s *service) ValidateCheckoutState(ctx context.Context, clinicID, planID *uuid.UUID) (*CheckoutState, error) {
	if clinicID == nil {
		return &CheckoutState{IsValid: true}, nil
	}
	ctx = s.logg.WithClinicID(ctx, clinicID.String())

	state := &CheckoutState{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		clinic, err := repo.FindClinic(ctx, *clinicID)
		if err != nil {
			return err
		}
		if clinic == nil {
			state.Message = message("clinic not found")
			return nil
		}
		state.RegistrationCompleted = clinic.RegistrationCompleted

		inProgress, err := repo.FindPaymentInProgress(ctx, *clinicID, planID)
		if err != nil {
			return err
		}
		if inProgress != nil {
			state.HasActivePaymentProcess = true
			state.ActiveTransactionID = inProgress.PaddleTransactionID
		}

		active, err := repo.FindActiveSubscription(ctx, *clinicID, planID)
		if err != nil {
			return err
		}
		if active != nil {
			expired, err := billing.RefreshOnRead(ctx, tx, repo, s.outbox, active, s.now())
			if err != nil {
				return err
			}
			state.HasActiveSubscription = !expired
		}
		return nil
	})
	if err != nil {
		s.logg.ErrorWithDump(ctx, "validate checkout state failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate checkout state")
	}

	switch {
	case state.Message != nil:
	case !state.RegistrationCompleted:
		state.Message = message(registrationIncompleteMessage)
	case state.HasActivePaymentProcess:
		state.Message = message(paymentInProgressMessage)
	case state.HasActiveSubscription:
		state.Message = message(alreadySubscribedMessage)
	default:
		state.IsValid = true
	}
	return state, nil
}

func (s *service) GetCheckoutResult(ctx context.Context, transactionID string) (*CheckoutLookup, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	sub, err := s.repo.FindSubscriptionByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return &CheckoutLookup{
		TransactionID: transactionID,
		ClinicID:      sub.ClinicID,
		PlanID:        sub.PlanID,
		Status:        sub.Status,
	}, nil
}

func message(text string) *string {
	return &text
}
