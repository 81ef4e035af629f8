package checkout

import (
	"github.com/salymed/salymed-backend/pkg/db/models"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

// Machine-checkable rejection reasons carried in error details.
const (
	ReasonClinicNotFound         = "clinic_not_found"
	ReasonRegistrationIncomplete = "registration_incomplete"
	ReasonDuplicatePayment       = "duplicate_payment_in_progress"
	ReasonAlreadySubscribed      = "already_subscribed"
	ReasonPlanUnavailable        = "plan_unavailable"
	ReasonGatewayFailure         = "gateway_failure"
)

const (
	detailTransactionID = "transactionId"
	detailExpiresAt     = "expiresAt"

	outcomeCreated     = "created"
	outcomeGatewayOnly = "created_without_clinic"

	paymentInProgressMessage      = "A payment is already in progress for this plan"
	alreadySubscribedMessage      = "Clinic already has an active subscription for this plan"
	registrationIncompleteMessage = "Clinic registration must be completed before subscribing"
)

func validateClinic(clinic *models.Clinic) error {
	if clinic == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "clinic not found").
			WithReason(ReasonClinicNotFound, nil)
	}
	if !clinic.RegistrationCompleted {
		return pkgerrors.New(pkgerrors.CodeValidation, registrationIncompleteMessage).
			WithReason(ReasonRegistrationIncomplete, nil)
	}
	return nil
}

func validatePlan(plan *models.SubscriptionPlan) error {
	if plan == nil || !plan.IsActive {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription plan not found or inactive").
			WithReason(ReasonPlanUnavailable, nil)
	}
	if !plan.HasPrice() {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription plan has no configured price").
			WithReason(ReasonPlanUnavailable, nil)
	}
	return nil
}

func duplicatePaymentError(sub *models.Subscription) error {
	txID := ""
	if sub != nil && sub.PaddleTransactionID != nil {
		txID = *sub.PaddleTransactionID
	}
	return pkgerrors.New(pkgerrors.CodeConflict, paymentInProgressMessage).
		WithReason(ReasonDuplicatePayment, map[string]any{detailTransactionID: txID})
}

func alreadySubscribedError(sub *models.Subscription) error {
	return pkgerrors.New(pkgerrors.CodeConflict, alreadySubscribedMessage).
		WithReason(ReasonAlreadySubscribed, map[string]any{detailExpiresAt: sub.EndDate})
}

// TransactionIDFromError returns the in-flight transaction id attached to a
// duplicate payment rejection.
func TransactionIDFromError(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	txID, _ := details[detailTransactionID].(string)
	return txID
}
