package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db/dbtest"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

func TestValidateCheckoutStateWithoutClinic(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	state, err := f.svc.ValidateCheckoutState(context.Background(), nil, nil)
	require.NoError(t, err)
	require.True(t, state.IsValid)
	require.Nil(t, state.Message)
}

func TestValidateCheckoutStateReady(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	state, err := f.svc.ValidateCheckoutState(context.Background(), &f.clinic.ID, &f.plan.ID)
	require.NoError(t, err)
	require.True(t, state.IsValid)
	require.True(t, state.RegistrationCompleted)
	require.False(t, state.HasActivePaymentProcess)
	require.False(t, state.HasActiveSubscription)
}

func TestValidateCheckoutStateUnknownClinic(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	missing := uuid.New()
	state, err := f.svc.ValidateCheckoutState(context.Background(), &missing, nil)
	require.NoError(t, err)
	require.False(t, state.IsValid)
	require.Equal(t, "clinic not found", *state.Message)
}

func TestValidateCheckoutStateIncompleteRegistration(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	clinic := dbtest.SeedClinic(t, f.conn, false)
	state, err := f.svc.ValidateCheckoutState(context.Background(), &clinic.ID, nil)
	require.NoError(t, err)
	require.False(t, state.IsValid)
	require.Equal(t, registrationIncompleteMessage, *state.Message)
}

func TestValidateCheckoutStateReportsPaymentInProgress(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	result, err := f.svc.CreateCheckout(context.Background(), f.input())
	require.NoError(t, err)

	state, err := f.svc.ValidateCheckoutState(context.Background(), &f.clinic.ID, &f.plan.ID)
	require.NoError(t, err)
	require.False(t, state.IsValid)
	require.True(t, state.HasActivePaymentProcess)
	require.NotNil(t, state.ActiveTransactionID)
	require.Equal(t, result.TransactionID, *state.ActiveTransactionID)
	require.Equal(t, paymentInProgressMessage, *state.Message)
}

func TestValidateCheckoutStateActiveAndLapsedSubscriptions(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:  f.clinic.ID,
		PlanID:    f.plan.ID,
		Status:    enums.SubscriptionStatusActive,
		StartDate: f.now.AddDate(0, -1, 0),
		EndDate:   f.now.AddDate(0, 0, 10),
	})
	state, err := f.svc.ValidateCheckoutState(context.Background(), &f.clinic.ID, &f.plan.ID)
	require.NoError(t, err)
	require.False(t, state.IsValid)
	require.True(t, state.HasActiveSubscription)
	require.Equal(t, alreadySubscribedMessage, *state.Message)

	other := dbtest.SeedClinic(t, f.conn, true)
	lapsed := dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:  other.ID,
		PlanID:    f.plan.ID,
		Status:    enums.SubscriptionStatusActive,
		StartDate: f.now.AddDate(0, -2, 0),
		EndDate:   f.now.AddDate(0, 0, -1),
	})
	state, err = f.svc.ValidateCheckoutState(context.Background(), &other.ID, &f.plan.ID)
	require.NoError(t, err)
	require.True(t, state.IsValid)
	require.False(t, state.HasActiveSubscription)

	var stored models.Subscription
	require.NoError(t, f.conn.First(&stored, "id = ?", lapsed.ID).Error)
	require.Equal(t, enums.SubscriptionStatusExpired, stored.Status)
}

func TestGetCheckoutResult(t *testing.T) {
	f := newFixture(t, config.BillingConfig{})
	created, err := f.svc.CreateCheckout(context.Background(), f.input())
	require.NoError(t, err)

	lookup, err := f.svc.GetCheckoutResult(context.Background(), " "+created.TransactionID+" ")
	require.NoError(t, err)
	require.Equal(t, created.TransactionID, lookup.TransactionID)
	require.Equal(t, f.clinic.ID, lookup.ClinicID)
	require.Equal(t, f.plan.ID, lookup.PlanID)
	require.Equal(t, enums.SubscriptionStatusPendingPayment, lookup.Status)

	_, err = f.svc.GetCheckoutResult(context.Background(), "txn_unknown")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.GetCheckoutResult(context.Background(), "  ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
