package subscriptions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/paymentmethods"
	"github.com/salymed/salymed-backend/pkg/db/dbtest"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/pagination"
)

type fixture struct {
	conn   *gorm.DB
	svc    Service
	clinic models.Clinic
	plan   models.SubscriptionPlan
	now    time.Time
}

func newFixture(t *testing.T, trial billing.TrialPolicy) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "subscriptions-test", Output: io.Discard})
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := billing.NewRepository(conn)
	payments, err := paymentmethods.NewService(repo)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	activator, err := NewActivator(ActivatorParams{Repo: repo, Payments: payments, Outbox: emitter, Trial: trial, Clock: clock})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Payments:          payments,
		Activator:         activator,
		Outbox:            emitter,
		TransactionRunner: client,
		Logger:            logg,
		Clock:             clock,
	})
	require.NoError(t, err)
	return &fixture{
		conn:   conn,
		svc:    svc,
		clinic: dbtest.SeedClinic(t, conn, true),
		plan:   dbtest.SeedPlan(t, conn),
		now:    now,
	}
}

func (f *fixture) seed(t *testing.T, status enums.SubscriptionStatus, start, end time.Time) models.Subscription {
	t.Helper()
	return dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:   f.clinic.ID,
		PlanID:     f.plan.ID,
		Status:     status,
		StartDate:  start,
		EndDate:    end,
		AmountPaid: f.plan.Price,
	})
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, f.conn.First(&sub, "id = ?", id).Error)
	return sub
}

func (f *fixture) outboxTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("event_type", &types).Error)
	return types
}

func TestStatusReportsLiveSubscription(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	start := f.now.AddDate(0, 0, -3)
	end := f.now.AddDate(0, 0, 27)
	f.seed(t, enums.SubscriptionStatusActive, start, end)

	view, err := f.svc.Status(context.Background(), f.clinic.ID)
	require.NoError(t, err)
	require.True(t, view.HasActiveSubscription)
	require.Equal(t, "Basic", *view.SubscriptionType)
	require.Equal(t, end, view.ExpiresAt.UTC())
	require.Equal(t, start, view.StartedAt.UTC())
	require.False(t, view.IsTrialPeriod)
}

func TestStatusExpiresLapsedSubscriptionOnRead(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	sub := f.seed(t, enums.SubscriptionStatusActive, f.now.AddDate(0, -1, -1), f.now.AddDate(0, 0, -1))

	view, err := f.svc.Status(context.Background(), f.clinic.ID)
	require.NoError(t, err)
	require.False(t, view.HasActiveSubscription)
	require.Nil(t, view.ExpiresAt)

	require.Equal(t, enums.SubscriptionStatusExpired, f.reload(t, sub.ID).Status)
	require.Equal(t, []string{string(enums.EventSubscriptionExpired)}, f.outboxTypes(t))
}

func TestCurrentPrefersLatestEndingSubscription(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	premium := dbtest.SeedPlan(t, f.conn, dbtest.WithName("Premium", 2))
	older := dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:  f.clinic.ID,
		PlanID:    premium.ID,
		Status:    enums.SubscriptionStatusActive,
		StartDate: f.now.AddDate(0, 0, -20),
		EndDate:   f.now.AddDate(0, 0, 10),
	})
	latest := f.seed(t, enums.SubscriptionStatusActive, f.now.AddDate(0, 0, -5), f.now.AddDate(0, 0, 25))

	current, err := f.svc.Current(context.Background(), f.clinic.ID)
	require.NoError(t, err)
	require.Equal(t, latest.ID, current.ID)
	require.Equal(t, "Basic", current.PlanName)
	require.Equal(t, "monthly", current.Period)
	require.Equal(t, enums.SubscriptionStatusActive, f.reload(t, older.ID).Status)
}

func TestStatusExpiresEveryLapsedRow(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	premium := dbtest.SeedPlan(t, f.conn, dbtest.WithName("Premium", 2))
	first := f.seed(t, enums.SubscriptionStatusActive, f.now.AddDate(0, -1, -3), f.now.AddDate(0, 0, -3))
	second := dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:  f.clinic.ID,
		PlanID:    premium.ID,
		Status:    enums.SubscriptionStatusActive,
		StartDate: f.now.AddDate(0, -1, -1),
		EndDate:   f.now.AddDate(0, 0, -1),
	})

	view, err := f.svc.Status(context.Background(), f.clinic.ID)
	require.NoError(t, err)
	require.False(t, view.HasActiveSubscription)
	require.Equal(t, enums.SubscriptionStatusExpired, f.reload(t, first.ID).Status)
	require.Equal(t, enums.SubscriptionStatusExpired, f.reload(t, second.ID).Status)
	require.Len(t, f.outboxTypes(t), 2)
}

func TestStatusClearsElapsedTrialFlag(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	trialEnd := f.now.AddDate(0, 0, -1)
	sub := dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:      f.clinic.ID,
		PlanID:        f.plan.ID,
		Status:        enums.SubscriptionStatusActive,
		StartDate:     f.now.AddDate(0, -1, 0),
		EndDate:       f.now.AddDate(0, 1, 0),
		TrialEndDate:  &trialEnd,
		IsTrialPeriod: true,
	})

	view, err := f.svc.Status(context.Background(), f.clinic.ID)
	require.NoError(t, err)
	require.True(t, view.HasActiveSubscription)
	require.False(t, view.IsTrialPeriod)
	require.False(t, f.reload(t, sub.ID).IsTrialPeriod)
	require.Empty(t, f.outboxTypes(t))
}

func TestCurrentNotFound(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	f.seed(t, enums.SubscriptionStatusPendingPayment, f.now, f.now.AddDate(0, 1, 0))

	_, err := f.svc.Current(context.Background(), f.clinic.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Status(context.Background(), uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestActivateManuallySharesWebhookPath(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	txID := "tx_manual"
	sub := dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:                f.clinic.ID,
		PlanID:                  f.plan.ID,
		StartDate:               f.now,
		EndDate:                 f.now.AddDate(0, 1, 0),
		AmountPaid:              f.plan.Price,
		PaddleTransactionID:     &txID,
		HasActivePaymentProcess: true,
	})
	actor := uuid.New()

	view, err := f.svc.ActivateManually(context.Background(), txID, &actor)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusActive, view.Status)

	stored := f.reload(t, sub.ID)
	require.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	require.False(t, stored.HasActivePaymentProcess)
	require.Equal(t, txID, *stored.TransactionID)

	var invoices []models.Invoice
	require.NoError(t, f.conn.Find(&invoices).Error)
	require.Len(t, invoices, 1)
	require.Equal(t, txID, invoices[0].InvoiceNumber)
	require.True(t, invoices[0].Amount.Equal(decimal.RequireFromString("29.99")))
	require.Equal(t, enums.InvoiceStatusPaid, invoices[0].Status)

	_, err = f.svc.ActivateManually(context.Background(), txID, &actor)
	require.NoError(t, err)
	require.NoError(t, f.conn.Find(&invoices).Error)
	require.Len(t, invoices, 1)
	require.Equal(t, []string{
		string(enums.EventSubscriptionActivated),
		string(enums.EventInvoiceCreated),
	}, f.outboxTypes(t))
}

func TestActivateManuallyErrors(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})

	_, err := f.svc.ActivateManually(context.Background(), "tx_999", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.ActivateManually(context.Background(), " ", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	txID := "tx_cancelled"
	dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:            f.clinic.ID,
		PlanID:              f.plan.ID,
		Status:              enums.SubscriptionStatusCancelled,
		PaddleTransactionID: &txID,
	})
	_, err = f.svc.ActivateManually(context.Background(), txID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListInvoicesPagesNewestFirst(t *testing.T) {
	f := newFixture(t, billing.TrialPolicy{})
	sub := f.seed(t, enums.SubscriptionStatusActive, f.now, f.now.AddDate(0, 1, 0))
	for i := 0; i < 3; i++ {
		inv := models.Invoice{
			InvoiceNumber:       "tx_" + string(rune('a'+i)),
			SubscriptionID:      sub.ID,
			ClinicID:            f.clinic.ID,
			Amount:              f.plan.Price,
			OriginalPrice:       f.plan.Price,
			Subtotal:            f.plan.Price,
			Currency:            "USD",
			Status:              enums.InvoiceStatusPaid,
			BillingPeriodStart:  f.now,
			BillingPeriodEnd:    f.now.AddDate(0, 1, 0),
			DueDate:             f.now,
			PaymentMethod:       billing.PaymentMethodPaddle,
			PaddleTransactionID: "tx_" + string(rune('a'+i)),
			CreatedAt:           f.now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.conn.Create(&inv).Error)
	}

	page, err := f.svc.ListInvoices(context.Background(), f.clinic.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	require.Equal(t, "tx_c", page.Invoices[0].InvoiceNumber)
	require.Equal(t, "tx_b", page.Invoices[1].InvoiceNumber)
	require.NotEmpty(t, page.NextCursor)

	page, err = f.svc.ListInvoices(context.Background(), f.clinic.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	require.Equal(t, "tx_a", page.Invoices[0].InvoiceNumber)
	require.Empty(t, page.NextCursor)

	_, err = f.svc.ListInvoices(context.Background(), f.clinic.ID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
