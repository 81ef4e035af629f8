package paddlewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/paymentmethods"
	"github.com/salymed/salymed-backend/internal/subscriptions"
	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db/dbtest"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/paddle"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]bool{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) WebhookEventKey(provider, eventID string) string {
	return "salymed:webhook:" + provider + ":" + eventID
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

type failingRepo struct {
	billing.Repository
}

func (f failingRepo) WithTx(tx *gorm.DB) billing.Repository {
	return failingRepo{Repository: f.Repository.WithTx(tx)}
}

func (f failingRepo) FindSubscriptionByTransactionID(context.Context, string) (*models.Subscription, error) {
	return nil, errors.New("connection reset")
}

type fixture struct {
	conn   *gorm.DB
	svc    *Service
	clinic models.Clinic
	plan   models.SubscriptionPlan
	now    time.Time
}

type fixtureOptions struct {
	billing config.BillingConfig
	guard   *EventGuard
	noAudit bool
	repo    func(billing.Repository) billing.Repository
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "paddle-webhook-test", Output: io.Discard})
	now := time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := billing.NewRepository(conn)
	payments, err := paymentmethods.NewService(repo)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	activator, err := subscriptions.NewActivator(subscriptions.ActivatorParams{
		Repo:     repo,
		Payments: payments,
		Outbox:   emitter,
		Trial:    billing.TrialPolicyFrom(opts.billing),
		Clock:    clock,
	})
	require.NoError(t, err)

	var audit *AuditLog
	if !opts.noAudit {
		audit = NewAuditLog(conn)
	}
	var processorRepo billing.Repository = repo
	if opts.repo != nil {
		processorRepo = opts.repo(repo)
	}
	svc, err := NewService(ServiceParams{
		Repo:      processorRepo,
		Activator: activator,
		TxRunner:  client,
		Audit:     audit,
		Guard:     opts.guard,
		Outbox:    emitter,
		Logger:    logg,
		Billing:   opts.billing,
		Clock:     clock,
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

func (f *fixture) pending(t *testing.T, txID string) models.Subscription {
	t.Helper()
	return dbtest.SeedSubscription(t, f.conn, models.Subscription{
		ClinicID:                f.clinic.ID,
		PlanID:                  f.plan.ID,
		StartDate:               f.now.Add(-time.Hour),
		EndDate:                 f.now.Add(-time.Hour).AddDate(0, 1, 0),
		AmountPaid:              f.plan.Price,
		PaddleTransactionID:     &txID,
		HasActivePaymentProcess: true,
	})
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, f.conn.First(&sub, "id = ?", id).Error)
	return sub
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func notification(t *testing.T, eventID string, eventType enums.PaddleEventType, data map[string]any) (paddle.Notification, []byte) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event_id":    eventID,
		"event_type":  eventType,
		"occurred_at": "2026-03-11T15:29:00Z",
		"data":        data,
	})
	require.NoError(t, err)
	var n paddle.Notification
	require.NoError(t, json.Unmarshal(raw, &n))
	return n, raw
}

func completed(t *testing.T, eventID, txID string, clinicID uuid.UUID) (paddle.Notification, []byte) {
	return notification(t, eventID, enums.PaddleEventTransactionCompleted, map[string]any{
		"id":              txID,
		"status":          "completed",
		"subscription_id": "sub_01",
		"custom_data":     map[string]any{"clinic_id": clinicID.String()},
		"payments": []map[string]any{{
			"payment_method_id": "paymtd_01",
			"method_details": map[string]any{
				"type": "card",
				"card": map[string]any{"type": "visa", "last4": "4242", "expiry_month": 12, "expiry_year": 2030},
			},
		}},
	})
}

func TestTransactionCompletedActivatesOnce(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")
	n, raw := completed(t, "evt_1", "tx_1", f.clinic.ID)

	res := f.svc.Process(context.Background(), n, raw)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	require.NoError(t, res.Err)

	stored := f.reload(t, sub.ID)
	require.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	require.False(t, stored.HasActivePaymentProcess)
	require.Equal(t, "sub_01", *stored.PaddleSubscriptionID)
	require.Equal(t, "tx_1", *stored.TransactionID)

	res = f.svc.Process(context.Background(), n, raw)
	require.Equal(t, OutcomeDuplicate, res.Outcome)

	require.EqualValues(t, 1, f.count(t, &models.Invoice{}))
	require.EqualValues(t, 1, f.count(t, &models.PaymentMethod{}))

	var audit models.WebhookEvent
	require.NoError(t, f.conn.First(&audit, "event_id = ?", "evt_1").Error)
	require.Equal(t, 2, audit.DeliveryCount)
	require.Equal(t, string(OutcomeProcessed), *audit.Outcome)
	require.NotNil(t, audit.ProcessedAt)
}

func TestReplayWithNewEventIDStillCreatesOneInvoice(t *testing.T) {
	f := newFixture(t, fixtureOptions{noAudit: true})
	f.pending(t, "tx_1")

	first, raw := completed(t, "evt_1", "tx_1", f.clinic.ID)
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), first, raw).Outcome)
	paid, raw := notification(t, "evt_2", enums.PaddleEventTransactionPaid, map[string]any{"id": "tx_1", "subscription_id": "sub_01"})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), paid, raw).Outcome)

	require.EqualValues(t, 1, f.count(t, &models.Invoice{}))
	require.EqualValues(t, 1, f.count(t, &models.PaymentMethod{}))

	var types []string
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Pluck("event_type", &types).Error)
	require.ElementsMatch(t, []string{
		string(enums.EventSubscriptionActivated),
		string(enums.EventInvoiceCreated),
	}, types)
}

func TestUnknownTransactionIsNoop(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.pending(t, "tx_1")
	n, raw := completed(t, "evt_999", "tx_999", f.clinic.ID)

	res := f.svc.Process(context.Background(), n, raw)
	require.Equal(t, OutcomeNotFound, res.Outcome)
	require.NoError(t, res.Err)
	require.Zero(t, f.count(t, &models.Invoice{}))
	require.Zero(t, f.count(t, &models.PaymentMethod{}))

	res = f.svc.Process(context.Background(), n, raw)
	require.Equal(t, OutcomeNotFound, res.Outcome, "not_found deliveries are retried")
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	n, raw := notification(t, "evt_adj", enums.PaddleEventType("adjustment.created"), map[string]any{"id": "adj_1"})

	res := f.svc.Process(context.Background(), n, raw)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.False(t, res.Failed())

	var audit models.WebhookEvent
	require.NoError(t, f.conn.First(&audit, "event_id = ?", "evt_adj").Error)
	require.Equal(t, string(OutcomeIgnored), *audit.Outcome)
}

func TestPaymentFailedKeepsSlotByDefault(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")
	n, raw := notification(t, "evt_f", enums.PaddleEventTransactionPaymentFailed, map[string]any{"id": "tx_1"})

	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)
	stored := f.reload(t, sub.ID)
	require.Equal(t, enums.SubscriptionStatusPaymentFailed, stored.Status)
	require.True(t, stored.HasActivePaymentProcess)
}

func TestPaymentFailedReleasesSlotWhenConfigured(t *testing.T) {
	f := newFixture(t, fixtureOptions{billing: config.BillingConfig{ReleaseOnFailure: true}})
	sub := f.pending(t, "tx_1")
	n, raw := notification(t, "evt_f", enums.PaddleEventTransactionPaymentFailed, map[string]any{"id": "tx_1"})

	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)
	stored := f.reload(t, sub.ID)
	require.Equal(t, enums.SubscriptionStatusPaymentFailed, stored.Status)
	require.False(t, stored.HasActivePaymentProcess)

	inProgress, err := billing.NewRepository(f.conn).FindPaymentInProgress(context.Background(), f.clinic.ID, &f.plan.ID)
	require.NoError(t, err)
	require.Nil(t, inProgress)
}

func TestPaymentFailedAfterActivationIgnored(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")
	n, raw := completed(t, "evt_1", "tx_1", f.clinic.ID)
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)

	failed, raw := notification(t, "evt_f", enums.PaddleEventTransactionPaymentFailed, map[string]any{"id": "tx_1"})
	require.Equal(t, OutcomeIgnored, f.svc.Process(context.Background(), failed, raw).Outcome)
	require.Equal(t, enums.SubscriptionStatusActive, f.reload(t, sub.ID).Status)
}

func TestSubscriptionCreatedLinksPaddleSubscription(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")

	n, raw := notification(t, "evt_s1", enums.PaddleEventSubscriptionCreated, map[string]any{
		"id":             "sub_77",
		"transaction_id": "tx_1",
	})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)
	require.Equal(t, "sub_77", *f.reload(t, sub.ID).PaddleSubscriptionID)
}

func TestSubscriptionCreatedFallsBackToClinic(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")

	n, raw := notification(t, "evt_s2", enums.PaddleEventSubscriptionCreated, map[string]any{
		"id":          "sub_88",
		"custom_data": map[string]any{"clinic_id": f.clinic.ID.String()},
	})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)
	require.Equal(t, "sub_88", *f.reload(t, sub.ID).PaddleSubscriptionID)

	orphan, raw := notification(t, "evt_s3", enums.PaddleEventSubscriptionCreated, map[string]any{"id": "sub_99"})
	require.Equal(t, OutcomeNotFound, f.svc.Process(context.Background(), orphan, raw).Outcome)
}

func TestSubscriptionCanceled(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")
	n, raw := completed(t, "evt_1", "tx_1", f.clinic.ID)
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)

	updated, raw := notification(t, "evt_u", enums.PaddleEventSubscriptionUpdated, map[string]any{"id": "sub_01"})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), updated, raw).Outcome)

	canceled, raw := notification(t, "evt_c", enums.PaddleEventSubscriptionCanceled, map[string]any{"id": "sub_01"})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), canceled, raw).Outcome)

	stored := f.reload(t, sub.ID)
	require.Equal(t, enums.SubscriptionStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	require.Equal(t, f.now, stored.CancelledAt.UTC())
	require.False(t, stored.AutoRenew)

	unknown, raw := notification(t, "evt_c2", enums.PaddleEventSubscriptionCanceled, map[string]any{"id": "sub_404"})
	require.Equal(t, OutcomeNotFound, f.svc.Process(context.Background(), unknown, raw).Outcome)
}

func TestCanceledPendingSubscriptionIgnored(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")
	paddleID := "sub_pending"
	require.NoError(t, f.conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Update("paddle_subscription_id", paddleID).Error)

	n, raw := notification(t, "evt_c", enums.PaddleEventSubscriptionCanceled, map[string]any{"id": paddleID})
	require.Equal(t, OutcomeIgnored, f.svc.Process(context.Background(), n, raw).Outcome)
	require.Equal(t, enums.SubscriptionStatusPendingPayment, f.reload(t, sub.ID).Status)
}

func TestSubscriptionEventsMatchOnSubscriptionIDField(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")

	created, raw := notification(t, "evt_s1", enums.PaddleEventSubscriptionCreated, map[string]any{
		"subscription_id": "sub_42",
		"custom_data":     map[string]any{"clinic_id": f.clinic.ID.String()},
	})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), created, raw).Outcome)
	require.Equal(t, "sub_42", *f.reload(t, sub.ID).PaddleSubscriptionID)

	n, raw := notification(t, "evt_1", enums.PaddleEventTransactionCompleted, map[string]any{
		"id":              "tx_1",
		"status":          "completed",
		"subscription_id": "sub_42",
	})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)

	updated, raw := notification(t, "evt_u", enums.PaddleEventSubscriptionUpdated, map[string]any{
		"id":              "txn_renewal",
		"status":          "active",
		"subscription_id": "sub_42",
	})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), updated, raw).Outcome)

	canceled, raw := notification(t, "evt_c", enums.PaddleEventSubscriptionCanceled, map[string]any{"subscription_id": "sub_42"})
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), canceled, raw).Outcome)

	stored := f.reload(t, sub.ID)
	require.Equal(t, enums.SubscriptionStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	require.Equal(t, "sub_42", *stored.PaddleSubscriptionID)
}

func TestSubscriptionCreatedWithoutIDKeepsRow(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sub := f.pending(t, "tx_1")
	linked := "sub_existing"
	require.NoError(t, f.conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Update("paddle_subscription_id", linked).Error)

	n, raw := notification(t, "evt_s", enums.PaddleEventSubscriptionCreated, map[string]any{
		"custom_data": map[string]any{"clinic_id": f.clinic.ID.String()},
	})
	require.Equal(t, OutcomeIgnored, f.svc.Process(context.Background(), n, raw).Outcome)
	require.Equal(t, linked, *f.reload(t, sub.ID).PaddleSubscriptionID)

	canceled, raw := notification(t, "evt_c", enums.PaddleEventSubscriptionCanceled, map[string]any{"status": "canceled"})
	require.Equal(t, OutcomeNotFound, f.svc.Process(context.Background(), canceled, raw).Outcome)
	require.Equal(t, enums.SubscriptionStatusPendingPayment, f.reload(t, sub.ID).Status)
}

func TestGuardShortCircuitsAndReleasesOnFailure(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewEventGuard(store, time.Hour)
	require.NoError(t, err)

	f := newFixture(t, fixtureOptions{guard: guard, noAudit: true})
	f.pending(t, "tx_1")
	n, raw := completed(t, "evt_1", "tx_1", f.clinic.ID)
	require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)
	require.Equal(t, OutcomeDuplicate, f.svc.Process(context.Background(), n, raw).Outcome)

	broken := newFixture(t, fixtureOptions{
		guard: guard,
		repo:  func(r billing.Repository) billing.Repository { return failingRepo{Repository: r} },
	})
	other, raw := completed(t, "evt_2", "tx_2", broken.clinic.ID)
	res := broken.svc.Process(context.Background(), other, raw)
	require.True(t, res.Failed())
	require.ErrorContains(t, res.Err, "connection reset")
	require.False(t, store.keys[store.WebhookEventKey(provider, "evt_2")])

	var audit models.WebhookEvent
	require.NoError(t, broken.conn.First(&audit, "event_id = ?", "evt_2").Error)
	require.Equal(t, string(OutcomeFailed), *audit.Outcome)
	require.Contains(t, *audit.ProcessingError, "connection reset")
}

func TestNewEventGuardValidates(t *testing.T) {
	_, err := NewEventGuard(nil, time.Hour)
	require.Error(t, err)
	_, err = NewEventGuard(newMemoryStore(), -time.Second)
	require.Error(t, err)

	guard, err := NewEventGuard(newMemoryStore(), 0)
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	require.Error(t, err)
	require.Error(t, guard.Release(context.Background(), ""))
}

func TestManyDeliveriesSameTransaction(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.pending(t, "tx_1")
	for i := 0; i < 4; i++ {
		n, raw := completed(t, fmt.Sprintf("evt_%d", i), "tx_1", f.clinic.ID)
		require.Equal(t, OutcomeProcessed, f.svc.Process(context.Background(), n, raw).Outcome)
	}
	require.EqualValues(t, 1, f.count(t, &models.Invoice{}))
	require.EqualValues(t, 1, f.count(t, &models.PaymentMethod{}))
	require.EqualValues(t, 4, f.count(t, &models.WebhookEvent{}))
}
