package checkout

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/paddle"
)

const activePaymentIndex = "ux_subscriptions_active_payment"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gateway interface {
	CreateTransaction(ctx context.Context, req paddle.TransactionRequest) (*paddle.Transaction, error)
}

type checkoutMetrics interface {
	IncCheckout(outcome string)
	ObserveGateway(duration time.Duration)
}

// Service opens Paddle checkouts and tracks the resulting pending subscriptions.
type Service interface {
	CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error)
	ValidateCheckoutState(ctx context.Context, clinicID, planID *uuid.UUID) (*CheckoutState, error)
	ResolvePlanNumber(ctx context.Context, number int) (uuid.UUID, error)
	GetCheckoutResult(ctx context.Context, transactionID string) (*CheckoutLookup, error)
}

// CreateCheckoutInput is a subscription purchase request. PlanNumber is
// consulted only when PlanID is unset.
type CreateCheckoutInput struct {
	PlanID        uuid.UUID
	PlanNumber    int
	ClinicID      *uuid.UUID
	UserID        *uuid.UUID
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CheckoutResult points the caller at the hosted Paddle checkout.
type CheckoutResult struct {
	CheckoutURL    string
	TransactionID  string
	SubscriptionID *uuid.UUID
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Repo     billing.Repository
	Gateway  gateway
	TxRunner txRunner
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Billing  config.BillingConfig
	Metrics  checkoutMetrics
	Clock    func() time.Time
}

type service struct {
	repo    billing.Repository
	gateway gateway
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	billing config.BillingConfig
	trial   billing.TrialPolicy
	metrics checkoutMetrics
	now     func() time.Time
}

var (
	errPaymentRace   = errors.New("concurrent checkout won the payment slot")
	errNoCheckoutURL = errors.New("gateway returned no checkout url")
)

// NewService builds the checkout orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("billing repository required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		gateway: params.Gateway,
		tx:      params.TxRunner,
		outbox:  params.Outbox,
		logg:    params.Logger,
		billing: params.Billing,
		trial:   billing.TrialPolicyFrom(params.Billing),
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

func (s *service) CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error) {
	if input.PlanID == uuid.Nil && input.PlanNumber != 0 {
		planID, err := s.ResolvePlanNumber(ctx, input.PlanNumber)
		if err != nil {
			return nil, s.reject(ctx, err)
		}
		input.PlanID = planID
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "planId is required")
	}
	input.CustomerEmail = strings.TrimSpace(input.CustomerEmail)
	if input.CustomerEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customerEmail is required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"plan_id": input.PlanID.String()})
	if input.ClinicID != nil {
		ctx = s.logg.WithClinicID(ctx, input.ClinicID.String())
	}

	if input.ClinicID != nil {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			clinic, err := repo.LockClinic(ctx, *input.ClinicID)
			if err != nil {
				return err
			}
			if err := validateClinic(clinic); err != nil {
				return err
			}
			return s.ensureNoConflict(ctx, tx, repo, *input.ClinicID, input.PlanID)
		})
		if err != nil {
			return nil, s.reject(ctx, err)
		}
	}

	plan, err := s.repo.FindPlan(ctx, input.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if err := validatePlan(plan); err != nil {
		return nil, s.reject(ctx, err)
	}

	txn, err := s.openTransaction(ctx, plan, input)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID)
	result := &CheckoutResult{CheckoutURL: txn.CheckoutURL, TransactionID: txn.ID}

	if input.ClinicID == nil {
		s.logg.Info(ctx, "checkout created without clinic, no subscription recorded")
		s.count(outcomeGatewayOnly)
		return result, nil
	}

	sub := s.pendingSubscription(*input.ClinicID, input.UserID, plan, txn.ID)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureNoConflict(ctx, tx, repo, *input.ClinicID, input.PlanID); err != nil {
			return err
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			if isPaymentSlotViolation(err) {
				return errPaymentRace
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errPaymentRace) {
		existing, lookupErr := s.repo.FindPaymentInProgress(ctx, *input.ClinicID, &input.PlanID)
		if lookupErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "load payment in progress")
		}
		err = duplicatePaymentError(existing)
	}
	if err != nil {
		s.logg.Warn(ctx, "paddle transaction opened but pending subscription was not recorded")
		return nil, s.reject(ctx, err)
	}

	result.SubscriptionID = &sub.ID
	s.logg.Info(ctx, "pending subscription created")
	s.count(outcomeCreated)
	return result, nil
}

// ResolvePlanNumber maps a numeric catalog id onto the plan's uuid.
func (s *service) ResolvePlanNumber(ctx context.Context, number int) (uuid.UUID, error) {
	if number <= 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "planId must be a positive number").
			WithDetails(map[string]any{"field": "planId"})
	}
	plan, err := s.repo.FindPlanByNumber(ctx, number)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription plan not found or inactive").
			WithReason(ReasonPlanUnavailable, nil)
	}
	return plan.ID, nil
}

// ensureNoConflict rejects a checkout when a payment is already in flight or a
// live subscription exists for the pair. A lapsed Active row is expired on the way.
func (s *service) ensureNoConflict(ctx context.Context, tx *gorm.DB, repo billing.Repository, clinicID, planID uuid.UUID) error {
	inProgress, err := repo.FindPaymentInProgress(ctx, clinicID, &planID)
	if err != nil {
		return err
	}
	if inProgress != nil {
		return duplicatePaymentError(inProgress)
	}

	active, err := repo.FindActiveSubscription(ctx, clinicID, &planID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	expired, err := billing.RefreshOnRead(ctx, tx, repo, s.outbox, active, s.now())
	if err != nil {
		return err
	}
	if !expired {
		return alreadySubscribedError(active)
	}
	return nil
}

func (s *service) openTransaction(ctx context.Context, plan *models.SubscriptionPlan, input CreateCheckoutInput) (*paddle.Transaction, error) {
	customData := map[string]string{
		"plan_id":    plan.ID.String(),
		"cancel_url": firstNonEmpty(input.CancelURL, s.billing.CancelURL()),
	}
	if plan.Number != nil {
		customData["plan_number"] = strconv.Itoa(*plan.Number)
	}
	if input.ClinicID != nil {
		customData["clinic_id"] = input.ClinicID.String()
	}
	if input.UserID != nil {
		customData["user_id"] = input.UserID.String()
	}

	started := time.Now()
	txn, err := s.gateway.CreateTransaction(ctx, paddle.TransactionRequest{
		PriceID:       *plan.PaddlePriceID,
		CustomerEmail: input.CustomerEmail,
		CustomData:    customData,
		SuccessURL:    firstNonEmpty(input.SuccessURL, s.billing.SuccessURL()),
	})
	if s.metrics != nil {
		s.metrics.ObserveGateway(time.Since(started))
	}
	if err != nil {
		s.logg.ErrorWithDump(ctx, "paddle checkout creation failed", err)
		s.count(ReasonGatewayFailure)
		if pkgerrors.IsCode(err, pkgerrors.CodeGateway) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create checkout session").
			WithReason(ReasonGatewayFailure, nil)
	}
	if txn == nil || strings.TrimSpace(txn.ID) == "" || strings.TrimSpace(txn.CheckoutURL) == "" {
		s.logg.Warn(ctx, "paddle returned a transaction without a checkout url")
		s.count(ReasonGatewayFailure)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, errNoCheckoutURL, "create checkout session").
			WithReason(ReasonGatewayFailure, nil)
	}
	return txn, nil
}

func (s *service) pendingSubscription(clinicID uuid.UUID, userID *uuid.UUID, plan *models.SubscriptionPlan, transactionID string) *models.Subscription {
	sub := &models.Subscription{
		ClinicID:                clinicID,
		PlanID:                  plan.ID,
		UserID:                  userID,
		Status:                  enums.SubscriptionStatusPendingPayment,
		AmountPaid:              plan.Price,
		Currency:                plan.Currency,
		PaddleTransactionID:     &transactionID,
		PaymentMethod:           billing.PaymentMethodPaddle,
		HasActivePaymentProcess: true,
		AutoRenew:               true,
	}
	s.trial.Window(s.now(), plan.Period).Apply(sub)
	return sub
}

func (s *service) reject(ctx context.Context, err error) error {
	reason := pkgerrors.Reason(err)
	if reason == "" {
		s.logg.ErrorWithDump(ctx, "checkout failed", err)
		if pkgerrors.As(err) == nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout storage failure")
		}
		return err
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "checkout rejected")
	s.count(reason)
	return err
}

func (s *service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCheckout(outcome)
	}
}

// isPaymentSlotViolation matches only the one-payment-per-clinic-and-plan
// index. sqlite names the indexed columns instead of the index.
func isPaymentSlotViolation(err error) bool {
	return db.IsUniqueViolation(err, activePaymentIndex) ||
		db.IsUniqueViolation(err, "subscriptions.clinic_id, subscriptions.plan_id")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
