package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/paymentmethods"
	"github.com/salymed/salymed-backend/pkg/db/models"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/pagination"
)

// maxExpiredPerRead bounds how many lapsed Active rows a single read repairs.
const maxExpiredPerRead = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the subscription read and ops surface.
type Service interface {
	Status(ctx context.Context, clinicID uuid.UUID) (*StatusView, error)
	Current(ctx context.Context, clinicID uuid.UUID) (*SubscriptionView, error)
	ListInvoices(ctx context.Context, clinicID uuid.UUID, params pagination.Params) (*InvoicePage, error)
	ListPaymentMethods(ctx context.Context, clinicID uuid.UUID) ([]PaymentMethodView, error)
	ActivateManually(ctx context.Context, transactionID string, actorID *uuid.UUID) (*SubscriptionView, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              billing.Repository
	Payments          paymentmethods.Service
	Activator         *Activator
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo      billing.Repository
	payments  paymentmethods.Service
	activator *Activator
	outbox    outbox.Emitter
	txRunner  txRunner
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("billing repo required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment method service required")
	}
	if params.Activator == nil {
		return nil, errors.New("activator required")
	}
	if params.TransactionRunner == nil {
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
		repo:      params.Repo,
		payments:  params.Payments,
		activator: params.Activator,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
		now:       clock,
	}, nil
}

func (s *service) Status(ctx context.Context, clinicID uuid.UUID) (*StatusView, error) {
	live, err := s.live(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	return statusFromSubscription(live), nil
}

func (s *service) Current(ctx context.Context, clinicID uuid.UUID) (*SubscriptionView, error) {
	live, err := s.live(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}
	return subscriptionView(live), nil
}

// live returns the clinic's live subscription, expiring any lapsed Active rows
// it meets on the way.
func (s *service) live(ctx context.Context, clinicID uuid.UUID) (*models.Subscription, error) {
	if clinicID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clinicId is required")
	}
	ctx = s.logg.WithClinicID(ctx, clinicID.String())

	var live *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for i := 0; i < maxExpiredPerRead; i++ {
			sub, err := repo.FindActiveSubscription(ctx, clinicID, nil)
			if err != nil {
				return err
			}
			if sub == nil {
				return nil
			}
			expired, err := billing.RefreshOnRead(ctx, tx, repo, s.outbox, sub, s.now())
			if err != nil {
				return err
			}
			if !expired {
				live = sub
				return nil
			}
			s.logg.Info(s.logg.WithField(ctx, "subscription_id", sub.ID.String()), "subscription expired on read")
		}
		return nil
	})
	if err != nil {
		s.logg.ErrorWithDump(ctx, "load subscription failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return live, nil
}

func (s *service) ListInvoices(ctx context.Context, clinicID uuid.UUID, params pagination.Params) (*InvoicePage, error) {
	if clinicID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clinicId is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	invoices, next, err := s.repo.ListInvoices(ctx, billing.ListInvoicesQuery{
		ClinicID: clinicID,
		Limit:    params.Limit,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	page := &InvoicePage{Invoices: invoiceViews(invoices)}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) ListPaymentMethods(ctx context.Context, clinicID uuid.UUID) ([]PaymentMethodView, error) {
	methods, err := s.payments.ListByClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	return paymentMethodViews(methods), nil
}

// ActivateManually runs the webhook activation path for a transaction whose
// confirmation never arrived. No card snapshot is available here.
func (s *service) ActivateManually(ctx context.Context, transactionID string, actorID *uuid.UUID) (*SubscriptionView, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	ctx = s.logg.WithTransactionID(ctx, transactionID)

	var activated *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindSubscriptionByTransactionID(ctx, transactionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		result, err := s.activator.Activate(ctx, tx, sub, Activation{
			TransactionID: transactionID,
			Source:        SourceManual,
			UserID:        actorID,
		})
		if err != nil {
			return err
		}
		activated = result.Subscription
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotActivatable):
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription can no longer be activated")
	case pkgerrors.As(err) != nil:
		return nil, err
	default:
		s.logg.ErrorWithDump(ctx, "manual activation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate subscription")
	}

	s.logg.Info(s.logg.WithField(ctx, "subscription_id", activated.ID.String()), "subscription activated manually")
	return subscriptionView(activated), nil
}
