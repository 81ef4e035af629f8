package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/salymed/salymed-backend/pkg/db"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/pagination"
)

// Repository is the subscription state store: clinics, plans, subscriptions,
// invoices and payment methods.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindClinic(ctx context.Context, id uuid.UUID) (*models.Clinic, error)
	LockClinic(ctx context.Context, id uuid.UUID) (*models.Clinic, error)

	FindPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindPlanByNumber(ctx context.Context, number int) (*models.SubscriptionPlan, error)
	FindActivePlanWithFeatures(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error)

	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindPaymentInProgress(ctx context.Context, clinicID uuid.UUID, planID *uuid.UUID) (*models.Subscription, error)
	FindActiveSubscription(ctx context.Context, clinicID uuid.UUID, planID *uuid.UUID) (*models.Subscription, error)
	FindLatestSubscription(ctx context.Context, clinicID uuid.UUID) (*models.Subscription, error)
	FindSubscriptionByTransactionID(ctx context.Context, paddleTransactionID string) (*models.Subscription, error)
	FindSubscriptionByPaddleID(ctx context.Context, paddleSubscriptionID string) (*models.Subscription, error)
	ExpireSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ClearElapsedTrials(ctx context.Context, now time.Time) (int64, error)

	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoiceByTransactionID(ctx context.Context, paddleTransactionID string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, params ListInvoicesQuery) ([]models.Invoice, *pagination.Cursor, error)

	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error
	FindPaymentMethodByCard(ctx context.Context, key CardKey) (*models.PaymentMethod, error)
	ClearDefaultPaymentMethod(ctx context.Context, clinicID uuid.UUID) error
	ListPaymentMethodsByClinic(ctx context.Context, clinicID uuid.UUID) ([]models.PaymentMethod, error)
}

// ListInvoicesQuery configures invoice list queries.
type ListInvoicesQuery struct {
	ClinicID uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}

// CardKey identifies an equivalent saved card for a clinic.
type CardKey struct {
	ClinicID    uuid.UUID
	Last4       string
	ExpiryMonth int
	ExpiryYear  int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindClinic(ctx context.Context, id uuid.UUID) (*models.Clinic, error) {
	var clinic models.Clinic
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&clinic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &clinic, nil
}

// LockClinic loads the clinic row with FOR UPDATE on Postgres so that
// concurrent checkouts for the same clinic serialize.
func (r *repository) LockClinic(ctx context.Context, id uuid.UUID) (*models.Clinic, error) {
	var clinic models.Clinic
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&clinic).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &clinic, nil
}

func (r *repository) FindPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindPlanByNumber(ctx context.Context, number int) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("plan_number = ?", number).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func activeFeatures(tx *gorm.DB) *gorm.DB {
	return tx.Where("plan_features.is_active = ?", true).
		Order("plan_features.display_order ASC").
		Order("plan_features.name ASC")
}

func (r *repository) FindActivePlanWithFeatures(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).
		Preload("Features", activeFeatures).
		Where("id = ? AND is_active = ?", id, true).
		First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	if err := r.db.WithContext(ctx).
		Preload("Features", activeFeatures).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Order("name ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(subscription).Error
}

// FindPaymentInProgress returns the row holding the payment slot for the
// clinic, optionally scoped to a plan.
func (r *repository) FindPaymentInProgress(ctx context.Context, clinicID uuid.UUID, planID *uuid.UUID) (*models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("clinic_id = ? AND has_active_payment_process = ?", clinicID, true)
	if planID != nil {
		query = query.Where("plan_id = ?", *planID)
	}
	return r.firstSubscription(ctx, query.Order("created_at DESC"))
}

// FindActiveSubscription returns the Active row with the latest end date,
// optionally scoped to a plan. Rows whose end date has passed are returned too;
// callers decide on expiry.
func (r *repository) FindActiveSubscription(ctx context.Context, clinicID uuid.UUID, planID *uuid.UUID) (*models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Preload("Plan").
		Where("clinic_id = ? AND status = ?", clinicID, enums.SubscriptionStatusActive)
	if planID != nil {
		query = query.Where("plan_id = ?", *planID)
	}
	return r.firstSubscription(ctx, query.Order("end_date DESC").Order("created_at DESC"))
}

func (r *repository) FindLatestSubscription(ctx context.Context, clinicID uuid.UUID) (*models.Subscription, error) {
	return r.firstSubscription(ctx, r.db.WithContext(ctx).
		Where("clinic_id = ?", clinicID).
		Order("created_at DESC"))
}

func (r *repository) FindSubscriptionByTransactionID(ctx context.Context, paddleTransactionID string) (*models.Subscription, error) {
	if paddleTransactionID == "" {
		return nil, nil
	}
	return r.firstSubscription(ctx, r.db.WithContext(ctx).
		Preload("Plan").
		Where("paddle_transaction_id = ?", paddleTransactionID))
}

func (r *repository) FindSubscriptionByPaddleID(ctx context.Context, paddleSubscriptionID string) (*models.Subscription, error) {
	if paddleSubscriptionID == "" {
		return nil, nil
	}
	return r.firstSubscription(ctx, r.db.WithContext(ctx).
		Where("paddle_subscription_id = ?", paddleSubscriptionID).
		Order("created_at DESC"))
}

func (r *repository) firstSubscription(_ context.Context, query *gorm.DB) (*models.Subscription, error) {
	var sub models.Subscription
	if err := query.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ExpireSubscriptions transitions up to limit Active rows whose end date is at
// or before now to Expired and returns them.
func (r *repository) ExpireSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 500
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status = ? AND end_date <= ?", enums.SubscriptionStatusActive, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id IN ? AND status = ?", ids, enums.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":     enums.SubscriptionStatusExpired,
			"updated_at": now,
		}).Error; err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Status = enums.SubscriptionStatusExpired
		subs[i].UpdatedAt = now
	}
	return subs, nil
}

// ClearElapsedTrials drops the trial flag from rows whose trial window closed.
func (r *repository) ClearElapsedTrials(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("is_trial_period = ? AND trial_end_date IS NOT NULL AND trial_end_date <= ?", true, now).
		Updates(map[string]any{
			"is_trial_period": false,
			"updated_at":      now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindInvoiceByTransactionID(ctx context.Context, paddleTransactionID string) (*models.Invoice, error) {
	if paddleTransactionID == "" {
		return nil, nil
	}
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("paddle_transaction_id = ?", paddleTransactionID).
		First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListInvoices(ctx context.Context, params ListInvoicesQuery) ([]models.Invoice, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("clinic_id = ?", params.ClinicID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var invoices []models.Invoice
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&invoices).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(invoices, limit, func(inv models.Invoice) pagination.Cursor {
		return pagination.Cursor{CreatedAt: inv.CreatedAt, ID: inv.ID}
	})
	return page, next, nil
}

func (r *repository) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(method).Error
}

func (r *repository) FindPaymentMethodByCard(ctx context.Context, key CardKey) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND card_last4 = ? AND card_expiry_month = ? AND card_expiry_year = ?",
			key.ClinicID, key.Last4, key.ExpiryMonth, key.ExpiryYear).
		First(&method).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *repository) ClearDefaultPaymentMethod(ctx context.Context, clinicID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("clinic_id = ? AND is_default = ?", clinicID, true).
		Updates(map[string]any{
			"is_default": false,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) ListPaymentMethodsByClinic(ctx context.Context, clinicID uuid.UUID) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND is_active = ?", clinicID, true).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}
