package paymentmethods

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

// Service persists payment instrument snapshots reported by Paddle.
type Service interface {
	SaveSnapshot(ctx context.Context, tx *gorm.DB, input SnapshotInput) (*models.PaymentMethod, bool, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]models.PaymentMethod, error)
}

// SnapshotInput is the non-sensitive card data carried by a payment webhook.
type SnapshotInput struct {
	ClinicID              uuid.UUID
	UserID                *uuid.UUID
	PaddlePaymentMethodID string
	MethodType            string
	CardType              string
	Last4                 string
	ExpiryMonth           int
	ExpiryYear            int
	CardholderName        string
}

func (in SnapshotInput) cardKey() billing.CardKey {
	return billing.CardKey{
		ClinicID:    in.ClinicID,
		Last4:       strings.TrimSpace(in.Last4),
		ExpiryMonth: in.ExpiryMonth,
		ExpiryYear:  in.ExpiryYear,
	}
}

type service struct {
	repo billing.Repository
}

// NewService constructs a payment method service.
func NewService(repo billing.Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("billing repo required")
	}
	return &service{repo: repo}, nil
}

// SaveSnapshot stores the card as the clinic's new default unless an
// equivalent card (same last4 and expiry) already exists. Every earlier
// default is cleared first. The bool reports whether a row was written.
func (s *service) SaveSnapshot(ctx context.Context, tx *gorm.DB, input SnapshotInput) (*models.PaymentMethod, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.ClinicID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "clinic id required")
	}
	key := input.cardKey()
	if key.Last4 == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "card last4 required")
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindPaymentMethodByCard(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := repo.ClearDefaultPaymentMethod(ctx, input.ClinicID); err != nil {
		return nil, false, err
	}

	method := &models.PaymentMethod{
		ClinicID:        input.ClinicID,
		UserID:          input.UserID,
		Type:            methodType(input.MethodType),
		CardLast4:       &key.Last4,
		CardExpiryMonth: intPtr(input.ExpiryMonth),
		CardExpiryYear:  intPtr(input.ExpiryYear),
		IsDefault:       true,
		IsActive:        true,
	}
	method.PaddlePaymentMethodID = optional(input.PaddlePaymentMethodID)
	method.CardType = optional(input.CardType)
	method.CardholderName = optional(input.CardholderName)

	if err := repo.CreatePaymentMethod(ctx, method); err != nil {
		return nil, false, err
	}
	return method, true, nil
}

func (s *service) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]models.PaymentMethod, error) {
	if clinicID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clinicId is required")
	}
	methods, err := s.repo.ListPaymentMethodsByClinic(ctx, clinicID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	return methods, nil
}

func methodType(raw string) enums.PaymentMethodType {
	if strings.TrimSpace(raw) == "" {
		return enums.PaymentMethodTypeCard
	}
	parsed, err := enums.ParsePaymentMethodType(raw)
	if err != nil {
		return enums.PaymentMethodTypeOther
	}
	return parsed
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
