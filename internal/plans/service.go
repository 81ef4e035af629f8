package plans

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salymed/salymed-backend/pkg/db/models"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

// PlanDTO is the public view of a catalog entry.
type PlanDTO struct {
	ID           uuid.UUID       `json:"id"`
	Number       *int            `json:"planNumber,omitempty"`
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Period       string          `json:"period"`
	IsFeatured   bool            `json:"isFeatured"`
	DisplayOrder int             `json:"displayOrder"`
	Features     []FeatureDTO    `json:"features"`
}

// FeatureDTO lists one capability bundled with a plan.
type FeatureDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsPremium   bool      `json:"isPremium"`
}

type catalogRepository interface {
	ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error)
	FindActivePlanWithFeatures(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
}

// Service exposes the read-only plan catalog.
type Service interface {
	ListActivePlans(ctx context.Context) ([]PlanDTO, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*PlanDTO, error)
}

type service struct {
	repo catalogRepository
}

// NewService builds the catalog service.
func NewService(repo catalogRepository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListActivePlans(ctx context.Context) ([]PlanDTO, error) {
	rows, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	out := make([]PlanDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) GetPlan(ctx context.Context, id uuid.UUID) (*PlanDTO, error) {
	plan, err := s.repo.FindActivePlanWithFeatures(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	dto := toDTO(plan)
	return &dto, nil
}

func toDTO(plan *models.SubscriptionPlan) PlanDTO {
	features := make([]FeatureDTO, 0, len(plan.Features))
	for _, f := range plan.Features {
		features = append(features, FeatureDTO{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			IsPremium:   f.IsPremium,
		})
	}
	return PlanDTO{
		ID:           plan.ID,
		Number:       plan.Number,
		Name:         plan.Name,
		Description:  plan.Description,
		Price:        plan.Price,
		Currency:     plan.Currency,
		Period:       plan.Period.String(),
		IsFeatured:   plan.IsFeatured,
		DisplayOrder: plan.DisplayOrder,
		Features:     features,
	}
}
