package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// SubscriptionPlan is a catalog entry priced through a Paddle price id.
type SubscriptionPlan struct {
	ID            uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string              `gorm:"column:name;not null"`
	Description   *string             `gorm:"column:description"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Currency      string              `gorm:"column:currency;not null;default:'USD'"`
	Period        enums.BillingPeriod `gorm:"column:period;type:billing_period;not null"`
	PaddlePriceID *string             `gorm:"column:paddle_price_id"`
	IsActive      bool                `gorm:"column:is_active;not null;default:true"`
	IsFeatured    bool                `gorm:"column:is_featured;not null;default:false"`
	DisplayOrder  int                 `gorm:"column:display_order;not null;default:0"`
	Number        *int                `gorm:"column:plan_number"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Features []PlanFeature `gorm:"many2many:plan_feature_mappings;joinForeignKey:PlanID;joinReferences:FeatureID"`
}

func (p *SubscriptionPlan) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasPrice reports whether the plan can be sold through the gateway.
func (p *SubscriptionPlan) HasPrice() bool {
	return p != nil && p.PaddlePriceID != nil && *p.PaddlePriceID != ""
}

// PlanFeature is a display-only capability bundled with plans.
type PlanFeature struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Description  *string   `gorm:"column:description"`
	IsPremium    bool      `gorm:"column:is_premium;not null;default:false"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (f *PlanFeature) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// PlanFeatureMapping joins plans to features.
type PlanFeatureMapping struct {
	PlanID    uuid.UUID `gorm:"column:plan_id;type:uuid;primaryKey"`
	FeatureID uuid.UUID `gorm:"column:feature_id;type:uuid;primaryKey"`
}
