package dbtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
)

// SeedClinic inserts a clinic with the given registration state.
func SeedClinic(t testing.TB, conn *gorm.DB, registrationCompleted bool) models.Clinic {
	t.Helper()
	clinic := models.Clinic{
		Name:                  "Clinica Central",
		RegistrationCompleted: registrationCompleted,
		IsActive:              true,
	}
	if err := conn.Create(&clinic).Error; err != nil {
		t.Fatalf("seed clinic: %v", err)
	}
	return clinic
}

// PlanOption customizes a seeded plan.
type PlanOption func(*models.SubscriptionPlan)

// WithoutPrice removes the Paddle price reference.
func WithoutPrice() PlanOption {
	return func(p *models.SubscriptionPlan) { p.PaddlePriceID = nil }
}

// Inactive marks the plan inactive.
func Inactive() PlanOption {
	return func(p *models.SubscriptionPlan) { p.IsActive = false }
}

// WithPeriod sets the billing period.
func WithPeriod(period enums.BillingPeriod) PlanOption {
	return func(p *models.SubscriptionPlan) { p.Period = period }
}

// WithName sets the plan name and display order.
func WithName(name string, order int) PlanOption {
	return func(p *models.SubscriptionPlan) {
		p.Name = name
		p.DisplayOrder = order
	}
}

// WithNumber sets the numeric catalog id clients may address the plan by.
func WithNumber(n int) PlanOption {
	return func(p *models.SubscriptionPlan) { p.Number = &n }
}

// SeedPlan inserts an active monthly plan priced through Paddle.
func SeedPlan(t testing.TB, conn *gorm.DB, opts ...PlanOption) models.SubscriptionPlan {
	t.Helper()
	priceID := "pri_monthly_basic"
	plan := models.SubscriptionPlan{
		Name:          "Basic",
		Price:         decimal.RequireFromString("29.99"),
		Currency:      "USD",
		Period:        enums.BillingPeriodMonthly,
		PaddlePriceID: &priceID,
		IsActive:      true,
	}
	for _, opt := range opts {
		opt(&plan)
	}
	if err := conn.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	if !plan.IsActive {
		if err := conn.Model(&models.SubscriptionPlan{}).Where("id = ?", plan.ID).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate plan: %v", err)
		}
	}
	return plan
}

// SeedFeature attaches a feature to the plan.
func SeedFeature(t testing.TB, conn *gorm.DB, plan models.SubscriptionPlan, name string, order int, active bool) models.PlanFeature {
	t.Helper()
	feature := models.PlanFeature{Name: name, DisplayOrder: order, IsActive: true}
	if err := conn.Create(&feature).Error; err != nil {
		t.Fatalf("seed feature: %v", err)
	}
	if !active {
		if err := conn.Model(&models.PlanFeature{}).Where("id = ?", feature.ID).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate feature: %v", err)
		}
		feature.IsActive = false
	}
	mapping := models.PlanFeatureMapping{PlanID: plan.ID, FeatureID: feature.ID}
	if err := conn.Create(&mapping).Error; err != nil {
		t.Fatalf("seed feature mapping: %v", err)
	}
	return feature
}

// SeedSubscription inserts sub, filling status and a one month lease when unset.
func SeedSubscription(t testing.TB, conn *gorm.DB, sub models.Subscription) models.Subscription {
	t.Helper()
	if sub.Status == "" {
		sub.Status = enums.SubscriptionStatusPendingPayment
	}
	if sub.StartDate.IsZero() {
		sub.StartDate = time.Now().UTC()
	}
	if sub.EndDate.IsZero() {
		sub.EndDate = sub.StartDate.AddDate(0, 1, 0)
	}
	if sub.Currency == "" {
		sub.Currency = "USD"
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}
