package plans

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/pkg/db/dbtest"
	"github.com/salymed/salymed-backend/pkg/db/models"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

func TestListActivePlans(t *testing.T) {
	conn := dbtest.Open(t)
	annual := dbtest.SeedPlan(t, conn, dbtest.WithName("Annual", 2), dbtest.WithPeriod(enums.BillingPeriodAnnually))
	monthly := dbtest.SeedPlan(t, conn, dbtest.WithName("Monthly", 1), dbtest.WithNumber(1))
	dbtest.SeedFeature(t, conn, monthly, "Appointments", 1, true)
	dbtest.SeedFeature(t, conn, monthly, "Legacy export", 0, false)

	svc, err := NewService(billing.NewRepository(conn))
	require.NoError(t, err)

	plans, err := svc.ListActivePlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, monthly.ID, plans[0].ID)
	require.Equal(t, 1, *plans[0].Number)
	require.Nil(t, plans[1].Number)
	require.Equal(t, "monthly", plans[0].Period)
	require.Len(t, plans[0].Features, 1)
	require.Equal(t, "Appointments", plans[0].Features[0].Name)
	require.Equal(t, annual.ID, plans[1].ID)
	require.Equal(t, "annually", plans[1].Period)
	require.Empty(t, plans[1].Features)
}

func TestGetPlan(t *testing.T) {
	conn := dbtest.Open(t)
	plan := dbtest.SeedPlan(t, conn)
	inactive := dbtest.SeedPlan(t, conn, dbtest.WithName("Old", 5), dbtest.Inactive())

	svc, err := NewService(billing.NewRepository(conn))
	require.NoError(t, err)

	got, err := svc.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Equal(t, "Basic", got.Name)
	require.Equal(t, "29.99", got.Price.StringFixed(2))

	_, err = svc.GetPlan(context.Background(), inactive.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.GetPlan(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

type failingRepo struct{}

func (failingRepo) ListActivePlans(context.Context) ([]models.SubscriptionPlan, error) {
	return nil, errors.New("db down")
}

func (failingRepo) FindActivePlanWithFeatures(context.Context, uuid.UUID) (*models.SubscriptionPlan, error) {
	return nil, errors.New("db down")
}

func TestRepositoryFailuresAreDependencyErrors(t *testing.T) {
	svc, err := NewService(failingRepo{})
	require.NoError(t, err)

	_, err = svc.ListActivePlans(context.Background())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = svc.GetPlan(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}
