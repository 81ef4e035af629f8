package plans

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salymed/salymed-backend/api/responses"
	"github.com/salymed/salymed-backend/api/validators"
	plansvc "github.com/salymed/salymed-backend/internal/plans"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

type planListResponse struct {
	Plans []plansvc.PlanDTO `json:"plans"`
}

// ListPlans returns the purchasable catalog ordered for display.
func ListPlans(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.ListActivePlans(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if plans == nil {
			plans = []plansvc.PlanDTO{}
		}
		responses.WriteSuccess(w, planListResponse{Plans: plans})
	}
}

func GetPlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		plan, err := svc.GetPlan(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}
