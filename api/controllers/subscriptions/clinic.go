package subscriptions

import (
	"net/http"

	"github.com/salymed/salymed-backend/api/controllers/clinicscope"
	"github.com/salymed/salymed-backend/api/responses"
	"github.com/salymed/salymed-backend/api/validators"
	subsvc "github.com/salymed/salymed-backend/internal/subscriptions"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

type paymentMethodsResponse struct {
	PaymentMethods []subsvc.PaymentMethodView `json:"paymentMethods"`
}

// SubscriptionStatus reports whether the clinic holds a live subscription. A
// clinic without one gets a 200 with hasActiveSubscription=false.
func SubscriptionStatus(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		clinicID, err := clinicscope.Resolve(r, r.URL.Query().Get("clinicId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := svc.Status(ctx, clinicID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func SubscriptionCurrent(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		clinicID, err := clinicscope.Resolve(r, r.URL.Query().Get("clinicId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		current, err := svc.Current(ctx, clinicID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}

func SubscriptionInvoices(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		clinicID, err := clinicscope.Resolve(r, r.URL.Query().Get("clinicId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.ListInvoices(ctx, clinicID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func SubscriptionPaymentMethods(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		clinicID, err := clinicscope.Resolve(r, r.URL.Query().Get("clinicId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		methods, err := svc.ListPaymentMethods(ctx, clinicID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if methods == nil {
			methods = []subsvc.PaymentMethodView{}
		}
		responses.WriteSuccess(w, paymentMethodsResponse{PaymentMethods: methods})
	}
}
