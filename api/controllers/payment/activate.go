package payment

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salymed/salymed-backend/api/middleware"
	"github.com/salymed/salymed-backend/api/responses"
	subsvc "github.com/salymed/salymed-backend/internal/subscriptions"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

type manualActivator interface {
	ActivateManually(ctx context.Context, transactionID string, actorID *uuid.UUID) (*subsvc.SubscriptionView, error)
}

// ActivatePayment lets an operator settle a transaction whose webhook never
// arrived. Routed behind the admin role.
func ActivatePayment(svc manualActivator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		transactionID := chi.URLParam(r, "transactionId")
		view, err := svc.ActivateManually(ctx, transactionID, middleware.UserUUIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithTransactionID(ctx, transactionID), "subscription activated manually")
		}
		responses.WriteSuccess(w, view)
	}
}
