package payment

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salymed/salymed-backend/api/controllers/clinicscope"
	"github.com/salymed/salymed-backend/api/middleware"
	"github.com/salymed/salymed-backend/api/responses"
	"github.com/salymed/salymed-backend/api/validators"
	"github.com/salymed/salymed-backend/internal/checkout"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/types"
)

const maxEmailLength = 254

type createCheckoutRequest struct {
	PlanID        validators.PlanRef `json:"planId" validate:"required"`
	ClinicID      *string            `json:"clinicId,omitempty" validate:"omitempty,uuid"`
	CustomerEmail string             `json:"customerEmail" validate:"omitempty,email,max=254"`
	SuccessURL    string             `json:"successUrl,omitempty" validate:"omitempty,redirect_url"`
	CancelURL     string             `json:"cancelUrl,omitempty" validate:"omitempty,redirect_url"`
}

type createCheckoutResponse struct {
	types.PaymentResult
	CheckoutURL   string `json:"checkoutUrl"`
	TransactionID string `json:"transactionId"`
}

type validateStateRequest struct {
	ClinicID *string             `json:"clinicId,omitempty"`
	PlanID   *validators.PlanRef `json:"planId,omitempty"`
}

type checkoutStateResponse struct {
	IsValid                 bool    `json:"isValid"`
	RegistrationCompleted   bool    `json:"registrationCompleted"`
	HasActivePaymentProcess bool    `json:"hasActivePaymentProcess"`
	HasActiveSubscription   bool    `json:"hasActiveSubscription"`
	ActiveTransactionID     *string `json:"activeTransactionId,omitempty"`
	Message                 *string `json:"message,omitempty"`
}

type paymentSuccessResponse struct {
	TransactionID string    `json:"transactionId"`
	ClinicID      uuid.UUID `json:"clinicId"`
	PlanID        uuid.UUID `json:"planId"`
	Status        string    `json:"status"`
}

// CreateCheckout opens a hosted Paddle checkout. Every outcome is reported in
// the flat checkout body so the client can branch on reason.
func CreateCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			writeCheckoutError(w, r, logg, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload createCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}

		planID, planNumber, err := validators.ParsePlanRef(payload.PlanID, "planId")
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}
		clinicID, err := validators.ParseOptionalUUID(payload.ClinicID, "clinicId")
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}
		if clinicID != nil {
			if err := clinicscope.Authorize(r, *clinicID); err != nil {
				writeCheckoutError(w, r, logg, err)
				return
			}
		}

		result, err := svc.CreateCheckout(ctx, checkout.CreateCheckoutInput{
			PlanID:        planID,
			PlanNumber:    planNumber,
			ClinicID:      clinicID,
			UserID:        middleware.UserUUIDFromContext(ctx),
			CustomerEmail: validators.SanitizeEmail(payload.CustomerEmail, maxEmailLength),
			SuccessURL:    strings.TrimSpace(payload.SuccessURL),
			CancelURL:     strings.TrimSpace(payload.CancelURL),
		})
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, createCheckoutResponse{
			PaymentResult: types.PaymentResult{Success: true, Message: "Checkout session created"},
			CheckoutURL:   result.CheckoutURL,
			TransactionID: result.TransactionID,
		})
	}
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	responses.LogError(r.Context(), logg, err)
	status, apiErr := responses.Describe(err)
	responses.WriteJSON(w, status, createCheckoutResponse{
		PaymentResult: types.PaymentResult{
			Message: apiErr.Message,
			Reason:  pkgerrors.Reason(err),
		},
		TransactionID: checkout.TransactionIDFromError(err),
	})
}

// ValidateCheckoutState reports whether the clinic may start a checkout and,
// when one is already running, which transaction to resume.
func ValidateCheckoutState(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload validateStateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		clinicID, err := validators.ParseOptionalUUID(payload.ClinicID, "clinicId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if clinicID != nil {
			if err := clinicscope.Authorize(r, *clinicID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		planID, err := resolvePlanRef(r, svc, payload.PlanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		state, err := svc.ValidateCheckoutState(ctx, clinicID, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, checkoutStateResponse{
			IsValid:                 state.IsValid,
			RegistrationCompleted:   state.RegistrationCompleted,
			HasActivePaymentProcess: state.HasActivePaymentProcess,
			HasActiveSubscription:   state.HasActiveSubscription,
			ActiveTransactionID:     state.ActiveTransactionID,
			Message:                 state.Message,
		})
	}
}

// resolvePlanRef turns an optional uuid or catalog number into the plan uuid.
func resolvePlanRef(r *http.Request, svc checkout.Service, raw *validators.PlanRef) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(string(*raw)) == "" {
		return nil, nil
	}
	id, number, err := validators.ParsePlanRef(*raw, "planId")
	if err != nil {
		return nil, err
	}
	if number != 0 {
		if id, err = svc.ResolvePlanNumber(r.Context(), number); err != nil {
			return nil, err
		}
	}
	return &id, nil
}

func PaymentSuccess(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		lookup, err := svc.GetCheckoutResult(ctx, chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := clinicscope.Authorize(r, lookup.ClinicID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentSuccessResponse{
			TransactionID: lookup.TransactionID,
			ClinicID:      lookup.ClinicID,
			PlanID:        lookup.PlanID,
			Status:        string(lookup.Status),
		})
	}
}
