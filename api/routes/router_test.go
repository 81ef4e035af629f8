package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/salymed/salymed-backend/internal/checkout"
	"github.com/salymed/salymed-backend/internal/plans"
	"github.com/salymed/salymed-backend/internal/subscriptions"
	"github.com/salymed/salymed-backend/pkg/auth"
	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/paddle"
	"github.com/salymed/salymed-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCheckout struct{}

func (stubCheckout) CreateCheckout(context.Context, checkout.CreateCheckoutInput) (*checkout.CheckoutResult, error) {
	return &checkout.CheckoutResult{CheckoutURL: "https://checkout.test/txn_1", TransactionID: "txn_1"}, nil
}

func (stubCheckout) ValidateCheckoutState(context.Context, *uuid.UUID, *uuid.UUID) (*checkout.CheckoutState, error) {
	return &checkout.CheckoutState{IsValid: true}, nil
}

func (stubCheckout) ResolvePlanNumber(context.Context, int) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (stubCheckout) GetCheckoutResult(context.Context, string) (*checkout.CheckoutLookup, error) {
	return nil, nil
}

type stubSubscriptions struct {
	activated string
}

func (s *stubSubscriptions) Status(context.Context, uuid.UUID) (*subscriptions.StatusView, error) {
	return &subscriptions.StatusView{}, nil
}

func (s *stubSubscriptions) Current(context.Context, uuid.UUID) (*subscriptions.SubscriptionView, error) {
	return &subscriptions.SubscriptionView{}, nil
}

func (s *stubSubscriptions) ListInvoices(context.Context, uuid.UUID, pagination.Params) (*subscriptions.InvoicePage, error) {
	return &subscriptions.InvoicePage{}, nil
}

func (s *stubSubscriptions) ListPaymentMethods(context.Context, uuid.UUID) ([]subscriptions.PaymentMethodView, error) {
	return nil, nil
}

func (s *stubSubscriptions) ActivateManually(_ context.Context, transactionID string, _ *uuid.UUID) (*subscriptions.SubscriptionView, error) {
	s.activated = transactionID
	return &subscriptions.SubscriptionView{Status: enums.SubscriptionStatusActive}, nil
}

type stubPlans struct{}

func (stubPlans) ListActivePlans(context.Context) ([]plans.PlanDTO, error) {
	return []plans.PlanDTO{{ID: uuid.New(), Name: "Basic"}}, nil
}

func (stubPlans) GetPlan(_ context.Context, id uuid.UUID) (*plans.PlanDTO, error) {
	return &plans.PlanDTO{ID: id}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", AllowedOrigins: []string{"https://app.salymed.test"}, RequestTimeout: 5 * time.Second},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "salymed", ExpirationMinutes: 60},
	}
}

func newTestRouter(subs *stubSubscriptions) http.Handler {
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	verifier := paddle.NewVerifier(config.PaddleConfig{WebhookSecret: "whsec"})
	return NewRouter(cfg, logg, stubPinger{}, nil, stubCheckout{}, subs, stubPlans{}, nil, verifier)
}

func bearer(t *testing.T, role enums.Role, clinicID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testConfig().JWT, time.Now(), auth.AccessTokenPayload{
		UserID:   uuid.New(),
		ClinicID: clinicID,
		Role:     role,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(&stubSubscriptions{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPlanCatalogIsPublic(t *testing.T) {
	router := newTestRouter(&stubSubscriptions{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptionplans", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Basic"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptionplans/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(&stubSubscriptions{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/create-checkout", strings.NewReader(`{"planId":"`+uuid.NewString()+`"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payment/create-checkout", strings.NewReader(`{"planId":"`+uuid.NewString()+`"}`))
	req.Header.Set("Authorization", bearer(t, enums.RoleClinicOwner, nil))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"checkoutUrl":"https://checkout.test/txn_1"`)
}

func TestManualActivationRequiresAdmin(t *testing.T) {
	subs := &stubSubscriptions{}
	router := newTestRouter(subs)
	clinicID := uuid.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/activate/txn_7", nil)
	req.Header.Set("Authorization", bearer(t, enums.RoleClinicOwner, &clinicID))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, subs.activated)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payment/activate/txn_7", nil)
	req.Header.Set("Authorization", bearer(t, enums.RoleAdmin, nil))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "txn_7", subs.activated)
}

func TestSubscriptionStatusUsesTokenClinic(t *testing.T) {
	router := newTestRouter(&stubSubscriptions{})
	clinicID := uuid.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscription/status", nil)
	req.Header.Set("Authorization", bearer(t, enums.RoleClinicMember, &clinicID))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"hasActiveSubscription":false`)
}

func TestPaddleWebhookRejectsUnsignedDelivery(t *testing.T) {
	router := newTestRouter(&stubSubscriptions{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/paddlewebhook", strings.NewReader(`{"event_type":"transaction.completed"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(&stubSubscriptions{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/payment/create-checkout", nil)
	req.Header.Set("Origin", "https://app.salymed.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(rec, req)
	require.Equal(t, "https://app.salymed.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
