package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salymed/salymed-backend/api/controllers"
	paymentcontrollers "github.com/salymed/salymed-backend/api/controllers/payment"
	plancontrollers "github.com/salymed/salymed-backend/api/controllers/plans"
	subscriptioncontrollers "github.com/salymed/salymed-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/salymed/salymed-backend/api/controllers/webhooks"
	"github.com/salymed/salymed-backend/api/middleware"
	checkoutsvc "github.com/salymed/salymed-backend/internal/checkout"
	plansvc "github.com/salymed/salymed-backend/internal/plans"
	subscriptionsvc "github.com/salymed/salymed-backend/internal/subscriptions"
	paddlewebhook "github.com/salymed/salymed-backend/internal/webhooks/paddle"
	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/paddle"
	"github.com/salymed/salymed-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	subscriptionsService subscriptionsvc.Service,
	planService plansvc.Service,
	webhookService *paddlewebhook.Service,
	verifier *paddle.Verifier,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		chimiddleware.RealIP,
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)
	if cfg.App.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.App.RequestTimeout))
	}

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Paddle signs its notifications; no bearer token is involved.
	r.Post("/paddlewebhook", webhookcontrollers.PaddleWebhook(webhookService, verifier, logg))

	r.Route("/api/v1/subscriptionplans", func(r chi.Router) {
		r.Get("/", plancontrollers.ListPlans(planService, logg))
		r.Get("/{id}", plancontrollers.GetPlan(planService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/payment", func(r chi.Router) {
			r.Post("/create-checkout", paymentcontrollers.CreateCheckout(checkoutService, logg))
			r.Post("/validate-state", paymentcontrollers.ValidateCheckoutState(checkoutService, logg))
			r.Get("/success/{transactionId}", paymentcontrollers.PaymentSuccess(checkoutService, logg))
			r.With(middleware.RequireRole(logg, enums.RoleAdmin)).
				Post("/activate/{transactionId}", paymentcontrollers.ActivatePayment(subscriptionsService, logg))
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Get("/status", subscriptioncontrollers.SubscriptionStatus(subscriptionsService, logg))
			r.Get("/current", subscriptioncontrollers.SubscriptionCurrent(subscriptionsService, logg))
			r.Get("/invoices", subscriptioncontrollers.SubscriptionInvoices(subscriptionsService, logg))
			r.Get("/payment-methods", subscriptioncontrollers.SubscriptionPaymentMethods(subscriptionsService, logg))
		})
	})

	return r
}
