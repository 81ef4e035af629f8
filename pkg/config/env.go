package config

const (
	EnvPrefix = "SALYMED"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SALYMED_APP_ENV"
	EnvPort     = "SALYMED_APP_PORT"
	EnvLogLevel = "SALYMED_LOG_LEVEL"

	EnvDBDSN  = "SALYMED_DB_DSN"
	EnvDBHost = "SALYMED_DB_HOST"
	EnvDBPort = "SALYMED_DB_PORT"
	EnvDBUser = "SALYMED_DB_USER"
	EnvDBPass = "SALYMED_DB_PASSWORD"
	EnvDBName = "SALYMED_DB_NAME"

	EnvRedisURL = "SALYMED_REDIS_URL"

	EnvJWTSecret = "SALYMED_JWT_SECRET"
	EnvJWTIssuer = "SALYMED_JWT_ISSUER"

	EnvPaddleAPIKey        = "SALYMED_PADDLE_API_KEY"
	EnvPaddleEnvironment   = "SALYMED_PADDLE_ENVIRONMENT"
	EnvPaddleWebhookSecret = "SALYMED_PADDLE_WEBHOOK_SECRET"
	EnvPaddleSkipSignature = "SALYMED_PADDLE_SKIP_SIGNATURE"

	EnvOutboxMaxAttempts = "SALYMED_OUTBOX_MAX_ATTEMPTS"

	EnvBillingTrialEnabled = "SALYMED_BILLING_TRIAL_ENABLED"
	EnvBillingTrialMonths  = "SALYMED_BILLING_TRIAL_MONTHS"
	EnvFrontendURL         = "SALYMED_FRONTEND_URL"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
