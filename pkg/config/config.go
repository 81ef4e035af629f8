package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const minProdJWTSecret = 32

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Paddle  PaddleConfig
	Billing BillingConfig
	PubSub  PubSubConfig
	Outbox  OutboxConfig
	Cron    CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every cross-field problem at once so a bad deploy shows
// the full list in one log line.
func (c *Config) validate() error {
	var errs error
	if c.Billing.TrialEnabled && c.Billing.TrialMonths <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive when %s is set", EnvBillingTrialMonths, EnvBillingTrialEnabled))
	}
	switch strings.ToLower(strings.TrimSpace(c.Paddle.Environment)) {
	case "sandbox", "production":
	default:
		errs = multierr.Append(errs, fmt.Errorf("%s must be sandbox or production, got %q", EnvPaddleEnvironment, c.Paddle.Environment))
	}
	if c.Outbox.MaxAttempts <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvOutboxMaxAttempts))
	}
	if c.App.IsProd() {
		if c.Paddle.SkipSignature {
			errs = multierr.Append(errs, fmt.Errorf("%s cannot be enabled in production", EnvPaddleSkipSignature))
		}
		if c.Paddle.WebhookSecret == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s is required in production", EnvPaddleWebhookSecret))
		}
		if c.Paddle.APIKey == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s is required in production", EnvPaddleAPIKey))
		}
		if len(c.JWT.Secret) < minProdJWTSecret {
			errs = multierr.Append(errs, fmt.Errorf("%s must be at least %d bytes in production", EnvJWTSecret, minProdJWTSecret))
		}
	}
	return errs
}

type AppConfig struct {
	Env            string        `envconfig:"SALYMED_APP_ENV" required:"true"`
	Port           string        `envconfig:"SALYMED_APP_PORT" required:"true"`
	LogLevel       string        `envconfig:"SALYMED_LOG_LEVEL" default:"info"`
	LogWarnStack   bool          `envconfig:"SALYMED_LOG_WARN_STACK" default:"false"`
	RequestTimeout time.Duration `envconfig:"SALYMED_API_REQUEST_TIMEOUT" default:"30s"`
	AllowedOrigins []string      `envconfig:"SALYMED_CORS_ALLOWED_ORIGINS" default:"http://localhost:4200"`
	AutoMigrate    bool          `envconfig:"SALYMED_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SALYMED_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"SALYMED_DB_DSN"`

	Host     string `envconfig:"SALYMED_DB_HOST"`
	Port     int    `envconfig:"SALYMED_DB_PORT" default:"5432"`
	User     string `envconfig:"SALYMED_DB_USER"`
	Password string `envconfig:"SALYMED_DB_PASSWORD"`
	Name     string `envconfig:"SALYMED_DB_NAME"`
	SSLMode  string `envconfig:"SALYMED_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SALYMED_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SALYMED_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SALYMED_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SALYMED_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SALYMED_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SALYMED_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SALYMED_REDIS_ADDR"`
	Password     string        `envconfig:"SALYMED_REDIS_PASSWORD"`
	DB           int           `envconfig:"SALYMED_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SALYMED_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SALYMED_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SALYMED_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SALYMED_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SALYMED_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyNamespace string        `envconfig:"SALYMED_REDIS_KEY_NAMESPACE" default:"salymed"`
}

type JWTConfig struct {
	Secret string `envconfig:"SALYMED_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SALYMED_JWT_ISSUER" required:"true"`
	// ExpirationMinutes bounds tokens minted by MintAccessToken.
	ExpirationMinutes int `envconfig:"SALYMED_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PaddleConfig struct {
	APIKey             string        `envconfig:"SALYMED_PADDLE_API_KEY"`
	Environment        string        `envconfig:"SALYMED_PADDLE_ENVIRONMENT" default:"sandbox"`
	BaseURL            string        `envconfig:"SALYMED_PADDLE_BASE_URL"`
	WebhookSecret      string        `envconfig:"SALYMED_PADDLE_WEBHOOK_SECRET"`
	SkipSignature      bool          `envconfig:"SALYMED_PADDLE_SKIP_SIGNATURE" default:"false"`
	SignatureTolerance time.Duration `envconfig:"SALYMED_PADDLE_SIGNATURE_TOLERANCE" default:"5m"`
	Timeout            time.Duration `envconfig:"SALYMED_PADDLE_TIMEOUT" default:"15s"`
	WebhookEventTTL    time.Duration `envconfig:"SALYMED_PADDLE_WEBHOOK_EVENT_TTL" default:"72h"`
}

// IsProduction reports whether the live Paddle API should be used.
func (p PaddleConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(p.Environment), "production")
}

type BillingConfig struct {
	TrialEnabled     bool   `envconfig:"SALYMED_BILLING_TRIAL_ENABLED" default:"false"`
	TrialMonths      int    `envconfig:"SALYMED_BILLING_TRIAL_MONTHS" default:"0"`
	ReleaseOnFailure bool   `envconfig:"SALYMED_BILLING_RELEASE_ON_FAILURE" default:"false"`
	FrontendURL      string `envconfig:"SALYMED_FRONTEND_URL" default:"http://localhost:4200"`
}

// SuccessURL is the default post-checkout redirect target.
func (b BillingConfig) SuccessURL() string {
	return strings.TrimRight(b.FrontendURL, "/") + "/payment-success"
}

// CancelURL is the default redirect target for an abandoned checkout.
func (b BillingConfig) CancelURL() string {
	return strings.TrimRight(b.FrontendURL, "/") + "/payment-cancel"
}

type PubSubConfig struct {
	ProjectID              string `envconfig:"SALYMED_GCP_PROJECT_ID"`
	BillingTopic           string `envconfig:"SALYMED_PUBSUB_BILLING_TOPIC" default:"salymed-billing-events"`
	CredentialsJSON        string `envconfig:"SALYMED_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SALYMED_GOOGLE_APPLICATION_CREDENTIALS"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SALYMED_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SALYMED_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SALYMED_OUTBOX_MAX_ATTEMPTS" default:"10"`

	PublishedRetention time.Duration `envconfig:"SALYMED_OUTBOX_PUBLISHED_RETENTION" default:"720h"`
	TerminalRetention  time.Duration `envconfig:"SALYMED_OUTBOX_TERMINAL_RETENTION" default:"2160h"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"SALYMED_CRON_INTERVAL" default:"1h"`
	LockTTL    time.Duration `envconfig:"SALYMED_CRON_LOCK_TTL" default:"10m"`
	JobTimeout time.Duration `envconfig:"SALYMED_CRON_JOB_TIMEOUT" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
