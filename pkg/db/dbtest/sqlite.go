// Package dbtest opens isolated in-memory sqlite databases carrying the billing
// schema for repository and service tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE clinics (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  registration_completed INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE subscription_plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  period TEXT NOT NULL,
  paddle_price_id TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  is_featured INTEGER NOT NULL DEFAULT 0,
  display_order INTEGER NOT NULL DEFAULT 0,
  plan_number INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_subscription_plans_number ON subscription_plans (plan_number) WHERE plan_number IS NOT NULL;`,
	`CREATE TABLE plan_features (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  is_premium INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  display_order INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
	`CREATE TABLE plan_feature_mappings (
  plan_id TEXT NOT NULL,
  feature_id TEXT NOT NULL,
  PRIMARY KEY (plan_id, feature_id)
);`,
	`CREATE TABLE subscriptions (
  id TEXT PRIMARY KEY,
  clinic_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  user_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending_payment',
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  next_billing_date DATETIME,
  trial_end_date DATETIME,
  is_trial_period INTEGER NOT NULL DEFAULT 0,
  amount_paid TEXT NOT NULL DEFAULT '0',
  currency TEXT NOT NULL DEFAULT 'USD',
  paddle_transaction_id TEXT,
  paddle_subscription_id TEXT,
  transaction_id TEXT,
  payment_method TEXT NOT NULL DEFAULT 'paddle',
  has_active_payment_process INTEGER NOT NULL DEFAULT 0,
  auto_renew INTEGER NOT NULL DEFAULT 1,
  cancelled_at DATETIME,
  cancellation_reason TEXT,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_subscriptions_active_payment ON subscriptions (clinic_id, plan_id) WHERE has_active_payment_process = 1;`,
	`CREATE UNIQUE INDEX ux_subscriptions_paddle_transaction ON subscriptions (paddle_transaction_id) WHERE paddle_transaction_id IS NOT NULL;`,
	`CREATE TABLE invoices (
  id TEXT PRIMARY KEY,
  invoice_number TEXT NOT NULL,
  subscription_id TEXT NOT NULL,
  clinic_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  original_price TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax TEXT NOT NULL,
  discount TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  billing_period_start DATETIME NOT NULL,
  billing_period_end DATETIME NOT NULL,
  due_date DATETIME NOT NULL,
  paid_at DATETIME,
  payment_method TEXT NOT NULL,
  paddle_transaction_id TEXT NOT NULL,
  paddle_subscription_id TEXT,
  is_trial_period INTEGER NOT NULL DEFAULT 0,
  details TEXT,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_invoices_paddle_transaction ON invoices (paddle_transaction_id);`,
	`CREATE TABLE payment_methods (
  id TEXT PRIMARY KEY,
  clinic_id TEXT NOT NULL,
  user_id TEXT,
  paddle_payment_method_id TEXT,
  type TEXT NOT NULL DEFAULT 'card',
  card_type TEXT,
  card_last4 TEXT,
  card_expiry_month INTEGER,
  card_expiry_year INTEGER,
  cardholder_name TEXT,
  is_default INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  billing_address TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_payment_methods_clinic_default ON payment_methods (clinic_id) WHERE is_default = 1;`,
	`CREATE TABLE webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payload TEXT,
  delivery_count INTEGER NOT NULL DEFAULT 1,
  received_at DATETIME NOT NULL,
  processed_at DATETIME,
  outcome TEXT,
  processing_error TEXT
);`,
	`CREATE UNIQUE INDEX ux_webhook_events_provider_event ON webhook_events (provider, event_id);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns a fresh database with the billing schema. All access goes
// through a single connection so concurrent tests serialize like row locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:billing_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a db.Client for services that run their own transactions.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromConn(conn), conn
}
