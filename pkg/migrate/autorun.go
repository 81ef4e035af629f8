package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db"
	"github.com/salymed/salymed-backend/pkg/logger"
)

func shouldAutoRun(app config.AppConfig) bool {
	return app.IsDev() && app.AutoMigrate
}

// MaybeRunDev applies pending migrations on boot when running in dev with
// SALYMED_AUTO_MIGRATE enabled. The api, cron worker and outbox publisher
// all call it, so the run holds a Postgres advisory lock.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !shouldAutoRun(cfg.App) {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "dir", embeddedDir)
	logg.Info(ctx, "auto-running migrations")

	results, err := upLocked(ctx, sqlDB)
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
	if err != nil {
		return fmt.Errorf("auto-run migrations: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "migrations up to date")
	return nil
}

func upLocked(ctx context.Context, sqlDB *sql.DB) ([]*goose.MigrationResult, error) {
	fsys, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		return nil, err
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("session locker: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider.Up(ctx)
}
