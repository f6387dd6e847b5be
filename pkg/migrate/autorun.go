package migrate

import (
	"context"
	"fmt"

	"github.com/facetcraft/nyp-backend/pkg/config"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations at api startup, only in dev with
// NYP_AUTO_MIGRATE on. Other environments run cmd/migrate as a release step.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"dir":           DefaultDir,
		"version_table": VersionTable,
	})
	if err := ValidateDir(DefaultDir); err != nil {
		return fmt.Errorf("validate migrations: %w", err)
	}
	logg.Info(ctx, "migrate.autorun.start")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	version, err := CurrentVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "migrate.autorun.complete")
	return nil
}
