package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/db"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date when running in dev with the
// auto-migrate flag. The sqlite driver always gets its schema applied since
// goose only targets Postgres here.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client.IsSQLite() {
		logg.Info(logg.WithField(ctx, "driver", "sqlite"), "applying sqlite schema")
		return ApplySQLiteSchema(client.DB())
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrator, err := New(sqlDB, Embedded())
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", applied), "dev migrations complete")
	return nil
}
