package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/config"
)

const migrateTimeout = time.Minute

// Migrator applies pending schema migrations.
type Migrator func(ctx context.Context) error

// EnsureSchema migrates the database on start when AUTO_MIGRATE is set.
func EnsureSchema(lc fx.Lifecycle, cfg config.Config, migrate Migrator, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, cfg, migrate, logger)
		},
	})
}

func ensureSchema(ctx context.Context, cfg config.Config, migrate Migrator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.L()
	}
	if !cfg.AutoMigrate {
		logger.Debug("schema migration skipped")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	start := time.Now()
	if err := migrate(ctx); err != nil {
		return fmt.Errorf("bootstrap migrate: %w", err)
	}
	logger.Info("schema migrated", zap.Duration("took", time.Since(start)))
	return nil
}
