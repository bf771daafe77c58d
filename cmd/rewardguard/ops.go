package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/rewardguard/internal/adapter/cache"
	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/migrations"
	"github.com/smallbiznis/rewardguard/internal/replay"
	"github.com/smallbiznis/rewardguard/internal/repository"
	"github.com/smallbiznis/rewardguard/internal/sweeper"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := connectPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := migrations.UpFromPool(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired request tokens once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			node, err := newSnowflake(cfg)
			if err != nil {
				return err
			}

			var ledger repository.TokenLedger
			switch cfg.LedgerBackend {
			case config.LedgerMemory:
				return errors.New("the memory ledger lives inside the serving process; nothing to sweep")
			case config.LedgerRedis:
				client, err := connectRedis(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer client.Close()
				ledger = cacheadapter.NewRedisTokenLedger(client, cfg.XReqRetention)
			default:
				pool, err := connectPostgres(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer pool.Close()
				ledger = repository.NewPostgresTokenLedger(pool)
			}

			guard := replay.NewGuard(ledger, node, cfg, logger)
			n := sweeper.New(guard, 0, logger).RunOnce(cmd.Context())
			logger.Info("sweep complete", zap.Int64("deleted", n))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired tokens\n", n)
			return nil
		},
	}
}
