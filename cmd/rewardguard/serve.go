package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/rewardguard/internal/adapter/cache"
	"github.com/smallbiznis/rewardguard/internal/bootstrap"
	"github.com/smallbiznis/rewardguard/internal/config"
	httptransport "github.com/smallbiznis/rewardguard/internal/http"
	"github.com/smallbiznis/rewardguard/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/rewardguard/internal/http/middleware"
	"github.com/smallbiznis/rewardguard/internal/jwt"
	apimiddleware "github.com/smallbiznis/rewardguard/internal/middleware"
	"github.com/smallbiznis/rewardguard/internal/migrations"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
	"github.com/smallbiznis/rewardguard/internal/replay"
	"github.com/smallbiznis/rewardguard/internal/repository"
	"github.com/smallbiznis/rewardguard/internal/securitylog"
	"github.com/smallbiznis/rewardguard/internal/seedvault"
	"github.com/smallbiznis/rewardguard/internal/server"
	"github.com/smallbiznis/rewardguard/internal/service"
	"github.com/smallbiznis/rewardguard/internal/sweeper"
	"github.com/smallbiznis/rewardguard/internal/telemetry"
)

func runServe(ctx context.Context) error {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newAccountRepository,
			newSecretRepository,
			newSecurityLogRepository,
			newTokenLedger,
			newMigrator,
			newGuard,
			newVault,
			newSessionGenerator,
			newRecorder,
			newPipeline,
			newEnrollmentService,
			newAccountService,
			service.NewConfigService,
			newHandler,
			newAuthMiddleware,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
			newSweeper,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, startSweeper, startHTTPServer),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	select {
	case <-app.Done():
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	return app.Stop(stopCtx)
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("service", cfg.ServiceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := connectPostgres(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return repository.NewPostgresAccountRepo(pool)
}

func newSecretRepository(pool *pgxpool.Pool) repository.SecretRepository {
	return repository.NewPostgresSecretRepo(pool)
}

func newSecurityLogRepository(pool *pgxpool.Pool) repository.SecurityLogRepository {
	return repository.NewPostgresSecurityLogRepo(pool)
}

func newTokenLedger(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) (repository.TokenLedger, error) {
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		client, err := connectRedis(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		logger.Info("token ledger", zap.String("backend", config.LedgerRedis))
		return cacheadapter.NewRedisTokenLedger(client, cfg.XReqRetention), nil
	case config.LedgerMemory:
		logger.Warn("token ledger is process-local; replay protection does not span instances")
		return replay.NewMemoryLedger(), nil
	default:
		logger.Info("token ledger", zap.String("backend", config.LedgerPostgres))
		return repository.NewPostgresTokenLedger(pool), nil
	}
}

func newMigrator(pool *pgxpool.Pool) bootstrap.Migrator {
	return func(ctx context.Context) error {
		return migrations.UpFromPool(ctx, pool)
	}
}

func newGuard(ledger repository.TokenLedger, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *replay.Guard {
	return replay.NewGuard(ledger, node, cfg, logger)
}

func newVault(secrets repository.SecretRepository, cfg config.Config, logger *zap.Logger) *seedvault.Vault {
	return seedvault.NewVault(secrets, cfg, logger)
}

func newSessionGenerator(cfg config.Config) (*jwt.Generator, error) {
	key, err := jwt.NewSigningKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("session signing key: %w", err)
	}
	return jwt.NewGenerator(key, cfg.SessionTokenTTL, cfg.ServiceName), nil
}

func newRecorder(lc fx.Lifecycle, repo repository.SecurityLogRepository, cfg config.Config, logger *zap.Logger) *securitylog.Recorder {
	recorder := securitylog.NewRecorder(repo, cfg.SecurityLogBuffer, logger)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			recorder.Start()
			return nil
		},
		OnStop: recorder.Stop,
	})
	return recorder
}

func newPipeline(sessions *jwt.Generator, guard *replay.Guard, vault *seedvault.Vault, recorder *securitylog.Recorder, cfg config.Config, logger *zap.Logger) *pipeline.Pipeline {
	return pipeline.New(sessions, guard, vault, recorder, cfg, logger)
}

func newEnrollmentService(accounts repository.AccountRepository, vault *seedvault.Vault, guard *replay.Guard, sessions *jwt.Generator, node *snowflake.Node, logger *zap.Logger) *service.EnrollmentService {
	return service.NewEnrollmentService(accounts, vault, guard, sessions, node, logger)
}

func newAccountService(accounts repository.AccountRepository, guard *replay.Guard) *service.AccountService {
	return service.NewAccountService(accounts, guard)
}

func newHandler(enrollment *service.EnrollmentService, accounts *service.AccountService, cfgService *service.ConfigService, p *pipeline.Pipeline, logger *zap.Logger) *handler.Handler {
	return handler.NewHandler(enrollment, accounts, cfgService, p, logger)
}

func newAuthMiddleware(p *pipeline.Pipeline) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Sessions: p}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newSweeper(guard *replay.Guard, cfg config.Config, logger *zap.Logger) *sweeper.Sweeper {
	return sweeper.New(guard, cfg.SweepInterval, logger)
}

func startSweeper(lc fx.Lifecycle, s *sweeper.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
