package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/agentinbox/mcp-connect/internal/adapter/cache"
	oauthadapter "github.com/agentinbox/mcp-connect/internal/adapter/oauth"
	"github.com/agentinbox/mcp-connect/internal/bootstrap"
	"github.com/agentinbox/mcp-connect/internal/config"
	httptransport "github.com/agentinbox/mcp-connect/internal/http"
	"github.com/agentinbox/mcp-connect/internal/http/handler"
	"github.com/agentinbox/mcp-connect/internal/http/middleware"
	"github.com/agentinbox/mcp-connect/internal/repository"
	"github.com/agentinbox/mcp-connect/internal/secret"
	"github.com/agentinbox/mcp-connect/internal/server"
	connectsvc "github.com/agentinbox/mcp-connect/internal/service/connect"
	"github.com/agentinbox/mcp-connect/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newStateStore,
			newCredentialRepository,
			newProviderClient,
			newCipher,
			newRateLimiter,
			middleware.NewAuth,
			connectsvc.NewService,
			handler.NewConnectHandler,
			handler.NewHealthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, startHTTPServer),
	)

	app.Run()
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

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if cfg.StateStoreBackend == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			// The redis store falls back to process-local state, so a dead
			// redis degrades rather than fails startup.
			zap.L().Warn("redis unreachable at startup", zap.Error(err))
		}
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newStateStore(cfg config.Config, client redis.UniversalClient, pool *pgxpool.Pool, logger *zap.Logger) repository.FlowStateStore {
	if cfg.StateStoreBackend == "postgres" {
		return repository.NewPostgresStateStore(pool)
	}
	return cacheadapter.NewRedisStateStore(client, logger)
}

func newCredentialRepository(pool *pgxpool.Pool, node *snowflake.Node) repository.CredentialRepository {
	return repository.NewPostgresCredentialRepo(pool, node)
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(&http.Client{Timeout: cfg.OutboundTimeout})
}

func newCipher(cfg config.Config) (*secret.Cipher, error) {
	return secret.NewCipher(cfg.EncryptionKey)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
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
