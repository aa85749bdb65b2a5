package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS mcp_flow_states (
		state TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mcp_flow_states_expires_at ON mcp_flow_states (expires_at)`,
	`CREATE TABLE IF NOT EXISTS mcp_user_credentials (
		id BIGINT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		tool_server_url TEXT NOT NULL,
		oauth_tokens JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS mcp_agent_configs (
		id BIGINT PRIMARY KEY,
		user_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		config JSONB NOT NULL DEFAULT '{}'::jsonb,
		mcp_credential JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, agent_id)
	)`,
}

// EnsureSchema creates the credential and flow-state tables at startup if
// they are missing. Idempotent across restarts and concurrent instances.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, pool, logger)
		},
	})
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	if logger != nil {
		logger.Info("schema bootstrap complete")
	}
	return nil
}
