package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentinbox/mcp-connect/internal/domain/connect"
)

// Compile-time interface assertions.
var (
	_ FlowStateStore       = (*PostgresStateStore)(nil)
	_ CredentialRepository = (*PostgresCredentialRepo)(nil)
)

// PostgresStateStore is the durable-row FlowStateStore backend. It stores the
// same payload the volatile backend does, with an expires_at column standing
// in for the TTL.
type PostgresStateStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStateStore(pool *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{pool: pool}
}

// SaveState upserts the flow state row and opportunistically sweeps expired
// rows while it is there; there is no background reaper.
func (s *PostgresStateStore) SaveState(ctx context.Context, state string, data connect.FlowState, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM mcp_flow_states WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("sweep expired states: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mcp_flow_states (state, payload, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (state) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		state, payload, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// GetState loads a live state row. Expired rows are invisible even before
// they are swept.
func (s *PostgresStateStore) GetState(ctx context.Context, state string) (*connect.FlowState, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM mcp_flow_states WHERE state = $1 AND expires_at > now()`,
		state).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var flow connect.FlowState
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &flow, nil
}

func (s *PostgresStateStore) DeleteState(ctx context.Context, state string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM mcp_flow_states WHERE state = $1`, state); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// PostgresCredentialRepo implements CredentialRepository against the two
// credential shapes: one row per user, or a credential column embedded in the
// agent's configuration row.
type PostgresCredentialRepo struct {
	pool *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresCredentialRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{pool: pool, node: node}
}

// UpsertGlobal writes the user's shared credential bundle. Last writer wins.
func (r *PostgresCredentialRepo) UpsertGlobal(ctx context.Context, userID string, bundle connect.CredentialBundle) error {
	tokens, err := json.Marshal(bundle.OAuthTokens)
	if err != nil {
		return fmt.Errorf("%w: marshal tokens: %v", connect.ErrPersistence, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO mcp_user_credentials (id, user_id, provider, tool_server_url, oauth_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			tool_server_url = EXCLUDED.tool_server_url,
			oauth_tokens = EXCLUDED.oauth_tokens,
			updated_at = now()`,
		r.node.Generate().Int64(), userID, bundle.Provider, bundle.ToolServerURL, tokens)
	if err != nil {
		return fmt.Errorf("%w: upsert global credential: %v", connect.ErrPersistence, err)
	}
	return nil
}

// UpsertAgentScoped embeds the bundle inside the agent's configuration row,
// creating the row when the agent has no configuration yet.
func (r *PostgresCredentialRepo) UpsertAgentScoped(ctx context.Context, userID, agentID string, bundle connect.CredentialBundle) error {
	credential, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("%w: marshal bundle: %v", connect.ErrPersistence, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO mcp_agent_configs (id, user_id, agent_id, config, mcp_credential, created_at, updated_at)
		VALUES ($1, $2, $3, '{}'::jsonb, $4, now(), now())
		ON CONFLICT (user_id, agent_id) DO UPDATE SET
			mcp_credential = EXCLUDED.mcp_credential,
			updated_at = now()`,
		r.node.Generate().Int64(), userID, agentID, credential)
	if err != nil {
		return fmt.Errorf("%w: upsert agent credential: %v", connect.ErrPersistence, err)
	}
	return nil
}
