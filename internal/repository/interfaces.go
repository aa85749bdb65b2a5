package repository

import (
	"context"
	"time"

	"github.com/agentinbox/mcp-connect/internal/domain/connect"
)

// FlowStateStore persists short-lived authorization flow state. A state value
// is retrievable at most until its TTL elapses and is deleted by the
// orchestrator right after a successful read. GetState returns (nil, nil) for
// unknown or expired keys.
type FlowStateStore interface {
	SaveState(ctx context.Context, state string, data connect.FlowState, ttl time.Duration) error
	GetState(ctx context.Context, state string) (*connect.FlowState, error)
	DeleteState(ctx context.Context, state string) error
}

// CredentialRepository upserts encrypted credential bundles. Both operations
// are single-row last-writer-wins upserts; bundles are never deleted here.
type CredentialRepository interface {
	UpsertGlobal(ctx context.Context, userID string, bundle connect.CredentialBundle) error
	UpsertAgentScoped(ctx context.Context, userID, agentID string, bundle connect.CredentialBundle) error
}
