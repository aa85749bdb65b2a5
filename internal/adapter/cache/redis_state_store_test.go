package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentinbox/mcp-connect/internal/domain/connect"
)

// unreachableClient returns a redis client whose every command fails with a
// connection error, forcing the store onto its process-local fallback.
func unreachableClient() redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:            "127.0.0.1:1",
		DialTimeout:     10 * time.Millisecond,
		MaxRetries:      -1,
		PoolTimeout:     10 * time.Millisecond,
		ReadTimeout:     10 * time.Millisecond,
		WriteTimeout:    10 * time.Millisecond,
		MinRetryBackoff: -1,
		MaxRetryBackoff: -1,
	})
}

func sampleFlow(state string) connect.FlowState {
	return connect.FlowState{
		State:         state,
		CodeVerifier:  "verifier",
		UserID:        "user-1",
		ToolServerURL: "https://rube.app/mcp",
		Provider:      "rube",
		ClientID:      "client-1",
		Global:        true,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestFallback_SingleUseLifecycle(t *testing.T) {
	store := NewRedisStateStore(unreachableClient(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, "s1", sampleFlow("s1"), time.Minute))

	loaded, err := store.GetState(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "user-1", loaded.UserID)
	require.Equal(t, "rube", loaded.Provider)

	require.NoError(t, store.DeleteState(ctx, "s1"))

	gone, err := store.GetState(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestFallback_UnknownStateIsNotFoundNotError(t *testing.T) {
	store := NewRedisStateStore(unreachableClient(), zap.NewNop())
	loaded, err := store.GetState(context.Background(), "never-issued")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestFallback_TTLExpiryWithoutDelete(t *testing.T) {
	store := NewRedisStateStore(unreachableClient(), zap.NewNop())
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	require.NoError(t, store.SaveState(ctx, "s2", sampleFlow("s2"), 10*time.Minute))

	loaded, err := store.GetState(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	current = current.Add(10*time.Minute + time.Second)

	expired, err := store.GetState(ctx, "s2")
	require.NoError(t, err)
	require.Nil(t, expired)
}

func TestFallback_LazySweepOnAnyOperation(t *testing.T) {
	store := NewRedisStateStore(unreachableClient(), zap.NewNop())
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	require.NoError(t, store.SaveState(ctx, "old", sampleFlow("old"), time.Minute))
	current = current.Add(2 * time.Minute)

	// Touching an unrelated key sweeps the expired entry.
	require.NoError(t, store.SaveState(ctx, "fresh", sampleFlow("fresh"), time.Minute))

	store.mu.Lock()
	_, stillThere := store.local["old"]
	store.mu.Unlock()
	require.False(t, stillThere)
}

func TestFallback_IndependentKeys(t *testing.T) {
	store := NewRedisStateStore(unreachableClient(), zap.NewNop())
	ctx := context.Background()

	globalFlow := sampleFlow("g")
	agentFlow := sampleFlow("a")
	agentFlow.Global = false
	agentFlow.AgentID = "calendar"

	require.NoError(t, store.SaveState(ctx, "g", globalFlow, time.Minute))
	require.NoError(t, store.SaveState(ctx, "a", agentFlow, time.Minute))
	require.NoError(t, store.DeleteState(ctx, "g"))

	remaining, err := store.GetState(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, remaining)
	require.Equal(t, "calendar", remaining.AgentID)
}
