package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentinbox/mcp-connect/internal/domain/connect"
	"github.com/agentinbox/mcp-connect/internal/repository"
)

const statePrefix = "mcp:state:"

// RedisStateStore implements FlowStateStore backed by Redis. A connectivity
// fault degrades the affected operation to a process-local map instead of
// failing the request. The fallback is strictly single-process and does not
// survive a restart; flow state is meaningless once the owning process is
// gone, so that is acceptable.
type RedisStateStore struct {
	client redis.UniversalClient
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]localEntry
	now   func() time.Time
}

type localEntry struct {
	payload   []byte
	expiresAt time.Time
}

var _ repository.FlowStateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient, logger *zap.Logger) *RedisStateStore {
	if logger == nil {
		logger = zap.L()
	}
	return &RedisStateStore{
		client: client,
		logger: logger,
		local:  make(map[string]localEntry),
		now:    time.Now,
	}
}

// SaveState stores the encoded flow state payload with TTL.
func (s *RedisStateStore) SaveState(ctx context.Context, state string, data connect.FlowState, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, statePrefix+state, payload, ttl).Err(); err != nil {
		s.logger.Warn("redis unavailable, storing flow state in process-local fallback", zap.Error(err))
		s.putLocal(state, payload, ttl)
	}
	return nil
}

// GetState loads and decodes the flow state. Unknown or expired state
// resolves to (nil, nil), never an error.
func (s *RedisStateStore) GetState(ctx context.Context, state string) (*connect.FlowState, error) {
	payload, err := s.client.Get(ctx, statePrefix+state).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("redis unavailable, reading flow state from process-local fallback", zap.Error(err))
		}
		payload = s.getLocal(state)
		if payload == nil {
			return nil, nil
		}
	}
	var flow connect.FlowState
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &flow, nil
}

// DeleteState removes the state from both the primary and the fallback.
func (s *RedisStateStore) DeleteState(ctx context.Context, state string) error {
	if err := s.client.Del(ctx, statePrefix+state).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("redis unavailable, deleting flow state from process-local fallback only", zap.Error(err))
	}
	s.deleteLocal(state)
	return nil
}

func (s *RedisStateStore) putLocal(state string, payload []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.local[state] = localEntry{payload: payload, expiresAt: s.now().Add(ttl)}
}

func (s *RedisStateStore) getLocal(state string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	entry, ok := s.local[state]
	if !ok {
		return nil
	}
	return entry.payload
}

func (s *RedisStateStore) deleteLocal(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	delete(s.local, state)
}

// sweepLocked removes expired fallback entries lazily on access; there is no
// background timer.
func (s *RedisStateStore) sweepLocked() {
	now := s.now()
	for key, entry := range s.local {
		if now.After(entry.expiresAt) {
			delete(s.local, key)
		}
	}
}
