// registry_state.go — 持久状态存储 (C3): load/save/schedule_wakeup 契约的
// Postgres 实现，状态整体序列化为单行 JSONB blob，按 shard_id 寻址。
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentmesh/registry/internal/registry"
	"github.com/agentmesh/registry/pkg/logger"
)

// RegistryStateStore is the C3 contract: load on first access, save commits
// atomically, schedule_wakeup arranges for the runtime to revisit a shard at
// or after a given time.
type RegistryStateStore interface {
	Load(ctx context.Context, shardID string) (*registry.RegistryState, error)
	Save(ctx context.Context, shardID string, body []byte) error
	ScheduleWakeup(ctx context.Context, shardID string, atMS int64) error
}

// PostgresRegistryStateStore persists one JSONB blob per shard in the
// registry_state table. save is a single UPSERT, which Postgres executes as
// one statement — callers observe either the whole pre-state or the whole
// post-state, never a partial write.
type PostgresRegistryStateStore struct{ BaseStore }

// NewPostgresRegistryStateStore wraps pool as a RegistryStateStore.
func NewPostgresRegistryStateStore(pool *pgxpool.Pool) *PostgresRegistryStateStore {
	return &PostgresRegistryStateStore{NewBaseStore(pool)}
}

// Load returns the persisted state for shardID, or a fresh empty state if
// the shard has never been saved (first-access lifecycle rule).
func (s *PostgresRegistryStateStore) Load(ctx context.Context, shardID string) (*registry.RegistryState, error) {
	var raw []byte
	err := s.Pool().QueryRow(ctx,
		`SELECT state FROM registry_state WHERE shard_id = $1`, shardID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return registry.NewRegistryState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load registry state %s: %w", shardID, err)
	}
	var state registry.RegistryState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal registry state %s: %w", shardID, err)
	}
	return &state, nil
}

// Save upserts the whole state for shardID in one statement. body must
// already be the caller's own JSON encoding of the state, taken under the
// shard's lock (see Shard.MarshalState) — Save never marshals a live pointer
// itself, since that would race a concurrent mutation of the same state.
func (s *PostgresRegistryStateStore) Save(ctx context.Context, shardID string, body []byte) error {
	_, err := s.Pool().Exec(ctx,
		`INSERT INTO registry_state (shard_id, state, updated_at)
		 VALUES ($1, $2::jsonb, NOW())
		 ON CONFLICT (shard_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		shardID, string(body))
	if err != nil {
		return fmt.Errorf("save registry state %s: %w", shardID, err)
	}
	return nil
}

// ScheduleWakeup records the next time the maintenance loop should revisit
// shardID. The loop itself runs on a fixed tick and already dispatches every
// shard each pass, so this is advisory bookkeeping surfaced to operators
// rather than something the tick loop blocks on.
func (s *PostgresRegistryStateStore) ScheduleWakeup(ctx context.Context, shardID string, atMS int64) error {
	_, err := s.Pool().Exec(ctx,
		`INSERT INTO registry_state (shard_id, state, next_wakeup_at_ms, updated_at)
		 VALUES ($1, '{}'::jsonb, $2, NOW())
		 ON CONFLICT (shard_id) DO UPDATE SET next_wakeup_at_ms = EXCLUDED.next_wakeup_at_ms, updated_at = NOW()`,
		shardID, atMS)
	if err != nil {
		return fmt.Errorf("schedule wakeup %s: %w", shardID, err)
	}
	logger.Debugw("wakeup scheduled", "shard_id", shardID, "at_ms", atMS)
	return nil
}

// MemoryRegistryStateStore is an in-process RegistryStateStore for tests and
// single-node deployments without Postgres configured. It stores each
// shard's raw JSON body rather than a live *registry.RegistryState pointer,
// so Load always hands back a freshly-unmarshaled value that no other
// goroutine can be mutating concurrently.
type MemoryRegistryStateStore struct {
	states  map[string][]byte
	wakeups map[string]int64
}

// NewMemoryRegistryStateStore returns an empty MemoryRegistryStateStore.
func NewMemoryRegistryStateStore() *MemoryRegistryStateStore {
	return &MemoryRegistryStateStore{
		states:  make(map[string][]byte),
		wakeups: make(map[string]int64),
	}
}

func (m *MemoryRegistryStateStore) Load(_ context.Context, shardID string) (*registry.RegistryState, error) {
	body, ok := m.states[shardID]
	if !ok {
		return registry.NewRegistryState(), nil
	}
	var state registry.RegistryState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("unmarshal registry state %s: %w", shardID, err)
	}
	return &state, nil
}

func (m *MemoryRegistryStateStore) Save(_ context.Context, shardID string, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)
	m.states[shardID] = cp
	return nil
}

func (m *MemoryRegistryStateStore) ScheduleWakeup(_ context.Context, shardID string, atMS int64) error {
	m.wakeups[shardID] = atMS
	return nil
}
