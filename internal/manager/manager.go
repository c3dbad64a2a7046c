// Package manager binds Shards (C10) to the persistent state store (C3) and
// creates them on demand, one per shard id.
package manager

import (
	"context"
	"sync"

	"github.com/agentmesh/registry/internal/clock"
	"github.com/agentmesh/registry/internal/config"
	"github.com/agentmesh/registry/internal/registry"
	"github.com/agentmesh/registry/internal/store"
	"github.com/agentmesh/registry/internal/telemetry"
	"github.com/agentmesh/registry/pkg/logger"
)

// ShardManager owns every live Shard, loading state from the store on first
// access and saving it back when Persist or PersistAll is called.
type ShardManager struct {
	mu         sync.Mutex
	shards     map[string]*registry.Shard
	store      store.RegistryStateStore
	clock      *clock.Clock
	telemetry  *telemetry.Registry
	namespaces registry.NamespaceTable
	delivery   registry.DeliveryClient
	limits     registry.Limits
}

// New returns a ShardManager. cfg supplies the clamp limits every shard
// enforces; namespaces and delivery are wired into each shard's dispatcher.
func New(cfg *config.Config, st store.RegistryStateStore, c *clock.Clock, tel *telemetry.Registry, namespaces registry.NamespaceTable, delivery registry.DeliveryClient) *ShardManager {
	return &ShardManager{
		shards:     make(map[string]*registry.Shard),
		store:      st,
		clock:      c,
		telemetry:  tel,
		namespaces: namespaces,
		delivery:   delivery,
		limits: registry.Limits{
			HeartbeatStaleMS:   int64(cfg.HeartbeatStaleMS),
			PruneMinStaleMS:    int64(cfg.PruneMinStaleMS),
			DispatchDefault:    cfg.DispatchDefaultLimit,
			DispatchMax:        cfg.DispatchMaxLimit,
			PollMax:            cfg.PollMaxLimit,
			RequeueMax:         cfg.RequeueMaxLimit,
			BackoffCapMS:       int64(cfg.BackoffCapMS),
			MaxAttemptsDefault: int32(cfg.MaxAttemptsDefault),
		},
	}
}

// Get returns the Shard for shardID, loading it from the store on first
// access (the lifecycle rule: shard state is created with empty collections
// and zero counters if nothing was ever persisted).
func (m *ShardManager) Get(ctx context.Context, shardID string) (*registry.Shard, error) {
	m.mu.Lock()
	if sh, ok := m.shards[shardID]; ok {
		m.mu.Unlock()
		return sh, nil
	}
	m.mu.Unlock()

	state, err := m.store.Load(ctx, shardID)
	if err != nil {
		return nil, err
	}

	sh := registry.NewShard(shardID, m.clock, m.telemetry, m.namespaces, m.delivery, m.limits)
	sh.Restore(state)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.shards[shardID]; ok {
		return existing, nil
	}
	m.shards[shardID] = sh
	logger.Infow("shard loaded", "shard_id", shardID)
	return sh, nil
}

// Persist saves shardID's current state back to the store. Callers invoke
// this after every mutating Shard operation, matching the core's rule that
// every mutation persists before the call returns.
func (m *ShardManager) Persist(ctx context.Context, shardID string) error {
	m.mu.Lock()
	sh, ok := m.shards[shardID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	body, err := sh.MarshalState()
	if err != nil {
		return err
	}
	return m.store.Save(ctx, shardID, body)
}

// All returns every shard currently loaded in memory, for the maintenance
// loop to iterate.
func (m *ShardManager) All() []*registry.Shard {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*registry.Shard, 0, len(m.shards))
	for _, sh := range m.shards {
		out = append(out, sh)
	}
	return out
}

// PersistAll saves every currently loaded shard, logging but not stopping on
// a per-shard failure.
func (m *ShardManager) PersistAll(ctx context.Context) {
	for _, sh := range m.All() {
		body, err := sh.MarshalState()
		if err != nil {
			logger.Errorw("shard marshal failed", "shard_id", sh.ID(), logger.FieldError, err)
			continue
		}
		if err := m.store.Save(ctx, sh.ID(), body); err != nil {
			logger.Errorw("shard persist failed", "shard_id", sh.ID(), logger.FieldError, err)
		}
	}
}
