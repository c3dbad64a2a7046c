// Package dispatch 运行维护循环 (C9): 周期性触发调度与陈旧 Agent 清理。
package dispatch

import (
	"context"
	"time"

	"github.com/agentmesh/registry/internal/registry"
	"github.com/agentmesh/registry/internal/telemetry"
	"github.com/agentmesh/registry/pkg/logger"
)

// ShardSource returns the current set of shards to run maintenance over.
// Shards are created on demand elsewhere; this loop only touches ones that
// already exist at each tick.
type ShardSource func() []*registry.Shard

// PersistFunc saves a single shard's current state back to its store. The
// loop calls this after every mutating tick so dispatch/prune transitions
// are never lost to a non-graceful exit.
type PersistFunc func(ctx context.Context, shardID string) error

// Loop self-reschedules forever on a ticker, running one dispatch pass, one
// stale-agent prune, and one persist per shard each tick. It never stops on
// error: a failing shard is logged and skipped, the loop always reschedules.
type Loop struct {
	interval   time.Duration
	dispatchN  int
	pruneAfter int64
	shards     ShardSource
	persist    PersistFunc
	telemetry  *telemetry.Registry
}

// NewLoop builds a maintenance Loop. dispatchLimit bounds each shard's
// per-tick dispatch pass; pruneAfterMS is the staleness threshold (typically
// a multiple of the directory's own heartbeat-stale window, since an agent
// already excluded from routing should be given a grace period before its
// record is deleted outright). persist is invoked once per shard after each
// tick's mutations, so dispatch/DLQ/prune transitions persist atomically
// before the tick returns.
func NewLoop(interval time.Duration, dispatchLimit int, pruneAfterMS int64, shards ShardSource, persist PersistFunc, tel *telemetry.Registry) *Loop {
	return &Loop{
		interval:   interval,
		dispatchN:  dispatchLimit,
		pruneAfter: pruneAfterMS,
		shards:     shards,
		persist:    persist,
		telemetry:  tel,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance loop stopping")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	for _, sh := range l.shards() {
		l.tickShard(ctx, sh)
	}
}

func (l *Loop) tickShard(ctx context.Context, sh *registry.Shard) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("maintenance tick panicked",
				"shard_id", sh.ID(), logger.FieldError, r)
			l.telemetry.Increment("maintenance.errors", 1, map[string]string{"shard": sh.ID()})
		}
	}()

	result := sh.Dispatch(ctx, l.dispatchN)
	pruned := sh.PruneStaleAgents(l.pruneAfter)

	if l.persist != nil {
		if err := l.persist(ctx, sh.ID()); err != nil {
			logger.Errorw("maintenance tick persist failed",
				"shard_id", sh.ID(), logger.FieldError, err)
			l.telemetry.Increment("maintenance.persist_errors", 1, map[string]string{"shard": sh.ID()})
		}
	}

	logger.Debugw("maintenance tick",
		"shard_id", sh.ID(),
		"delivered", result.Delivered,
		"failed", result.Failed,
		"pending", result.Pending,
		"pruned_agents", pruned,
	)
}
