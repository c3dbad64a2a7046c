// shard.go — 单写者 Operator 接口 (C10): 以一把互斥锁串行化对某个分片的
// RegistryState 的全部访问，对外暴露高层操作（注册/心跳/发布/入队/调度...）。
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/agentmesh/registry/internal/clock"
	"github.com/agentmesh/registry/internal/telemetry"
	apperrors "github.com/agentmesh/registry/pkg/errors"
)

// RoutingPreviewMax is the hard ceiling on routing_preview's n, regardless of
// what a caller requests.
const RoutingPreviewMax = 20

// Limits bundles the clamped-not-rejected bounds a Shard enforces on every
// caller-supplied limit argument.
type Limits struct {
	HeartbeatStaleMS   int64
	PruneMinStaleMS    int64
	DispatchDefault    int
	DispatchMax        int
	PollMax            int
	RequeueMax         int
	BackoffCapMS       int64
	MaxAttemptsDefault int32
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64Min(v, min int64) int64 {
	if v < min {
		return min
	}
	return v
}

// Shard is the single-writer operator interface bound to one RegistryState.
// Every exported method takes the shard lock for its whole duration,
// including any outbound delivery call made from Dispatch.
type Shard struct {
	mu         sync.Mutex
	id         string
	state      *RegistryState
	clock      *clock.Clock
	telemetry  *telemetry.Registry
	namespaces NamespaceTable
	delivery   DeliveryClient
	limits     Limits
}

// NewShard returns a Shard wrapping an empty RegistryState.
func NewShard(id string, c *clock.Clock, tel *telemetry.Registry, namespaces NamespaceTable, delivery DeliveryClient, limits Limits) *Shard {
	return &Shard{
		id:         id,
		state:      NewRegistryState(),
		clock:      c,
		telemetry:  tel,
		namespaces: namespaces,
		delivery:   delivery,
		limits:     limits,
	}
}

// Restore rebinds the shard to a previously persisted state, e.g. after a
// load from the persistent state store.
func (sh *Shard) Restore(state *RegistryState) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if state == nil {
		state = NewRegistryState()
	}
	sh.state = state
}

// Snapshot returns the shard's live state pointer under lock, for in-process
// callers (tests, Restore round-trips) that run entirely inside the shard's
// own synchronization. It must never be retained or serialized after the
// lock is released — use MarshalState for that.
func (sh *Shard) Snapshot() *RegistryState {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state
}

// MarshalState serializes the shard's state to JSON under lock, so the
// encoder never races a concurrent mutation from another handler or the
// maintenance loop. Callers that need bytes for persistence must use this
// instead of marshaling a Snapshot() result after the lock is released.
func (sh *Shard) MarshalState() ([]byte, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return json.Marshal(sh.state)
}

// ID returns the shard's identifier.
func (sh *Shard) ID() string { return sh.id }

// RegisterAgent upserts an agent record into the directory.
func (sh *Shard) RegisterAgent(rec AgentRecord) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	defer sh.telemetry.Start("shard.register_agent", map[string]string{"shard": sh.id})()
	return sh.state.registerAgent(rec, sh.clock.NowMS())
}

// Heartbeat refreshes an agent's last-seen time and optional status.
func (sh *Shard) Heartbeat(agentID string, status *AgentStatus) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state.heartbeat(agentID, status, sh.clock.NowMS())
}

// ListAgents returns a point-in-time copy of the directory.
func (sh *Shard) ListAgents() map[string]AgentRecord {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state.listAgents()
}

// Subscribe adds agentID as a subscriber of topic.
func (sh *Shard) Subscribe(agentID, topic string) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state.subscribe(agentID, topic)
}

// Unsubscribe removes agentID from topic's subscriber list.
func (sh *Shard) Unsubscribe(agentID, topic string) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.state.unsubscribe(agentID, topic)
}

// Publish fans msg out to every current subscriber of msg.Topic, enqueuing
// one copy per subscriber. Returns the number of subscribers it enqueued to.
func (sh *Shard) Publish(msg Message, delayMS int64, maxAttempts int32) (int, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if msg.ID == "" || msg.Source == "" || msg.Topic == "" {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "Shard.Publish", "id, source and topic are required")
	}
	if maxAttempts < 1 {
		maxAttempts = sh.limits.MaxAttemptsDefault
	}
	nowMS := sh.clock.NowMS()
	targets := sh.state.fanoutTargets(msg.Topic)
	for _, target := range targets {
		copyMsg := msg
		copyMsg.Target = target
		sh.state.enqueueResolved(copyMsg, delayMS, maxAttempts, nowMS, func() string { return sh.clock.NewID("qmsg") })
	}
	sh.telemetry.Increment("shard.published", float64(len(targets)), map[string]string{"topic": msg.Topic})
	return len(targets), nil
}

// Enqueue validates and inserts msg, resolving any abstract target eagerly.
func (sh *Shard) Enqueue(msg Message, delayMS int64, maxAttempts int32) (*QueuedMessage, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if maxAttempts < 1 {
		maxAttempts = sh.limits.MaxAttemptsDefault
	}
	nowMS := sh.clock.NowMS()
	qm, err := sh.state.enqueue(msg, delayMS, maxAttempts, nowMS, sh.limits.HeartbeatStaleMS, func() string { return sh.clock.NewID("qmsg") })
	if err != nil {
		sh.telemetry.Increment("shard.enqueue_failed", 1, nil)
		return nil, err
	}
	return qm, nil
}

// Poll drains up to limit due messages addressed to agentID, clamped to
// PollMax.
func (sh *Shard) Poll(agentID string, limit int) []Message {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	limit = clampInt(limit, 1, sh.limits.PollMax)
	out := sh.state.poll(agentID, limit, sh.clock.NowMS())
	sh.telemetry.Increment("shard.polled", float64(len(out)), map[string]string{"agent": agentID})
	return out
}

// Dispatch runs one dispatch pass, clamped to DispatchMax; limit <= 0 uses
// the configured default.
func (sh *Shard) Dispatch(ctx context.Context, limit int) DispatchResult {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if limit <= 0 {
		limit = sh.limits.DispatchDefault
	}
	limit = clampInt(limit, 1, sh.limits.DispatchMax)
	nowMS := sh.clock.NowMS()
	result := sh.state.dispatch(ctx, limit, nowMS, sh.limits.HeartbeatStaleMS, sh.limits.BackoffCapMS, sh.namespaces, sh.delivery, sh.telemetry)
	sh.telemetry.Increment("shard.dispatch_delivered", float64(result.Delivered), nil)
	sh.telemetry.Increment("shard.dispatch_failed", float64(result.Failed), nil)
	return result
}

// QueueState reports point-in-time queue depth/dead-letter counts.
type QueueState struct {
	PendingCount    int           `json:"pending_count"`
	DeadLetterCount int           `json:"dead_letter_count"`
	Stats           DeliveryStats `json:"stats"`
}

// QueueState snapshots queue depth and delivery stats.
func (sh *Shard) QueueState() QueueState {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return QueueState{
		PendingCount:    len(sh.state.QueueOrder),
		DeadLetterCount: len(sh.state.DeadLetter),
		Stats:           sh.state.DeliveryStats,
	}
}

// RoutingPreview returns the next n agent ids the router would pick for
// agentType without mutating routing state.
func (sh *Shard) RoutingPreview(agentType AgentType, n int) []string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n = clampInt(n, 1, RoutingPreviewMax)
	return sh.state.previewRouting(agentType, n, sh.clock.NowMS(), sh.limits.HeartbeatStaleMS)
}

// RequeueDeadLetter re-enqueues up to limit dead-lettered messages, clamped
// to RequeueMax.
func (sh *Shard) RequeueDeadLetter(limit int) (requeued, remaining int) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	limit = clampInt(limit, 1, sh.limits.RequeueMax)
	nowMS := sh.clock.NowMS()
	requeued, remaining = sh.state.requeueDeadLetter(limit, nowMS, sh.limits.HeartbeatStaleMS, func() string { return sh.clock.NewID("qmsg") })
	sh.telemetry.Increment("shard.requeued", float64(requeued), nil)
	return requeued, remaining
}

// PruneStaleAgents removes agents whose heartbeat is older than staleMS.
func (sh *Shard) PruneStaleAgents(staleMS int64) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	staleMS = clampInt64Min(staleMS, sh.limits.PruneMinStaleMS)
	removed := sh.state.pruneStale(staleMS, sh.clock.NowMS())
	if removed > 0 {
		sh.telemetry.Increment("shard.pruned_agents", float64(removed), nil)
	}
	return removed
}

// Health reports a coarse liveness snapshot for the operator surface.
type Health struct {
	ShardID      string `json:"shard_id"`
	AgentCount   int    `json:"agent_count"`
	QueueDepth   int    `json:"queue_depth"`
	DeadLetters  int    `json:"dead_letters"`
	LastDispatch int64  `json:"last_dispatch_at_ms"`
}

// Health snapshots a shard's coarse liveness for the operator surface.
func (sh *Shard) Health() Health {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return Health{
		ShardID:      sh.id,
		AgentCount:   len(sh.state.Agents),
		QueueDepth:   len(sh.state.QueueOrder),
		DeadLetters:  len(sh.state.DeadLetter),
		LastDispatch: sh.state.LastDispatchAtMS,
	}
}
