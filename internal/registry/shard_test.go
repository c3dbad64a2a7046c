package registry

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/registry/internal/clock"
	"github.com/agentmesh/registry/internal/telemetry"
)

func testLimits() Limits {
	return Limits{
		HeartbeatStaleMS:   300_000,
		PruneMinStaleMS:    60_000,
		DispatchDefault:    50,
		DispatchMax:        200,
		PollMax:            100,
		RequeueMax:         500,
		BackoffCapMS:       30_000,
		MaxAttemptsDefault: 3,
	}
}

func newTestShard() *Shard {
	c := clock.NewFrozen(time.Unix(1_700_000_000, 0))
	return NewShard("shard-1", c, telemetry.New(), nil, nil, testLimits())
}

func TestShard_RegisterAndHeartbeat(t *testing.T) {
	sh := newTestShard()

	if err := sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentScout}); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	agents := sh.ListAgents()
	rec, ok := agents["a1"]
	if !ok {
		t.Fatal("a1 not in directory after register")
	}
	if rec.Status != StatusActive {
		t.Errorf("default status = %v, want active", rec.Status)
	}

	busy := StatusBusy
	if err := sh.Heartbeat("a1", &busy); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if sh.ListAgents()["a1"].Status != StatusBusy {
		t.Error("heartbeat did not update status")
	}

	if err := sh.Heartbeat("unknown", nil); err == nil {
		t.Error("Heartbeat on unknown agent: want error, got nil")
	}
}

func TestShard_RegisterRejectsEmptyID(t *testing.T) {
	sh := newTestShard()
	if err := sh.RegisterAgent(AgentRecord{Type: AgentScout}); err == nil {
		t.Error("RegisterAgent with empty id: want error, got nil")
	}
}

func TestShard_SubscribePublishFanout(t *testing.T) {
	sh := newTestShard()
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentAnalyst})
	sh.RegisterAgent(AgentRecord{ID: "a2", Type: AgentAnalyst})

	sh.Subscribe("a1", "alerts")
	sh.Subscribe("a2", "alerts")

	n, err := sh.Publish(Message{
		ID: "m1", Source: "scout-1", Type: MsgEvent, Topic: "alerts",
		Payload: []byte(`{}`),
	}, 0, 0)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 2 {
		t.Fatalf("Publish fanned out to %d subscribers, want 2", n)
	}

	got1 := sh.Poll("a1", 10)
	got2 := sh.Poll("a2", 10)
	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("poll after publish: a1=%d a2=%d, want 1 each", len(got1), len(got2))
	}

	if !sh.Unsubscribe("a1", "alerts") {
		t.Error("Unsubscribe: want true, got false")
	}
	n, err = sh.Publish(Message{ID: "m2", Source: "scout-1", Type: MsgEvent, Topic: "alerts"}, 0, 0)
	if err != nil {
		t.Fatalf("Publish after unsubscribe: %v", err)
	}
	if n != 1 {
		t.Fatalf("Publish after unsubscribe fanned out to %d, want 1", n)
	}
}

func TestShard_EnqueuePollRoundTrip(t *testing.T) {
	sh := newTestShard()
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentScout})

	qm, err := sh.Enqueue(Message{
		ID: "m1", Source: "orch", Target: "a1", Topic: "tasks", Type: MsgCommand,
	}, 0, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if qm.Status != QueuePending {
		t.Errorf("queued status = %v, want pending", qm.Status)
	}

	got := sh.Poll("a1", 10)
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("Poll returned %+v, want [m1]", got)
	}
	if qs := sh.QueueState(); qs.PendingCount != 0 {
		t.Errorf("PendingCount after poll = %d, want 0", qs.PendingCount)
	}
}

func TestShard_EnqueueRejectsInvalidInput(t *testing.T) {
	sh := newTestShard()
	if _, err := sh.Enqueue(Message{ID: "m1"}, 0, 0); err == nil {
		t.Error("Enqueue with missing fields: want error, got nil")
	}
}

func TestShard_DispatchDeliversViaFakeClient(t *testing.T) {
	fake := &fakeDeliveryClient{ok: true, status: 200}
	sh := NewShard("shard-1", clock.NewFrozen(time.Unix(1_700_000_000, 0)), telemetry.New(),
		NamespaceTable{AgentTrader: func(id string) (string, bool) { return "http://a1.local", true }},
		fake, testLimits())
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentTrader})

	if _, err := sh.Enqueue(Message{ID: "m1", Source: "orch", Target: "a1", Topic: "t", Type: MsgCommand}, 0, 2); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result := sh.Dispatch(context.Background(), 0)
	if result.Delivered != 1 || result.Failed != 0 {
		t.Fatalf("Dispatch result = %+v, want Delivered=1 Failed=0", result)
	}
	if fake.calls != 1 {
		t.Errorf("delivery client called %d times, want 1", fake.calls)
	}
}

func TestShard_DispatchRetriesThenDeadLetters(t *testing.T) {
	sh := NewShard("shard-1", clock.NewFrozen(time.Unix(1_700_000_000, 0)), telemetry.New(),
		NamespaceTable{AgentTrader: func(id string) (string, bool) { return "http://a1.local", true }},
		&fakeDeliveryClient{ok: false, status: 500},
		testLimits())
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentTrader})
	sh.Enqueue(Message{ID: "m1", Source: "orch", Target: "a1", Topic: "t", Type: MsgCommand}, 0, 2)

	r1 := sh.Dispatch(context.Background(), 0)
	if r1.Delivered != 0 || r1.Failed != 1 {
		t.Fatalf("first attempt result = %+v", r1)
	}
	if qs := sh.QueueState(); qs.DeadLetterCount != 0 {
		t.Fatalf("message dead-lettered after one failed attempt, want still queued")
	}

	// Second attempt: push available_at into the past by rebuilding with a
	// later frozen clock, since backoff scheduled it into the future.
	sh.clock = clock.NewFrozen(time.Unix(1_700_000_010, 0))
	r2 := sh.Dispatch(context.Background(), 0)
	if r2.Delivered != 0 || r2.Failed != 1 {
		t.Fatalf("second attempt result = %+v", r2)
	}
	if qs := sh.QueueState(); qs.DeadLetterCount != 1 || qs.Stats.DeadLettered != 1 {
		t.Fatalf("queue state after max attempts = %+v, want 1 dead letter", qs)
	}
}

func TestShard_PruneStaleAgents(t *testing.T) {
	c := clock.NewFrozen(time.Unix(1_700_000_000, 0))
	sh := NewShard("shard-1", c, telemetry.New(), nil, nil, testLimits())
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentScout})
	sh.Subscribe("a1", "topic")

	sh.clock = clock.NewFrozen(time.Unix(1_700_000_000, 0).Add(10 * time.Minute))
	removed := sh.PruneStaleAgents(300_000)
	if removed != 1 {
		t.Fatalf("PruneStaleAgents removed %d, want 1", removed)
	}
	if len(sh.ListAgents()) != 0 {
		t.Error("agent still present after prune")
	}
}

func TestShard_PruneStaleAgentsClampsBelowConfiguredFloor(t *testing.T) {
	c := clock.NewFrozen(time.Unix(1_700_000_000, 0))
	sh := NewShard("shard-1", c, telemetry.New(), nil, nil, testLimits())
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentScout})

	sh.clock = clock.NewFrozen(time.Unix(1_700_000_000, 0).Add(30 * time.Second))
	// Caller asks for a 1s staleness window; testLimits' PruneMinStaleMS floor
	// (60s) must be enforced instead, so a 30s-old heartbeat survives.
	removed := sh.PruneStaleAgents(1_000)
	if removed != 0 {
		t.Fatalf("PruneStaleAgents(1000) removed %d, want 0 (floor should clamp to PruneMinStaleMS)", removed)
	}
	if len(sh.ListAgents()) != 1 {
		t.Error("agent pruned despite being within the clamped floor window")
	}
}

func TestShard_RoutingPreviewRoundRobinByID(t *testing.T) {
	sh := newTestShard()
	sh.RegisterAgent(AgentRecord{ID: "b", Type: AgentAnalyst})
	sh.RegisterAgent(AgentRecord{ID: "a", Type: AgentAnalyst})
	sh.RegisterAgent(AgentRecord{ID: "c", Type: AgentAnalyst})

	preview := sh.RoutingPreview(AgentAnalyst, 4)
	want := []string{"a", "b", "c", "a"}
	for i, id := range want {
		if preview[i] != id {
			t.Fatalf("preview[%d] = %q, want %q (preview=%v)", i, preview[i], id, preview)
		}
	}
}

func TestShard_RoutingPreviewClampsToMaxCeiling(t *testing.T) {
	sh := newTestShard()
	sh.RegisterAgent(AgentRecord{ID: "a", Type: AgentAnalyst})

	preview := sh.RoutingPreview(AgentAnalyst, 1000)
	if len(preview) != RoutingPreviewMax {
		t.Fatalf("len(preview) = %d, want clamped to %d", len(preview), RoutingPreviewMax)
	}
}

func TestShard_RequeueDeadLetter(t *testing.T) {
	sh := NewShard("shard-1", clock.NewFrozen(time.Unix(1_700_000_000, 0)), telemetry.New(),
		NamespaceTable{}, &fakeDeliveryClient{ok: false, status: 500}, testLimits())
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentTrader})
	sh.Enqueue(Message{ID: "m1", Source: "orch", Target: "a1", Topic: "t", Type: MsgCommand}, 0, 1)
	sh.Dispatch(context.Background(), 0)

	if qs := sh.QueueState(); qs.DeadLetterCount != 1 {
		t.Fatalf("expected message dead-lettered after single max attempt, got %+v", qs)
	}

	requeued, remaining := sh.RequeueDeadLetter(10)
	if requeued != 1 || remaining != 0 {
		t.Fatalf("RequeueDeadLetter = (%d, %d), want (1, 0)", requeued, remaining)
	}
	if qs := sh.QueueState(); qs.PendingCount != 1 {
		t.Errorf("PendingCount after requeue = %d, want 1", qs.PendingCount)
	}
}

func TestShard_HealthAndSnapshotRestore(t *testing.T) {
	sh := newTestShard()
	sh.RegisterAgent(AgentRecord{ID: "a1", Type: AgentScout})
	sh.Enqueue(Message{ID: "m1", Source: "orch", Target: "a1", Topic: "t", Type: MsgCommand}, 0, 1)

	health := sh.Health()
	if health.ShardID != "shard-1" || health.AgentCount != 1 || health.QueueDepth != 1 {
		t.Fatalf("Health = %+v, unexpected", health)
	}

	snap := sh.Snapshot()
	restored := NewShard("shard-1", sh.clock, sh.telemetry, nil, nil, testLimits())
	restored.Restore(snap)
	if got := restored.Health(); got.AgentCount != 1 || got.QueueDepth != 1 {
		t.Fatalf("Health after restore = %+v, unexpected", got)
	}
}

type fakeDeliveryClient struct {
	ok     bool
	status int
	calls  int
}

func (f *fakeDeliveryClient) Deliver(_ context.Context, _ string, _ Message) (bool, int, error) {
	f.calls++
	return f.ok, f.status, nil
}
