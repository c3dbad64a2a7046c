package registry

import (
	"errors"
	"testing"

	apperrors "github.com/agentmesh/registry/pkg/errors"
)

func TestResolveTarget_NonAbstractTargetPassesThrough(t *testing.T) {
	s := NewRegistryState()
	msg := Message{Target: "concrete-agent-id"}

	got, err := s.resolveTarget(msg, false, 0, 300_000)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got.Target != "concrete-agent-id" {
		t.Errorf("Target = %q, want unchanged", got.Target)
	}
}

func TestResolveTarget_UnknownAgentTypeAlwaysFails(t *testing.T) {
	s := NewRegistryState()
	msg := Message{Target: "type:not_a_real_type"}

	_, err := s.resolveTarget(msg, true, 0, 300_000)
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput even with allowUnresolved=true", err)
	}
}

func TestResolveTarget_EmptyPoolAllowUnresolvedReturnsUnchanged(t *testing.T) {
	s := NewRegistryState()
	msg := Message{Target: "role:scout"}

	got, err := s.resolveTarget(msg, true, 0, 300_000)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got.Target != "role:scout" {
		t.Errorf("Target = %q, want left abstract for later retry", got.Target)
	}
}

func TestResolveTarget_EmptyPoolDisallowUnresolvedFailsUnavailable(t *testing.T) {
	s := NewRegistryState()
	msg := Message{Target: "type:scout"}

	_, err := s.resolveTarget(msg, false, 0, 300_000)
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestResolveTarget_PrefersActiveAgentsOverStale(t *testing.T) {
	s := NewRegistryState()
	s.Agents["stale"] = &AgentRecord{ID: "stale", Type: AgentScout, LastHeartbeatMS: 0}
	s.Agents["fresh"] = &AgentRecord{ID: "fresh", Type: AgentScout, LastHeartbeatMS: 999_000}

	got, err := s.resolveTarget(Message{Target: "type:scout"}, false, 1_000_000, 300_000)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got.Target != "fresh" {
		t.Errorf("Target = %q, want the only active agent", got.Target)
	}
	if got.Headers["x-routed-type"] != string(AgentScout) {
		t.Errorf("x-routed-type header = %q, want %q", got.Headers["x-routed-type"], AgentScout)
	}
}

func TestResolveTarget_FallsBackToFullPoolWhenNoneActive(t *testing.T) {
	s := NewRegistryState()
	s.Agents["a1"] = &AgentRecord{ID: "a1", Type: AgentScout, LastHeartbeatMS: 0}

	got, err := s.resolveTarget(Message{Target: "type:scout"}, false, 1_000_000, 300_000)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got.Target != "a1" {
		t.Errorf("Target = %q, want fallback to the only (stale) candidate", got.Target)
	}
}

func TestSelectAgent_AdvancesCursorAcrossCalls(t *testing.T) {
	s := NewRegistryState()
	s.Agents["a"] = &AgentRecord{ID: "a", Type: AgentAnalyst, LastHeartbeatMS: 1_000}
	s.Agents["b"] = &AgentRecord{ID: "b", Type: AgentAnalyst, LastHeartbeatMS: 1_000}

	first := s.selectAgent(AgentAnalyst, 1_000, 300_000)
	second := s.selectAgent(AgentAnalyst, 1_000, 300_000)
	third := s.selectAgent(AgentAnalyst, 1_000, 300_000)

	if first.ID == second.ID {
		t.Error("consecutive selectAgent calls picked the same agent, want round-robin alternation")
	}
	if first.ID != third.ID {
		t.Errorf("round-robin did not cycle back after 2 agents: first=%s third=%s", first.ID, third.ID)
	}
}
