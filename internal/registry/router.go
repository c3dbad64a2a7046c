// router.go — 路由器 (C7): 在某类型的活跃 agent 间以 round-robin
// 方式将抽象目标解析为具体 agent。
package registry

import (
	"sort"

	apperrors "github.com/agentmesh/registry/pkg/errors"
)

// candidatePool returns the agents of the given type, preferring active ones
// (falling back to the full candidate set when none are active), ordered
// deterministically by agent id so that round-robin is reproducible given
// identical state.
func (s *RegistryState) candidatePool(agentType AgentType, nowMS, staleMS int64) []*AgentRecord {
	var all, active []*AgentRecord
	for _, rec := range s.Agents {
		if rec.Type != agentType {
			continue
		}
		all = append(all, rec)
		if isActive(rec, nowMS, staleMS) {
			active = append(active, rec)
		}
	}
	pool := active
	if len(pool) == 0 {
		pool = all
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool
}

// selectAgent runs one round-robin step against the type's pool, mutating
// routing_state. Returns nil if the pool is empty.
func (s *RegistryState) selectAgent(agentType AgentType, nowMS, staleMS int64) *AgentRecord {
	pool := s.candidatePool(agentType, nowMS, staleMS)
	if len(pool) == 0 {
		return nil
	}
	cursor := s.RoutingState[agentType]
	i := int(cursor) % len(pool)
	selected := pool[i]
	s.RoutingState[agentType] = int32((int(cursor) + 1) % len(pool))
	return selected
}

// resolveTarget resolves message.Target when it is an abstract target
// (type:X / role:X). Non-abstract targets are returned unchanged. An unknown
// AgentType always fails with InvalidInput regardless of allowUnresolved.
// When the type's pool is empty: allowUnresolved returns the message
// unchanged (caller will retry later); otherwise it fails with Unavailable.
func (s *RegistryState) resolveTarget(msg Message, allowUnresolved bool, nowMS, staleMS int64) (Message, error) {
	rawType, ok := isAbstractTarget(msg.Target)
	if !ok {
		return msg, nil
	}
	agentType, valid := ParseAgentType(rawType)
	if !valid {
		return msg, apperrors.Wrap(apperrors.ErrInvalidInput, "Router.Resolve", "unknown agent type: "+rawType)
	}

	selected := s.selectAgent(agentType, nowMS, staleMS)
	if selected == nil {
		if allowUnresolved {
			return msg, nil
		}
		return msg, apperrors.Wrap(apperrors.ErrUnavailable, "Router.Resolve", "no agents of type "+string(agentType))
	}

	out := msg
	out.Target = selected.ID
	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-routed-type"] = string(agentType)
	out.Headers = headers
	return out, nil
}

// previewRouting returns the next n agents the router would pick for
// agentType, without mutating routing_state.
func (s *RegistryState) previewRouting(agentType AgentType, n int, nowMS, staleMS int64) []string {
	pool := s.candidatePool(agentType, nowMS, staleMS)
	if len(pool) == 0 {
		return nil
	}
	cursor := int(s.RoutingState[agentType])
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = pool[(cursor+i)%len(pool)].ID
	}
	return out
}
