// directory.go — Agent 目录 (C4): 成员关系、心跳、陈旧判定。
package registry

import (
	apperrors "github.com/agentmesh/registry/pkg/errors"
)

// HeartbeatStaleMS is the activity threshold: an agent is active for
// delivery iff now - last_heartbeat <= HeartbeatStaleMS.
const HeartbeatStaleMS = 300_000

// isActive reports whether a is active for delivery at time nowMS.
func isActive(a *AgentRecord, nowMS, staleMS int64) bool {
	return nowMS-a.LastHeartbeatMS <= staleMS
}

// registerAgent upserts an agent by id. Preserves caller-supplied status
// (defaulting to active), sets last_heartbeat = now, and initialises the
// router's round-robin cursor for the type if absent.
//
// The registry itself must never register under its own directory — the
// "registry" agent type is reserved for self-identification in some
// deployments and self-registration is a deliberate no-op here.
func (s *RegistryState) registerAgent(rec AgentRecord, nowMS int64) error {
	if rec.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "Directory.Register", "agent id must not be empty")
	}
	if rec.Type == AgentRegistry {
		return nil
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	rec.LastHeartbeatMS = nowMS
	if rec.Capabilities == nil {
		rec.Capabilities = make(map[string]bool)
	}
	if rec.Metrics == nil {
		rec.Metrics = make(map[string]float64)
	}
	s.Agents[rec.ID] = &rec
	if _, ok := s.RoutingState[rec.Type]; !ok {
		s.RoutingState[rec.Type] = 0
	}
	return nil
}

// heartbeat refreshes last_heartbeat and optionally the status of agentID.
func (s *RegistryState) heartbeat(agentID string, status *AgentStatus, nowMS int64) error {
	rec, ok := s.Agents[agentID]
	if !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "Directory.Heartbeat", "unknown agent: "+agentID)
	}
	rec.LastHeartbeatMS = nowMS
	if status != nil {
		rec.Status = *status
	}
	return nil
}

// listAgents returns a shallow copy of the directory map (records themselves
// are not mutated by callers through this accessor).
func (s *RegistryState) listAgents() map[string]AgentRecord {
	out := make(map[string]AgentRecord, len(s.Agents))
	for id, rec := range s.Agents {
		out[id] = *rec
	}
	return out
}

// pruneStale removes every agent whose heartbeat is older than staleMS, and
// removes their ids from every subscription list. Returns the count removed.
func (s *RegistryState) pruneStale(staleMS, nowMS int64) int {
	var removedIDs []string
	for id, rec := range s.Agents {
		if nowMS-rec.LastHeartbeatMS > staleMS {
			removedIDs = append(removedIDs, id)
		}
	}
	for _, id := range removedIDs {
		delete(s.Agents, id)
	}
	if len(removedIDs) == 0 {
		return 0
	}
	removedSet := make(map[string]bool, len(removedIDs))
	for _, id := range removedIDs {
		removedSet[id] = true
	}
	for topic, subs := range s.Subscriptions {
		filtered := subs[:0:0]
		for _, id := range subs {
			if !removedSet[id] {
				filtered = append(filtered, id)
			}
		}
		if len(filtered) == 0 {
			delete(s.Subscriptions, topic)
		} else {
			s.Subscriptions[topic] = filtered
		}
	}
	return len(removedIDs)
}
