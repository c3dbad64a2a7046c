// subscriptions.go — 订阅索引 (C5): topic → 有序 agent id 列表。
package registry

// subscribe appends agentID to subscriptions[topic] if not already present.
// Empty id or topic is a silent no-op (false), never an error.
func (s *RegistryState) subscribe(agentID, topic string) bool {
	if agentID == "" || topic == "" {
		return false
	}
	for _, id := range s.Subscriptions[topic] {
		if id == agentID {
			return false
		}
	}
	s.Subscriptions[topic] = append(s.Subscriptions[topic], agentID)
	return true
}

// unsubscribe removes agentID from subscriptions[topic], dropping the topic
// entirely once its subscriber list is empty.
func (s *RegistryState) unsubscribe(agentID, topic string) bool {
	if agentID == "" || topic == "" {
		return false
	}
	subs, ok := s.Subscriptions[topic]
	if !ok {
		return false
	}
	removed := false
	filtered := subs[:0:0]
	for _, id := range subs {
		if id == agentID {
			removed = true
			continue
		}
		filtered = append(filtered, id)
	}
	if !removed {
		return false
	}
	if len(filtered) == 0 {
		delete(s.Subscriptions, topic)
	} else {
		s.Subscriptions[topic] = filtered
	}
	return true
}

// fanoutTargets returns a snapshot of the subscriber list for topic, taken
// before any enqueue — ordering across subscribers is the subscription
// list order at the time of publish.
func (s *RegistryState) fanoutTargets(topic string) []string {
	subs := s.Subscriptions[topic]
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}
