package registry

import "testing"

func TestSubscribe_DedupesRepeatedCalls(t *testing.T) {
	s := NewRegistryState()

	if ok := s.subscribe("a1", "topic"); !ok {
		t.Fatal("first subscribe returned false")
	}
	if ok := s.subscribe("a1", "topic"); ok {
		t.Error("duplicate subscribe returned true, want false (no-op)")
	}
	if got := s.Subscriptions["topic"]; len(got) != 1 {
		t.Fatalf("Subscriptions[topic] = %v, want 1 entry", got)
	}
}

func TestSubscribe_PreservesInsertionOrder(t *testing.T) {
	s := NewRegistryState()
	s.subscribe("a1", "topic")
	s.subscribe("a2", "topic")
	s.subscribe("a3", "topic")

	want := []string{"a1", "a2", "a3"}
	got := s.fanoutTargets("topic")
	if len(got) != len(want) {
		t.Fatalf("fanoutTargets = %v, want %v", got, want)
	}
	for i, id := range want {
		if got[i] != id {
			t.Errorf("fanoutTargets[%d] = %q, want %q", i, got[i], id)
		}
	}
}

func TestSubscribe_EmptyIDOrTopicIsNoOp(t *testing.T) {
	s := NewRegistryState()
	if s.subscribe("", "topic") {
		t.Error("subscribe with empty agent id: want false")
	}
	if s.subscribe("a1", "") {
		t.Error("subscribe with empty topic: want false")
	}
}

func TestUnsubscribe_RemovesAndDropsEmptyTopic(t *testing.T) {
	s := NewRegistryState()
	s.subscribe("a1", "topic")

	if ok := s.unsubscribe("a1", "topic"); !ok {
		t.Fatal("unsubscribe returned false, want true")
	}
	if _, ok := s.Subscriptions["topic"]; ok {
		t.Error("empty topic entry should be dropped entirely, not left as []")
	}
	if ok := s.unsubscribe("a1", "topic"); ok {
		t.Error("unsubscribe of an already-removed subscription: want false")
	}
}

func TestUnsubscribe_LeavesOtherSubscribersInOrder(t *testing.T) {
	s := NewRegistryState()
	s.subscribe("a1", "topic")
	s.subscribe("a2", "topic")
	s.subscribe("a3", "topic")

	s.unsubscribe("a2", "topic")

	got := s.fanoutTargets("topic")
	want := []string{"a1", "a3"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("fanoutTargets after removing a2 = %v, want %v", got, want)
	}
}

func TestFanoutTargets_SnapshotIsIndependentOfFutureMutation(t *testing.T) {
	s := NewRegistryState()
	s.subscribe("a1", "topic")

	snap := s.fanoutTargets("topic")
	s.subscribe("a2", "topic")

	if len(snap) != 1 {
		t.Errorf("earlier snapshot mutated by later subscribe: %v", snap)
	}
}
