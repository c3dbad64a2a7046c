// queue.go — 队列引擎 (C6): 按入队顺序 FIFO 的消息队列，
// 带可用时间、重试次数、TTL 与死信区。
package registry

import (
	"sort"

	apperrors "github.com/agentmesh/registry/pkg/errors"
)

// expired reports whether a message has outlived its TTL. ttl_ms is measured
// from message.timestamp_ms, not from enqueue — producers own the SLA.
func expired(msg Message, nowMS int64) bool {
	if msg.TTLMs <= 0 {
		return false
	}
	return nowMS > msg.TimestampMS+msg.TTLMs
}

// validateMessage enforces the non-empty-fields rule for a new message.
func validateMessage(msg Message) error {
	if msg.ID == "" || msg.Source == "" || msg.Target == "" || msg.Topic == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "Queue.Enqueue", "id, source, target and topic are required")
	}
	return nil
}

// enqueue validates and inserts msg, resolving an abstract target through
// the router with allow_unresolved = false: an unresolved abstract target
// fails enqueue with Unavailable.
func (s *RegistryState) enqueue(msg Message, delayMS int64, maxAttempts int32, nowMS, staleMS int64, newQueueID func() string) (*QueuedMessage, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}
	resolved, err := s.resolveTarget(msg, false, nowMS, staleMS)
	if err != nil {
		return nil, err
	}
	return s.enqueueResolved(resolved, delayMS, maxAttempts, nowMS, newQueueID), nil
}

// enqueueResolved inserts a message whose target has already been resolved
// (or is concrete to begin with, as for publish fan-out). It does not
// validate the message or resolve its target itself.
func (s *RegistryState) enqueueResolved(msg Message, delayMS int64, maxAttempts int32, nowMS int64, newQueueID func() string) *QueuedMessage {
	if delayMS < 0 {
		delayMS = 0
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	qm := &QueuedMessage{
		QueueID:       newQueueID(),
		Message:       msg,
		EnqueuedAtMS:  nowMS,
		AvailableAtMS: nowMS + delayMS,
		Attempts:      0,
		MaxAttempts:   maxAttempts,
		Status:        QueuePending,
	}
	s.Queue[qm.QueueID] = qm
	s.QueueOrder = append(s.QueueOrder, qm.QueueID)
	s.DeliveryStats.Enqueued++
	return qm
}

// removeFromQueue deletes qid from both the map and the order slice.
func (s *RegistryState) removeFromQueue(qid string) {
	delete(s.Queue, qid)
	for i, id := range s.QueueOrder {
		if id == qid {
			s.QueueOrder = append(s.QueueOrder[:i], s.QueueOrder[i+1:]...)
			break
		}
	}
}

// moveToDeadLetter removes qid from the live queue and parks it in the DLQ
// with the given reason.
func (s *RegistryState) moveToDeadLetter(qm *QueuedMessage, reason string) {
	s.removeFromQueue(qm.QueueID)
	qm.LastError = reason
	qm.Status = QueueFailed
	s.DeadLetter[qm.QueueID] = qm
	s.DeliveryStats.DeadLettered++
}

// poll scans queue_order in insertion order, collecting up to limit messages
// addressed to agentID whose available_at has passed. Expired messages are
// dead-lettered (not returned) rather than delivered.
func (s *RegistryState) poll(agentID string, limit int, nowMS int64) []Message {
	if limit < 1 {
		limit = 1
	}
	var matched []string
	var out []Message
	for _, qid := range s.QueueOrder {
		if len(out) >= limit {
			break
		}
		qm, ok := s.Queue[qid]
		if !ok || qm.Message.Target != agentID || qm.AvailableAtMS > nowMS {
			continue
		}
		matched = append(matched, qid)
		if expired(qm.Message, nowMS) {
			s.moveToDeadLetter(qm, "Message expired before poll")
			continue
		}
		out = append(out, qm.Message)
		s.DeliveryStats.Delivered++
	}
	for _, qid := range matched {
		if _, stillQueued := s.Queue[qid]; stillQueued {
			s.removeFromQueue(qid)
		}
	}
	return out
}

// requeueDeadLetter takes up to limit DLQ entries in enqueued_at ascending
// order and attempts to enqueue each anew with its original max_attempts. An
// entry that cannot be re-enqueued (e.g. still unroutable) remains in the DLQ.
func (s *RegistryState) requeueDeadLetter(limit int, nowMS, staleMS int64, newQueueID func() string) (requeued, remaining int) {
	entries := make([]*QueuedMessage, 0, len(s.DeadLetter))
	for _, qm := range s.DeadLetter {
		entries = append(entries, qm)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].EnqueuedAtMS < entries[j].EnqueuedAtMS })

	if limit > len(entries) {
		limit = len(entries)
	}
	for _, qm := range entries[:limit] {
		resolved, err := s.resolveTarget(qm.Message, false, nowMS, staleMS)
		if err != nil {
			continue
		}
		delete(s.DeadLetter, qm.QueueID)
		s.enqueueResolved(resolved, 0, qm.MaxAttempts, nowMS, newQueueID)
		requeued++
	}
	return requeued, len(s.DeadLetter)
}
