// dispatch.go — 调度器 (C8): 扫描到期消息，经命名空间解析器投递，
// 并应用重试/退避/死信策略。
package registry

import (
	"context"
	"fmt"

	"github.com/agentmesh/registry/internal/telemetry"
)

// DispatchResult is the outcome of one dispatch pass.
type DispatchResult struct {
	Delivered int
	Failed    int
	Pending   int
}

// bumpRetry records a failed delivery attempt and either reschedules the
// message with exponential backoff or moves it to the dead letter queue once
// attempts reach max_attempts. Capped at backoffCapMS.
//
// The source this core was modeled on sets status = failed then immediately
// back to pending on a retry bump; that intermediate state is unobservable
// by any external caller, so it is not reproduced here — tests must not rely
// on ever observing a "failed" QueueStatus outside the dead letter move.
func (s *RegistryState) bumpRetry(qm *QueuedMessage, reason string, backoffCapMS, nowMS int64) {
	qm.Attempts++
	qm.LastError = reason
	qm.RetryHistory = append(qm.RetryHistory, RetryAttempt{
		Attempt:       int(qm.Attempts),
		AttemptedAtMS: nowMS,
		FailureReason: reason,
	})
	s.DeliveryStats.Failed++

	if qm.Attempts >= qm.MaxAttempts {
		s.moveToDeadLetter(qm, reason)
		return
	}

	shift := qm.Attempts - 1
	if shift > 30 {
		shift = 30
	}
	backoff := int64(1000) << uint(shift)
	if backoff > backoffCapMS || backoff < 0 {
		backoff = backoffCapMS
	}
	qm.AvailableAtMS = nowMS + backoff
	qm.Status = QueuePending
}

// dispatch performs one pass over queue_order, delivering due messages via
// the namespace resolver and applying retry/backoff/DLQ policy. It stops
// once delivered+failed reaches limit or the scan reaches the end of
// queue_order. The shard lock is held for the whole pass, including any
// outbound delivery calls — a deliberate simplification per the concurrency
// model that serialises outbound deliveries within a shard.
func (s *RegistryState) dispatch(ctx context.Context, limit int, nowMS, staleMS, backoffCapMS int64, namespaces NamespaceTable, client DeliveryClient, tel *telemetry.Registry) DispatchResult {
	var delivered, failed int
	order := append([]string(nil), s.QueueOrder...)

	for _, qid := range order {
		if delivered+failed >= limit {
			break
		}
		qm, ok := s.Queue[qid]
		if !ok {
			continue
		}
		if qm.AvailableAtMS > nowMS {
			continue
		}
		if expired(qm.Message, nowMS) {
			s.moveToDeadLetter(qm, "Message expired before dispatch")
			failed++
			tel.Increment("dispatch.failed", 1, map[string]string{"reason": "expired"})
			continue
		}

		resolved, err := s.resolveTarget(qm.Message, true, nowMS, staleMS)
		if err != nil {
			s.bumpRetry(qm, "invalid_target_id", backoffCapMS, nowMS)
			failed++
			tel.Increment("dispatch.failed", 1, map[string]string{"reason": "invalid_target_id"})
			continue
		}
		qm.Message = resolved

		agent, ok := s.Agents[qm.Message.Target]
		if !ok {
			s.bumpRetry(qm, "Target agent unavailable", backoffCapMS, nowMS)
			failed++
			tel.Increment("dispatch.failed", 1, map[string]string{"reason": "target_unavailable"})
			continue
		}
		if !isActive(agent, nowMS, staleMS) {
			continue // stale: leave in place, no attempt increment, not counted
		}

		resolveEndpoint, ok := namespaces[agent.Type]
		var url string
		if ok {
			url, ok = resolveEndpoint(agent.ID)
		}
		if !ok {
			s.bumpRetry(qm, "namespace_missing", backoffCapMS, nowMS)
			failed++
			tel.Increment("dispatch.failed", 1, map[string]string{"reason": "namespace_missing"})
			continue
		}

		success, status, derr := client.Deliver(ctx, url, qm.Message)
		if derr != nil {
			s.bumpRetry(qm, "exception", backoffCapMS, nowMS)
			failed++
			tel.Increment("dispatch.failed", 1, map[string]string{"reason": "exception"})
			continue
		}
		if !success {
			reason := fmt.Sprintf("http_%d", status)
			s.bumpRetry(qm, reason, backoffCapMS, nowMS)
			failed++
			tel.Increment("dispatch.failed", 1, map[string]string{"reason": reason})
			continue
		}

		s.removeFromQueue(qm.QueueID)
		s.DeliveryStats.Delivered++
		delivered++
		tel.Increment("dispatch.delivered", 1, map[string]string{"agent_type": string(agent.Type)})
	}

	s.LastDispatchAtMS = nowMS
	return DispatchResult{Delivered: delivered, Failed: failed, Pending: len(s.QueueOrder)}
}
