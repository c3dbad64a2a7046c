// Package registry 实现按分片组织的 Agent 群体注册表与消息代理:
// Agent 目录 (C4)、订阅索引 (C5)、队列引擎 (C6)、路由器 (C7)，
// 以及串联调度器 (C8) 的单写者 Shard (C10)。
package registry

import "strings"

// AgentType is the closed enum of agent kinds the directory tracks.
type AgentType string

const (
	AgentScout       AgentType = "scout"
	AgentAnalyst     AgentType = "analyst"
	AgentTrader      AgentType = "trader"
	AgentRiskManager AgentType = "risk_manager"
	AgentLearning    AgentType = "learning"
	AgentRegistry    AgentType = "registry"
)

var validAgentTypes = map[AgentType]bool{
	AgentScout: true, AgentAnalyst: true, AgentTrader: true,
	AgentRiskManager: true, AgentLearning: true, AgentRegistry: true,
}

// ParseAgentType validates a raw string against the closed AgentType enum.
func ParseAgentType(s string) (AgentType, bool) {
	t := AgentType(s)
	return t, validAgentTypes[t]
}

// AgentStatus is the lifecycle status an agent self-reports.
type AgentStatus string

const (
	StatusActive  AgentStatus = "active"
	StatusBusy    AgentStatus = "busy"
	StatusError   AgentStatus = "error"
	StatusOffline AgentStatus = "offline"
)

// MessageType is the closed enum of message kinds.
type MessageType string

const (
	MsgCommand  MessageType = "COMMAND"
	MsgEvent    MessageType = "EVENT"
	MsgQuery    MessageType = "QUERY"
	MsgResponse MessageType = "RESPONSE"
)

// Priority is accepted and stored but never used for scheduling by the core.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AgentRecord is one entry in the Agent Directory.
type AgentRecord struct {
	ID              string             `json:"id"`
	Type            AgentType          `json:"type"`
	Status          AgentStatus        `json:"status"`
	LastHeartbeatMS int64              `json:"last_heartbeat_ms"`
	Capabilities    map[string]bool    `json:"capabilities"`
	Metrics         map[string]float64 `json:"metrics"`
}

// Message is the wire-level unit accepted via enqueue/publish and delivered
// to agent endpoints. Field names here are Go-idiomatic; MarshalJSON in
// wire.go produces the canonical wire shape (camelCase optional fields).
type Message struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	Target        string            `json:"target"`
	Type          MessageType       `json:"type"`
	Topic         string            `json:"topic"`
	Payload       []byte            `json:"payload"`
	TimestampMS   int64             `json:"timestamp_ms"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	ReplyTo       string            `json:"reply_to,omitempty"`
	Priority      Priority          `json:"priority,omitempty"`
	TTLMs         int64             `json:"ttl_ms,omitempty"`
	Headers       map[string]string `json:"headers"`
}

// isAbstractTarget reports whether a target string is of the form
// "type:<AgentType>" or "role:<AgentType>" (treated identically).
func isAbstractTarget(target string) (agentType string, ok bool) {
	for _, prefix := range []string{"type:", "role:"} {
		if strings.HasPrefix(target, prefix) {
			return strings.TrimPrefix(target, prefix), true
		}
	}
	return "", false
}

// QueueStatus is the lifecycle status of a QueuedMessage.
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueInflight QueueStatus = "inflight"
	QueueFailed   QueueStatus = "failed"
)

// RetryAttempt records one failed delivery attempt. It is kept in the
// persisted QueuedMessage (and in the JSON of a QueuedMessage) for operator
// inspection; QueueState does not report it, and it is not part of any
// invariant.
type RetryAttempt struct {
	Attempt       int    `json:"attempt"`
	AttemptedAtMS int64  `json:"attempted_at_ms"`
	FailureReason string `json:"failure_reason"`
}

// QueuedMessage is a Message wrapped with queue bookkeeping.
type QueuedMessage struct {
	QueueID       string         `json:"queue_id"`
	Message       Message        `json:"message"`
	EnqueuedAtMS  int64          `json:"enqueued_at_ms"`
	AvailableAtMS int64          `json:"available_at_ms"`
	Attempts      int32          `json:"attempts"`
	MaxAttempts   int32          `json:"max_attempts"`
	Status        QueueStatus    `json:"status"`
	LastError     string         `json:"last_error,omitempty"`
	RetryHistory  []RetryAttempt `json:"retry_history,omitempty"`
}

// DeliveryStats are monotonic counters tracked per shard.
type DeliveryStats struct {
	Enqueued     int64 `json:"enqueued"`
	Delivered    int64 `json:"delivered"`
	Failed       int64 `json:"failed"`
	DeadLettered int64 `json:"dead_lettered"`
}

// RegistryState is the persistent entity, one per shard. Shard is the only
// type permitted to mutate it.
type RegistryState struct {
	Agents           map[string]*AgentRecord   `json:"agents"`
	Queue            map[string]*QueuedMessage `json:"queue"`
	QueueOrder       []string                  `json:"queue_order"`
	DeadLetter       map[string]*QueuedMessage `json:"dead_letter"`
	Subscriptions    map[string][]string       `json:"subscriptions"`
	DeliveryStats    DeliveryStats             `json:"delivery_stats"`
	RoutingState     map[AgentType]int32       `json:"routing_state"`
	LastDispatchAtMS int64                     `json:"last_dispatch_at_ms"`
}

// NewRegistryState returns a RegistryState with all collections empty and
// counters zero.
func NewRegistryState() *RegistryState {
	return &RegistryState{
		Agents:        make(map[string]*AgentRecord),
		Queue:         make(map[string]*QueuedMessage),
		QueueOrder:    nil,
		DeadLetter:    make(map[string]*QueuedMessage),
		Subscriptions: make(map[string][]string),
		RoutingState:  make(map[AgentType]int32),
	}
}
