// wire.go — Message 的规范化 on-the-wire JSON 形态。
package registry

import "encoding/json"

type wireMessage struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	Target        string            `json:"target"`
	Type          MessageType       `json:"type"`
	Topic         string            `json:"topic"`
	Payload       json.RawMessage   `json:"payload"`
	TimestampMS   int64             `json:"timestamp"`
	CorrelationID string            `json:"correlationId,omitempty"`
	ReplyTo       string            `json:"replyTo,omitempty"`
	Priority      Priority          `json:"priority,omitempty"`
	TTLMs         int64             `json:"ttlMs,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// MarshalJSON produces the canonical wire shape (camelCase optional fields, "timestamp" not "timestamp_ms").
func (m Message) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal(wireMessage{
		ID:            m.ID,
		Source:        m.Source,
		Target:        m.Target,
		Type:          m.Type,
		Topic:         m.Topic,
		Payload:       payload,
		TimestampMS:   m.TimestampMS,
		CorrelationID: m.CorrelationID,
		ReplyTo:       m.ReplyTo,
		Priority:      m.Priority,
		TTLMs:         m.TTLMs,
		Headers:       m.Headers,
	})
}

// UnmarshalJSON parses the canonical wire shape back into a Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:            w.ID,
		Source:        w.Source,
		Target:        w.Target,
		Type:          w.Type,
		Topic:         w.Topic,
		Payload:       []byte(w.Payload),
		TimestampMS:   w.TimestampMS,
		CorrelationID: w.CorrelationID,
		ReplyTo:       w.ReplyTo,
		Priority:      w.Priority,
		TTLMs:         w.TTLMs,
		Headers:       w.Headers,
	}
	return nil
}
