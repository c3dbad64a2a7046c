// namespace.go — 命名空间解析器的外部接口, 供调度器将 AgentType
// 解析为具体投递端点；以及用于实际投递的默认 HTTP DeliveryClient。
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EndpointResolver maps an agent id to its inbound URL for one agent type.
// Returns ok = false if the agent type has no configured namespace.
type EndpointResolver func(agentID string) (url string, ok bool)

// NamespaceTable maps AgentType → EndpointResolver. An AgentType missing from
// the table causes the dispatcher to treat its deliveries as failures with
// reason "namespace_missing".
type NamespaceTable map[AgentType]EndpointResolver

// DeliveryClient performs the dispatcher's outbound POST. It exists as an
// interface so tests can inject a fake that records delivered messages
// without opening a real socket.
type DeliveryClient interface {
	// Deliver POSTs msg to endpoint and reports whether the response was a
	// 2xx success. err is non-nil only for failures worth distinguishing in
	// telemetry (network error vs. non-2xx status, the latter returned via
	// the ok=false/err=nil path with statusCode set).
	Deliver(ctx context.Context, endpoint string, msg Message) (ok bool, statusCode int, err error)
}

// httpDeliveryClient is the default DeliveryClient: a plain POST of the
// Message JSON body to "<endpoint>/message" with a per-attempt deadline.
type httpDeliveryClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPDeliveryClient returns a DeliveryClient that POSTs to agent
// endpoints with the given per-attempt timeout (recommended 1s-10s).
func NewHTTPDeliveryClient(timeout time.Duration) DeliveryClient {
	return &httpDeliveryClient{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (c *httpDeliveryClient) Deliver(ctx context.Context, endpoint string, msg Message) (bool, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(msg)
	if err != nil {
		return false, 0, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/message", bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode, nil
}
