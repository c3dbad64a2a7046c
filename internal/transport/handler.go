// handler.go — operator interface (C10) 的 REST 路由。
package transport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentmesh/registry/internal/registry"
	"github.com/agentmesh/registry/pkg/logger"
)

// registerRoutes wires the operator surface under /api/shards/:shard.
func (s *Server) registerRoutes() {
	api := s.router.Group("/api/shards/:shard")

	api.POST("/agents", s.registerAgent)
	api.POST("/agents/:agent/heartbeat", s.heartbeat)
	api.GET("/agents", s.listAgents)
	api.POST("/agents/prune", s.pruneStaleAgents)

	api.POST("/subscriptions", s.subscribe)
	api.DELETE("/subscriptions", s.unsubscribe)

	api.POST("/publish", s.publish)
	api.POST("/messages", s.enqueue)
	api.GET("/messages/poll", s.poll)

	api.POST("/dispatch", s.dispatch)
	api.GET("/queue", s.queueState)
	api.GET("/routing/:type/preview", s.routingPreview)
	api.POST("/dead-letter/requeue", s.requeueDeadLetter)

	api.GET("/health", s.health)

	s.router.GET("/metrics", s.metrics)
}

func (s *Server) shard(c *gin.Context) (*registry.Shard, bool) {
	sh, err := s.manager.Get(c.Request.Context(), c.Param("shard"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return sh, true
}

func (s *Server) persist(c *gin.Context) {
	if err := s.manager.Persist(c.Request.Context(), c.Param("shard")); err != nil {
		logger.Errorw("persist failed after mutation", "shard_id", c.Param("shard"), logger.FieldError, err)
	}
}

type registerAgentRequest struct {
	ID           string               `json:"id"`
	Type         registry.AgentType   `json:"type"`
	Status       registry.AgentStatus `json:"status"`
	Capabilities map[string]bool      `json:"capabilities"`
	Metrics      map[string]float64   `json:"metrics"`
}

func (s *Server) registerAgent(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec := registry.AgentRecord{
		ID: req.ID, Type: req.Type, Status: req.Status,
		Capabilities: req.Capabilities, Metrics: req.Metrics,
	}
	if err := sh.RegisterAgent(rec); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	created(c, rec)
}

type heartbeatRequest struct {
	Status *registry.AgentStatus `json:"status"`
}

func (s *Server) heartbeat(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	var req heartbeatRequest
	_ = c.ShouldBindJSON(&req)
	if err := sh.Heartbeat(c.Param("agent"), req.Status); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	success(c, gin.H{"ok": true})
}

func (s *Server) listAgents(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	success(c, sh.ListAgents())
}

func (s *Server) pruneStaleAgents(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	staleMS := queryInt64(c, "stale_ms", registry.HeartbeatStaleMS*3)
	removed := sh.PruneStaleAgents(staleMS)
	s.persist(c)
	success(c, gin.H{"removed": removed})
}

type topicRequest struct {
	AgentID string `json:"agent_id"`
	Topic   string `json:"topic"`
}

func (s *Server) subscribe(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ok2 := sh.Subscribe(req.AgentID, req.Topic)
	s.persist(c)
	success(c, gin.H{"subscribed": ok2})
}

func (s *Server) unsubscribe(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ok2 := sh.Unsubscribe(req.AgentID, req.Topic)
	s.persist(c)
	success(c, gin.H{"unsubscribed": ok2})
}

type publishRequest struct {
	Source  string              `json:"source"`
	Topic   string              `json:"topic"`
	Payload []byte              `json:"payload"`
	DelayMS int64               `json:"delay_ms"`
}

func (s *Server) publish(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg := registry.Message{
		ID:      c.GetHeader("X-Request-Id"),
		Source:  req.Source,
		Topic:   req.Topic,
		Type:    registry.MsgEvent,
		Payload: req.Payload,
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	msg.TimestampMS = s.nowMS()
	enqueued, err := sh.Publish(msg, req.DelayMS, 0)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	success(c, gin.H{"enqueued": enqueued})
}

func (s *Server) enqueue(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	var msg registry.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		badRequest(c, err.Error())
		return
	}
	if msg.TimestampMS == 0 {
		msg.TimestampMS = s.nowMS()
	}
	qm, err := sh.Enqueue(msg, 0, 0)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	created(c, qm)
}

func (s *Server) poll(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	agentID := c.Query("agent_id")
	if agentID == "" {
		badRequest(c, "agent_id is required")
		return
	}
	limit := queryInt(c, "limit", 10)
	msgs := sh.Poll(agentID, limit)
	s.persist(c)
	success(c, msgs)
}

func (s *Server) dispatch(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 0)
	result := sh.Dispatch(c.Request.Context(), limit)
	s.persist(c)
	success(c, result)
}

func (s *Server) queueState(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	success(c, sh.QueueState())
}

func (s *Server) routingPreview(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	n := queryInt(c, "n", 3)
	agentType, valid := registry.ParseAgentType(c.Param("type"))
	if !valid {
		badRequest(c, "unknown agent type: "+c.Param("type"))
		return
	}
	success(c, sh.RoutingPreview(agentType, n))
}

func (s *Server) requeueDeadLetter(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 50)
	requeued, remaining := sh.RequeueDeadLetter(limit)
	s.persist(c)
	success(c, gin.H{"requeued": requeued, "remaining": remaining})
}

func (s *Server) health(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}
	success(c, sh.Health())
}

func (s *Server) metrics(c *gin.Context) {
	success(c, s.telemetry.Snapshot())
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func queryInt64(c *gin.Context, name string, def int64) int64 {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v < 1 {
		return def
	}
	return v
}
