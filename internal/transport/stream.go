// stream.go — websocket 推送: 周期性广播某 shard 的 health/queue_state 与
// 全局 telemetry 快照，供仪表盘类消费者订阅。
package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agentmesh/registry/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamFrame struct {
	Health    any `json:"health"`
	Queue     any `json:"queue"`
	Telemetry any `json:"telemetry"`
}

func (s *Server) registerStream() {
	s.router.GET("/ws/shards/:shard", s.streamHandler)
}

// streamHandler upgrades to a websocket and pushes a frame every 2 seconds
// until the client disconnects or the request context ends.
func (s *Server) streamHandler(c *gin.Context) {
	sh, ok := s.shard(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("transport: websocket upgrade failed", logger.FieldError, err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	logger.Infow("transport: stream client connected", "shard_id", sh.ID())
	defer logger.Infow("transport: stream client disconnected", "shard_id", sh.ID())

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			frame := streamFrame{
				Health:    sh.Health(),
				Queue:     sh.QueueState(),
				Telemetry: s.telemetry.Snapshot(),
			}
			body, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
	}
}
