// Package clock 提供单调墙钟时间与全局唯一 ID 生成 (对应注册表核心 C1)。
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock 提供 now_ms/new_id。零值即可用 (使用系统墙钟 + uuid v4)。
//
// 测试可以替换为固定时钟以获得确定性的 now_ms，但 ID 生成始终走真实随机源 —
// 碰撞按规范被视为编程错误，而不是需要模拟的场景。
type Clock struct {
	now func() time.Time
}

// New 创建使用系统墙钟的 Clock。
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewFrozen 创建一个返回固定时间的 Clock，供测试使用。
func NewFrozen(t time.Time) *Clock {
	return &Clock{now: func() time.Time { return t }}
}

// NowMS 返回当前墙钟时间，单位毫秒。
func (c *Clock) NowMS() int64 {
	if c.now == nil {
		return time.Now().UnixMilli()
	}
	return c.now().UnixMilli()
}

// NewID 生成一个带前缀的全局唯一 ID: "<prefix>-<uuid>"。
//
// 在分片内碰撞的概率可忽略不计; 调用方应将任何解析/唯一性失败当作 Internal 错误处理。
func (c *Clock) NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
