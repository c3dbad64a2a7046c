// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"github.com/agentmesh/registry/pkg/util"
)

// Config 应用全局配置，字段名与环境变量一一对应。
//
// 调谐常量 (HeartbeatStaleMS 等) 的默认值直接取自注册表核心的规定默认值;
// 覆盖它们会改变陈旧判定、调度周期与重试策略，仅应在测试或受控部署中使用。
type Config struct {
	// PostgreSQL — 持久状态存储 (C3)
	PostgresConnStr        string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema         string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize    int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize    int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`
	PostgresPoolTimeoutSec int    `env:"POSTGRES_POOL_TIMEOUT_SEC" default:"10" min:"1"`

	// 注册表核心调谐常量
	HeartbeatStaleMS      int `env:"HEARTBEAT_STALE_MS" default:"300000" min:"1000"`
	MaintenanceIntervalMS int `env:"MAINTENANCE_INTERVAL_MS" default:"15000" min:"1000"`
	DispatchDefaultLimit  int `env:"DISPATCH_DEFAULT_LIMIT" default:"50" min:"1"`
	DispatchMaxLimit      int `env:"DISPATCH_MAX_LIMIT" default:"200" min:"1"`
	PollMaxLimit          int `env:"POLL_MAX_LIMIT" default:"100" min:"1"`
	RequeueMaxLimit       int `env:"REQUEUE_MAX_LIMIT" default:"500" min:"1"`
	PruneMinStaleMS       int `env:"PRUNE_MIN_STALE_MS" default:"60000" min:"1000"`
	BackoffCapMS          int `env:"BACKOFF_CAP_MS" default:"30000" min:"1000"`
	MaxAttemptsDefault    int `env:"MAX_ATTEMPTS_DEFAULT" default:"3" min:"1"`

	// 出站投递 HTTP 客户端
	DeliveryTimeoutSec int `env:"DELIVERY_TIMEOUT_SEC" default:"5" min:"1"`

	// 传输层 (ambient, 非核心)
	HTTPPort string `env:"HTTP_PORT" default:"8080"`

	// 日志
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
