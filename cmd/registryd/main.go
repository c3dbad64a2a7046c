// cmd/registryd — 注册表核心主入口: 加载配置、连接 Postgres、执行迁移、
// 装配 ShardManager 与维护循环，启动 HTTP/WS operator 接口。
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmesh/registry/internal/clock"
	"github.com/agentmesh/registry/internal/config"
	"github.com/agentmesh/registry/internal/database"
	"github.com/agentmesh/registry/internal/dispatch"
	"github.com/agentmesh/registry/internal/manager"
	"github.com/agentmesh/registry/internal/registry"
	"github.com/agentmesh/registry/internal/store"
	"github.com/agentmesh/registry/internal/telemetry"
	"github.com/agentmesh/registry/internal/transport"
	"github.com/agentmesh/registry/pkg/logger"
	"github.com/agentmesh/registry/pkg/util"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	stateStore := newStateStore(ctx, cfg)

	clk := clock.New()
	tel := telemetry.New()
	namespaces := registry.BuildNamespaceTableFromEnv()
	delivery := registry.NewHTTPDeliveryClient(time.Duration(cfg.DeliveryTimeoutSec) * time.Second)

	mgr := manager.New(cfg, stateStore, clk, tel, namespaces, delivery)

	loop := dispatch.NewLoop(
		time.Duration(cfg.MaintenanceIntervalMS)*time.Millisecond,
		cfg.DispatchMaxLimit,
		int64(cfg.HeartbeatStaleMS)*3,
		mgr.All,
		mgr.Persist,
		tel,
	)
	util.SafeGo(func() { loop.Run(ctx) })

	srv := transport.NewServer(mgr, tel, clk)
	addr := ":" + cfg.HTTPPort
	logger.Infow("registryd starting", logger.FieldPort, addr)

	util.SafeGo(func() {
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			logger.Fatal("server failed", logger.Any(logger.FieldError, err))
		}
	})

	<-ctx.Done()
	mgr.PersistAll(context.Background())
	logger.Info("shutting down")
}

// newStateStore connects to Postgres and runs migrations when a connection
// string is configured; otherwise it falls back to an in-memory store so the
// binary still runs for local exploration and tests.
func newStateStore(ctx context.Context, cfg *config.Config) store.RegistryStateStore {
	if cfg.PostgresConnStr == "" {
		logger.Warn("no POSTGRES_CONNECTION_STRING set, using in-memory state store")
		return store.NewMemoryRegistryStateStore()
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
	}
	logger.AttachDBHandler(pool)

	if err := database.Migrate(ctx, pool, "./migrations"); err != nil {
		logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
	}

	return store.NewPostgresRegistryStateStore(pool)
}
