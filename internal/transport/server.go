// Package transport is the ambient HTTP adapter over the registry core's
// operator interface (C10): a gin REST surface plus a websocket push of
// live queue/telemetry state.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentmesh/registry/internal/clock"
	"github.com/agentmesh/registry/internal/manager"
	"github.com/agentmesh/registry/internal/telemetry"
	"github.com/agentmesh/registry/pkg/logger"
)

// Server is the HTTP entry point binding the ShardManager to gin routes.
type Server struct {
	router    *gin.Engine
	manager   *manager.ShardManager
	telemetry *telemetry.Registry
	clock     *clock.Clock
}

// NewServer builds a Server with routes registered and a recovery middleware,
// following the same construction shape as the bundled HTTP service this one
// replaces.
func NewServer(mgr *manager.ShardManager, tel *telemetry.Registry, c *clock.Clock) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{router: r, manager: mgr, telemetry: tel, clock: c}
	s.registerRoutes()
	s.registerStream()
	return s
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine { return s.router }

func (s *Server) nowMS() int64     { return s.clock.NowMS() }
func (s *Server) newID() string    { return s.clock.NewID("msg") }

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// active requests for up to 5 seconds before shutting down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("transport: shutdown trigger")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("transport: shutdown error", logger.FieldError, err)
			return
		}
		logger.Info("transport: shutdown completed")
	}()

	logger.Infow("transport: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
