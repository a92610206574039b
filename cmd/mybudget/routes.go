package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	admincontroller "github.com/mybudgetplus/mybudget/internal/admin/controller"
	adminhandlers "github.com/mybudgetplus/mybudget/internal/admin/handlers"
	"github.com/mybudgetplus/mybudget/internal/backup"
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/common/tracing"
	gateways "github.com/mybudgetplus/mybudget/internal/gateway/websocket"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
	settingshandlers "github.com/mybudgetplus/mybudget/internal/settings/handlers"
)

type routeParams struct {
	cfg          *config.Config
	router       *gin.Engine
	repos        *Repositories
	services     *Services
	settingsCtrl *controller.Controller
	gateway      *gateways.Gateway
	requireAuth  gin.HandlerFunc
	log          *logger.Logger
}

// registerRoutes sets up all HTTP and websocket routes on the given router.
func registerRoutes(p routeParams) {
	p.gateway.SetupRoutes(p.router, p.requireAuth)

	settingshandlers.RegisterRoutes(p.router, p.settingsCtrl, p.requireAuth, p.cfg.Uploads.MaxBytes, p.log)
	p.log.Debug("Registered Settings handlers (HTTP + WebSocket)")

	adminCtrl := admincontroller.NewController(p.services.User, p.services.Preferences, p.gateway.Hub, p.log)
	adminhandlers.RegisterRoutes(p.router, adminCtrl, p.requireAuth, p.log)
	p.log.Debug("Registered Admin handlers (HTTP)")

	p.router.Static(p.cfg.Uploads.PublicPath, p.cfg.Uploads.Dir)

	p.router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := p.repos.Pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "mybudget", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "mybudget", "clients": p.gateway.Hub.GetClientCount()})
	})
}

// runGracefulShutdown stops accepting requests, then stops the scheduler and
// flushes traces. Storage and the event bus are closed by the caller's cleanups.
func runGracefulShutdown(server *http.Server, scheduler *backup.Scheduler, log *logger.Logger) {
	log.Info("Shutting down MyBudget+...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracing shutdown error", zap.Error(err))
	}
}
