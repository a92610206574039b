// Package main runs the MyBudget+ settings server: the HTTP API, the websocket
// gateway and the automatic backup scheduler in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mybudgetplus/mybudget/internal/auth"
	"github.com/mybudgetplus/mybudget/internal/backup"
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/common/tracing"
	"github.com/mybudgetplus/mybudget/internal/events"
	"github.com/mybudgetplus/mybudget/internal/preferences/cache"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	tracing.SetServiceName("mybudget")

	if err := run(cfg, log); err != nil {
		log.Error("MyBudget+ exited with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("Starting MyBudget+ settings server...")

	// 3. Root context, cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanups []func() error
	runCleanups := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				log.Warn("cleanup failed", zap.Error(err))
			}
		}
	}
	defer runCleanups()

	// 4. Storage
	repos, repoCleanups, err := provideRepositories(cfg, log)
	cleanups = append(cleanups, repoCleanups...)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// 5. Preferences cache (Redis, optional)
	prefsCache, cacheCleanup, err := cache.Provide(cfg, log)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	cleanups = append(cleanups, cacheCleanup)

	// 6. Event bus (in-memory, or NATS if configured)
	eventBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	cleanups = append(cleanups, busCleanup)

	// 7. Services
	services := provideServices(cfg, log, repos, prefsCache, eventBus)
	tokens := auth.NewTokens(cfg.Auth)
	requireAuth := auth.RequireAuth(tokens, services.User, log)

	// ============================================
	// SETTINGS
	// ============================================
	pictures := controller.NewPictureStore(cfg.Uploads, log)
	settingsCtrl := controller.NewController(services.User, services.Preferences, pictures, log)

	// ============================================
	// WEBSOCKET GATEWAY
	// ============================================
	gateway, broadcaster, err := provideGateway(ctx, cfg, log, eventBus, settingsCtrl)
	if err != nil {
		return fmt.Errorf("init websocket gateway: %w", err)
	}
	defer broadcaster.Close()

	// ============================================
	// HTTP SERVER
	// ============================================
	router := newRouter(cfg, log)
	registerRoutes(routeParams{
		cfg:          cfg,
		router:       router,
		repos:        repos,
		services:     services,
		settingsCtrl: settingsCtrl,
		gateway:      gateway,
		requireAuth:  requireAuth,
		log:          log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// ============================================
	// AUTO BACKUP
	// ============================================
	var scheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		runner := backup.NewRunner(repos.Preferences, services.User, cfg.Backup.Dir, eventBus, log)
		scheduler, err = backup.NewScheduler(runner, cfg.Backup.Schedule, log)
		if err != nil {
			return fmt.Errorf("init backup scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gateway.Hub.Run(gctx)
		return nil
	})
	if scheduler != nil {
		scheduler.Start()
	}
	g.Go(func() error {
		log.Info("MyBudget+ server listening",
			zap.String("address", server.Addr),
			zap.String("websocket", "/ws"),
			zap.String("health", "/health"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		runGracefulShutdown(server, scheduler, log)
		return nil
	})

	err = g.Wait()
	log.Info("MyBudget+ stopped")
	return err
}

func newRouter(cfg *config.Config, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.Server))
	router.Use(requestMiddleware(log)...)
	return router
}
