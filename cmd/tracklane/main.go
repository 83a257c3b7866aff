package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tracklane/tracklane/pkg/api"
	"github.com/tracklane/tracklane/pkg/attachments"
	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/comments"
	"github.com/tracklane/tracklane/pkg/config"
	"github.com/tracklane/tracklane/pkg/gate"
	"github.com/tracklane/tracklane/pkg/httputil"
	"github.com/tracklane/tracklane/pkg/middleware"
	"github.com/tracklane/tracklane/pkg/observability"
	"github.com/tracklane/tracklane/pkg/projects"
	"github.com/tracklane/tracklane/pkg/storage/postgres"
	"github.com/tracklane/tracklane/pkg/tasks"
	"github.com/tracklane/tracklane/pkg/timesheets"
	"github.com/tracklane/tracklane/pkg/users"
	"github.com/tracklane/tracklane/pkg/workspaces"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.InfoLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, continuing anyway")
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	checkCounter := gate.NewCheckCounter(registry)

	blobStore, err := attachments.NewS3BlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	userStore := users.NewPostgresStore(db)
	tokenManager := auth.NewTokenManager(db)
	workspaceService := workspaces.NewPostgresService(db, userStore)
	projectService := projects.NewPostgresService(db, workspaceService)
	permGate := gate.New(workspaceService, projectService, checkCounter)
	projectACL := permGate.ProjectACL()
	taskService := tasks.NewPostgresService(db, projectACL)
	timesheetService := timesheets.NewPostgresService(db, projectACL)
	commentService := comments.NewPostgresService(db, projectACL)
	attachmentService := attachments.NewPostgresService(db, blobStore, projectACL)

	var recorder audit.Recorder = audit.NewPostgresRecorder(db)
	if cfg.Audit.LogFile != "" {
		fileRecorder, err := audit.NewFileRecorder(cfg.Audit.LogFile)
		if err != nil {
			return err
		}
		defer fileRecorder.Close()
		recorder = audit.NewMultiRecorder(recorder, fileRecorder)
	}
	permGate.RecordDenials(recorder)

	server := api.NewServer(api.Services{
		Users:       userStore,
		Tokens:      tokenManager,
		Workspaces:  workspaceService,
		Projects:    projectService,
		Tasks:       taskService,
		Timesheets:  timesheetService,
		Comments:    commentService,
		Attachments: attachmentService,
		Audit:       recorder,
		Gate:        permGate,
	})

	router := server.Router()
	router.Use(observability.PanicRecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware)
	router.Use(httputil.CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(httputil.MaxBytesMiddleware(64 << 20))
	router.Use(observability.HTTPMetricsMiddleware(metrics))

	// Optional mode: anonymous requests reach /auth/register, every other
	// handler rejects them itself.
	authMiddleware := middleware.NewAuthMiddleware(tokenManager, true)
	router.Use(authMiddleware.Handler)

	var inMemoryLimiter *middleware.RateLimiter
	if redisClient != nil {
		router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
	} else {
		inMemoryLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
		router.Use(middleware.RateLimitMiddleware(inMemoryLimiter))
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := workspaceService.CleanupExpiredInvitations(jobCtx); err != nil {
			logger.WithError(err).Error("invitation cleanup failed")
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := tokenManager.CleanupExpiredTokens(jobCtx)
		if err != nil {
			logger.WithError(err).Error("token cleanup failed")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("expired tokens cleaned up")
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc("@every 1m", func() {
		metrics.UpdateDBStats(db)
		if inMemoryLimiter != nil {
			inMemoryLimiter.Cleanup()
		}
	}); err != nil {
		return err
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return healthServer.Shutdown(shutdownCtx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		scheduler.Stop()
		return nil
	})

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(shutdown.WaitForShutdown)

	return group.Wait()
}
