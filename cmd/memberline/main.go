package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/memberline/memberline/internal/api"
	"github.com/memberline/memberline/internal/app"
	"github.com/memberline/memberline/internal/authz"
	"github.com/memberline/memberline/internal/identity"
	"github.com/memberline/memberline/internal/observability"
	"github.com/memberline/memberline/internal/platform/cache"
	"github.com/memberline/memberline/internal/platform/db"
	"github.com/memberline/memberline/internal/provision"
	"github.com/memberline/memberline/internal/session"
	"github.com/memberline/memberline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	adminClient := identity.NewAdminClient(cfg.IdentityBaseURL, cfg.IdentityServiceKey)
	if err := adminClient.Ping(ctx); err != nil {
		logger.Warn("identity platform ping", slog.Any("error", err))
	}
	projections := identity.NewRepository(dbpool)
	platform := identity.Directory{Creator: adminClient, Projections: projections}

	metrics := observability.NewMetrics()

	waiter := provision.NewWaiter(platform, provision.WaitConfig{
		Interval:    cfg.ProjectionPollInterval,
		MaxAttempts: cfg.ProjectionMaxAttempts,
	}, logger)
	memberships := provision.NewRepository(dbpool)
	notifier := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, cfg.WebhookEnabled(), logger)
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("notifier close", slog.Any("error", err))
		}
	}()
	orchestrator := provision.NewOrchestrator(platform, waiter, memberships, notifier, provision.Config{
		DefaultSecret: cfg.DefaultMemberSecret,
	}, logger).WithObserver(metrics)

	matrix := authz.DefaultMatrix()
	sessions := session.NewStore()
	resolver := session.NewResolver(sessions, platform, cfg.ResolveTimeout, logger).WithObserver(metrics)
	stream := identity.NewRedisStream(redisClient, cfg.IdentityEventChannel, logger)
	loop := session.NewLoop(stream, resolver, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("session loop", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	apiHandler := api.NewHandler(logger, matrix, sessions, orchestrator).WithProjections(projections)

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Sessions:   sessions,
		APIHandler: apiHandler,
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	wg.Wait()
}
