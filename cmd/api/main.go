package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/campusdesk/ticket-sla/internal/api/http"
	"github.com/campusdesk/ticket-sla/internal/api/http/handlers"
	"github.com/campusdesk/ticket-sla/internal/app"
	"github.com/campusdesk/ticket-sla/internal/auth"
	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer container.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, container.Users)
	policy, err := auth.NewPolicy()
	if err != nil {
		logger.Fatal("failed to load access policy", zap.Error(err))
	}

	outboxWorker := worker.NewOutboxWorker(container.Dispatcher, cfg.Outbox.Enabled)
	outboxWorker.StartWithContext(ctx)

	sweepSpec := cfg.Escalation.SweepSpec
	if !cfg.Escalation.Enabled {
		sweepSpec = ""
	}
	scheduler, err := worker.NewScheduler(worker.SchedulerConfig{
		SweepSpec: sweepSpec,
		PurgeSpec: cfg.Idempotency.PurgeSpec,
		Location:  container.Calculator.Calendar().Location,
	}, container.Escalations, container.Idempotency, logger)
	if err != nil {
		logger.Fatal("failed to configure scheduler", zap.Error(err))
	}
	scheduler.Start()

	fiberApp := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(fiberApp, logger, container.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": container.Postgres,
			"redis":    container.Redis,
		}),
		Tickets:        handlers.NewTicketsHandler(container.Tickets, container.Escalations, container.Idempotency),
		Admin:          handlers.NewAdminHandler(container.Tickets, container.Dispatcher, container.Idempotency),
		Statuses:       handlers.NewStatusesHandler(container.Statuses),
		AuthMiddleware: authMiddleware,
		Policy:         policy,
		Metrics:        container.Metrics.Handler(),
	})

	go func() {
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := scheduler.StopWithContext(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := outboxWorker.StopWithContext(shutdownCtx); err != nil {
		logger.Warn("outbox worker shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
