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

	httptransport "github.com/ticketlens/ticket-aggregator/internal/api/http"
	"github.com/ticketlens/ticket-aggregator/internal/api/http/handlers"
	"github.com/ticketlens/ticket-aggregator/internal/auth"
	"github.com/ticketlens/ticket-aggregator/internal/bootstrap"
	"github.com/ticketlens/ticket-aggregator/internal/config"
	"github.com/ticketlens/ticket-aggregator/internal/events"
	"github.com/ticketlens/ticket-aggregator/internal/observability"
	"github.com/ticketlens/ticket-aggregator/internal/persistence"
	"github.com/ticketlens/ticket-aggregator/internal/provider"
	"github.com/ticketlens/ticket-aggregator/internal/service"
	"github.com/ticketlens/ticket-aggregator/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier, err := bootstrap.Classifier(cfg.Patterns)
	if err != nil {
		logger.Fatal("failed to load pattern tables", zap.Error(err))
	}

	var (
		redis *persistence.Redis
		quota provider.Quota
	)
	if cfg.Redis.Enabled {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		if q := persistence.NewQuota(redis, cfg.Redis.QuotaPerWindow, cfg.Redis.QuotaWindow); q != nil {
			quota = q
		}
	}

	metrics := observability.NewMetrics()
	providers := bootstrap.Providers(cfg, bootstrap.Deps{
		Classifier: classifier,
		Logger:     logger,
		Observer:   metrics,
		Quota:      quota,
	})

	dispatcher := events.NewInMemoryDispatcher()
	auditService := service.NewAuditService(dispatcher, logger, service.DefaultAuditHistory)
	worker.StartAuditWorker(auditService)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Providers:    providers,
		Dispatcher:   dispatcher,
		Logger:       logger,
		ScanDefaults: bootstrap.ScanDefaults(cfg.Scan),
	})
	janitorDone := worker.StartCacheJanitor(ctx, ticketService, cfg.Cache.SweepInterval, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, ticketService, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, classifier),
		Providers:      handlers.NewProvidersHandler(ticketService),
		Scan:           handlers.NewScanHandler(ticketService, classifier),
		Metrics:        handlers.NewMetricsHandler(metrics, auditService),
		AuthMiddleware: authMiddleware,
	})

	logger.Info("starting server",
		zap.String("addr", cfg.App.Addr()),
		zap.Strings("providers", ticketService.ProviderNames()))

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	<-janitorDone
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
