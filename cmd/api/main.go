package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/loan-query-service/internal/api/http"
	"github.com/spec-kit/loan-query-service/internal/api/http/handlers"
	"github.com/spec-kit/loan-query-service/internal/api/ws"
	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/config"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
	"github.com/spec-kit/loan-query-service/internal/persistence"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/repository/memory"
	"github.com/spec-kit/loan-query-service/internal/service"
	"github.com/spec-kit/loan-query-service/internal/ticketid"
	"github.com/spec-kit/loan-query-service/internal/worker"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	defer rdb.Close()

	var (
		queryStore    repository.QueryStore
		approvalStore repository.ApprovalStore
		messageStore  repository.MessageStore
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		queryStore = repository.NewPgQueryStore(pool)
		approvalStore = repository.NewPgApprovalStore(pool)
		messageStore = repository.NewPgMessageStore(pool)
	} else {
		queryStore = memory.NewQueryStore()
		approvalStore = memory.NewApprovalStore()
		messageStore = memory.NewMessageStore()
	}

	storeTimeout := cfg.Store.Timeout()
	queries := repository.NewQueryRepository(queryStore, storeTimeout, logger, metrics)
	if err := queries.Warm(ctx, cfg.Store.WarmLimit); err != nil {
		logger.Warn("query cache warm-up failed", zap.Error(err))
	}

	idOpts := []ticketid.Option{ticketid.WithLogger(logger), ticketid.WithMetrics(metrics)}
	if rdb.Enabled() {
		idOpts = append(idOpts, ticketid.WithCounter(ticketid.NewRedisCounter(rdb.Client, cfg.Redis.KeyPrefix+":ticket-seq")))
	}
	ids := ticketid.New(cfg.Approval.TicketPrefix, cfg.Approval.TicketWidth, idOpts...)

	registry := service.NewApprovalRegistry(service.ApprovalRegistryConfig{
		Store:        approvalStore,
		IDs:          ids,
		StoreTimeout: storeTimeout,
		SLA:          cfg.Approval.SLA(),
		Logger:       logger,
		Metrics:      metrics,
	})
	if err := registry.Load(ctx); err != nil {
		logger.Fatal("failed to load approval tickets", zap.Error(err))
	}

	broadcaster := events.NewBroadcaster(logger, metrics, cfg.Sync.SubscriberBuffer)
	defer broadcaster.Close()

	var (
		updateLog events.UpdateLog
		relay     *events.Relay
	)
	if rdb.Enabled() {
		updateLog = events.NewRedisLog(rdb.Client, cfg.Redis.KeyPrefix+":updates:log", cfg.Redis.LogMaxLen)
		relay = events.NewRelay(rdb.Client, cfg.Redis.UpdateChannel, uuid.NewString(), broadcaster, logger)
	} else {
		updateLog = events.NewMemoryLog(int(cfg.Redis.LogMaxLen))
	}
	hub := events.NewHub(broadcaster, updateLog, relay, logger, metrics)

	lifecycle := service.NewLifecycle(service.LifecycleDependencies{
		Queries:      queries,
		Approvals:    registry,
		Messages:     messageStore,
		Publisher:    hub,
		StoreTimeout: storeTimeout,
		Logger:       logger,
		Metrics:      metrics,
	})

	notifications := service.NewNotificationService(broadcaster, logger, cfg.Notification)
	if err := worker.StartNotificationWorker(ctx, notifications, logger); err != nil {
		logger.Fatal("failed to start notification worker", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    rdb,
		}, func() int { return queries.DirtyCount() + registry.DirtyCount() }),
		Queries:        handlers.NewQueriesHandler(lifecycle),
		QueryActions:   handlers.NewQueryActionsHandler(lifecycle),
		Approvals:      handlers.NewApprovalsHandler(lifecycle, registry),
		Updates:        handlers.NewUpdatesHandler(hub.Log()),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	pushServer := &http.Server{
		Addr:              cfg.App.PushAddr(),
		Handler:           ws.NewServer(broadcaster, authMiddleware, logger, metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		logger.Info("push listening", zap.String("addr", pushServer.Addr))
		if err := pushServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return worker.RunStoreFlusher(gctx, queries, cfg.Store.FlushInterval(), logger.With(zap.String("store", "queries")))
	})
	g.Go(func() error {
		return worker.RunStoreFlusher(gctx, registry, cfg.Store.FlushInterval(), logger.With(zap.String("store", "approvals")))
	})
	if relay != nil {
		g.Go(func() error {
			return worker.RunWithRestart(gctx, "relay", relay, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = pushServer.Shutdown(shutdownCtx)
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
	if pending := queries.Flush(context.Background()); pending > 0 {
		logger.Warn("exiting with queries not written to the store", zap.Int("pending", pending))
	}
	if pending := registry.Flush(context.Background()); pending > 0 {
		logger.Warn("exiting with tickets not written to the store", zap.Int("pending", pending))
	}
}
