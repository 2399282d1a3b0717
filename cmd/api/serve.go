package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/access"
	httptransport "github.com/spec-kit/servicedesk/internal/api/http"
	"github.com/spec-kit/servicedesk/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/mail"
	"github.com/spec-kit/servicedesk/internal/notify"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/omnichannel"
	"github.com/spec-kit/servicedesk/internal/persistence"
	"github.com/spec-kit/servicedesk/internal/realtime"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/service"
	"github.com/spec-kit/servicedesk/internal/synchronizer"
	"github.com/spec-kit/servicedesk/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the outbox workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err := observability.NewLogger(cfg.Logger, cfg.App)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	pool := pg.PoolHandle()
	if pool == nil {
		return fmt.Errorf("POSTGRES_DSN is required to serve")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	routing, err := config.LoadRouting(cfg.Notification.RoutingFile)
	if err != nil {
		return fmt.Errorf("load notification routing: %w", err)
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	events.SubscribeJournal(dispatcher, logger)

	tickets := repository.NewTicketRepository(pool)
	users := repository.NewUserRepository(pool)
	outbox := repository.NewOutboxRepository(pool)

	emitter := notify.NewEmitter(notify.Dependencies{
		Audit:         repository.NewAuditRepository(pool),
		Comments:      repository.NewCommentRepository(pool),
		Notifications: repository.NewNotificationRepository(pool),
		Users:         users,
		Mail:          mail.NewSender(cfg.Mail, logger),
		Realtime:      realtime.NewHub(redis, cfg.Realtime, logger),
		Metrics:       metrics,
		Dispatcher:    dispatcher,
		Routing:       routing,
		BaseURL:       cfg.Notification.BaseURL,
		Logger:        logger.Named("notify"),
	})

	syncDeps := synchronizer.Dependencies{
		Vendors:    repository.NewVendorSettlementRepository(pool),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("sync"),
	}
	if cfg.Omni.Enabled {
		syncDeps.External = omnichannel.NewClient(cfg.Omni, logger.Named("omni"))
	}
	syncer := synchronizer.New(syncDeps)

	workers := worker.NewPool(outbox, worker.Options{
		Workers:       cfg.Outbox.Workers,
		QueueSize:     cfg.Outbox.QueueSize,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		Backoff:       cfg.Outbox.Backoff(),
		SweepInterval: cfg.Outbox.SweepInterval(),
		StaleAfter:    cfg.Outbox.StaleAfter(),
	}, logger.Named("outbox"), metrics)
	worker.RegisterEffects(workers, emitter, emitter, syncer)
	workers.Start(ctx)
	defer workers.Stop()

	ticketService := service.NewTicketService(service.TicketDependencies{
		Tickets:   tickets,
		SLA:       repository.NewSLARepository(pool),
		Mutations: repository.NewMutationRepository(pool),
		Access:    access.NewEvaluator(nil),
		Priority:  service.NewPriorityPolicy(tickets, logger),
		Effects:   workers,
		Logger:    logger.Named("tickets"),
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
			handlers.Dependency{Name: "postgres", Probe: pg},
			handlers.Dependency{Name: "redis", Probe: redis, Optional: true},
		),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Metrics:        metrics.Handler(),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, users),
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-waitForSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	return nil
}

func waitForSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
