package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/dispute-service/internal/api/http"
	"github.com/spec-kit/dispute-service/internal/api/http/handlers"
	"github.com/spec-kit/dispute-service/internal/auth"
	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/events"
	"github.com/spec-kit/dispute-service/internal/external"
	"github.com/spec-kit/dispute-service/internal/observability"
	"github.com/spec-kit/dispute-service/internal/persistence"
	"github.com/spec-kit/dispute-service/internal/queue"
	"github.com/spec-kit/dispute-service/internal/repository"
	"github.com/spec-kit/dispute-service/internal/scheduler"
	"github.com/spec-kit/dispute-service/internal/service"
	"github.com/spec-kit/dispute-service/internal/sla"
	"github.com/spec-kit/dispute-service/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	disputeRepo := repository.NewDisputeRepository(pool)
	timelineRepo := repository.NewTimelineRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	evidenceRepo := repository.NewEvidenceRepository(pool)
	disputeStore := repository.NewDisputeStore(pool, disputeRepo, timelineRepo, auditRepo)

	dispatcher := events.NewInMemoryDispatcher()
	jobs := queue.New(redis.Client, cfg.Queue, logger)

	evidenceStore := external.NewStubEvidenceStore(logger)
	ocrClient := external.NewStubOCRClient(evidenceStore, logger)
	notifier := external.NewLogNotifier(logger, cfg.Notification)
	refundGateway := external.NewStubRefundGateway(logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:  userRepo,
		AgentRepo: agentRepo,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, agentRepo)

	disputeService := service.NewDisputeService(service.DisputeDependencies{
		DisputeRepo:  disputeRepo,
		TimelineRepo: timelineRepo,
		AuditRepo:    auditRepo,
		EvidenceRepo: evidenceRepo,
		UserRepo:     userRepo,
		Store:        disputeStore,
		Pool:         pool,
		Dispatcher:   dispatcher,
		Jobs:         jobs,
		Config:       cfg,
		Logger:       logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		DisputeRepo: disputeRepo,
		AgentRepo:   agentRepo,
		Store:       disputeStore,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	evidenceService := service.NewEvidenceService(service.EvidenceDependencies{
		EvidenceRepo: evidenceRepo,
		DisputeRepo:  disputeRepo,
		TimelineRepo: timelineRepo,
		Pool:         pool,
		Store:        evidenceStore,
		OCR:          ocrClient,
		Dispatcher:   dispatcher,
		Jobs:         jobs,
		Config:       cfg.Evidence,
		Logger:       logger,
	})
	autoResolutionService := service.NewAutoResolutionService(disputeStore, evidenceRepo, dispatcher, jobs, cfg.AutoResolution, logger)
	refundService := service.NewRefundService(disputeStore, refundGateway, dispatcher, jobs, logger)
	cleanupService := service.NewCleanupService(disputeRepo, timelineRepo, evidenceRepo, auditRepo, cfg.Retention, logger)
	notificationService := service.NewNotificationService(dispatcher, notifier, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	monitor := sla.NewMonitor(disputeStore, enqueueAdapter{jobs}, cfg.SLA, cfg.Scoring, logger, nil)

	workerPool := queue.NewWorker(jobs, logger, metrics)
	worker.Register(workerPool, worker.Dependencies{
		Assignments:    assignmentService,
		AutoResolution: autoResolutionService,
		Refunds:        refundService,
		Evidence:       evidenceService,
		Monitor:        monitor,
		Notifications:  notificationService,
	})
	workerPool.Start(ctx)

	sched := scheduler.New(ctx, logger)
	mustSchedule(logger, sched, "sla_check", cfg.SLA.CheckSchedule, func(taskCtx context.Context) error {
		_, err := jobs.Enqueue(taskCtx, queue.QueueSLACheck, map[string]any{"kind": "deadline"})
		return err
	})
	mustSchedule(logger, sched, "sla_stale_check", cfg.SLA.StaleCheckSchedule, func(taskCtx context.Context) error {
		_, err := jobs.Enqueue(taskCtx, queue.QueueSLACheck, map[string]any{"kind": "stale"})
		return err
	})
	mustSchedule(logger, sched, "queue_promote", cfg.Queue.PromoteSchedule, jobs.PromoteDelayed)
	mustSchedule(logger, sched, "retention_cleanup", cfg.Retention.CleanupSchedule, cleanupService.Run)
	sched.Start()
	defer sched.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Agents:         handlers.NewAgentsHandler(authService),
		Disputes:       handlers.NewDisputesHandler(disputeService, evidenceService),
		AgentDisputes:  handlers.NewAgentDisputesHandler(disputeService, assignmentService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	workerPool.Wait()
}

// enqueueAdapter narrows the queue to the monitor's fire-and-forget contract.
type enqueueAdapter struct {
	jobs *queue.Queue
}

func (a enqueueAdapter) Enqueue(ctx context.Context, queueName string, payload map[string]any) error {
	_, err := a.jobs.Enqueue(ctx, queueName, payload)
	return err
}

func mustSchedule(logger *zap.Logger, sched *scheduler.Scheduler, name, spec string, task scheduler.TaskFunc) {
	if err := sched.Add(name, spec, task); err != nil {
		logger.Fatal("failed to register schedule", zap.String("task", name), zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
