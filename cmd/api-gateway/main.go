package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/demandes-api/api/swagger"
	"github.com/noah-isme/demandes-api/internal/handler"
	"github.com/noah-isme/demandes-api/internal/repository"
	"github.com/noah-isme/demandes-api/internal/service"
	"github.com/noah-isme/demandes-api/internal/workflow"
	"github.com/noah-isme/demandes-api/pkg/cache"
	"github.com/noah-isme/demandes-api/pkg/config"
	"github.com/noah-isme/demandes-api/pkg/database"
	"github.com/noah-isme/demandes-api/pkg/export"
	"github.com/noah-isme/demandes-api/pkg/jobs"
	"github.com/noah-isme/demandes-api/pkg/logger"
	"github.com/noah-isme/demandes-api/pkg/messaging"
	"github.com/noah-isme/demandes-api/pkg/storage"
)

// @title Demandes API
// @version 1.0.0
// @description Lifecycle engine for administrative authorization requests.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	policy, err := workflow.ParseAdvisoryPolicy(cfg.Workflow.AdvisoryPolicy)
	if err != nil {
		return err
	}
	letterhead, err := config.LoadLetterhead(cfg.Documents.LetterheadFile)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Dashboard.CacheEnabled || cfg.Notifications.Transport == config.TransportRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	publisherDeps := messaging.Deps{}
	if redisClient != nil {
		publisherDeps.Redis = redisClient
	}
	publisher, err := messaging.New(cfg.Notifications, publisherDeps)
	if err != nil {
		return fmt.Errorf("notification transport: %w", err)
	}
	defer publisher.Close() //nolint:errcheck

	signatureStore, err := storage.NewLocalStorage(cfg.Documents.SignaturesDir)
	if err != nil {
		return fmt.Errorf("signature storage: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	links := storage.NewSignedURLSigner(cfg.Archives.SignedURLSecret, cfg.Archives.SignedURLTTL)
	tracer := otel.Tracer("github.com/noah-isme/demandes-api")

	users := repository.NewUserRepository(db)
	demandes := repository.NewDemandeRepository(db)
	audit := repository.NewAuditRepository(db)
	advisory := repository.NewAdvisoryRepository(db)
	archives := repository.NewArchiveRepository(db)
	notifications := repository.NewNotificationRepository(db)
	commits := repository.NewWorkflowRepository(db, audit, advisory, archives)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	signatures := service.NewSignatureService(signatureStore, cfg.Documents.MaxSignatureBytes, logr)
	documents := service.NewDocumentService(service.DocumentServiceParams{
		Demandes:           demandes,
		Users:              users,
		Signatures:         signatures,
		Uploads:            signatures,
		Links:              links,
		Letterhead:         letterhead,
		VerificationSecret: cfg.Documents.VerificationSecret,
		APIPrefix:          cfg.APIPrefix,
		Metrics:            metrics,
		Logger:             logr,
	})

	notifier := service.NewNotificationService(notifications, users, publisher, metrics, logr)
	queue := jobs.NewQueue("notifications", notifier.Deliver, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		DeadLetter: notifier.DeadLetter,
	})
	notifier.UseQueue(queue)

	dashboard := service.NewDashboardService(service.DashboardServiceParams{
		Demandes: demandes,
		Archives: archives,
		Cache:    cacheSvc,
		Metrics:  metrics,
		Logger:   logr,
		Config:   service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	engine := service.NewWorkflowService(service.WorkflowServiceParams{
		Demandes:  demandes,
		Commits:   commits,
		Archives:  archives,
		Users:     users,
		Documents: documents,
		Listeners: []service.TransitionListener{notifier, dashboard},
		Policy:    policy,
		Validator: validate,
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logr,
	})
	demandeSvc := service.NewDemandeService(demandes, cfg.Workflow.ReferencePrefix, validate, logr, notifier, dashboard)
	advisorySvc := service.NewAdvisoryService(demandes, advisory, engine, validate, logr)
	archiveSvc := service.NewArchiveService(archives, links, export.NewCSVExporter(','), export.NewPDFExporter(), metrics, logr,
		service.ArchiveServiceConfig{APIPrefix: cfg.APIPrefix})

	probes := map[string]handler.Probe{"postgres": db.PingContext}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routes{
		auth:          handler.NewAuthHandler(authSvc),
		demandes:      handler.NewDemandeHandler(demandeSvc, service.NewAuditService(demandes, audit), documents),
		actions:       handler.NewActionHandler(engine),
		advisory:      handler.NewAdvisoryHandler(advisorySvc),
		archives:      handler.NewArchiveHandler(archiveSvc),
		notifications: handler.NewNotificationHandler(notifier),
		dashboard:     handler.NewDashboardHandler(dashboard),
		verification:  handler.NewVerificationHandler(documents),
		signatures:    handler.NewSignatureHandler(signatures),
		metrics:       handler.NewMetricsHandler(metrics.Handler(), probes),
	}, authSvc, metrics, tracer)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	queue.Start(context.WithoutCancel(ctx))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "advisory_policy", policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		err := srv.Shutdown(shutdownCtx)
		queue.Drain(shutdownCtx)
		return err
	})
	return group.Wait()
}
