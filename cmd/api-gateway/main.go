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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/assignx-api/api/swagger"
	"github.com/noah-isme/assignx-api/internal/handler"
	internalmiddleware "github.com/noah-isme/assignx-api/internal/middleware"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/repository"
	"github.com/noah-isme/assignx-api/internal/service"
	"github.com/noah-isme/assignx-api/pkg/cache"
	"github.com/noah-isme/assignx-api/pkg/config"
	"github.com/noah-isme/assignx-api/pkg/database"
	"github.com/noah-isme/assignx-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/assignx-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assignx-api/pkg/middleware/requestid"
	"github.com/noah-isme/assignx-api/pkg/realtime"
	"github.com/noah-isme/assignx-api/pkg/scheduler"
	"github.com/noah-isme/assignx-api/pkg/settlement"
	"github.com/noah-isme/assignx-api/pkg/storage"
)

// @title AssignX API
// @version 1.0.0
// @description Assignment marketplace: project lifecycle, quality gate and settlement
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

type handlers struct {
	auth         *handler.AuthHandler
	projects     *handler.ProjectHandler
	quality      *handler.QualityHandler
	deliverables *handler.DeliverableHandler
	payments     *handler.PaymentHandler
	blacklist    *handler.BlacklistHandler
	dashboard    *handler.DashboardHandler
	metrics      *handler.MetricsHandler
	realtime     *handler.RealtimeHandler
}

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	objects, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		logr.Fatal("failed to init storage", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	projectRepo := repository.NewProjectRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	deliverableRepo := repository.NewDeliverableRepository(db)
	paymentFlagRepo := repository.NewPaymentFlagRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	hub := realtime.NewHub(logr, cfg.CORS.AllowedOrigins)
	notifications := service.NewNotificationService(cacheRepo, hub, metricsSvc, logr, service.NotificationConfig{
		ChannelPrefix: cfg.Notifications.ChannelPrefix,
		Workers:       cfg.Notifications.Workers,
		BufferSize:    cfg.Notifications.BufferSize,
		MaxRetries:    cfg.Notifications.MaxRetries,
		RetryDelay:    cfg.Notifications.RetryDelay,
	})
	notifications.Start(ctx)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		notifications.Stop(drainCtx)
	}()

	lifecycle := service.NewLifecycle(service.LifecycleParams{
		Store:     projectRepo,
		Audit:     auditRepo,
		Publisher: notifications,
		Metrics:   metricsSvc,
		Logger:    logr,
		Timeout:   cfg.Workflow.ActionTimeout,
		Grace:     cfg.Workflow.AutoApproveGrace,
	})

	calculator := settlement.NewCalculator(cfg.Pricing.Table())
	projectSvc := service.NewProjectService(service.ProjectServiceParams{
		Store:      projectRepo,
		Lifecycle:  lifecycle,
		Users:      userRepo,
		Blacklist:  blacklistRepo,
		Calculator: calculator,
		Validator:  validate,
		Logger:     logr,
		Config:     service.ProjectServiceConfig{ListingScope: cfg.Workflow.ListingScope},
	})
	qualitySvc := service.NewQualityService(lifecycle, validate, logr)
	paymentSvc := service.NewPaymentService(lifecycle, paymentFlagRepo, validate, logr)
	deliverableSvc := service.NewDeliverableService(service.DeliverableServiceParams{
		Lifecycle: lifecycle,
		Projects:  projectSvc,
		Store:     deliverableRepo,
		Objects:   objects,
		Signer:    storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		Logger:    logr,
		Config: service.DeliverableServiceConfig{
			MaxUploadBytes:   cfg.Storage.MaxUploadBytes,
			AllowedMIMETypes: cfg.Storage.AllowedMIMEs,
			DownloadPath:     cfg.APIPrefix + "/deliverables/download/",
		},
	})
	autoApprovalSvc := service.NewAutoApprovalService(lifecycle, projectRepo, metricsSvc, logr, cfg.Sweep.BatchSize)
	blacklistSvc := service.NewBlacklistService(blacklistRepo, userRepo, auditRepo, validate, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Repo:   dashboardRepo,
		Cache:  cacheSvc,
		Logger: logr,
		Config: service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL, Window: cfg.Dashboard.Window},
	})
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})

	h := handlers{
		auth:         handler.NewAuthHandler(authSvc),
		projects:     handler.NewProjectHandler(projectSvc),
		quality:      handler.NewQualityHandler(qualitySvc),
		deliverables: handler.NewDeliverableHandler(deliverableSvc, cfg.Storage.MaxUploadBytes),
		payments:     handler.NewPaymentHandler(paymentSvc),
		blacklist:    handler.NewBlacklistHandler(blacklistSvc),
		dashboard:    handler.NewDashboardHandler(dashboardSvc),
		metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
			"database": pingDatabase(db),
			"redis":    pingRedis(redisClient),
		}),
		realtime: handler.NewRealtimeHandler(hub, logr),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), h, authSvc, auditRepo, cfg, logr)

	sched := scheduler.New(logr, time.UTC)
	if cfg.Sweep.Enabled {
		err := sched.Register("auto-approval", cfg.Sweep.Spec, cfg.Sweep.Timeout, func(ctx context.Context) error {
			_, err := autoApprovalSvc.Sweep(ctx, time.Now())
			return err
		})
		if err != nil {
			logr.Fatal("failed to schedule auto approval sweep", zap.Error(err), zap.String("spec", cfg.Sweep.Spec))
		}
		sched.Start()
		if next, ok := sched.Next("auto-approval"); ok {
			logr.Info("auto approval sweep scheduled", zap.String("spec", cfg.Sweep.Spec), zap.Time("next", next))
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(shutdownCtx); err != nil {
			logr.Warn("scheduler did not stop cleanly", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logr.Sugar().Errorw("server failed", "error", err)
	}
	logr.Info("server stopped")
}

func registerRoutes(api *gin.RouterGroup, h handlers, auth *service.AuthService, audit internalmiddleware.AuditWriter, cfg *config.Config, logr *zap.Logger) {
	authGroup := api.Group("/auth")
	authGroup.POST("/login", h.auth.Login)
	authGroup.POST("/refresh", h.auth.Refresh)
	authGroup.POST("/logout", internalmiddleware.JWT(auth), h.auth.Logout)
	authGroup.GET("/me", internalmiddleware.JWT(auth), h.auth.Me)

	api.POST("/payments/confirm",
		internalmiddleware.WebhookSecret(cfg.Payments.WebhookSecret),
		internalmiddleware.Audit(audit, logr, models.AuditActionPaymentWebhook, "payment"),
		h.payments.Confirm,
	)
	api.GET("/deliverables/download/:token", h.deliverables.Download)
	api.GET("/ws/notifications", internalmiddleware.QueryJWT(auth), h.realtime.Notifications)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(auth))

	supervisorOnly := internalmiddleware.RequireRoles(models.RoleSupervisor)
	clientOnly := internalmiddleware.RequireRoles(models.RoleClient)
	doerOnly := internalmiddleware.RequireRoles(models.RoleDoer)

	projects := secured.Group("/projects")
	projects.POST("", clientOnly, h.projects.Create)
	projects.GET("", h.projects.List)
	projects.GET("/:id", h.projects.Get)
	projects.GET("/:id/history", h.projects.History)
	projects.POST("/:id/submit", clientOnly, h.projects.Submit)
	projects.POST("/:id/analysis", supervisorOnly, h.projects.StartAnalysis)
	projects.POST("/:id/quote", supervisorOnly, h.projects.Quote)
	projects.POST("/:id/payment-request", clientOnly, h.projects.RequestPayment)
	projects.POST("/:id/assigning", supervisorOnly, h.projects.StartAssigning)
	projects.POST("/:id/assign", supervisorOnly, h.projects.AssignDoer)
	projects.POST("/:id/accept", doerOnly, h.projects.AcceptAssignment)
	projects.POST("/:id/decline", doerOnly, h.projects.DeclineAssignment)
	projects.POST("/:id/start", doerOnly, h.projects.StartWork)
	projects.POST("/:id/revision/start", doerOnly, h.projects.StartRevision)
	projects.POST("/:id/approve", clientOnly, h.projects.ApproveDelivery)
	projects.POST("/:id/revision-request", clientOnly, h.projects.RequestRevision)
	projects.POST("/:id/cancel", internalmiddleware.RequireRoles(models.RoleClient, models.RoleSupervisor), h.projects.Cancel)
	projects.POST("/:id/refund", supervisorOnly, h.projects.Refund)
	projects.POST("/:id/deadline", supervisorOnly, h.projects.ExtendDeadline)
	projects.POST("/:id/settlement-override", supervisorOnly, h.projects.OverrideSettlement)

	qc := projects.Group("/:id/qc", supervisorOnly)
	qc.POST("/start", h.quality.Start)
	qc.POST("/scores", h.quality.Scores)
	qc.POST("/approve", h.quality.Approve)
	qc.POST("/reject", h.quality.Reject)

	projects.POST("/:id/deliverables", doerOnly, h.deliverables.Upload)
	projects.GET("/:id/deliverables", h.deliverables.List)
	projects.POST("/:id/submit-work", doerOnly, h.deliverables.SubmitWork)

	supervisor := secured.Group("/supervisor", supervisorOnly)
	supervisor.GET("/blacklist", h.blacklist.List)
	supervisor.POST("/blacklist", h.blacklist.Add)
	supervisor.DELETE("/blacklist/:doerId", h.blacklist.Remove)
	if cfg.Dashboard.Enabled {
		supervisor.GET("/dashboard", internalmiddleware.WithResponseMeta(), h.dashboard.Supervisor)
	}

	admin := secured.Group("/admin", internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics/summary", h.metrics.Summary)
	admin.POST("/projects/:id/qc/resume", h.quality.Resume)
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageMinio:
		return storage.NewMinioStorage(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case config.StorageLocal, "":
		return storage.NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func pingDatabase(db *sqlx.DB) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func pingRedis(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
