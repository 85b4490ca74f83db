package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/handler"
	"github.com/noah-isme/demandes-api/internal/middleware"
	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/pkg/config"
	"github.com/noah-isme/demandes-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/demandes-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/demandes-api/pkg/middleware/requestid"
)

type routes struct {
	auth          *handler.AuthHandler
	demandes      *handler.DemandeHandler
	actions       *handler.ActionHandler
	advisory      *handler.AdvisoryHandler
	archives      *handler.ArchiveHandler
	notifications *handler.NotificationHandler
	dashboard     *handler.DashboardHandler
	verification  *handler.VerificationHandler
	signatures    *handler.SignatureHandler
	metrics       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes, tokens middleware.TokenValidator, observer middleware.RequestObserver, tracer trace.Tracer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(observer))
	r.Use(middleware.Tracing(tracer))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public: credentials, token-checked downloads and code verification.
	api.POST("/auth/login", h.auth.Login)
	api.GET("/verify/:code", h.verification.Verify)
	api.GET("/demandes/:id/document/download", h.demandes.DownloadDocument)
	api.GET("/archives/:id/download", h.archives.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	secured.GET("/auth/me", h.auth.Me)

	demandes := secured.Group("/demandes")
	demandes.POST("", middleware.RequireRoles(models.RoleRequester, models.RoleAdministrator), h.demandes.Create)
	demandes.GET("", h.demandes.List)
	demandes.GET("/:id", h.demandes.Get)
	demandes.PUT("/:id/payload", middleware.RequireRoles(models.RoleRequester, models.RoleAdministrator), h.demandes.UpdatePayload)
	demandes.GET("/:id/audit", h.demandes.Audit)
	demandes.GET("/:id/preview", h.demandes.Preview)
	demandes.POST("/:id/preview", h.demandes.Preview)
	demandes.GET("/:id/document", h.demandes.DocumentLink)
	demandes.GET("/:id/archive", h.archives.GetByDemande)
	demandes.POST("/:id/actions/:action", h.actions.Execute)
	demandes.GET("/:id/advisory", h.advisory.Rounds)
	demandes.POST("/:id/advisory/opinions", middleware.RequireRoles(models.RoleAdvisoryBoardMember), h.advisory.RecordOpinion)
	demandes.POST("/:id/advisory/reconcile", middleware.RequireRoles(models.RoleAdministrator, models.RoleGeneralDirectorate), h.advisory.Reconcile)

	archives := secured.Group("/archives", middleware.RequireRoles(middleware.Staff...))
	archives.GET("", h.archives.List)
	archives.GET("/export", h.archives.Export)

	secured.GET("/notifications", h.notifications.List)
	secured.POST("/notifications/:id/read", h.notifications.MarkRead)

	dashboard := secured.Group("/dashboard", middleware.RequireRoles(middleware.Staff...))
	dashboard.GET("", h.dashboard.Summary)
	dashboard.GET("/system", middleware.RequireRoles(models.RoleAdministrator), h.dashboard.System)

	secured.PUT("/signatures/me", middleware.RequireRoles(models.RoleMinister), h.signatures.Upload)

	return r
}
