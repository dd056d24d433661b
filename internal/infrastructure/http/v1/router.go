package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"audience/internal/domain/auth"
	"audience/internal/infrastructure/http/v1/dto"
	"audience/internal/infrastructure/http/v1/handlers"
	"audience/internal/infrastructure/http/v1/middleware"
	"audience/internal/infrastructure/metrics"
	"audience/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	ServiceName string
	Version     string

	// Pools resolves tenant databases; Stats reports on them. Both are
	// normally the same *tenant.Manager.
	Pools middleware.PoolProvider
	Stats handlers.PoolStats

	// MetaDB is pinged by the readiness probe.
	MetaDB handlers.Pinger

	Logger       *logger.Logger
	JWTValidator middleware.JWTValidator

	// Metrics and MetricsHandler are optional.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	Profiles handlers.ProfileService
	Segments handlers.SegmentService
	Importer handlers.Importer

	MaxImportFileSize int64
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()

	// Order matters: the span must exist before Trace reads its IDs, and
	// ErrorHandler must wrap every handler that records errors.
	router.Use(middleware.Recovery())
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}
	router.Use(middleware.Trace())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.MetaDB, cfg.Stats, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
		health.GET("/tenants", healthHandler.TenantsStats)
	}
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.TenantDB(cfg.Pools))
	api.Use(middleware.Auth(cfg.JWTValidator))
	RegisterRoutes(api, cfg)

	return router, nil
}

// RegisterRoutes registers the tenant API on rg. The caller must have installed
// tenant resolution and authentication on rg.
func RegisterRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	base := handlers.NewBaseHandler()

	profileHandler := handlers.NewProfileHandler(base, cfg.Profiles)
	profiles := rg.Group("/profiles")
	{
		read := middleware.RequirePermission(auth.PermProfileRead)
		profiles.GET("/fields", read, profileHandler.Fields)
		profiles.POST("/search", read, profileHandler.Search)
		profiles.POST("/export", read, profileHandler.Export)

		if cfg.Importer != nil {
			importHandler := handlers.NewImportHandler(base, cfg.Importer, cfg.MaxImportFileSize)
			profiles.POST("/import", middleware.RequirePermission(auth.PermProfileImport), importHandler.Import)
		}
		RegisterCRUDRoutes(profiles, profileHandler, auth.PermProfileRead, auth.PermProfileWrite)
	}

	segmentHandler := handlers.NewSegmentHandler(base, cfg.Segments)
	segments := rg.Group("/segments")
	{
		read := middleware.RequirePermission(auth.PermSegmentRead)
		write := middleware.RequirePermission(auth.PermSegmentWrite)

		segments.GET("/overview", read, segmentHandler.Overview)
		segments.POST("/preview", read, segmentHandler.Preview)
		segments.GET("/:id/members", read, segmentHandler.Members)
		segments.GET("/:id/snapshot", read, segmentHandler.Snapshot)
		segments.POST("/:id/refresh", write, segmentHandler.Refresh)
		RegisterCRUDRoutes(segments, segmentHandler, auth.PermSegmentRead, auth.PermSegmentWrite)
	}
}
