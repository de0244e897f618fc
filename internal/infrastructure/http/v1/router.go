// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"brigata/internal/domain/glposting"
	"brigata/internal/domain/ledger"
	"brigata/internal/domain/orgpolicy"
	"brigata/internal/domain/period"
	"brigata/internal/domain/reconciliation"
	"brigata/internal/domain/valuation"
	"brigata/internal/infrastructure/http/v1/handlers"
	"brigata/internal/infrastructure/http/v1/middleware"
	"brigata/pkg/logger"
)

// RouterConfig holds the wired services for the API.
type RouterConfig struct {
	Pool   *pgxpool.Pool
	Logger *logger.Logger

	Ledger     *ledger.Service
	Periods    *period.Service
	Valuations valuation.Repository
	Policies   *orgpolicy.Service

	// Reconciliation is optional: it needs the external recipe and sales
	// collaborators, which some deployments do not wire.
	Reconciliation *reconciliation.Service

	// GL is optional: without a journal poster the GL route is absent.
	GL *glposting.Adapter
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Actor())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	// API v1
	api := router.Group("/api/v1")
	base := handlers.NewBaseHandler()

	movements := handlers.NewMovementsHandler(base, cfg.Ledger)
	movements.RegisterRoutes(api.Group("/movements"))

	periods := handlers.NewPeriodsHandler(base, cfg.Periods, cfg.Valuations, cfg.Reconciliation, cfg.GL)
	periods.RegisterRoutes(api.Group("/periods"))

	policies := handlers.NewPoliciesHandler(base, cfg.Policies)
	policies.RegisterRoutes(api.Group("/orgs"))

	if cfg.Reconciliation != nil {
		recon := handlers.NewReconciliationHandler(base, cfg.Reconciliation)
		recon.RegisterRoutes(api.Group("/reconciliation"))
	}

	return router
}
