package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
	"github.com/quantfolio/portfolio_accountant/internal/platform/config"
)

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
) {

	registerCustomValidators()

	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	r.Use(cors.New(corsConfig(cfg)))

	// Setup API v1 routes, passing service interfaces
	setupAPIV1Routes(r, cfg, services)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
) {
	v1 := r.Group("/api/v1", middleware.ActorMiddleware())

	if cfg.IsProduction {
		v1.Use(middleware.RateLimit(newRateLimiter()))
	}

	// Delegate route registration to specific handlers, passing required services
	registerAccountRoutes(v1, services.Account)
	registerInstrumentRoutes(v1, services.Instrument)
	registerJournalRoutes(v1, services.Journal)
	registerCorporateActionRoutes(v1, services.CorporateAction)
	registerReportingRoutes(v1, services.Reconciliation, services.Valuation)
}

// corsConfig builds the CORS policy for the API.
func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = !cfg.IsProduction
	if cfg.IsProduction {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Actor-ID")
	return corsCfg
}

// newRateLimiter builds an in-memory per-IP limiter.
func newRateLimiter() *limiter.Limiter {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  300,
	}
	return limiter.New(memory.NewStore(), rate)
}
