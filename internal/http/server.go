// HTTP transport; registers routes and delegates to the allocation engine.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetbook/internal/config"
	"fleetbook/internal/http/handlers"
	"fleetbook/internal/http/middleware"
	"fleetbook/internal/logging"
	"fleetbook/internal/modules/allocation"
)

// NewRouter builds the gin engine with middleware and all routes registered.
func NewRouter(cfg *config.Config, allocationSvc *allocation.Service, ruleCache handlers.RuleCacheInvalidator) *gin.Engine {
	log := logging.New("http")

	engine := gin.New()
	engine.Use(middleware.Recovery(log), middleware.Logging(log))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	allocationHandler := handlers.NewAllocationHandler(allocationSvc)
	rulesHandler := handlers.NewRulesHandler(ruleCache)

	api := engine.Group("/api")
	api.Use(middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.Enabled))
	{
		api.POST("/allocation/allocate", allocationHandler.Allocate)
		api.POST("/allocation/release/:vehicleID/:driverID", allocationHandler.Release)
		api.GET("/allocation/history/:tripID", allocationHandler.History)
		api.POST("/rules/cache/invalidate", rulesHandler.InvalidateCache)
	}

	return engine
}
