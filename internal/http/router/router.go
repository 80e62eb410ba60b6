package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"clinichire.app/scout/internal/http/handler"
	"clinichire.app/scout/internal/http/middleware"
	"clinichire.app/scout/internal/service"
)

type RouterConfig struct {
	DashboardURL string
	APIKey       string
	HealthChecks map[string]handler.HealthCheck
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.Use(corsMiddleware(cfg.DashboardURL))

	healthHandler := handler.NewHealthHandler(cfg.HealthChecks)
	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAPIKey(cfg.APIKey))
	{
		extractionHandler := handler.NewExtractionHandler(services.Extraction())
		ExtractionRouter(v1, extractionHandler)

		// The run log is only readable when a database is configured.
		if runs := services.Runs(); runs != nil {
			RunRouter(v1, handler.NewRunHandler(runs))
		}
	}
}

// ExtractionRouter mounts the unified endpoint and the two per-entity
// endpoints, all served by one pipeline.
func ExtractionRouter(rg *gin.RouterGroup, h *handler.ExtractionHandler) {
	rg.POST("/extract", h.Extract)
	rg.GET("/extract/schemas/:schema", h.Schema)
	rg.POST("/positions/extract", h.ExtractPosition)
	rg.POST("/competitors/extract", h.ExtractCompetitor)
}

func RunRouter(rg *gin.RouterGroup, h *handler.RunHandler) {
	rg.GET("/extractions/stats", h.Stats)
	rg.GET("/extractions/:id", h.Get)
}

func corsMiddleware(dashboardURL string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	if dashboardURL != "" {
		config.AllowOrigins = []string{dashboardURL}
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", middleware.RequestIDHeader}
	config.ExposeHeaders = []string{middleware.RequestIDHeader}
	config.MaxAge = 12 * time.Hour
	return cors.New(config)
}
