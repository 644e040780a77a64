package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"FarmLink/internal/service"
	"FarmLink/pkg/config"
	"FarmLink/pkg/metrics"
	"FarmLink/pkg/middleware"
)

type Handlers struct {
	db          *gorm.DB
	coordinator *service.Coordinator
}

func NewHandlers(db *gorm.DB, coordinator *service.Coordinator) *Handlers {
	return &Handlers{
		db:          db,
		coordinator: coordinator,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(metrics.MonitorMiddleware())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r := engine.Group(config.GlobalConfig.APIPrefix)

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerSOSRoutes(r)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.HealthCheck)
}

// SOS Module
func (h *Handlers) registerSOSRoutes(r *gin.RouterGroup) {
	sos := r.Group("/sos")
	sos.Use(middleware.AuthRequired(), middleware.RateLimiter(config.GlobalConfig.RateLimit))
	{
		sos.POST("", h.handleTriggerSOS)

		sos.GET("", h.handleListSOS)

		sos.PUT("/:alertId/resolve", h.handleResolveSOS)
	}
}
