package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kavia-common/data-insight-assistant/internal/middleware"
	"github.com/kavia-common/data-insight-assistant/internal/store"
)

// RouterConfig controls the HTTP surface of the service
type RouterConfig struct {
	CORSOrigin         string
	RateLimitPerMinute int
	RateLimitBurst     int
	NLQEnabled         bool
	// Now supplies the reference time for relative date phrases.
	// Defaults to time.Now.
	Now func() time.Time
}

// NewRouter builds the gin engine with all routes and middleware wired
func NewRouter(st store.Store, cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigin))
	if cfg.RateLimitPerMinute > 0 {
		router.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, cfg.RateLimitBurst))
	}
	router.Use(middleware.MetricsMiddleware())

	healthHandler := NewHealthHandler(st)
	dataHandler := NewDataHandler(st)
	nlqHandler := NewNLQHandler(st, cfg.NLQEnabled, cfg.Now)

	router.GET("/health", healthHandler.Health)
	router.GET("/db/health", healthHandler.DBHealth)

	router.POST("/nlq/query", nlqHandler.Query)

	data := router.Group("/data")
	data.GET("", dataHandler.List)
	data.POST("", dataHandler.Create)
	data.GET("/:id", dataHandler.Get)
	data.PUT("/:id", dataHandler.Update)
	data.DELETE("/:id", dataHandler.Delete)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
