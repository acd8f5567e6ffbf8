// Package router assembles the monitor service's gin engine: global
// middleware plus the monitorapi handler's routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"errormonitor/internal/apimetrics"
	"errormonitor/internal/middleware"
	"errormonitor/internal/monitorapi"
	"errormonitor/internal/types"
)

// NewRouter builds the monitor service's gin engine, wiring global
// middleware ahead of monitorHandler's routes.
func NewRouter(monitorHandler *monitorapi.Handler, metrics *apimetrics.Metrics, configManager types.ConfigManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Logger(configManager.GetLogConfig()))
	router.Use(middleware.CORS(configManager.GetCORSConfig()))
	router.Use(middleware.RateLimiter(configManager.GetPerformanceConfig()))
	router.Use(middleware.SecurityHeaders())
	router.Use(metrics.Middleware())
	router.Use(middleware.Auth(configManager.GetAuthConfig()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	router.GET("/metrics", metrics.Handler())
	monitorHandler.Register(router)

	return router
}
