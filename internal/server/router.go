package server

import (
	"github.com/abduss/tasktrack/internal/auth"
	"github.com/abduss/tasktrack/internal/config"
	"github.com/abduss/tasktrack/internal/logger"
	"github.com/abduss/tasktrack/internal/metrics"
	"github.com/abduss/tasktrack/internal/task"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	DB          Pinger
	AuthService *auth.Service
	TaskService *task.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	metrics.InitMetrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group(deps.Config.Server.BasePath)
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)

		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		if deps.TaskService != nil {
			task.RegisterRoutes(protected, deps.TaskService)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Route not found"})
	})

	return router
}
