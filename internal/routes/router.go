package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"device-console/internal/config"
	"device-console/internal/delivery/http/handler"
	"device-console/internal/ingestion"
	"device-console/internal/middleware"
	"device-console/internal/usecase/fleet"
	"device-console/internal/usecase/user"
)

// Deps carries the already-wired services the router mounts.
type Deps struct {
	Fleet   *fleet.Service
	Users   *user.Service
	Metrics *ingestion.MetricsTracker
}

func SetupRoutes(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Service is running",
		})
	})

	fleetHandler := handler.NewFleetHandler(deps.Fleet, deps.Metrics)
	userHandler := handler.NewUserHandler(deps.Users)

	v1 := router.Group("/api/v1")
	{
		userHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			fleetHandler.RegisterRoutes(protected)
			userHandler.RegisterRoutes(protected)
		}
	}

	return router
}
