package router

import (
	"net/http"

	"stagecost/app/handler"
	"stagecost/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router wires handlers to routes
type Router struct {
	runHandler *handler.RunHandler
	apiKey     string
}

// NewRouter creates a new Router. apiKey guards the write routes.
func NewRouter(runHandler *handler.RunHandler, apiKey string) *Router {
	return &Router{runHandler: runHandler, apiKey: apiKey}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api/v1")
	{
		runs := api.Group("/runs")
		{
			runs.GET("", r.runHandler.ListRuns)
			runs.GET("/latest", r.runHandler.GetLatestRun)
			runs.GET("/:id", r.runHandler.GetRun)
			runs.POST("/refresh", middleware.AuthMiddleware(r.apiKey), r.runHandler.RefreshRun)
		}
	}
}
