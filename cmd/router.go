package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-device-stream/internal/application/statecache"
	"go-device-stream/internal/application/task"
	"go-device-stream/internal/infrastructure/broadcast"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
	streamtransport "go-device-stream/internal/infrastructure/stream"
	"go-device-stream/internal/interfaces/rest/v1/handler"
	"go-device-stream/internal/interfaces/stream"
)

type routerDeps struct {
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	states      *statecache.Cache
	tasks       *task.Producer

	// localTransport is set in embedded mode and nil in gateway mode.
	localTransport *streamtransport.Transport
}

func InitRouter(deps routerDeps, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/hub/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"connections": deps.registry.ConnectionCount(),
		})
	})

	signalHandler := handler.NewSignalHandler(deps.registry, log)
	eventHandler := handler.NewEventHandler(deps.broadcaster, deps.states, deps.registry, log)
	taskHandler := handler.NewTaskHandler(deps.tasks, log)

	apiGroup := rootGroup.Group("/api/v1")
	{
		apiGroup.POST("/signal/connect", signalHandler.Connect)
		apiGroup.POST("/signal/disconnect", signalHandler.Disconnect)

		apiGroup.POST("/events/send", eventHandler.Send)
		apiGroup.POST("/state/publish", eventHandler.PublishState)
		apiGroup.GET("/connections", eventHandler.Connections)

		apiGroup.POST("/tasks", taskHandler.Create)
		apiGroup.POST("/tasks/:taskId/transition", taskHandler.Transition)
	}

	if deps.localTransport != nil {
		stream.InitStreamRouter(log, deps.registry, deps.localTransport, rootGroup)
	}

	return router
}
