package stream

import (
	"github.com/gin-gonic/gin"

	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
	streamtransport "go-device-stream/internal/infrastructure/stream"
)

// InitStreamRouter mounts the embedded SSE and WebSocket endpoints.
func InitStreamRouter(
	log logger.Logger,
	reg *registry.Registry,
	transport *streamtransport.Transport,
	rg *gin.RouterGroup,
) {
	h := NewHandler(reg, transport, log)

	group := rg.Group("/stream")
	group.GET("/sse", h.ConnectSSE)
	group.GET("/ws", h.ConnectWS)
}
