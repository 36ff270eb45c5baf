package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-device-stream/internal/application/statecache"
	"go-device-stream/internal/infrastructure/broadcast"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
)

// EventHandler exposes the producer API: targeted/broadcast sends and state
// publishes.
type EventHandler struct {
	broadcaster *broadcast.Broadcaster
	states      *statecache.Cache
	registry    *registry.Registry
	logger      logger.Logger
}

func NewEventHandler(
	b *broadcast.Broadcaster,
	states *statecache.Cache,
	reg *registry.Registry,
	log logger.Logger,
) *EventHandler {
	return &EventHandler{
		broadcaster: b,
		states:      states,
		registry:    reg,
		logger:      log.WithField("handler", "events"),
	}
}

type sendRequest struct {
	ConnectionID string `json:"connection_id"`
	Event        string `json:"event"    binding:"required"`
	Category     string `json:"category" binding:"required"`
	Payload      any    `json:"payload"`
}

// Send broadcasts payload to all connections, or to one when connection_id is
// set.
func (h *EventHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid send request"})
		return
	}
	if req.ConnectionID != "" {
		if err := registry.ValidateConnectionID(req.ConnectionID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	delivered := h.broadcaster.Send(c.Request.Context(), req.ConnectionID, req.Event, req.Category, req.Payload)
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

type publishRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
	Value        any    `json:"value"         binding:"required"`
}

// PublishState routes a value through the state cache: immediate send plus
// replay-on-reconnect.
func (h *EventHandler) PublishState(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publish request"})
		return
	}

	if err := h.states.Publish(c.Request.Context(), req.ConnectionID, req.Value); err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidConnectionID):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, statecache.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		default:
			h.logger.Errorf("publish for %s failed: %v", req.ConnectionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"connection_id": req.ConnectionID})
}

// Connections lists the currently registered connections.
func (h *EventHandler) Connections(c *gin.Context) {
	entries := h.registry.Snapshot()
	info := make([]gin.H, len(entries))
	for i, entry := range entries {
		info[i] = gin.H{
			"connection_id": entry.ID,
			"address":       entry.Handle.Address,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(entries),
		"connections":       info,
	})
}
