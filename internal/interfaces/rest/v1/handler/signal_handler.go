package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
)

// SignalHandler receives connect/disconnect signals from the external
// gateway.
type SignalHandler struct {
	registry *registry.Registry
	logger   logger.Logger
}

func NewSignalHandler(reg *registry.Registry, log logger.Logger) *SignalHandler {
	return &SignalHandler{
		registry: reg,
		logger:   log.WithField("handler", "signal"),
	}
}

type connectRequest struct {
	ConnectionID    string `json:"connection_id"`
	DeliveryToken   string `json:"delivery_token"  binding:"required"`
	DeliveryAddress string `json:"delivery_address"`
}

// Connect registers a new connection for a client stream the gateway opened.
func (h *SignalHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connect signal"})
		return
	}

	handle := delivery.Handle{Token: req.DeliveryToken, Address: req.DeliveryAddress}
	if err := h.registry.Connect(req.ConnectionID, handle); err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidConnectionID):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		default:
			h.logger.Errorf("connect signal for %s failed: %v", req.ConnectionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register connection"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"connection_id": req.ConnectionID})
}

type disconnectRequest struct {
	DeliveryToken string `json:"delivery_token" binding:"required"`
}

// Disconnect removes the connection owning the token. Stale tokens are not
// errors; the response is 204 either way.
func (h *SignalHandler) Disconnect(c *gin.Context) {
	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid disconnect signal"})
		return
	}

	h.registry.Disconnect(req.DeliveryToken)
	c.Status(http.StatusNoContent)
}
