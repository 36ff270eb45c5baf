// Package stream serves the embedded transport endpoints: clients connect
// over SSE or WebSocket, get a minted delivery token, and ride the same
// registry signal path as gateway-fronted streams.
package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
	streamtransport "go-device-stream/internal/infrastructure/stream"
)

type Handler struct {
	registry  *registry.Registry
	transport *streamtransport.Transport
	logger    logger.Logger
	upgrader  websocket.Upgrader
}

func NewHandler(reg *registry.Registry, transport *streamtransport.Transport, log logger.Logger) *Handler {
	return &Handler{
		registry:  reg,
		transport: transport,
		logger:    log.WithField("handler", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checks belong to the deployment's proxy.
				return true
			},
		},
	}
}

// ConnectSSE opens an SSE stream for the connection_id query parameter and
// blocks until the client goes away.
func (h *Handler) ConnectSSE(c *gin.Context) {
	connectionID := c.Query("connection_id")
	if err := registry.ValidateConnectionID(connectionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token := uuid.NewString()
	conn := streamtransport.NewSSEConn(c.Request.Context(), c.Writer, h.logger)
	h.transport.Attach(token, conn)

	if err := h.register(connectionID, token); err != nil {
		h.transport.Detach(token)
		_ = conn.Close()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	// First frame confirms the stream and hands the client its token.
	_ = conn.Send(c.Request.Context(), delivery.Envelope{
		ID:    uuid.NewString(),
		Event: delivery.EventConnected,
		Payload: gin.H{
			"connection_id": connectionID,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		},
	})

	<-conn.Done()
	h.teardown(connectionID, token)
}

// ConnectWS upgrades to WebSocket and blocks until the client goes away.
func (h *Handler) ConnectWS(c *gin.Context) {
	connectionID := c.Query("connection_id")
	if err := registry.ValidateConnectionID(connectionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	token := uuid.NewString()
	conn := streamtransport.NewWSConn(wsConn, h.logger)
	h.transport.Attach(token, conn)

	if err := h.register(connectionID, token); err != nil {
		h.transport.Detach(token)
		_ = conn.Close()
		return
	}

	_ = conn.Send(c.Request.Context(), delivery.Envelope{
		ID:    uuid.NewString(),
		Event: delivery.EventConnected,
		Payload: gin.H{
			"connection_id": connectionID,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		},
	})

	<-conn.Done()
	h.teardown(connectionID, token)
}

func (h *Handler) register(connectionID, token string) error {
	err := h.registry.Connect(connectionID, delivery.Handle{Token: token})
	if err != nil && !errors.Is(err, registry.ErrClosed) {
		h.logger.Errorf("register stream for %s failed: %v", connectionID, err)
	}
	return err
}

func (h *Handler) teardown(connectionID, token string) {
	h.registry.Disconnect(token)
	h.transport.Detach(token)
	h.logger.Infof("stream for %s closed", connectionID)
}
