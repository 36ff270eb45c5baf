package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-device-stream/internal/application/statecache"
	"go-device-stream/internal/application/task"
	"go-device-stream/internal/infrastructure/broadcast"
	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
	"go-device-stream/internal/interfaces/rest/v1/handler"
)

type fixture struct {
	router    *gin.Engine
	registry  *registry.Registry
	transport *fakeTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	transport := &fakeTransport{pushes: make(map[string][]delivery.Envelope)}
	reg := registry.New(transport, nil, logger.Nop())
	b := broadcast.New(reg, transport, nil, logger.Nop())
	states := statecache.New(b, nil, statecache.Options{}, logger.Nop())
	reg.RegisterOnConnect(states)
	tasks := task.NewProducer(b, logger.Nop())

	signalHandler := handler.NewSignalHandler(reg, logger.Nop())
	eventHandler := handler.NewEventHandler(b, states, reg, logger.Nop())
	taskHandler := handler.NewTaskHandler(tasks, logger.Nop())

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/signal/connect", signalHandler.Connect)
	api.POST("/signal/disconnect", signalHandler.Disconnect)
	api.POST("/events/send", eventHandler.Send)
	api.POST("/state/publish", eventHandler.PublishState)
	api.GET("/connections", eventHandler.Connections)
	api.POST("/tasks", taskHandler.Create)
	api.POST("/tasks/:taskId/transition", taskHandler.Transition)

	return &fixture{router: router, registry: reg, transport: transport}
}

func (f *fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestSignalConnect(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/api/v1/signal/connect", gin.H{
		"connection_id":    "dev-1",
		"delivery_token":   "tok-1",
		"delivery_address": "http://gw.local",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.registry.HasConnection("dev-1"))
}

func TestSignalConnect_MalformedID(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"", "bad:id", "bad/id", "bad id"} {
		w := f.post(t, "/api/v1/signal/connect", gin.H{
			"connection_id":  id,
			"delivery_token": "tok-1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "id %q must be rejected", id)
	}
	assert.Equal(t, 0, f.registry.ConnectionCount())
}

func TestSignalDisconnect_StaleTokenIsNoContent(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/api/v1/signal/connect", gin.H{"connection_id": "dev-1", "delivery_token": "tok-x"})
	f.post(t, "/api/v1/signal/connect", gin.H{"connection_id": "dev-1", "delivery_token": "tok-y"})

	w := f.post(t, "/api/v1/signal/disconnect", gin.H{"delivery_token": "tok-x"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, f.registry.HasConnection("dev-1"), "stale disconnect must not drop tok-y")
}

func TestEventsSend_Broadcast(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/api/v1/signal/connect", gin.H{"connection_id": "dev-1", "delivery_token": "tok-1"})

	w := f.post(t, "/api/v1/events/send", gin.H{
		"event":    "custom",
		"category": "task",
		"payload":  gin.H{"n": 1},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Delivered)
	assert.Len(t, f.transport.pushed("tok-1"), 1)
}

func TestEventsSend_EmptyBroadcast(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/api/v1/events/send", gin.H{"event": "custom", "category": "task"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Delivered, "empty broadcast reports no recipients, not an error")
}

func TestStatePublish_ThenReplayOnConnect(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/api/v1/state/publish", gin.H{"connection_id": "dev-1", "value": "v1.0"})
	require.Equal(t, http.StatusOK, w.Code)

	f.post(t, "/api/v1/signal/connect", gin.H{"connection_id": "dev-1", "delivery_token": "tok-1"})

	got := f.transport.pushed("tok-1")
	require.Len(t, got, 1)
	assert.Equal(t, "v1.0", got[0].Payload)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/api/v1/signal/connect", gin.H{"connection_id": "dev-1", "delivery_token": "tok-1"})

	w := f.post(t, "/api/v1/tasks", gin.H{"task_id": "job-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.post(t, "/api/v1/tasks/job-1/transition", gin.H{"state": "running"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.post(t, "/api/v1/tasks/job-1/transition", gin.H{"state": "completed"})
	require.Equal(t, http.StatusOK, w.Code)

	// started + progress + completed, all reaching the connected stream; the
	// connection itself stays registered after the terminal event.
	assert.Len(t, f.transport.pushed("tok-1"), 3)
	assert.True(t, f.registry.HasConnection("dev-1"))

	w = f.post(t, "/api/v1/tasks/job-1/transition", gin.H{"state": "running"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.post(t, "/api/v1/tasks/missing/transition", gin.H{"state": "running"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test doubles

type fakeTransport struct {
	mu     sync.Mutex
	pushes map[string][]delivery.Envelope
}

func (f *fakeTransport) Push(_ context.Context, h delivery.Handle, e delivery.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes[h.Token] = append(f.pushes[h.Token], e)
	return nil
}

func (f *fakeTransport) CloseHandle(context.Context, delivery.Handle) error { return nil }

func (f *fakeTransport) pushed(token string) []delivery.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery.Envelope(nil), f.pushes[token]...)
}
