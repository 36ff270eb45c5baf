package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

func TestClient_Push(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody delivery.Envelope
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, logger.Nop())
	handle := delivery.Handle{Token: "tok-1", Address: srv.URL}
	envelope := delivery.Envelope{ID: "m1", Event: "state_update", Payload: "v1.0"}

	if err := c.Push(context.Background(), handle, envelope); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/push/tok-1" {
		t.Errorf("expected /push/tok-1, got %s", gotPath)
	}
	if gotBody.Event != "state_update" || gotBody.Payload != "v1.0" {
		t.Errorf("unexpected body: %+v", gotBody)
	}
}

func TestClient_PushGone(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewClient(2*time.Second, logger.Nop())
		err := c.Push(context.Background(), delivery.Handle{Token: "tok", Address: srv.URL}, delivery.Envelope{})
		if !errors.Is(err, delivery.ErrGone) {
			t.Errorf("status %d should map to ErrGone, got %v", status, err)
		}
		srv.Close()
	}
}

func TestClient_PushServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, logger.Nop())
	err := c.Push(context.Background(), delivery.Handle{Token: "tok", Address: srv.URL}, delivery.Envelope{})
	if err == nil {
		t.Fatal("5xx should be an error")
	}
	if errors.Is(err, delivery.ErrGone) {
		t.Error("5xx is transient, not gone")
	}
}

func TestClient_CloseHandle(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNotFound) // already gone is fine
	}))
	defer srv.Close()

	c := NewClient(2*time.Second, logger.Nop())
	if err := c.CloseHandle(context.Background(), delivery.Handle{Token: "tok", Address: srv.URL}); err != nil {
		t.Fatalf("close of a missing stream should succeed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", gotMethod)
	}
}
