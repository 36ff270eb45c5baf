// Package gateway implements the delivery transport for the production path:
// events are pushed over HTTP to the external gateway that owns the client
// streams.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

// Client pushes envelopes to gateway addresses.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
}

var _ delivery.Transport = (*Client)(nil)

// NewClient creates a gateway client. timeout bounds every push.
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithField("component", "gateway"),
	}
}

// Push POSTs the envelope to {address}/push/{token}. A 404 or 410 response
// means the gateway no longer knows the stream and maps to ErrGone.
func (c *Client) Push(ctx context.Context, handle delivery.Handle, envelope delivery.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushURL(handle), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push to gateway: %w", err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("gateway stream %s: %w", handle.Token, delivery.ErrGone)
	case resp.StatusCode >= 300:
		return fmt.Errorf("gateway push returned %d", resp.StatusCode)
	}
	return nil
}

// CloseHandle asks the gateway to drop the stream. A missing stream is not an
// error; the goal state is already reached.
func (c *Client) CloseHandle(ctx context.Context, handle delivery.Handle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, pushURL(handle), nil)
	if err != nil {
		return fmt.Errorf("build close request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("close gateway stream: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusGone {
		return fmt.Errorf("gateway close returned %d", resp.StatusCode)
	}
	return nil
}

func pushURL(handle delivery.Handle) string {
	return handle.Address + "/push/" + url.PathEscape(handle.Token)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
