package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vimeo/go-clocks"
	retry "github.com/vimeo/go-retry"
)

// HTTPClient wraps http.Client with timeout and a retry on 503.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	clock   clocks.Clock
	retries atomic.Int64
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		clock:   clocks.DefaultClock(),
	}
}

// statusError is a non-2xx answer from the service.
type statusError struct {
	Status int
	Code   string
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s): %s", e.Status, e.Code, e.Body)
}

// do sends a JSON request and decodes a JSON answer into out. A 503 is
// retried with backoff since the service marks it safe to repeat.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, want int) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	b := retry.DefaultBackoff()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = c.once(ctx, method, path, payload, out, want)
		var se *statusError
		if err == nil || !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable || attempt == maxAttempts {
			return err
		}
		c.retries.Add(1)
		if !c.clock.SleepFor(ctx, b.Next()) {
			return ctx.Err()
		}
	}
	return err
}

func (c *HTTPClient) once(ctx context.Context, method, path string, payload []byte, out any, want int) error {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != want {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &e)
		return &statusError{Status: resp.StatusCode, Code: e.Code, Body: e.Message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
