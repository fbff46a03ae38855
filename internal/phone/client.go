package phone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClientTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 512
)

// DefaultRingPattern is used when Ring is called with an empty pattern.
const DefaultRingPattern = "NORMAL"

// Client calls the phone service REST API: ring, stop-ring, play-audio and status.
type Client struct {
	baseURL string
	http    *http.Client
}

// ServiceStatus is the phone service's own status report.
type ServiceStatus map[string]any

// NewClient creates a REST client for baseURL (e.g. http://localhost:8000).
// A nil httpClient gets a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Ring starts the phone ringing with the given pattern, repeated repeat times.
func (c *Client) Ring(ctx context.Context, pattern string, repeat int) error {
	if pattern == "" {
		pattern = DefaultRingPattern
	}
	if repeat < 1 {
		repeat = 1
	}
	body, err := json.Marshal(map[string]any{"pattern": pattern, "repeat": repeat})
	if err != nil {
		return fmt.Errorf("encoding ring request: %w", err)
	}
	return c.do(ctx, "ring", http.MethodPost, "/ring", "application/json", body, nil)
}

// StopRing stops any ring in progress.
func (c *Client) StopRing(ctx context.Context) error {
	return c.do(ctx, "stop-ring", http.MethodPost, "/stop-ring", "", nil, nil)
}

// PlayAudio plays raw audio bytes on the handset.
func (c *Client) PlayAudio(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("phone: play-audio requires audio data")
	}
	return c.do(ctx, "play-audio", http.MethodPost, "/play-audio", "application/octet-stream", audio, nil)
}

// Status fetches the phone service status.
func (c *Client) Status(ctx context.Context) (ServiceStatus, error) {
	var st ServiceStatus
	if err := c.do(ctx, "status", http.MethodGet, "/status", "", nil, &st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("phone: building %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectivityError{Op: op, URL: c.baseURL + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort error detail
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("phone: decoding %s response: %w", op, err)
	}
	return nil
}
