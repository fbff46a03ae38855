package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// Default entities used when a command does not name one.
const (
	DefaultLightsEntity     = "group.all_lights"
	DefaultThermostatEntity = "climate.thermostat"
)

const defaultTimeout = 30 * time.Second

// Logger defines the logging interface used by the hub client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Logger  Logger

	// HTTPClient overrides the default client. Its Timeout is left alone.
	HTTPClient *http.Client
}

// EntityState is one entity as reported by GET /api/states.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Client talks to the Home Assistant REST API.
//
// Until Connect succeeds the client is degraded: commands are skipped with a
// warning and return nil, so a missing hub never fails a dial-pad command.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  Logger

	connected  atomic.Bool
	lastUpdate atomic.Int64
}

// New creates a client. Call Connect before issuing commands.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		logger:  cfg.Logger,
	}
}

// Connect checks the API is reachable with the configured token. On failure
// the client stays degraded and the error is returned for the caller to log.
func (c *Client) Connect(ctx context.Context) error {
	if c.token == "" {
		c.connected.Store(false)
		c.logger.Warn("home assistant running in degraded mode, automation features unavailable",
			"error", ErrNotConfigured)
		return ErrNotConfigured
	}

	if err := c.do(ctx, "connect", http.MethodGet, "/api/", nil, nil); err != nil {
		c.connected.Store(false)
		c.logger.Warn("home assistant running in degraded mode, automation features unavailable",
			"url", c.baseURL,
			"error", err,
		)
		return err
	}

	c.connected.Store(true)
	c.logger.Info("connected to home assistant", "url", c.baseURL)
	return nil
}

// Disconnect puts the client back into degraded mode.
func (c *Client) Disconnect() {
	if c.connected.Swap(false) {
		c.logger.Info("disconnected from home assistant")
	}
}

// Connected reports whether Connect has succeeded.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// LastStateUpdate returns when GetStates last succeeded.
func (c *Client) LastStateUpdate() time.Time {
	if ns := c.lastUpdate.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// CallService invokes a Home Assistant service.
//
// The request is POST /api/services/{domain}/{service} with params as the
// JSON body and entity_id added when set. While the hub is degraded the
// call is logged and skipped, so DTMF commands never block on an absent hub.
//
// Parameters:
//   - ctx: Bounds the HTTP request
//   - domain: Service domain, e.g. "light" or "climate"
//   - service: Service name, e.g. "turn_on"
//   - entityID: Target entity; empty sends no entity_id
//   - params: Extra service data, may be nil
//
// Returns:
//   - error: nil on success or when skipped, *ConnectivityError on transport
//     or HTTP status failure
func (c *Client) CallService(ctx context.Context, domain, service, entityID string, params map[string]any) error {
	op := domain + "." + service

	// Skip while degraded
	if !c.connected.Load() {
		c.logger.Warn("ignoring service call, home assistant not connected", "service", op, "entity_id", entityID)
		return nil
	}

	// Build service data
	data := make(map[string]any, len(params)+1)
	for k, v := range params {
		data[k] = v
	}
	if entityID != "" {
		data["entity_id"] = entityID
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("hub: encoding %s data: %w", op, err)
	}

	// Call the service
	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	if err := c.do(ctx, op, http.MethodPost, path, body, nil); err != nil {
		return err
	}
	c.logger.Debug("service called", "service", op, "entity_id", entityID)
	return nil
}

// LightsOn turns on entityID, or DefaultLightsEntity when empty.
func (c *Client) LightsOn(ctx context.Context, entityID string) error {
	if entityID == "" {
		entityID = DefaultLightsEntity
	}
	if err := c.CallService(ctx, "light", "turn_on", entityID, nil); err != nil {
		return fmt.Errorf("turning on lights: %w", err)
	}
	return nil
}

// LightsOff turns off entityID, or DefaultLightsEntity when empty.
func (c *Client) LightsOff(ctx context.Context, entityID string) error {
	if entityID == "" {
		entityID = DefaultLightsEntity
	}
	if err := c.CallService(ctx, "light", "turn_off", entityID, nil); err != nil {
		return fmt.Errorf("turning off lights: %w", err)
	}
	return nil
}

// SetTemperature sets the target temperature of entityID, or
// DefaultThermostatEntity when empty.
func (c *Client) SetTemperature(ctx context.Context, entityID string, temperature float64) error {
	if entityID == "" {
		entityID = DefaultThermostatEntity
	}
	err := c.CallService(ctx, "climate", "set_temperature", entityID, map[string]any{"temperature": temperature})
	if err != nil {
		return fmt.Errorf("setting temperature: %w", err)
	}
	return nil
}

// GetState returns one entity. While degraded it returns a zero state.
func (c *Client) GetState(ctx context.Context, entityID string) (EntityState, error) {
	if !c.connected.Load() {
		c.logger.Warn("ignoring state request, home assistant not connected", "entity_id", entityID)
		return EntityState{}, nil
	}
	var st EntityState
	if err := c.do(ctx, "get_state", http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &st); err != nil {
		return EntityState{}, err
	}
	return st, nil
}

// GetStates returns every entity. While degraded it returns nil.
func (c *Client) GetStates(ctx context.Context) ([]EntityState, error) {
	if !c.connected.Load() {
		c.logger.Warn("ignoring states request, home assistant not connected")
		return nil, nil
	}
	var states []EntityState
	if err := c.do(ctx, "get_states", http.MethodGet, "/api/states", nil, &states); err != nil {
		return nil, err
	}
	c.lastUpdate.Store(time.Now().UnixNano())
	c.logger.Debug("home assistant states updated", "count", len(states))
	return states, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("hub: building %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && out != nil:
		return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimPrefix(path, "/api/states/"))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &ConnectivityError{Op: op, StatusCode: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hub: decoding %s response: %w", op, err)
	}
	return nil
}
