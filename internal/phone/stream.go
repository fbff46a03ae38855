package phone

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultReconnectDelay is the fixed wait between connection attempts.
	DefaultReconnectDelay = 5 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
)

// Handler receives each well-formed event. It is called from the stream's
// single reader goroutine, so events arrive strictly in order and a slow
// handler delays the next read.
type Handler func(ctx context.Context, ev Event)

// Logger defines the logging interface used by the phone package.
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

// StreamMetrics receives connection and event counters.
type StreamMetrics interface {
	SetConnected(connected bool)
	IncReconnect()
	IncReceived(eventType string)
	IncDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SetConnected(bool)  {}
func (noopMetrics) IncReconnect()      {}
func (noopMetrics) IncReceived(string) {}
func (noopMetrics) IncDropped(string)  {}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	once sync.Once
	ch   chan struct{}
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// StreamConfig configures the inbound event stream.
type StreamConfig struct {
	// URL is the phone service WebSocket endpoint, e.g. ws://localhost:8001/ws.
	URL string

	// ReconnectDelay is the fixed wait before every reconnection attempt.
	// There is no retry cap and no exponential growth.
	ReconnectDelay time.Duration

	HandshakeTimeout time.Duration
	Logger           Logger
	Metrics          StreamMetrics
}

// StreamStatus is a snapshot of stream health.
type StreamStatus struct {
	Connected  bool      `json:"connected"`
	Degraded   bool      `json:"degraded"`
	Received   uint64    `json:"events_received"`
	Dropped    uint64    `json:"events_dropped"`
	Reconnects uint64    `json:"reconnects"`
	LastEvent  time.Time `json:"last_event,omitzero"`
}

// Stream maintains the WebSocket connection to the phone service and feeds
// each event to a Handler.
//
// If the service is unreachable the stream reports itself degraded and keeps
// retrying; it never fails the process.
type Stream struct {
	url     string
	delay   time.Duration
	dialer  *websocket.Dialer
	handler Handler
	logger  Logger
	metrics StreamMetrics

	connMu sync.Mutex
	conn   *websocket.Conn

	connected  atomic.Bool
	degraded   atomic.Bool
	everUp     atomic.Bool
	received   atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
	lastEvent  atomic.Int64

	done *closeOnce
}

// NewStream creates a stream. Call Run to connect.
func NewStream(cfg StreamConfig, handler Handler) *Stream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Stream{
		url:     cfg.URL,
		delay:   cfg.ReconnectDelay,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		handler: handler,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		done:    newCloseOnce(),
	}
}

// Run maintains the phone event WebSocket until shutdown.
//
// Each iteration:
//  1. Dials the phone service's event endpoint
//  2. On failure, logs once as degraded and waits the reconnect delay
//  3. On success, reads and dispatches events until the socket drops
//  4. Waits the reconnect delay and starts over
//
// Parameters:
//   - ctx: Cancelling it ends the loop and closes the socket
//
// Returns:
//   - error: Always nil; connection failures are retried, never returned
//
// Thread Safety:
//   - Run must be called once. Close may be called from any goroutine.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if s.isClosed() {
			return nil
		}

		// Connect, or note degradation and retry
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			if !s.degraded.Swap(true) {
				s.logger.Warn("phone service unavailable, phone features degraded", "error", err)
			} else {
				s.logger.Debug("phone service still unavailable", "error", err)
			}
			if !s.wait(ctx) {
				return nil
			}
			continue
		}

		if s.everUp.Swap(true) {
			s.reconnects.Add(1)
			s.metrics.IncReconnect()
			s.logger.Info("phone event stream reconnected", "url", s.url, "total_reconnects", s.reconnects.Load())
		} else {
			s.logger.Info("phone event stream connected", "url", s.url)
		}
		s.degraded.Store(false)
		s.setConnected(true)

		// Read until the socket drops
		err = s.readLoop(ctx, conn)
		s.setConnected(false)

		if ctx.Err() != nil || s.isClosed() {
			return nil
		}
		s.logger.Warn("phone event stream closed, reconnecting",
			"error", err,
			"delay", s.delay.String(),
		)
		if !s.wait(ctx) {
			return nil
		}
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake response body
	}
	if err != nil {
		return nil, &ConnectivityError{Op: "connect", URL: s.url, Err: err}
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return conn, nil
}

// readLoop delivers messages until the connection fails. Cancellation
// closes the connection to unblock the pending read.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done.Done():
		case <-stop:
			return
		}
		conn.Close() //nolint:errcheck // unblocks ReadMessage
	}()
	defer conn.Close() //nolint:errcheck // connection is discarded after the loop

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := ParseEvent(data, time.Now())
		if err != nil {
			s.dropped.Add(1)
			s.metrics.IncDropped(dropReason(err))
			s.logger.Warn("dropping malformed phone event", "error", err, "payload_bytes", len(data))
			continue
		}

		s.received.Add(1)
		s.lastEvent.Store(ev.Timestamp.UnixNano())
		s.metrics.IncReceived(string(ev.Type))
		s.handler(ctx, ev)
	}
}

func dropReason(err error) string {
	if errors.Is(err, ErrMalformedEvent) {
		return "malformed"
	}
	return "unknown"
}

// wait sleeps for the reconnect delay. It returns false on shutdown.
func (s *Stream) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.done.Done():
		return false
	case <-time.After(s.delay):
		return true
	}
}

func (s *Stream) setConnected(v bool) {
	s.connected.Store(v)
	s.metrics.SetConnected(v)
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}

// Connected reports whether the stream currently holds a connection.
func (s *Stream) Connected() bool {
	return s.connected.Load()
}

// Status returns a snapshot of stream health.
func (s *Stream) Status() StreamStatus {
	st := StreamStatus{
		Connected:  s.connected.Load(),
		Degraded:   s.degraded.Load(),
		Received:   s.received.Load(),
		Dropped:    s.dropped.Load(),
		Reconnects: s.reconnects.Load(),
	}
	if ns := s.lastEvent.Load(); ns != 0 {
		st.LastEvent = time.Unix(0, ns)
	}
	return st
}

// Close stops Run and closes the current connection.
func (s *Stream) Close() error {
	s.done.Close()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best effort close frame
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close() //nolint:errcheck // shutdown
		s.conn = nil
	}
	return nil
}
