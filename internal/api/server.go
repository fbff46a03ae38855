package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/iroh-home/iroh-core/internal/audit"
	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/infrastructure/config"
	"github.com/iroh-home/iroh-core/internal/infrastructure/logging"
	"github.com/iroh-home/iroh-core/internal/phone"
	"github.com/iroh-home/iroh-core/internal/timer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EngineView exposes the engine's current state.
type EngineView interface {
	Snapshot() dtmf.Snapshot
}

// LineView exposes the phone line state.
type LineView interface {
	Line() phone.LineState
}

// StreamView exposes phone stream health.
type StreamView interface {
	Status() phone.StreamStatus
}

// HubView exposes home automation hub connectivity.
type HubView interface {
	Connected() bool
	LastStateUpdate() time.Time
}

// BrokerView exposes message broker connectivity.
type BrokerView interface {
	IsConnected() bool
}

// TimerService is the subset of *timer.Manager used by the API.
type TimerService interface {
	CreateTimer(ctx context.Context, d time.Duration, name string) (*timer.Timer, error)
	GetTimer(id string) (*timer.Timer, error)
	CancelTimer(id string) error
	ActiveTimers() []timer.Info
	Timers() []timer.Info
}

// Deps holds the dependencies required by the API server. Only Config,
// Logger and Timers are required; the rest are reported as absent.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Timers       TimerService
	TimerHistory timer.Repository
	Audit        audit.Repository
	Engine       EngineView
	Line         LineView
	Phone        StreamView
	HomeHub      HubView
	Broker       BrokerView
	Metrics      http.Handler
	ExternalHub  *Hub // If set, the server uses this hub instead of creating its own
	Version      string
}

// Server is the HTTP API server for Iroh.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	timers       TimerService
	timerHistory timer.Repository
	auditRepo    audit.Repository
	engine       EngineView
	line         LineView
	phone        StreamView
	homeHub      HubView
	broker       BrokerView
	metrics      http.Handler
	version      string
	startTime    time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Timers == nil {
		return nil, fmt.Errorf("timer service is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		timers:       deps.Timers,
		timerHistory: deps.TimerHistory,
		auditRepo:    deps.Audit,
		engine:       deps.Engine,
		line:         deps.Line,
		phone:        deps.Phone,
		homeHub:      deps.HomeHub,
		broker:       deps.Broker,
		metrics:      deps.Metrics,
		version:      deps.Version,
		startTime:    time.Now(),
		hub:          deps.ExternalHub,
	}
	return s, nil
}

// Hub returns the WebSocket hub, creating it if needed. Event producers
// broadcast through it.
func (s *Server) Hub() *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The listener is bound before Start returns, so a
// port conflict is reported here. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	hub := s.Hub()

	s.mu.Lock()
	defer s.mu.Unlock()

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
