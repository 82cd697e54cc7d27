package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every component the health endpoint probes:
// the MQTT client, the database and the InfluxDB client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusFunc returns the JSON-encodable state of the running process.
type StatusFunc func() any

// Deps holds the dependencies of the ops server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Service string
	Version string

	// Checks are probed by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	// Status backs /api/v1/status. Optional.
	Status StatusFunc

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Registerer receives the API's own request metrics. Optional.
	Registerer prometheus.Registerer
}

// Server is the ops HTTP server shared by the three binaries.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	service  string
	version  string
	checks   map[string]HealthChecker
	status   StatusFunc
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
	started  time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates the server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		service:  deps.Service,
		version:  deps.Version,
		checks:   deps.Checks,
		status:   deps.Status,
		gatherer: deps.Gatherer,
		metrics:  newHTTPMetrics(deps.Registerer),
		started:  time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s, nil
}

// Start binds the listener and serves in the background. The bind happens
// synchronously so a port conflict is returned here.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
