package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/petcare-core/internal/device"
	"github.com/nerrad567/petcare-core/internal/environment"
	"github.com/nerrad567/petcare-core/internal/infrastructure/config"
	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/metrics"
	"github.com/nerrad567/petcare-core/internal/realtime"
	"github.com/nerrad567/petcare-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each dependency probe made by /health.
const healthCheckTimeout = 3 * time.Second

const defaultWSPath = "/ws"

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadingQuerier reads stored telemetry. *telemetry.MongoRepository
// implements it.
type ReadingQuerier interface {
	ListByDevice(ctx context.Context, deviceID string, page, limit int) (telemetry.Page, error)
	ListByRange(ctx context.Context, deviceID string, from, to time.Time) ([]telemetry.Reading, error)
	Stats(ctx context.Context, deviceID string) ([]telemetry.SensorStats, error)
}

// ReadingWriter stores a reading. *telemetry.Ingestor implements it.
type ReadingWriter interface {
	Store(ctx context.Context, reading *telemetry.Reading, source string) (*telemetry.Reading, error)
}

// StreamController restarts the change streams. *realtime.Adapter
// implements it.
type StreamController interface {
	Restart(ctx context.Context) error
	Running() []string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	Environments environment.Repository
	Devices      *device.Service
	Readings     ReadingQuerier // optional: reading endpoints answer 503 without it
	Ingestor     ReadingWriter  // optional
	Hub          *realtime.Hub  // optional: the WebSocket route answers 503 without it
	WSPath       string         // WebSocket route under /api/v1; defaults to /ws
	Broadcaster  *realtime.Broadcaster
	Streams      StreamController
	Commands     realtime.CommandPublisher // optional: device actions are not forwarded without it
	Checks       map[string]HealthChecker
	DB           *sql.DB // optional: pool statistics in /system
	Version      string
}

// Server is the HTTP API server for PetCare Core.
//
// It manages the HTTP listener, routes and middleware. The WebSocket hub is
// owned by the caller and mounted under /api/v1.
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	metrics      *metrics.Metrics
	environments environment.Repository
	devices      *device.Service
	readings     ReadingQuerier
	ingestor     ReadingWriter
	hub          *realtime.Hub
	wsPath       string
	broadcaster  *realtime.Broadcaster
	streams      StreamController
	commands     realtime.CommandPublisher
	checks       map[string]HealthChecker
	db           *sql.DB
	version      string
	startTime    time.Time

	handlerOnce sync.Once
	handler     http.Handler
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Environments == nil {
		return nil, fmt.Errorf("environment repository is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}

	wsPath := deps.WSPath
	if wsPath == "" {
		wsPath = defaultWSPath
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger.Component("api"),
		metrics:      deps.Metrics,
		environments: deps.Environments,
		devices:      deps.Devices,
		readings:     deps.Readings,
		ingestor:     deps.Ingestor,
		hub:          deps.Hub,
		wsPath:       wsPath,
		broadcaster:  deps.Broadcaster,
		streams:      deps.Streams,
		commands:     deps.Commands,
		checks:       deps.Checks,
		db:           deps.DB,
		version:      deps.Version,
		startTime:    time.Now(),
	}, nil
}

// Handler returns the router. It is built once.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.buildRouter()
	})
	return s.handler
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Hijacked WebSocket
// connections are not tracked by http.Server; close the hub separately.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
