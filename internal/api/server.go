package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/config"
	"github.com/anhhung04/plant-care/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// GreenhouseStore is the part of the field store the API reads and writes.
type GreenhouseStore interface {
	List(ctx context.Context) ([]greenhouse.Greenhouse, error)
	Greenhouse(ctx context.Context, id string) (*greenhouse.Greenhouse, error)
	SetDeviceConfig(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, cfg greenhouse.DeviceConfig) error
	History(ctx context.Context, q greenhouse.HistoryQuery) ([]greenhouse.Reading, error)
}

// Reconciler runs ticks on demand and switches devices for operators.
type Reconciler interface {
	Tick(ctx context.Context) (automation.TickResult, error)
	Actuate(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, action automation.Action) error
}

// JobLister exposes the scheduler's job table.
type JobLister interface {
	Pending() []automation.Job
	Recent() []automation.Record
}

// HealthChecker is satisfied by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Store      GreenhouseStore
	Reconciler Reconciler
	Jobs       JobLister

	// Checks are reported by /health, keyed by component name.
	Checks map[string]HealthChecker

	// Hub, when set, is used instead of a server-owned hub so the reconciler
	// can broadcast through it.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secret     string
	logger     *logging.Logger
	store      GreenhouseStore
	reconciler Reconciler
	jobs       JobLister
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	tickets     *ticketStore
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("greenhouse store is required")
	}
	if deps.Reconciler == nil || deps.Jobs == nil {
		return nil, fmt.Errorf("reconciler and job lister are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secret:     deps.Security.JWT.Secret,
		logger:     deps.Logger,
		store:      deps.Store,
		reconciler: deps.Reconciler,
		jobs:       deps.Jobs,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub used by the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
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
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
