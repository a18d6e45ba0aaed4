package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/shinyhost/internal/api/http"
	"github.com/GriffinCanCode/shinyhost/internal/api/middleware"
	"github.com/GriffinCanCode/shinyhost/internal/api/ws"
	"github.com/GriffinCanCode/shinyhost/internal/domain/diagnostic"
	"github.com/GriffinCanCode/shinyhost/internal/domain/shiny"
	"github.com/GriffinCanCode/shinyhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/shinyhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/shinyhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shinyhost/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	http       *http.Server
	supervisor *shiny.Supervisor
	hub        *ws.Hub
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics

	// ctx is cancelled on Close and aborts a running autostart.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a new server instance. The runtime is not started
// unless SHINY_AUTOSTART is set, and then only once Run is called.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing Shiny host",
		zap.String("port", cfg.Server.Port),
		zap.String("rscript", cfg.Runtime.RscriptPath),
		zap.String("app", cfg.Runtime.AppPath),
		zap.Int("port_start", cfg.Supervisor.PortStart),
		zap.Int("port_end", cfg.Supervisor.PortEnd),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	hub := ws.NewHub(cfg.Events.TopicPrefix, logger.Named("events"), metrics)

	supervisor, err := shiny.New(SupervisorConfig(cfg),
		shiny.WithNotifier(hub),
		shiny.WithLogger(logger.Runtime()),
		shiny.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor: %w", err)
	}

	// A nil *Runner must not become a non-nil interface.
	var diagnoser api.Diagnoser
	if cfg.Runtime.DiagnosticPath != "" {
		diagnoser = diagnostic.NewRunner(diagnostic.Config{
			RscriptPath: cfg.Runtime.RscriptPath,
			Script:      cfg.Runtime.DiagnosticPath,
			RHome:       cfg.Runtime.RHome,
			LibPath:     cfg.Runtime.LibPath,
		}, logger.Named("diagnostic"))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	tracer := tracing.New(logger.Named("trace"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORS.AllowOrigins
	router.Use(middleware.CORS(cors))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := api.NewHandlers(supervisor, diagnoser, hub, logger.Named("api"))
	handlers.Register(router)

	router.GET("/events", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	logger.Info("Server initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:        ctx,
		cancel:     cancel,
		router:     router,
		supervisor: supervisor,
		hub:        hub,
		tracer:     tracer,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// SupervisorConfig translates application configuration into supervisor
// settings.
func SupervisorConfig(cfg *config.Config) shiny.Config {
	return shiny.Config{
		Launch: shiny.LaunchConfig{
			RscriptPath: cfg.Runtime.RscriptPath,
			RHome:       cfg.Runtime.RHome,
			StartScript: cfg.Runtime.StartScript,
			LibPath:     cfg.Runtime.LibPath,
			AppPath:     cfg.Runtime.AppPath,
			HideConsole: cfg.Supervisor.HideConsole,
		},
		BaseURL:        cfg.Runtime.BaseURL,
		Ports:          shiny.PortRange{Start: cfg.Supervisor.PortStart, End: cfg.Supervisor.PortEnd},
		MaxRetries:     cfg.Supervisor.MaxRetries,
		InitialBackoff: cfg.Supervisor.InitialBackoff,
		ReadyTimeout:   cfg.Supervisor.ReadyTimeout,
		PollInterval:   cfg.Supervisor.PollInterval,
		ProbeTimeout:   cfg.Supervisor.ProbeTimeout,
		WatchInterval:  cfg.Supervisor.WatchInterval,
		WatchMaxMissed: cfg.Supervisor.WatchMaxMissed,
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Supervisor returns the runtime supervisor.
func (s *Server) Supervisor() *shiny.Supervisor {
	return s.supervisor
}

// Run serves the control API until Close is called.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves the control API on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	if s.config.Supervisor.Autostart {
		go s.autostart(s.ctx)
	}

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) autostart(ctx context.Context) {
	url, err := s.supervisor.Start(ctx)
	if err != nil {
		s.logger.Error("Autostart failed", zap.Error(err))
		return
	}
	s.logger.Info("Autostart complete", zap.String("url", url))
}

// Close stops the runtime, disconnects subscribers and shuts the HTTP
// server down.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.close()
	})
	return err
}

func (s *Server) close() error {
	s.logger.Info("Shutting down server...")

	s.cancel()

	// Waits for an in-flight start, including one begun over HTTP, so no
	// runtime is launched after this point.
	if err := s.supervisor.Close(); err != nil {
		s.logger.Error("Failed to stop shiny app", zap.Error(err))
	}

	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
		shutdownErr = fmt.Errorf("failed to shut down http server: %w", err)
	}

	s.tracer.Close()
	s.logger.Sync()
	return shutdownErr
}
