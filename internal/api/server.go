package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/tick-averager/internal/config"
	"github.com/mohamedkhairy/tick-averager/pkg/indicator"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the components served over HTTP
type Dependencies struct {
	Definitions []indicator.Definition
	Kinds       []indicator.Kind // calculator kinds the registry can build
	Pipeline    TickPipeline
	Averages    AverageReader
	Auth        Authenticator           // optional; guards POST endpoints
	WebSocket   http.Handler            // optional; mounted at /ws
	ReadyChecks map[string]func() error // in addition to the pipeline check
}

// Server is the HTTP front of the averager
type Server struct {
	config config.APIConfig
	server *http.Server
	cancel context.CancelFunc
}

// NewServer creates a server with every route registered
func NewServer(cfg config.APIConfig, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: NewRouter(ctx, cfg, deps),
		},
		cancel: cancel,
	}
}

// NewRouter builds the routed and middleware-wrapped handler.
// ctx bounds background work owned by the middleware.
func NewRouter(ctx context.Context, cfg config.APIConfig, deps Dependencies) http.Handler {
	calculatorHandler := NewCalculatorHandler(deps.Definitions, deps.Kinds)
	averageHandler := NewAverageHandler(deps.Averages, calculatorHandler.Has)
	controlHandler := NewControlHandler(deps.Pipeline)
	tickHandler := NewTickHandler(deps.Pipeline)

	checks := map[string]func() error{"pipeline": PipelineCheck(deps.Pipeline)}
	for name, check := range deps.ReadyChecks {
		checks[name] = check
	}
	healthHandler := NewHealthHandler(checks)

	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(LoggingMiddleware()))

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(AuthMiddleware(deps.Auth)))

	v1.HandleFunc("/calculators", calculatorHandler.ListCalculators).Methods("GET")
	v1.HandleFunc("/averages", averageHandler.ListAverages).Methods("GET")
	v1.HandleFunc("/averages/{name}", averageHandler.GetAverage).Methods("GET")
	v1.HandleFunc("/control/{action}", controlHandler.Control).Methods("POST")
	v1.Handle("/ticks", RateLimitMiddleware(ctx, cfg.RateLimitRPS)(http.HandlerFunc(tickHandler.SubmitTicks))).Methods("POST")
	v1.Handle("/log/level", logger.LevelHandler()).Methods("GET", "PUT")

	// Health check endpoints
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/ready", healthHandler.Ready).Methods("GET")
	router.HandleFunc("/live", healthHandler.Live).Methods("GET")

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	if deps.WebSocket != nil {
		router.Handle("/ws", deps.WebSocket)
	}

	middlewares := ChainMiddleware(
		CORSMiddleware(cfg.CORSOrigins),
		RequestIDMiddleware(),
		ErrorHandlingMiddleware(),
	)
	return middlewares(router)
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves HTTP in the background; listen failures are fatal
func (s *Server) Start() {
	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", s.server.Addr),
		)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()
	return s.server.Shutdown(ctx)
}
