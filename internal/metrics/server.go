package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds the ops endpoint settings.
type ServerConfig struct {
	Port        int
	MetricsPath string
	HealthPath  string
}

// DefaultServerConfig returns the default ops endpoint settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:        9090,
		MetricsPath: "/metrics",
		HealthPath:  "/health",
	}
}

// HealthStatus is the health endpoint response.
type HealthStatus struct {
	Service   string           `json:"service"`
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
}

// Check is the result of one registered health check.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker reports the state of one dependency of the terminal.
type HealthChecker func() Check

// Server exposes the Prometheus scrape endpoint and the terminal's
// health checks on one listener.
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewServer creates the ops server. Start must be called separately.
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
		checkers:  make(map[string]HealthChecker),
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc(cfg.HealthPath, s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/live", s.liveHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// RegisterHealthCheck adds a named dependency check. Re-registering a
// name replaces the previous check.
func (s *Server) RegisterHealthCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
}

// Start serves in the background until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting ops server",
		"port", s.cfg.Port,
		"metrics_path", s.cfg.MetricsPath,
		"health_path", s.cfg.HealthPath,
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server error", "err", err)
		}
	}()

	return nil
}

// Shutdown stops the listener, letting in-flight scrapes finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server", "uptime", s.Uptime())
	return s.httpServer.Shutdown(ctx)
}

// runChecks executes every registered check and reports whether all of
// them came back healthy.
func (s *Server) runChecks() (map[string]Check, bool) {
	s.mu.RLock()
	checkers := make(map[string]HealthChecker, len(s.checkers))
	for name, checker := range s.checkers {
		checkers[name] = checker
	}
	s.mu.RUnlock()

	checks := make(map[string]Check, len(checkers))
	healthy := true
	for name, checker := range checkers {
		check := checker()
		checks[name] = check
		if check.Status != "healthy" {
			healthy = false
		}
	}
	return checks, healthy
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	checks, healthy := s.runChecks()

	status := HealthStatus{
		Service:   "terminal",
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    s.Uptime().String(),
		Checks:    checks,
	}
	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		status.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if _, healthy := s.runChecks(); !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// Uptime returns how long the ops server has been up.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}
