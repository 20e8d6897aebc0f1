// Package health serves the liveness and readiness probes, and optionally
// the metrics endpoint, on a listener separate from the wagering API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Check probes one dependency. A nil error means the dependency is usable.
type Check func(ctx context.Context) error

// Config holds the health server configuration.
type Config struct {
	ServiceName string
	Version     string
	Commit      string
	Port        string
	Logger      *logrus.Logger
	// Metrics, when set, is mounted at /metrics on the same listener.
	Metrics http.Handler
}

// Server answers /live, /ready, and /health. Readiness combines the
// registered dependency checks with a flag the process flips once startup
// finishes and again during shutdown, so the load balancer drains before
// the API stops.
type Server struct {
	cfg    Config
	port   string
	server *http.Server
	logger *logrus.Logger

	mu     sync.RWMutex
	ready  bool
	checks map[string]Check
}

// NewServer creates a health server. The port falls back to
// SIDEPOT_HEALTH_PORT and then 8080.
func NewServer(cfg Config) *Server {
	port := cfg.Port
	if port == "" {
		port = os.Getenv("SIDEPOT_HEALTH_PORT")
	}
	if port == "" {
		port = "8080"
	}
	return &Server{
		cfg:    cfg,
		port:   port,
		logger: cfg.Logger,
		checks: make(map[string]Check),
	}
}

// AddCheck registers a named readiness check. Must be called before Start.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// SetReady flips the startup/drain flag.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady reports the startup/drain flag, not the dependency checks.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Start serves in the background and shuts down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}

	s.server = &http.Server{
		Addr:         ":" + s.port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"port":    s.port,
				"service": s.cfg.ServiceName,
			}).Info("Health server listening")
		}
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithError(err).Error("Health server error")
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("Health server shutting down")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type probeResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Version  string            `json:"version,omitempty"`
	Commit   string            `json:"commit,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

func writeProbe(w http.ResponseWriter, status int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// handleHealth reports build information alongside liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, probeResponse{
		Status:  "ok",
		Service: s.cfg.ServiceName,
		Version: s.cfg.Version,
		Commit:  s.cfg.Commit,
	})
}

// handleLive is the liveness probe. It only proves the process serves HTTP.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, probeResponse{Status: "ok", Service: s.cfg.ServiceName})
}

// handleReady runs every registered check with a shared timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	results := make(map[string]string)
	healthy := true

	if s.IsReady() {
		results["service"] = "ok"
	} else {
		results["service"] = "not_ready"
		healthy = false
	}

	s.mu.RLock()
	checks := make(map[string]Check, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = "error: " + err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	resp := probeResponse{
		Service:  s.cfg.ServiceName,
		Checks:   results,
		Duration: time.Since(start).String(),
	}
	if healthy {
		resp.Status = "ok"
		writeProbe(w, http.StatusOK, resp)
		return
	}
	resp.Status = "not_ready"
	writeProbe(w, http.StatusServiceUnavailable, resp)
}
