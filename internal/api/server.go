// Package api serves the wagering service's JSON HTTP API and the
// websocket odds stream.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// StreamHandler serves the websocket odds stream endpoint.
type StreamHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Config holds the API server configuration.
type Config struct {
	Port int
}

// Server is the HTTP API server. Routes use the standard mux with method
// patterns; the market, wagering, settlement, and ledger surfaces all hang
// off it.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// NewServer registers all routes and returns the server.
func NewServer(cfg Config, handlers *Handlers, stream StreamHandler, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/markets", handlers.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.GetMarket)
	mux.HandleFunc("DELETE /api/markets/{id}", handlers.DeleteMarket)
	mux.HandleFunc("GET /api/communities/{id}/markets", handlers.ListMarkets)

	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.CancelMarket)
	mux.HandleFunc("POST /api/markets/{id}/settle", handlers.SettleMarket)
	mux.HandleFunc("POST /api/markets/{id}/ledger/resume", handlers.ResumeLedger)
	mux.HandleFunc("GET /api/markets/{id}/participations", handlers.ListParticipations)
	mux.HandleFunc("GET /api/markets/{id}/history", handlers.OddsHistory)

	mux.HandleFunc("POST /api/users/{id}/wallet", handlers.EnsureWallet)
	mux.HandleFunc("GET /api/users/{id}/wallet", handlers.Wallet)
	mux.HandleFunc("GET /api/users/{id}/balances", handlers.NetPositions)
	mux.HandleFunc("GET /api/users/{id}/balances/{counterparty}", handlers.NetBetween)
	mux.HandleFunc("POST /api/balances/mark-paid", handlers.MarkPaid)
	mux.HandleFunc("POST /api/balances/mark-received", handlers.MarkReceived)

	if stream != nil {
		mux.HandleFunc("GET /ws/odds", stream.ServeWS)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Port),
			Handler:      requestLogging(logger, mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background and shuts down when ctx ends.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("API server error")
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogging logs each request with its duration and status.
func requestLogging(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through so the websocket upgrade keeps working behind the
// logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
