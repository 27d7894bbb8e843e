package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"grace-bot/internal/analytics"
	"grace-bot/internal/config"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

type reporter interface {
	Report(ctx context.Context) (analytics.Report, error)
}

type healthServer struct {
	cfg      config.HealthConfig
	reporter reporter
	logger   *zap.Logger
}

func newHealthServer(cfg config.HealthConfig, reporter reporter, logger *zap.Logger) *healthServer {
	return &healthServer{cfg: cfg, reporter: reporter, logger: logger}
}

func (s *healthServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.reporter.Report(r.Context())
		if err != nil {
			s.logger.Warn("stats report failed", zap.Error(err))
			http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}

// Listen binds the configured address. Concurrent connections are capped at
// MaxConnections.
func (s *healthServer) Listen() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("health listener on %s: %w", s.cfg.Addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.cfg.MaxConnections)
	}
	return listener, nil
}

// Serve answers on listener until ctx is cancelled.
func (s *healthServer) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("health endpoint enabled", zap.String("addr", listener.Addr().String()))
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("health server stopped", zap.Error(err))
		return err
	}
	return nil
}
