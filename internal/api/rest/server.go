package rest

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liveexchange/auction-backend/internal/infrastructure/cache"
	"github.com/liveexchange/auction-backend/internal/infrastructure/config"
)

// Server is the HTTP front of the service: the REST surface, the
// subscription endpoint, and the operational endpoints.
type Server struct {
	cfg    *config.ServerConfig
	logger *slog.Logger
	http   *http.Server
}

// NewServer assembles the middleware chain around the handler and
// mounts the hub at /hubs/auction.
func NewServer(cfg *config.ServerConfig, handler *Handler, hub http.Handler, limiter cache.RateLimiter, logger *slog.Logger) *Server {
	root := http.NewServeMux()

	root.Handle("/api/", handler)
	root.Handle("/hubs/auction", hub)
	root.Handle("GET /metrics", promhttp.Handler())
	root.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "", map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	chained := chain(root,
		recoveryMiddleware(logger),
		requestIDMiddleware,
		loggingMiddleware(logger),
		rateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, limiter, logger),
		timeoutMiddleware(cfg.WriteTimeout),
	)

	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:         cfg.Address,
			Handler:      chained,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until SIGINT/SIGTERM, then drains within the shutdown
// timeout.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.cfg.Address)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
