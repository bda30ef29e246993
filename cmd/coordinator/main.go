// Package main implements the lloyd coordinator. It tracks registered
// nodes and their health, accepts clustering jobs and runs rank 0 of every
// distributed job.
//
// Configuration (environment overrides the file named by LLOYD_CONFIG):
//   - COORDINATOR_LISTEN: Listen address (default: ":8080")
//   - COORDINATOR_PUBLIC_ADDR: URL nodes use to reach rank 0 (default: "http://127.0.0.1:8080")
//   - COORDINATOR_HEALTH_INTERVAL: Node health check period (default: 5s)
//   - COORDINATOR_JOB_TIMEOUT: Upper bound on a single job (default: none)
//   - LLOYD_LOG_LEVEL, LLOYD_LOG_FORMAT: Logging (default: info, text)
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/lloyd/internal/config"
	"github.com/dreamware/lloyd/internal/coordinator"
	"github.com/dreamware/lloyd/internal/logging"
)

var logFatal = log.Fatalf

func main() {
	cfg, err := config.Load(getenv("LLOYD_CONFIG", ""))
	if err != nil {
		logFatal("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		logFatal("invalid configuration: %v", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logFatal("logging: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Coordinator.Listen)
	if err != nil {
		logFatal("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := run(ctx, ln, cfg, logger); err != nil {
		logFatal("coordinator: %v", err)
	}
}

func newServer(cfg *config.Config, logger *slog.Logger) *coordinator.Server {
	return coordinator.NewServer(coordinator.Options{
		Logger:         logger,
		PublicAddr:     cfg.Coordinator.PublicAddr,
		HealthInterval: cfg.Coordinator.HealthInterval,
		JobTimeout:     cfg.Coordinator.JobTimeout,
		JobHistory:     cfg.Coordinator.JobHistory,
	})
}

// run serves the coordinator API on ln until ctx is cancelled.
func run(ctx context.Context, ln net.Listener, cfg *config.Config, logger *slog.Logger) error {
	s := newServer(cfg, logger)
	s.Start(ctx)
	defer s.Stop()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "listen", ln.Addr().String(), "public", s.PublicAddr())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("coordinator stopped")
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
