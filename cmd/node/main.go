// Package main implements the lloyd node service, which runs ranks of
// distributed k-means jobs on behalf of the coordinator.
//
// A node:
//   - Registers with the coordinator on startup
//   - Accepts job assignments and runs the non-root rank of each
//   - Exchanges collective messages with its peers over HTTP
//   - Responds to health checks
//   - Deregisters on shutdown
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                Node                     │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health       - Health check         │
//	│    /info         - Node and job state   │
//	│    /jobs         - Start a rank         │
//	│    /jobs/abort   - Drop a job           │
//	│    /collective   - Peer messages        │
//	└─────────────────────────────────────────┘
//
// Configuration (environment overrides the file named by LLOYD_CONFIG):
//   - NODE_ID: Unique node identifier (required)
//   - NODE_LISTEN: Listen address (default: ":8081")
//   - NODE_ADDR: Public address for coordinator (default: "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: Coordinator URL (default: "http://127.0.0.1:8080")
//   - LLOYD_LOG_LEVEL, LLOYD_LOG_FORMAT: Logging (default: info, text)
//
// Example usage:
//
//	NODE_ID=node-1 \
//	NODE_LISTEN=:8081 \
//	NODE_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 \
//	./node
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

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/config"
	"github.com/dreamware/lloyd/internal/logging"
	"github.com/dreamware/lloyd/internal/worker"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	cfg, err := config.Load(getenv("LLOYD_CONFIG", ""))
	if err != nil {
		logFatal("%v", err)
	}
	if err := cfg.ValidateNode(); err != nil {
		logFatal("invalid configuration: %v", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logFatal("logging: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Node.Listen)
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
		logFatal("node: %v", err)
	}
}

// run serves the node API on ln, registers with the coordinator and
// blocks until ctx is cancelled. On the way out running jobs are aborted
// and the node deregisters.
func run(ctx context.Context, ln net.Listener, cfg *config.Config, logger *slog.Logger) error {
	node := worker.NewNode(cfg.Node.ID, logger)
	logger = logger.With("node_id", cfg.Node.ID)

	srv := &http.Server{
		Handler:           node.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("node listening", "listen", ln.Addr().String(), "public", cfg.Node.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	info := cluster.NodeInfo{ID: cfg.Node.ID, Addr: cfg.Node.Addr}
	if err := worker.Register(ctx, cfg.Node.Coordinator, info, nil, logger); err != nil {
		shutdown(srv, logger)
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	for _, job := range node.Jobs().Running() {
		if job.Abort(errors.New("node shutting down")) {
			logger.Warn("aborted running job", "job", job.ID())
		}
	}
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := worker.Deregister(leaveCtx, cfg.Node.Coordinator, cfg.Node.ID); err != nil {
		logger.Warn("deregister failed", "error", err)
	}
	cancel()
	shutdown(srv, logger)
	logger.Info("node stopped")
	return nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

// getenv returns the value of k, or def when k is unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
