package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/collective"
	"github.com/dreamware/lloyd/internal/kmeans"
)

// errAborted marks jobs torn down by the coordinator.
var errAborted = errors.New("aborted by coordinator")

// Node hosts ranks 1..W-1 of distributed jobs on behalf of a coordinator.
type Node struct {
	ID     string
	jobs   *Registry
	router *collective.Router
	logger *slog.Logger
}

func NewNode(id string, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("node_id", id)
	return &Node{
		ID:     id,
		jobs:   NewRegistry(64),
		router: collective.NewRouter(logger),
		logger: logger,
	}
}

func (n *Node) Jobs() *Registry { return n.jobs }

// Handler returns the node's HTTP API.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", n.handleInfo)
	mux.HandleFunc("/jobs", n.handleStart)
	mux.HandleFunc("/jobs/abort", n.handleAbort)
	mux.Handle("/collective", n.router)
	return mux
}

// StartJob begins running spec's rank in the background. The job's
// mailbox is open when StartJob returns, so the coordinator may start
// sending as soon as every node has accepted.
func (n *Node) StartJob(spec cluster.JobSpec) (*Job, error) {
	strategy, err := kmeans.ParseStrategy(spec.Strategy)
	if err != nil {
		return nil, err
	}
	switch {
	case spec.ID == "":
		return nil, fmt.Errorf("%w: job id is required", kmeans.ErrInvalidArgument)
	case spec.Rank <= kmeans.Root || spec.Rank >= len(spec.Peers):
		return nil, fmt.Errorf("%w: rank %d out of range for %d peers", kmeans.ErrInvalidArgument, spec.Rank, len(spec.Peers))
	case spec.K <= 0:
		return nil, fmt.Errorf("%w: k must be positive, got %d", kmeans.ErrInvalidArgument, spec.K)
	case spec.Iterations < 0:
		return nil, fmt.Errorf("%w: iterations must be non-negative, got %d", kmeans.ErrInvalidArgument, spec.Iterations)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	job := newJob(spec, cancel)
	if err := n.jobs.Add(job); err != nil {
		cancel(nil)
		return nil, err
	}

	logger := n.logger.With("job", spec.ID, "rank", spec.Rank)
	box := n.router.Open(spec.ID)
	comm := collective.New(spec.ID, spec.Rank, len(spec.Peers), collective.NewHTTPTransport(spec.Peers, logger), box)

	go n.run(ctx, logger, job, comm, strategy)
	logger.Info("job started", "size", len(spec.Peers), "strategy", strategy.String())
	return job, nil
}

func (n *Node) run(ctx context.Context, logger *slog.Logger, job *Job, comm *collective.Comm, strategy kmeans.Strategy) {
	spec := job.Spec
	err := kmeans.Follow(ctx, comm, spec.K, spec.Iterations,
		kmeans.WithStrategy(strategy),
		kmeans.WithThreads(spec.Threads),
		kmeans.WithProgress(job.progress))

	n.router.Close(spec.ID, err)
	job.finish(err)
	n.jobs.Prune()

	switch {
	case err == nil:
		logger.Info("job done", "iterations", spec.Iterations)
	case errors.Is(context.Cause(ctx), errAborted):
		logger.Warn("job aborted", "error", job.Err())
	default:
		logger.Error("job failed", "error", err)
		n.report(logger, spec, err)
	}
}

// report tells the coordinator that this rank failed so that it can stop
// waiting for it.
func (n *Node) report(logger *slog.Logger, spec cluster.JobSpec, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := cluster.AbortRequest{ID: spec.ID, Reason: fmt.Sprintf("rank %d on node %s: %v", spec.Rank, n.ID, cause)}
	url := strings.TrimRight(spec.Peers[kmeans.Root], "/") + "/jobs/abort"
	if err := cluster.PostJSON(ctx, url, req, nil); err != nil {
		logger.Debug("failure report not delivered", "error", err)
	}
}

// Abort cancels job id with reason.
func (n *Node) Abort(id, reason string) error {
	job, err := n.jobs.Get(id)
	if err != nil {
		return err
	}
	if !job.Abort(fmt.Errorf("%w: %s", errAborted, reason)) {
		return nil
	}
	n.logger.Warn("abort requested", "job", id, "reason", reason)
	return nil
}

func (n *Node) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var spec cluster.JobSpec
	if err := cluster.DecodeJSON(r, &spec); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	job, err := n.StartJob(spec)
	switch {
	case errors.Is(err, ErrJobExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		cluster.WriteJSON(w, r, http.StatusAccepted, job.Info())
	}
}

func (n *Node) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.AbortRequest
	if err := cluster.DecodeJSON(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := n.Abort(req.ID, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cluster.WriteJSON(w, r, http.StatusOK, struct {
		NodeID string        `json:"node_id"`
		Stats  RegistryStats `json:"stats"`
		Jobs   []JobInfo     `json:"jobs"`
	}{NodeID: n.ID, Stats: n.jobs.Stats(), Jobs: n.jobs.List()})
}

// Deregister tells the coordinator at coord that node id is leaving. It
// makes a single attempt.
func Deregister(ctx context.Context, coord, id string) error {
	url := strings.TrimRight(coord, "/") + "/deregister"
	if err := cluster.PostJSON(ctx, url, cluster.DeregisterRequest{ID: id}, nil); err != nil {
		return fmt.Errorf("deregister from %s: %w", coord, err)
	}
	return nil
}

// RegisterAttempts is the number of registration attempts before giving up.
const RegisterAttempts = 10

// Register announces the node at addr to the coordinator at coord. It
// retries up to RegisterAttempts times, spaced by limiter; a nil limiter
// allows one attempt every 400ms.
func Register(ctx context.Context, coord string, node cluster.NodeInfo, limiter *rate.Limiter, logger *slog.Logger) error {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(400*time.Millisecond), 1)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	body := cluster.RegisterRequest{Node: node}
	url := strings.TrimRight(coord, "/") + "/register"
	var lastErr error
	for i := 0; i < RegisterAttempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		lastErr = cluster.PostJSON(ctx, url, body, nil)
		if lastErr == nil {
			logger.Info("registered with coordinator", "coordinator", coord)
			return nil
		}
		logger.Warn("register retry", "attempt", i+1, "error", lastErr)
	}
	return fmt.Errorf("register with %s after %d attempts: %w", coord, RegisterAttempts, lastErr)
}
