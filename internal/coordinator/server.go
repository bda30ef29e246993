package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/collective"
	"github.com/dreamware/lloyd/internal/kmeans"
)

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// PublicAddr is the base URL under which nodes reach this coordinator.
	PublicAddr string
	// HealthInterval is the period of node health checks.
	HealthInterval time.Duration
	// JobTimeout bounds a single job. Zero means no limit.
	JobTimeout time.Duration
	// JobHistory is the number of finished jobs kept for GET /jobs.
	JobHistory int
}

// Server is the coordinator: it keeps the node registry, monitors node
// health and runs rank 0 of every distributed job.
type Server struct {
	registry   *Registry
	monitor    *HealthMonitor
	router     *collective.Router
	jobs       *Jobs
	logger     *slog.Logger
	publicAddr string
	jobTimeout time.Duration
	mu         sync.RWMutex
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 5 * time.Second
	}
	if opts.JobHistory <= 0 {
		opts.JobHistory = 32
	}

	s := &Server{
		registry:   NewRegistry(),
		monitor:    NewHealthMonitor(opts.HealthInterval, logger),
		router:     collective.NewRouter(logger),
		jobs:       NewJobs(opts.JobHistory),
		logger:     logger,
		publicAddr: opts.PublicAddr,
		jobTimeout: opts.JobTimeout,
	}
	s.monitor.SetOnUnhealthy(func(nodeID string) {
		if n := s.jobs.CancelNode(nodeID, fmt.Errorf("node %s unhealthy", nodeID)); n > 0 {
			s.logger.Warn("cancelled jobs of unhealthy node", "node_id", nodeID, "jobs", n)
		}
	})
	return s
}

func (s *Server) Registry() *Registry        { return s.registry }
func (s *Server) Monitor() *HealthMonitor    { return s.monitor }
func (s *Server) Jobs() *Jobs                { return s.jobs }
func (s *Server) Router() *collective.Router { return s.router }

// SetPublicAddr changes the address advertised to nodes as rank 0.
func (s *Server) SetPublicAddr(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicAddr = addr
}

func (s *Server) PublicAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicAddr
}

// Start runs the health monitor until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) {
	go s.monitor.Start(ctx, s.registry.Nodes)
}

func (s *Server) Stop() {
	s.monitor.Stop()
}

// Handler returns the coordinator's HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/deregister", s.handleDeregister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/abort", s.handleAbort)
	mux.Handle("/collective", s.router)
	return mux
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := cluster.DecodeJSON(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	isNew, err := s.registry.Register(req.Node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if isNew {
		s.logger.Info("node registered", "node_id", req.Node.ID, "addr", req.Node.Addr)
	} else {
		s.logger.Info("node re-registered", "node_id", req.Node.ID, "addr", req.Node.Addr)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeregister forgets a departing node and cancels the jobs it was
// part of.
func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.DeregisterRequest
	if err := cluster.DecodeJSON(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if !s.registry.Remove(req.ID) {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	n := s.jobs.CancelNode(req.ID, fmt.Errorf("node %s deregistered", req.ID))
	s.logger.Info("node deregistered", "node_id", req.ID, "cancelled_jobs", n)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cluster.WriteJSON(w, r, http.StatusOK, struct {
		Nodes  []cluster.NodeInfo     `json:"nodes"`
		Health map[string]*NodeHealth `json:"health"`
	}{Nodes: s.registry.Nodes(), Health: s.monitor.GetAllNodeHealth()})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cluster.WriteJSON(w, r, http.StatusOK, struct {
			Jobs []JobSummary `json:"jobs"`
		}{Jobs: s.jobs.List()})
	case http.MethodPost:
		var req cluster.JobRequest
		if err := cluster.DecodeJSON(r, &req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		resp, err := s.RunJob(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), jobStatusCode(err))
			return
		}
		cluster.WriteJSON(w, r, http.StatusOK, resp)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAbort lets a node report that its rank failed.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.AbortRequest
	if err := cluster.DecodeJSON(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if !s.jobs.Cancel(req.ID, fmt.Errorf("aborted by peer: %s", req.Reason)) {
		http.Error(w, "job not running", http.StatusNotFound)
		return
	}
	s.logger.Warn("job aborted by peer", "job", req.ID, "reason", req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func jobStatusCode(err error) int {
	switch {
	case errors.Is(err, kmeans.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoNodes):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// RunJob clusters req.Points. Serial and shared jobs run on the
// coordinator alone. Distributed and hybrid jobs run rank 0 here and one
// rank on every eligible node; any failure cancels the job on every rank.
func (s *Server) RunJob(ctx context.Context, req cluster.JobRequest) (*cluster.JobResponse, error) {
	strategy, err := kmeans.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	if err := kmeans.CheckArgs(len(req.Points), req.K, req.Iterations); err != nil {
		return nil, err
	}
	if req.Initial != nil && len(req.Initial) != req.K {
		return nil, fmt.Errorf("%w: %d initial centroids for k=%d", kmeans.ErrInvalidArgument, len(req.Initial), req.K)
	}
	if err := kmeans.CheckPoints(req.Points, req.Initial); err != nil {
		return nil, err
	}

	opts := []kmeans.Option{kmeans.WithStrategy(strategy), kmeans.WithThreads(req.Threads), kmeans.WithSeed(req.Seed)}
	if req.Initial != nil {
		opts = append(opts, kmeans.WithInitialCentroids(req.Initial))
	}

	id := uuid.NewString()
	logger := s.logger.With("job", id, "strategy", strategy.String())

	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	summary := JobSummary{
		ID:         id,
		Strategy:   strategy.String(),
		Points:     len(req.Points),
		K:          req.K,
		Iterations: req.Iterations,
		Ranks:      1,
		Started:    time.Now(),
	}

	if strategy == kmeans.Serial || strategy == kmeans.Shared {
		s.jobs.begin(summary, cancel)
		res, err := kmeans.Cluster(jobCtx, req.Points, req.K, req.Iterations, opts...)
		s.jobs.finish(id, err)
		if err != nil {
			return nil, err
		}
		logger.Info("job finished", "ranks", 1)
		return &cluster.JobResponse{ID: id, Ranks: 1, Result: *res}, nil
	}

	plan, err := s.registry.Plan(s.PublicAddr(), len(req.Points), s.monitor.Eligible)
	if err != nil {
		return nil, err
	}
	summary.Ranks = len(plan)
	for _, a := range plan[1:] {
		summary.Nodes = append(summary.Nodes, a.NodeID)
	}

	box := s.router.Open(id)
	defer s.router.Close(id, nil)
	s.jobs.begin(summary, cancel)

	res, err := s.runDistributed(jobCtx, logger, id, plan, box, req, opts)
	if err != nil {
		if cause := context.Cause(jobCtx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", err, cause)
		}
		s.abort(logger, id, plan, err)
	}
	s.jobs.finish(id, err)
	if err != nil {
		return nil, err
	}
	logger.Info("job finished", "ranks", len(plan))
	return &cluster.JobResponse{ID: id, Ranks: len(plan), Result: *res}, nil
}

func (s *Server) runDistributed(ctx context.Context, logger *slog.Logger, id string, plan []RankAssignment, box *collective.Mailbox, req cluster.JobRequest, opts []kmeans.Option) (*kmeans.Result, error) {
	peers := Peers(plan)
	strategy, _ := kmeans.ParseStrategy(req.Strategy)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range plan[1:] {
		spec := cluster.JobSpec{
			ID:         id,
			Rank:       a.Rank,
			Peers:      peers,
			K:          req.K,
			Iterations: req.Iterations,
			Strategy:   strategy.String(),
			Threads:    req.Threads,
		}
		g.Go(func() error {
			if err := cluster.PostJSON(gctx, joinURL(a.Addr, "/jobs"), spec, nil); err != nil {
				return fmt.Errorf("start rank %d on %s: %w", a.Rank, a.NodeID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Info("job started", "ranks", len(plan), "points", len(req.Points), "k", req.K, "iterations", req.Iterations)

	comm := collective.New(id, kmeans.Root, len(plan), collective.NewHTTPTransport(peers, logger), box)
	return kmeans.Cluster(ctx, req.Points, req.K, req.Iterations, append(opts, kmeans.WithComm(comm))...)
}

// abort tells every node of plan to drop job id. Failures are logged and
// otherwise ignored.
func (s *Server) abort(logger *slog.Logger, id string, plan []RankAssignment, cause error) {
	logger.Error("job failed", "error", cause)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for _, a := range plan[1:] {
		g.Go(func() error {
			err := cluster.PostJSON(ctx, joinURL(a.Addr, "/jobs/abort"), cluster.AbortRequest{ID: id, Reason: cause.Error()}, nil)
			if err != nil {
				logger.Debug("abort not delivered", "node_id", a.NodeID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
