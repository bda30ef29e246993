package collective

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/dreamware/lloyd/internal/cluster"
)

// LocalTransport connects the ranks of one process through their
// mailboxes. It stands in for a group of separate processes in tests and
// in `kmeans run mpi`.
type LocalTransport struct {
	boxes []*Mailbox
}

func (t *LocalTransport) Send(ctx context.Context, env cluster.Envelope) error {
	if env.To < 0 || env.To >= len(t.boxes) {
		return fmt.Errorf("no rank %d in a group of %d", env.To, len(t.boxes))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.boxes[env.To].Deliver(env)
}

// Close closes every mailbox of the group.
func (t *LocalTransport) Close(reason error) {
	for _, b := range t.boxes {
		b.Close(reason)
	}
}

// NewLocalGroup returns one Comm per rank, all sharing a LocalTransport.
// Each Comm must be driven from its own goroutine.
func NewLocalGroup(size int) []*Comm {
	if size <= 0 {
		panic(fmt.Sprintf("collective: group size %d", size))
	}
	t := &LocalTransport{boxes: make([]*Mailbox, size)}
	for i := range t.boxes {
		t.boxes[i] = NewMailbox()
	}
	comms := make([]*Comm, size)
	for r := range comms {
		comms[r] = New("local", r, size, t, t.boxes[r])
	}
	return comms
}

// HTTPTransport posts envelopes to peer+"/collective". Peers are indexed
// by rank; the entry for the local rank is never used.
type HTTPTransport struct {
	peers  []string
	logger *slog.Logger
}

func NewHTTPTransport(peers []string, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPTransport{peers: append([]string(nil), peers...), logger: logger}
}

func (t *HTTPTransport) Send(ctx context.Context, env cluster.Envelope) error {
	if env.To < 0 || env.To >= len(t.peers) {
		return fmt.Errorf("no peer for rank %d", env.To)
	}
	url := strings.TrimRight(t.peers[env.To], "/") + "/collective"
	t.logger.Debug("send envelope", "job", env.Job, "seq", env.Seq, "kind", env.Kind, "to", env.To, "bytes", len(env.Payload))
	return cluster.PostJSON(ctx, url, env, nil)
}

// ErrUnknownJob is returned for envelopes addressed to a job the router
// has never opened.
var ErrUnknownJob = errors.New("unknown job")

// Router dispatches envelopes arriving on POST /collective to the
// mailbox of their job. Closed jobs are remembered so that late messages
// are answered with 410 Gone instead of 404.
type Router struct {
	mu     sync.Mutex
	boxes  map[string]*Mailbox
	closed map[string]struct{}
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		boxes:  make(map[string]*Mailbox),
		closed: make(map[string]struct{}),
		logger: logger,
	}
}

// Open registers a mailbox for job and returns it. Opening a job that is
// already open returns the existing mailbox.
func (rt *Router) Open(job string) *Mailbox {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if b, ok := rt.boxes[job]; ok {
		return b
	}
	b := NewMailbox()
	rt.boxes[job] = b
	delete(rt.closed, job)
	return b
}

// Close closes and forgets job's mailbox.
func (rt *Router) Close(job string, reason error) {
	rt.mu.Lock()
	b, ok := rt.boxes[job]
	delete(rt.boxes, job)
	rt.closed[job] = struct{}{}
	rt.mu.Unlock()
	if ok {
		b.Close(reason)
	}
}

// Deliver hands env to its job's mailbox.
func (rt *Router) Deliver(env cluster.Envelope) error {
	rt.mu.Lock()
	b, ok := rt.boxes[env.Job]
	_, gone := rt.closed[env.Job]
	rt.mu.Unlock()
	switch {
	case ok:
		return b.Deliver(env)
	case gone:
		return fmt.Errorf("job %s: %w", env.Job, ErrClosed)
	default:
		return fmt.Errorf("job %s: %w", env.Job, ErrUnknownJob)
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var env cluster.Envelope
	if err := cluster.DecodeJSON(r, &env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rt.Deliver(env); err != nil {
		rt.logger.Warn("reject envelope", "job", env.Job, "seq", env.Seq, "from", env.From, "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusGone
	case errors.Is(err, ErrUnknownJob):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
