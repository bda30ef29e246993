package worker

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// ErrJobExists is returned when a job ID is started twice on one node.
var ErrJobExists = errors.New("job exists")

// ErrJobNotFound is returned for operations on unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Registry holds the jobs of one node: every running rank plus a bounded
// number of finished ones for GET /info.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	limit int
}

// RegistryStats summarizes a Registry by job state.
type RegistryStats struct {
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Aborted int `json:"aborted"`
}

// NewRegistry keeps at most limit finished jobs.
func NewRegistry(limit int) *Registry {
	return &Registry{jobs: make(map[string]*Job), limit: limit}
}

// Add registers job, failing with ErrJobExists if its ID is taken.
func (r *Registry) Add(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID()]; exists {
		return ErrJobExists
	}
	r.jobs[job.ID()] = job
	return nil
}

func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns every job's info, newest first.
func (r *Registry) List() []JobInfo {
	r.mu.RLock()
	infos := make([]JobInfo, 0, len(r.jobs))
	for _, job := range r.jobs {
		infos = append(infos, job.Info())
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b JobInfo) int {
		return b.Started.Compare(a.Started)
	})
	return infos
}

// Running returns the jobs that have not finished.
func (r *Registry) Running() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Job
	for _, job := range r.jobs {
		if job.State() == JobStateRunning {
			out = append(out, job)
		}
	}
	return out
}

// Prune drops the oldest finished jobs beyond the limit.
func (r *Registry) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var finished []*Job
	for _, job := range r.jobs {
		if job.State() != JobStateRunning {
			finished = append(finished, job)
		}
	}
	if len(finished) <= r.limit {
		return
	}
	slices.SortFunc(finished, func(a, b *Job) int {
		return a.Started.Compare(b.Started)
	})
	for _, job := range finished[:len(finished)-r.limit] {
		delete(r.jobs, job.ID())
	}
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s RegistryStats
	for _, job := range r.jobs {
		switch job.State() {
		case JobStateRunning:
			s.Running++
		case JobStateDone:
			s.Done++
		case JobStateFailed:
			s.Failed++
		case JobStateAborted:
			s.Aborted++
		}
	}
	return s
}
