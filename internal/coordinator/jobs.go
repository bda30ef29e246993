package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// JobStatus is the lifecycle state of a coordinator-run job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobSummary describes a job for GET /jobs.
type JobSummary struct {
	Started    time.Time `json:"started"`
	ID         string    `json:"id"`
	Strategy   string    `json:"strategy"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Nodes      []string  `json:"nodes"`
	Points     int       `json:"points"`
	K          int       `json:"k"`
	Iterations int       `json:"iterations"`
	Ranks      int       `json:"ranks"`
	ElapsedMS  float64   `json:"elapsed_ms"`
}

type trackedJob struct {
	summary JobSummary
	cancel  context.CancelCauseFunc
}

// Jobs tracks running jobs so they can be cancelled, and keeps a bounded
// history of finished ones.
type Jobs struct {
	jobs  map[string]*trackedJob
	mu    sync.Mutex
	limit int
}

// NewJobs keeps at most limit finished jobs.
func NewJobs(limit int) *Jobs {
	return &Jobs{jobs: make(map[string]*trackedJob), limit: limit}
}

func (j *Jobs) begin(s JobSummary, cancel context.CancelCauseFunc) {
	s.Status = JobRunning
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[s.ID] = &trackedJob{summary: s, cancel: cancel}
}

func (j *Jobs) finish(id string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	t, ok := j.jobs[id]
	if !ok {
		return
	}
	t.cancel = nil
	t.summary.ElapsedMS = float64(time.Since(t.summary.Started).Microseconds()) / 1000
	if err != nil {
		t.summary.Status = JobFailed
		t.summary.Error = err.Error()
	} else {
		t.summary.Status = JobSucceeded
	}
	j.prune()
}

// prune drops the oldest finished jobs beyond the limit. j.mu must be held.
func (j *Jobs) prune() {
	var finished []*trackedJob
	for _, t := range j.jobs {
		if t.cancel == nil {
			finished = append(finished, t)
		}
	}
	if len(finished) <= j.limit {
		return
	}
	slices.SortFunc(finished, func(a, b *trackedJob) int {
		return a.summary.Started.Compare(b.summary.Started)
	})
	for _, t := range finished[:len(finished)-j.limit] {
		delete(j.jobs, t.summary.ID)
	}
}

// Cancel stops a running job with cause. It reports whether the job was
// running.
func (j *Jobs) Cancel(id string, cause error) bool {
	j.mu.Lock()
	t, ok := j.jobs[id]
	var cancel context.CancelCauseFunc
	if ok {
		cancel = t.cancel
	}
	j.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel(cause)
	return true
}

// CancelNode stops every running job that nodeID takes part in and
// returns how many were cancelled.
func (j *Jobs) CancelNode(nodeID string, cause error) int {
	j.mu.Lock()
	var cancels []context.CancelCauseFunc
	for _, t := range j.jobs {
		if t.cancel != nil && slices.Contains(t.summary.Nodes, nodeID) {
			cancels = append(cancels, t.cancel)
		}
	}
	j.mu.Unlock()

	for _, cancel := range cancels {
		cancel(cause)
	}
	return len(cancels)
}

// List returns all tracked jobs, newest first.
func (j *Jobs) List() []JobSummary {
	j.mu.Lock()
	out := make([]JobSummary, 0, len(j.jobs))
	for _, t := range j.jobs {
		s := t.summary
		s.Nodes = slices.Clone(s.Nodes)
		out = append(out, s)
	}
	j.mu.Unlock()

	slices.SortFunc(out, func(a, b JobSummary) int {
		return b.Started.Compare(a.Started)
	})
	return out
}

// Get returns the summary of job id.
func (j *Jobs) Get(id string) (JobSummary, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.jobs[id]
	if !ok {
		return JobSummary{}, false
	}
	s := t.summary
	s.Nodes = slices.Clone(s.Nodes)
	return s, true
}
