package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/lloyd/internal/cluster"
)

// JobState is the lifecycle state of a rank running on this node.
type JobState string

const (
	// JobStateRunning means Follow has not returned yet.
	JobStateRunning JobState = "running"
	// JobStateDone means the rank completed every collective.
	JobStateDone JobState = "done"
	// JobStateFailed means the rank stopped on an error of its own.
	JobStateFailed JobState = "failed"
	// JobStateAborted means the coordinator tore the job down.
	JobStateAborted JobState = "aborted"
)

// Job is one rank of a distributed clustering job hosted by this node.
type Job struct {
	Spec    cluster.JobSpec
	Started time.Time
	Stats   *JobStats

	mu       sync.RWMutex
	state    JobState
	err      error
	finished time.Time
	cancel   context.CancelCauseFunc
	done     chan struct{}
}

// JobStats counts progress with atomic updates; read it through Info.
type JobStats struct {
	Iterations uint64
}

// JobInfo is the JSON view of a Job for GET /info.
type JobInfo struct {
	Started    time.Time `json:"started"`
	ID         string    `json:"id"`
	State      JobState  `json:"state"`
	Strategy   string    `json:"strategy"`
	Error      string    `json:"error,omitempty"`
	Rank       int       `json:"rank"`
	Size       int       `json:"size"`
	K          int       `json:"k"`
	Iterations int       `json:"iterations"`
	Completed  uint64    `json:"completed_iterations"`
	ElapsedMS  float64   `json:"elapsed_ms"`
}

func newJob(spec cluster.JobSpec, cancel context.CancelCauseFunc) *Job {
	return &Job{
		Spec:    spec,
		Started: time.Now(),
		Stats:   &JobStats{},
		state:   JobStateRunning,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (j *Job) ID() string { return j.Spec.ID }

func (j *Job) progress(int) {
	atomic.AddUint64(&j.Stats.Iterations, 1)
}

// Abort cancels the rank with cause. It reports whether the job was still
// running.
func (j *Job) Abort(cause error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobStateRunning {
		return false
	}
	j.state = JobStateAborted
	j.err = cause
	j.cancel(cause)
	return true
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	if j.state == JobStateRunning {
		if err != nil {
			j.state = JobStateFailed
			j.err = err
		} else {
			j.state = JobStateDone
		}
	}
	j.cancel(nil)
	close(j.done)
}

// Done is closed once the rank has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err returns the failure or abort cause, if any.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

func (j *Job) Info() JobInfo {
	j.mu.RLock()
	state, err, finished := j.state, j.err, j.finished
	j.mu.RUnlock()

	end := finished
	if end.IsZero() {
		end = time.Now()
	}
	info := JobInfo{
		ID:         j.Spec.ID,
		Rank:       j.Spec.Rank,
		Size:       len(j.Spec.Peers),
		Strategy:   j.Spec.Strategy,
		K:          j.Spec.K,
		Iterations: j.Spec.Iterations,
		State:      state,
		Started:    j.Started,
		Completed:  atomic.LoadUint64(&j.Stats.Iterations),
		ElapsedMS:  float64(end.Sub(j.Started).Microseconds()) / 1000,
	}
	if err != nil {
		info.Error = err.Error()
	}
	return info
}
