package kmeans

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Strategy selects where assignment and aggregation execute.
type Strategy int

const (
	// Serial runs everything on the calling goroutine.
	Serial Strategy = iota
	// Shared runs a thread team over the whole dataset.
	Shared
	// Distributed runs one rank per Comm participant.
	Distributed
	// Hybrid runs a thread team inside every Comm participant.
	Hybrid
)

func (s Strategy) String() string {
	switch s {
	case Serial:
		return "serial"
	case Shared:
		return "shared"
	case Distributed:
		return "distributed"
	case Hybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name to a Strategy. The command names
// "omp" and "mpi" are accepted as aliases of shared and distributed.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "serial":
		return Serial, nil
	case "shared", "omp":
		return Shared, nil
	case "distributed", "mpi":
		return Distributed, nil
	case "hybrid":
		return Hybrid, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidArgument, name)
	}
}

// usesComm reports whether the strategy runs across Comm ranks.
func (s Strategy) usesComm() bool {
	return s == Distributed || s == Hybrid
}

type options struct {
	strategy Strategy
	threads  int
	comm     Comm
	rng      *rand.Rand
	seed     uint64
	initial  []Centroid
	progress func(iteration int)
}

// Option configures a Cluster or Follow call.
type Option func(*options)

// WithStrategy selects the execution strategy. The default is Serial.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithThreads sets the thread team size used by Shared and Hybrid.
// Zero or a negative value selects runtime.GOMAXPROCS(0).
func WithThreads(n int) Option {
	return func(o *options) { o.threads = n }
}

// WithComm supplies the process group for Distributed and Hybrid runs.
func WithComm(c Comm) Option {
	return func(o *options) { o.comm = c }
}

// WithRand supplies the generator used to pick initial centroids.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// DefaultSeed seeds the generator when neither WithSeed nor WithRand is
// given.
const DefaultSeed = 1

// WithSeed seeds the default generator. Zero selects DefaultSeed. It is
// ignored when WithRand is also given.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithInitialCentroids skips random initialization. The slice is copied.
func WithInitialCentroids(cs []Centroid) Option {
	return func(o *options) {
		o.initial = append([]Centroid(nil), cs...)
	}
}

// WithProgress registers a callback invoked on the driving goroutine after
// each completed iteration, with the 1-based iteration number.
func WithProgress(fn func(iteration int)) Option {
	return func(o *options) { o.progress = fn }
}

func buildOptions(opts []Option) *options {
	o := &options{strategy: Serial}
	for _, opt := range opts {
		opt(o)
	}
	if o.seed == 0 {
		o.seed = DefaultSeed
	}
	if o.rng == nil {
		o.rng = NewRand(o.seed)
	}
	return o
}

func (o *options) reportProgress(iteration int) {
	if o.progress != nil {
		o.progress(iteration)
	}
}
