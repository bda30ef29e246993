package kmeans

import (
	"context"
	"fmt"
	"math"

	"github.com/dreamware/lloyd/internal/partition"
	"github.com/dreamware/lloyd/internal/team"
)

// Result is the outcome of a clustering run.
type Result struct {
	// Centroids is the final centroid set, indexed by cluster.
	Centroids []Centroid `json:"centroids"`
	// Labels holds the cluster of every input point, in input order.
	Labels []int `json:"labels"`
}

// Cluster runs Lloyd's algorithm for exactly iterations rounds and returns
// the final centroids together with every point's label. The labels are
// also written to points[i].Cluster.
//
// For Distributed and Hybrid strategies Cluster must be called on the root
// rank of the Comm given with WithComm; every other rank calls Follow.
func Cluster(ctx context.Context, points []Point, k, iterations int, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	if err := validate(len(points), k, iterations, o); err != nil {
		return nil, err
	}
	if err := CheckPoints(points, o.initial); err != nil {
		return nil, err
	}

	centroids := o.initial
	if centroids == nil {
		centroids = InitCentroids(points, k, o.rng)
	}

	var (
		res *Result
		err error
	)
	switch o.strategy {
	case Serial:
		res, err = runLocal(ctx, points, k, iterations, centroids, serialStep{}, o)
	case Shared:
		res, err = runLocal(ctx, points, k, iterations, centroids, teamStep{tm: team.New(o.threads)}, o)
	case Distributed:
		res, err = runRank(ctx, o.comm, points, k, iterations, centroids, serialStep{}, o)
	case Hybrid:
		res, err = runRank(ctx, o.comm, points, k, iterations, centroids, teamStep{tm: team.New(o.threads)}, o)
	}
	if err != nil {
		return nil, err
	}

	for i, c := range res.Labels {
		points[i].Cluster = c
	}
	return res, nil
}

// Follow runs a non-root rank of a Distributed or Hybrid clustering. It
// must be called with the same k and iterations as the root's Cluster
// call. WithStrategy(Hybrid) enables the per-rank thread team; any other
// strategy runs the rank's share serially.
func Follow(ctx context.Context, comm Comm, k, iterations int, opts ...Option) error {
	o := buildOptions(opts)
	switch {
	case comm == nil:
		return fmt.Errorf("%w: follow requires a comm", ErrInvalidArgument)
	case comm.Rank() == Root:
		return fmt.Errorf("%w: rank %d must call Cluster, not Follow", ErrInvalidArgument, Root)
	case k <= 0:
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	case iterations < 0:
		return fmt.Errorf("%w: iterations must be non-negative, got %d", ErrInvalidArgument, iterations)
	}

	var step stepper = serialStep{}
	if o.strategy == Hybrid {
		step = teamStep{tm: team.New(o.threads)}
	}
	_, err := runRank(ctx, comm, nil, k, iterations, nil, step, o)
	return err
}

// CheckArgs reports whether n points can be clustered into k clusters
// over iterations rounds. Cluster runs the same check; a coordinator uses
// it to reject a job before any remote rank is started.
func CheckArgs(n, k, iterations int) error {
	switch {
	case n == 0:
		return fmt.Errorf("%w: no points", ErrInvalidArgument)
	case k <= 0:
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	case k > n:
		return fmt.Errorf("%w: k=%d exceeds point count %d", ErrInvalidArgument, k, n)
	case iterations < 0:
		return fmt.Errorf("%w: iterations must be non-negative, got %d", ErrInvalidArgument, iterations)
	}
	return nil
}

// CheckPoints rejects NaN and infinite coordinates in points and in the
// optional initial centroids.
func CheckPoints(points []Point, initial []Centroid) error {
	for i, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("%w: point %d (%g, %g) is not finite", ErrInvalidArgument, i, p.X, p.Y)
		}
	}
	for c, cen := range initial {
		if !finite(cen.X) || !finite(cen.Y) {
			return fmt.Errorf("%w: initial centroid %d (%g, %g) is not finite", ErrInvalidArgument, c, cen.X, cen.Y)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func validate(n, k, iterations int, o *options) error {
	if err := CheckArgs(n, k, iterations); err != nil {
		return err
	}
	switch {
	case o.initial != nil && len(o.initial) != k:
		return fmt.Errorf("%w: %d initial centroids for k=%d", ErrInvalidArgument, len(o.initial), k)
	case o.strategy < Serial || o.strategy > Hybrid:
		return fmt.Errorf("%w: unknown strategy %s", ErrInvalidArgument, o.strategy)
	}
	if o.strategy.usesComm() {
		if o.comm == nil {
			return fmt.Errorf("%w: %s strategy requires a comm", ErrInvalidArgument, o.strategy)
		}
		if o.comm.Rank() != Root {
			return fmt.Errorf("%w: Cluster called on rank %d, only rank %d may", ErrInvalidArgument, o.comm.Rank(), Root)
		}
	}
	return nil
}

// runLocal drives the Serial and Shared strategies.
func runLocal(ctx context.Context, points []Point, k, iterations int, centroids []Centroid, step stepper, o *options) (*Result, error) {
	labels := make([]int, len(points))
	for it := 0; it < iterations; it++ {
		sums, err := step.Step(ctx, points, labels, centroids, k)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		centroids = sums.Centroids(centroids)
		o.reportProgress(it + 1)
	}
	if iterations == 0 {
		if _, err := step.Step(ctx, points, labels, centroids, k); err != nil {
			return nil, err
		}
	}
	return &Result{Centroids: centroids, Labels: labels}, nil
}

// runRank drives one rank of the Distributed and Hybrid strategies. On the
// root, points and centroids are the full dataset and the initial set; on
// other ranks both are nil. Only the root returns a Result.
func runRank(ctx context.Context, comm Comm, points []Point, k, iterations int, centroids []Centroid, step stepper, o *options) (*Result, error) {
	root := comm.Rank() == Root

	var parts [][]Point
	if root {
		ranges := partition.Split(len(points), comm.Size())
		parts = make([][]Point, len(ranges))
		for r, rg := range ranges {
			parts[r] = points[rg.Offset:rg.End()]
		}
	}
	local, err := comm.ScatterPoints(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("scatter points: %w", err)
	}

	centroids, err = comm.BroadcastCentroids(ctx, centroids)
	if err != nil {
		return nil, fmt.Errorf("broadcast initial centroids: %w", err)
	}
	if len(centroids) != k {
		return nil, fmt.Errorf("rank %d: received %d centroids, expected k=%d", comm.Rank(), len(centroids), k)
	}

	labels := make([]int, len(local))
	for it := 0; it < iterations; it++ {
		sums, err := step.Step(ctx, local, labels, centroids, k)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		global, err := comm.ReduceSums(ctx, sums)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: reduce: %w", it, err)
		}
		var next []Centroid
		if root {
			next = global.Centroids(centroids)
		}
		centroids, err = comm.BroadcastCentroids(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: broadcast: %w", it, err)
		}
		o.reportProgress(it + 1)
	}
	if iterations == 0 {
		if _, err := step.Step(ctx, local, labels, centroids, k); err != nil {
			return nil, err
		}
	}

	gathered, err := comm.GatherLabels(ctx, labels)
	if err != nil {
		return nil, fmt.Errorf("gather labels: %w", err)
	}
	if !root {
		return nil, nil
	}

	all := make([]int, 0, len(points))
	for _, part := range gathered {
		all = append(all, part...)
	}
	if len(all) != len(points) {
		return nil, fmt.Errorf("gathered %d labels for %d points", len(all), len(points))
	}
	return &Result{Centroids: centroids, Labels: all}, nil
}
