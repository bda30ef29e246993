package kmeans

import "context"

// Root is the rank that initializes centroids, combines partial sums and
// collects labels.
const Root = 0

// Comm is the process-group contract used by the Distributed and Hybrid
// strategies. Every rank calls the same sequence of collective methods;
// each call blocks until the data it needs has arrived. Any error is fatal
// for the run: centroid state cannot be resynchronized after a failed
// collective.
type Comm interface {
	// Rank is this participant's index in [0, Size()).
	Rank() int
	// Size is the number of participants.
	Size() int
	// ScatterPoints delivers parts[r] to rank r. Only the root's parts
	// argument is read; every rank receives its own part.
	ScatterPoints(ctx context.Context, parts [][]Point) ([]Point, error)
	// BroadcastCentroids distributes the root's centroid set to every
	// rank. Non-root ranks ignore their argument.
	BroadcastCentroids(ctx context.Context, cs []Centroid) ([]Centroid, error)
	// ReduceSums combines every rank's partial accumulator. The combined
	// value is returned on the root; other ranks receive nil.
	ReduceSums(ctx context.Context, local Sums) (Sums, error)
	// GatherLabels collects every rank's labels, indexed by rank, on the
	// root. Other ranks receive nil.
	GatherLabels(ctx context.Context, local []int) ([][]int, error)
}
