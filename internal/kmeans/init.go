package kmeans

import "math/rand/v2"

// InitCentroids draws k centroids uniformly at random from points, one
// independent draw per centroid. Duplicate picks are possible and are
// resolved later by the first-minimum tie-break, which leaves the
// duplicate cluster empty.
func InitCentroids(points []Point, k int, rng *rand.Rand) []Centroid {
	out := make([]Centroid, k)
	for c := range out {
		out[c] = CentroidOf(points[rng.IntN(len(points))])
	}
	return out
}

// NewRand returns the generator used when no WithRand option is given.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
