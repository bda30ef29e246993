package collective

import (
	"math"

	"github.com/dreamware/lloyd/internal/kmeans"
)

// Centroids and partial sums travel as IEEE-754 bit patterns, so an
// overflowed sum or a NaN reaches every rank with the root's exact bits.

type wireCentroid struct {
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
}

type wireSum struct {
	X     uint64 `json:"x"`
	Y     uint64 `json:"y"`
	Count int64  `json:"count"`
}

func encodeCentroids(cs []kmeans.Centroid) []wireCentroid {
	if cs == nil {
		return nil
	}
	out := make([]wireCentroid, len(cs))
	for i, c := range cs {
		out[i] = wireCentroid{X: math.Float64bits(c.X), Y: math.Float64bits(c.Y)}
	}
	return out
}

func decodeCentroids(ws []wireCentroid) []kmeans.Centroid {
	if ws == nil {
		return nil
	}
	out := make([]kmeans.Centroid, len(ws))
	for i, w := range ws {
		out[i] = kmeans.Centroid{X: math.Float64frombits(w.X), Y: math.Float64frombits(w.Y)}
	}
	return out
}

func encodeSums(s kmeans.Sums) []wireSum {
	out := make([]wireSum, len(s))
	for i, sum := range s {
		out[i] = wireSum{X: math.Float64bits(sum.X), Y: math.Float64bits(sum.Y), Count: sum.Count}
	}
	return out
}

func decodeSums(ws []wireSum) kmeans.Sums {
	out := make(kmeans.Sums, len(ws))
	for i, w := range ws {
		out[i] = kmeans.Sum{X: math.Float64frombits(w.X), Y: math.Float64frombits(w.Y), Count: w.Count}
	}
	return out
}
