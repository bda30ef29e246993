package kmeans

import (
	"fmt"

	"github.com/dreamware/lloyd/internal/partition"
)

// Assign labels every point in r with the index of its nearest centroid.
// It reads points and centroids and writes only labels[r.Offset:r.End()],
// so concurrent calls over disjoint ranges need no locking.
func Assign(points []Point, r partition.Range, centroids []Centroid, labels []int) {
	for i := r.Offset; i < r.End(); i++ {
		labels[i] = Nearest(points[i], centroids)
	}
}

// Sum is the running (sum_x, sum_y, count) triple of one cluster.
type Sum struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Count int64   `json:"count"`
}

// Sums holds one Sum per cluster index. A Sums value is owned by a single
// worker for the duration of one iteration.
type Sums []Sum

// NewSums returns a zeroed accumulator for k clusters.
func NewSums(k int) Sums {
	return make(Sums, k)
}

// Add accumulates p into cluster c.
func (s Sums) Add(p Point, c int) {
	s[c].X += p.X
	s[c].Y += p.Y
	s[c].Count++
}

// Accumulate adds every point in r to the cluster named by its label.
func (s Sums) Accumulate(points []Point, labels []int, r partition.Range) {
	for i := r.Offset; i < r.End(); i++ {
		s.Add(points[i], labels[i])
	}
}

// Merge adds other into s element-wise. Both must cover the same k.
func (s Sums) Merge(other Sums) {
	if len(s) != len(other) {
		panic(fmt.Sprintf("kmeans: merging sums of %d clusters into %d", len(other), len(s)))
	}
	for c := range s {
		s[c].X += other[c].X
		s[c].Y += other[c].Y
		s[c].Count += other[c].Count
	}
}

// Clone returns an independent copy of s.
func (s Sums) Clone() Sums {
	out := make(Sums, len(s))
	copy(out, s)
	return out
}

// Total returns the number of points accumulated across all clusters.
func (s Sums) Total() int64 {
	var n int64
	for _, sum := range s {
		n += sum.Count
	}
	return n
}

// Centroids derives the next centroid set. Clusters that received no
// points keep their centroid from prev. The result is a new slice; prev
// is not modified.
func (s Sums) Centroids(prev []Centroid) []Centroid {
	out := make([]Centroid, len(s))
	for c, sum := range s {
		if sum.Count == 0 {
			out[c] = prev[c]
			continue
		}
		n := float64(max(1, sum.Count))
		out[c] = Centroid{X: sum.X / n, Y: sum.Y / n}
	}
	return out
}

// Combine returns the element-wise sum of parts without modifying them.
// It is associative and commutative, so any grouping of partial
// accumulators (flat, per-thread then per-process, ...) gives the same
// counts, and the same coordinate sums whenever they are exactly
// representable. Combine of no parts returns nil.
func Combine(parts ...Sums) Sums {
	if len(parts) == 0 {
		return nil
	}
	out := parts[0].Clone()
	for _, p := range parts[1:] {
		out.Merge(p)
	}
	return out
}
