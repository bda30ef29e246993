package kmeans

import "math"

// Unassigned marks a point that has not been through an assignment phase.
const Unassigned = -1

// Point is a 2-D coordinate with an optional cluster label.
type Point struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Cluster int     `json:"cluster"`
}

// NewPoint returns an unassigned point.
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y, Cluster: Unassigned}
}

// Centroid is the representative coordinate of a cluster.
type Centroid struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CentroidOf returns the centroid located at p.
func CentroidOf(p Point) Centroid {
	return Centroid{X: p.X, Y: p.Y}
}

// SquaredDistance returns the squared Euclidean distance between p and c.
func SquaredDistance(p Point, c Centroid) float64 {
	dx := p.X - c.X
	dy := p.Y - c.Y
	return dx*dx + dy*dy
}

// Nearest returns the index of the centroid closest to p. Ties go to the
// lowest index. If every distance is NaN the result is 0.
func Nearest(p Point, centroids []Centroid) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := SquaredDistance(p, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}
