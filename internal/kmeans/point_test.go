package kmeans

import (
	"math"
	"testing"
)

func TestNearest(t *testing.T) {
	centroids := []Centroid{{0, 0}, {10, 0}, {0, 10}}
	tests := []struct {
		name string
		p    Point
		want int
	}{
		{"on first", NewPoint(0, 0), 0},
		{"near second", NewPoint(9, 1), 1},
		{"near third", NewPoint(1, 8), 2},
		{"tie between first and second", NewPoint(5, 0), 0},
		{"tie between second and third", NewPoint(10, 10), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Nearest(tt.p, centroids); got != tt.want {
				t.Errorf("Nearest(%v) = %d, want %d", tt.p, got, tt.want)
			}
		})
	}
}

func TestNearestDuplicateCentroids(t *testing.T) {
	// Duplicates never win over the first copy.
	centroids := []Centroid{{1, 1}, {1, 1}, {1, 1}}
	if got := Nearest(NewPoint(1, 1), centroids); got != 0 {
		t.Errorf("Nearest = %d, want 0", got)
	}
}

func TestNearestNaN(t *testing.T) {
	centroids := []Centroid{{math.NaN(), 0}, {math.NaN(), 1}}
	if got := Nearest(NewPoint(0, 0), centroids); got != 0 {
		t.Errorf("Nearest = %d, want 0", got)
	}
}

func TestSquaredDistance(t *testing.T) {
	if got := SquaredDistance(NewPoint(1, 2), Centroid{4, 6}); got != 25 {
		t.Errorf("SquaredDistance = %v, want 25", got)
	}
}

func TestNewPointUnassigned(t *testing.T) {
	p := NewPoint(3, 4)
	if p.Cluster != Unassigned {
		t.Errorf("Cluster = %d, want %d", p.Cluster, Unassigned)
	}
	if c := CentroidOf(p); c != (Centroid{3, 4}) {
		t.Errorf("CentroidOf = %v", c)
	}
}
