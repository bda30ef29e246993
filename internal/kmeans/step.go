package kmeans

import (
	"context"

	"github.com/dreamware/lloyd/internal/partition"
	"github.com/dreamware/lloyd/internal/team"
)

// stepper runs the assignment phase and the local part of the aggregation
// phase over one worker's points and returns the worker's partial sums.
type stepper interface {
	Step(ctx context.Context, points []Point, labels []int, centroids []Centroid, k int) (Sums, error)
}

type serialStep struct{}

func (serialStep) Step(_ context.Context, points []Point, labels []int, centroids []Centroid, k int) (Sums, error) {
	all := partition.Range{Size: len(points)}
	Assign(points, all, centroids, labels)
	sums := NewSums(k)
	sums.Accumulate(points, labels, all)
	return sums, nil
}

// teamStep splits the points across a thread team. Assignment and
// accumulation are separate parallel regions, and the per-member slots are
// combined by the calling goroutine once the second region has joined.
type teamStep struct {
	tm *team.Team
}

func (s teamStep) Step(ctx context.Context, points []Point, labels []int, centroids []Centroid, k int) (Sums, error) {
	ranges := s.tm.Ranges(len(points))

	err := s.tm.Run(ctx, func(_ context.Context, id int) error {
		Assign(points, ranges[id], centroids, labels)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slots := make([]Sums, s.tm.Size())
	err = s.tm.Run(ctx, func(_ context.Context, id int) error {
		sums := NewSums(k)
		sums.Accumulate(points, labels, ranges[id])
		slots[id] = sums
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Combine(slots...), nil
}
