// Package team provides a fixed-size fork-join thread team for
// intra-process parallelism.
//
// Each call to Run is one parallel region: it forks one goroutine per team
// member and joins them all before returning, so the return from Run is a
// barrier. Members share no locks; they are expected to work on disjoint
// data, typically the ranges returned by Ranges, and to write results into
// slots indexed by their member id. Whatever must happen exactly once
// between two regions (a single-writer combine, publishing new shared
// state) runs on the calling goroutine after Run returns.
package team

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/lloyd/internal/partition"
)

// Team is a fixed group of members that execute parallel regions.
type Team struct {
	size int
}

// New returns a team with size members. A non-positive size selects
// runtime.GOMAXPROCS(0).
func New(size int) *Team {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Team{size: size}
}

// Size returns the number of members.
func (t *Team) Size() int { return t.size }

// Ranges splits n items across the team members.
func (t *Team) Ranges(n int) []partition.Range {
	return partition.Split(n, t.size)
}

// Run executes fn once per member id in [0, Size()) and waits for all of
// them. The first error cancels ctx for the remaining members and is
// returned once every member has finished.
func (t *Team) Run(ctx context.Context, fn func(ctx context.Context, id int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.size == 1 {
		return fn(ctx, 0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.size)
	for id := 0; id < t.size; id++ {
		g.Go(func() error {
			return fn(gctx, id)
		})
	}
	return g.Wait()
}
