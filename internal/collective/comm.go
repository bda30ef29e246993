package collective

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/kmeans"
)

// Transport delivers an envelope to the rank named by env.To.
type Transport interface {
	Send(ctx context.Context, env cluster.Envelope) error
}

// Comm implements kmeans.Comm on top of a point-to-point Transport. All
// collectives are rooted at kmeans.Root: the root fans messages out to
// every other rank, and every other rank talks only to the root.
//
// A Comm belongs to one rank and must be driven by a single goroutine.
type Comm struct {
	job       string
	rank      int
	size      int
	transport Transport
	box       *Mailbox
	seq       uint64
}

var _ kmeans.Comm = (*Comm)(nil)

// New returns rank's endpoint of job. box receives the envelopes the
// transport delivers to this rank.
func New(job string, rank, size int, t Transport, box *Mailbox) *Comm {
	if size <= 0 || rank < 0 || rank >= size {
		panic(fmt.Sprintf("collective: rank %d out of range for size %d", rank, size))
	}
	return &Comm{job: job, rank: rank, size: size, transport: t, box: box}
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.size }

func (c *Comm) isRoot() bool { return c.rank == kmeans.Root }

func (c *Comm) next() uint64 {
	c.seq++
	return c.seq
}

func (c *Comm) send(ctx context.Context, to int, seq uint64, kind cluster.Kind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	env := cluster.Envelope{Job: c.job, Seq: seq, From: c.rank, To: to, Kind: kind, Payload: payload}
	if err := c.transport.Send(ctx, env); err != nil {
		return fmt.Errorf("send %s seq=%d to rank %d: %w", kind, seq, to, err)
	}
	return nil
}

func (c *Comm) recv(ctx context.Context, seq uint64, from int, kind cluster.Kind, out any) error {
	env, err := c.box.Await(ctx, seq, from, kind)
	if err != nil {
		return fmt.Errorf("await %s seq=%d from rank %d: %w", kind, seq, from, err)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("%w: decode %s from rank %d: %w", ErrMismatch, kind, from, err)
	}
	return nil
}

// fanOut sends payload(r) to every non-root rank concurrently.
func (c *Comm) fanOut(ctx context.Context, seq uint64, kind cluster.Kind, payload func(rank int) any) error {
	g, gctx := errgroup.WithContext(ctx)
	for r := 1; r < c.size; r++ {
		g.Go(func() error {
			return c.send(gctx, r, seq, kind, payload(r))
		})
	}
	return g.Wait()
}

func (c *Comm) ScatterPoints(ctx context.Context, parts [][]kmeans.Point) ([]kmeans.Point, error) {
	seq := c.next()
	if !c.isRoot() {
		var local []kmeans.Point
		if err := c.recv(ctx, seq, kmeans.Root, cluster.KindScatter, &local); err != nil {
			return nil, err
		}
		return local, nil
	}
	if len(parts) != c.size {
		return nil, fmt.Errorf("scatter: %d parts for %d ranks", len(parts), c.size)
	}
	if err := c.fanOut(ctx, seq, cluster.KindScatter, func(r int) any { return parts[r] }); err != nil {
		return nil, err
	}
	return parts[kmeans.Root], nil
}

func (c *Comm) BroadcastCentroids(ctx context.Context, cs []kmeans.Centroid) ([]kmeans.Centroid, error) {
	seq := c.next()
	if !c.isRoot() {
		var out []wireCentroid
		if err := c.recv(ctx, seq, kmeans.Root, cluster.KindBroadcast, &out); err != nil {
			return nil, err
		}
		return decodeCentroids(out), nil
	}
	wire := encodeCentroids(cs)
	if err := c.fanOut(ctx, seq, cluster.KindBroadcast, func(int) any { return wire }); err != nil {
		return nil, err
	}
	return append([]kmeans.Centroid(nil), cs...), nil
}

// ReduceSums merges contributions in rank order so that repeated runs
// add floating-point sums in the same sequence.
func (c *Comm) ReduceSums(ctx context.Context, local kmeans.Sums) (kmeans.Sums, error) {
	seq := c.next()
	if !c.isRoot() {
		return nil, c.send(ctx, kmeans.Root, seq, cluster.KindReduce, encodeSums(local))
	}
	acc := local.Clone()
	for r := 1; r < c.size; r++ {
		var wire []wireSum
		if err := c.recv(ctx, seq, r, cluster.KindReduce, &wire); err != nil {
			return nil, err
		}
		part := decodeSums(wire)
		if len(part) != len(acc) {
			return nil, fmt.Errorf("%w: rank %d sent %d clusters, expected %d", ErrMismatch, r, len(part), len(acc))
		}
		acc.Merge(part)
	}
	return acc, nil
}

func (c *Comm) GatherLabels(ctx context.Context, local []int) ([][]int, error) {
	seq := c.next()
	if !c.isRoot() {
		return nil, c.send(ctx, kmeans.Root, seq, cluster.KindGather, local)
	}
	out := make([][]int, c.size)
	out[kmeans.Root] = local
	for r := 1; r < c.size; r++ {
		if err := c.recv(ctx, seq, r, cluster.KindGather, &out[r]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
