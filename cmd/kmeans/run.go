package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/collective"
	"github.com/dreamware/lloyd/internal/config"
	"github.com/dreamware/lloyd/internal/dataset"
	"github.com/dreamware/lloyd/internal/kmeans"
)

type runOptions struct {
	clusters    int
	iterations  int
	threads     int
	ranks       int
	seed        uint64
	filename    string
	inputDir    string
	outputDir   string
	coordinator string
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run [serial|omp|shared|mpi|distributed|hybrid]",
		Short: "Cluster the points of an input file",
		Long: `Cluster the points of <input-dir>/<filename> and write every point with
its cluster label to <output-dir>/<filename>.out.

Strategies:
  serial               one goroutine
  omp, shared          a team of --threads goroutines
  mpi, distributed     --ranks ranks exchanging messages
  hybrid               --ranks ranks, each with a team of --threads

With --coordinator the job is submitted to a running coordinator, which
spreads distributed and hybrid jobs over its registered nodes.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"serial", "omp", "shared", "mpi", "distributed", "hybrid"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "serial"
			if len(args) == 1 {
				command = args[0]
			}
			o.applyConfig(cmd, a)
			return a.run(cmd, command, o)
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.IntVarP(&o.clusters, "clusters", "c", def.Run.Clusters, "number of clusters")
	f.IntVarP(&o.iterations, "iterations", "i", def.Run.Iterations, "number of Lloyd iterations")
	f.IntVarP(&o.threads, "threads", "t", def.Run.Threads, "goroutines per rank (0 means GOMAXPROCS)")
	f.IntVar(&o.ranks, "ranks", def.Run.Ranks, "in-process ranks for mpi and hybrid (0 means GOMAXPROCS)")
	f.Uint64Var(&o.seed, "seed", def.Run.Seed, "seed for the initial centroids")
	f.StringVarP(&o.filename, "filename", "f", def.Run.Filename, "input file in the input directory, or s3://bucket/key")
	f.StringVar(&o.inputDir, "input-dir", def.Run.InputDir, "directory holding input files")
	f.StringVar(&o.outputDir, "output-dir", def.Run.OutputDir, "directory or s3://bucket/prefix receiving output files")
	f.StringVar(&o.coordinator, "coordinator", "", "submit the job to the coordinator at this URL")
	return cmd
}

// applyConfig fills every flag the user did not set from the loaded
// configuration.
func (o *runOptions) applyConfig(cmd *cobra.Command, a *app) {
	f := cmd.Flags()
	r := a.cfg.Run
	if !f.Changed("clusters") {
		o.clusters = r.Clusters
	}
	if !f.Changed("iterations") {
		o.iterations = r.Iterations
	}
	if !f.Changed("threads") {
		o.threads = r.Threads
	}
	if !f.Changed("ranks") {
		o.ranks = r.Ranks
	}
	if !f.Changed("seed") {
		o.seed = r.Seed
	}
	if !f.Changed("filename") {
		o.filename = r.Filename
	}
	if !f.Changed("input-dir") {
		o.inputDir = r.InputDir
	}
	if !f.Changed("output-dir") {
		o.outputDir = r.OutputDir
	}
}

func (a *app) run(cmd *cobra.Command, command string, o runOptions) error {
	strategy, err := kmeans.ParseStrategy(command)
	if err != nil {
		return fmt.Errorf("command %q is not available", command)
	}
	ctx := cmd.Context()

	src := inputPath(o.inputDir, o.filename)
	points, err := dataset.Load(ctx, src, a.s3Options())
	if err != nil {
		return err
	}
	s := dataset.Summarize(points)
	a.logger.Debug("loaded points", "src", src, "n", s.N,
		"mean_x", s.MeanX, "mean_y", s.MeanY, "std_x", s.StdX, "std_y", s.StdY)

	ranks := o.ranks
	if ranks <= 0 {
		ranks = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	var res *kmeans.Result
	switch {
	case o.coordinator != "":
		res, err = submit(ctx, o.coordinator, cluster.JobRequest{
			Points:     points,
			K:          o.clusters,
			Iterations: o.iterations,
			Strategy:   strategy.String(),
			Threads:    o.threads,
			Seed:       o.seed,
		})
	case strategy == kmeans.Distributed || strategy == kmeans.Hybrid:
		res, err = clusterLocal(ctx, points, o.clusters, o.iterations, ranks,
			kmeans.WithStrategy(strategy), kmeans.WithThreads(o.threads), kmeans.WithSeed(o.seed))
	default:
		res, err = kmeans.Cluster(ctx, points, o.clusters, o.iterations,
			kmeans.WithStrategy(strategy), kmeans.WithThreads(o.threads), kmeans.WithSeed(o.seed))
	}
	elapsed := time.Since(start)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Total elapsed time with %q command: %.6fs\n", command, elapsed.Seconds())

	dst := outputPath(o.outputDir, o.filename)
	if err := dataset.Save(ctx, dst, a.s3Options(), points, res.Labels); err != nil {
		return err
	}
	a.logger.Info("clustered points", "strategy", strategy.String(), "n", len(points), "k", o.clusters,
		"iterations", o.iterations, "output", dst)
	return nil
}

// clusterLocal runs every rank of a distributed or hybrid job in this
// process, connected through a LocalTransport.
func clusterLocal(ctx context.Context, points []kmeans.Point, k, iterations, ranks int, opts ...kmeans.Option) (*kmeans.Result, error) {
	comms := collective.NewLocalGroup(ranks)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms[1:] {
		g.Go(func() error {
			return kmeans.Follow(gctx, c, k, iterations, opts...)
		})
	}
	var res *kmeans.Result
	g.Go(func() error {
		var err error
		res, err = kmeans.Cluster(gctx, points, k, iterations, append(slices.Clone(opts), kmeans.WithComm(comms[0]))...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func submit(ctx context.Context, coordinator string, req cluster.JobRequest) (*kmeans.Result, error) {
	resp, err := cluster.SubmitJob(ctx, coordinator, req)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	return &resp.Result, nil
}

func inputPath(dir, filename string) string {
	if strings.HasPrefix(filename, "s3://") || filepath.IsAbs(filename) {
		return filename
	}
	return joinPath(dir, filename)
}

func outputPath(dir, filename string) string {
	name := filename + ".out"
	if strings.HasPrefix(filename, "s3://") || filepath.IsAbs(filename) {
		name = path.Base(filename) + ".out"
	}
	return joinPath(dir, name)
}

func joinPath(dir, name string) string {
	if strings.HasPrefix(dir, "s3://") {
		return strings.TrimRight(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
