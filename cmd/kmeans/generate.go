package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/lloyd/internal/dataset"
)

type generateOptions struct {
	nums     int
	maximum  float64
	filename string
	seed     uint64
}

func newGenerateCmd(a *app) *cobra.Command {
	var o generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write random 2-D points to a file",
		Long: `Write --nums points with both coordinates drawn uniformly from
[0, --maximum) to --filename, one "x y" pair per line. The file may be a
local path or s3://bucket/key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.generate(cmd, o)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&o.nums, "nums", "n", 1000, "total number of points")
	f.Float64VarP(&o.maximum, "maximum", "m", 5000, "coordinate maximum")
	f.StringVarP(&o.filename, "filename", "f", "data.txt", "file to store the points in")
	f.Uint64Var(&o.seed, "seed", 0, "random seed (0 picks one from the clock)")
	return cmd
}

func (a *app) generate(cmd *cobra.Command, o generateOptions) error {
	if o.nums <= 0 {
		return fmt.Errorf("--nums must be positive, got %d", o.nums)
	}
	if o.maximum <= 0 {
		return fmt.Errorf("--maximum must be positive, got %g", o.maximum)
	}
	seed := o.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	points := dataset.Generate(o.nums, o.maximum, rand.NewPCG(seed, seed>>1))

	var buf bytes.Buffer
	if err := dataset.WriteGenerated(&buf, points); err != nil {
		return err
	}
	w, err := dataset.Create(cmd.Context(), o.filename, a.s3Options())
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	s := dataset.Summarize(points)
	a.logger.Info("generated points", "file", o.filename, "n", s.N, "seed", seed,
		"mean_x", s.MeanX, "mean_y", s.MeanY, "min_x", s.MinX, "max_x", s.MaxX, "min_y", s.MinY, "max_y", s.MaxY)
	return nil
}
