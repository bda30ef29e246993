package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dreamware/lloyd/internal/kmeans"
)

// Generate draws n points with both coordinates uniform in [0, maximum).
func Generate(n int, maximum float64, src rand.Source) []kmeans.Point {
	u := distuv.Uniform{Min: 0, Max: maximum, Src: src}
	points := make([]kmeans.Point, n)
	for i := range points {
		x := u.Rand()
		points[i] = kmeans.NewPoint(x, u.Rand())
	}
	return points
}

// Summary describes the spread of a point set.
type Summary struct {
	N     int     `json:"n"`
	MeanX float64 `json:"mean_x"`
	MeanY float64 `json:"mean_y"`
	StdX  float64 `json:"std_x"`
	StdY  float64 `json:"std_y"`
	MinX  float64 `json:"min_x"`
	MaxX  float64 `json:"max_x"`
	MinY  float64 `json:"min_y"`
	MaxY  float64 `json:"max_y"`
}

// Summarize returns per-axis statistics of points. The zero Summary is
// returned for an empty set.
func Summarize(points []kmeans.Point) Summary {
	if len(points) == 0 {
		return Summary{}
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}

	s := Summary{
		N:    len(points),
		MinX: floats.Min(xs),
		MaxX: floats.Max(xs),
		MinY: floats.Min(ys),
		MaxY: floats.Max(ys),
	}
	s.MeanX, s.StdX = stat.MeanStdDev(xs, nil)
	s.MeanY, s.StdY = stat.MeanStdDev(ys, nil)
	return s
}
