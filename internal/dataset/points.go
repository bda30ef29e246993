package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dreamware/lloyd/internal/kmeans"
)

var (
	// ErrOddCoordinates is returned when an input ends with an x that has no y.
	ErrOddCoordinates = errors.New("odd number of coordinates")
	// ErrNotFinite is returned for NaN and infinite coordinates.
	ErrNotFinite = errors.New("coordinate is not finite")
)

// ReadPoints parses whitespace-separated coordinate pairs from r.
func ReadPoints(r io.Reader) ([]kmeans.Point, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	var (
		points []kmeans.Point
		x      float64
		half   bool
		word   int
	)
	for sc.Scan() {
		word++
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", word, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d: %w: %q", word, ErrNotFinite, sc.Text())
		}
		if !half {
			x = v
			half = true
			continue
		}
		points = append(points, kmeans.NewPoint(x, v))
		half = false
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if half {
		return nil, fmt.Errorf("%w: %d values", ErrOddCoordinates, word)
	}
	return points, nil
}

// WritePoints writes one "x y label" line per point.
func WritePoints(w io.Writer, points []kmeans.Point, labels []int) error {
	if len(labels) != len(points) {
		return fmt.Errorf("%d labels for %d points", len(labels), len(points))
	}
	bw := bufio.NewWriter(w)
	for i, p := range points {
		if _, err := fmt.Fprintf(bw, "%12.10g%12.10g%4d\n", p.X, p.Y, labels[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteGenerated writes points in the input format used by ReadPoints.
func WriteGenerated(w io.Writer, points []kmeans.Point) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		if _, err := fmt.Fprintf(bw, "%10.3f %10.3f\n", p.X, p.Y); err != nil {
			return err
		}
	}
	return bw.Flush()
}
