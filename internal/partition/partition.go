// Package partition splits a sequence of n items into w contiguous,
// non-overlapping ranges whose sizes differ by at most one.
//
// The first n mod w ranges receive one extra item. Offsets are the running
// sum of prior sizes, so ranges tile [0, n) exactly once in worker order.
// When n < w the trailing ranges are empty; callers treat an empty range
// as a no-op.
package partition

import "fmt"

// Range is the half-open index interval [Offset, Offset+Size).
type Range struct {
	Offset int `json:"offset"`
	Size   int `json:"size"`
}

// End returns the exclusive upper bound of the range.
func (r Range) End() int { return r.Offset + r.Size }

// Empty reports whether the range holds no items.
func (r Range) Empty() bool { return r.Size == 0 }

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}

// Split divides n items across w workers. It panics if w <= 0 or n < 0.
func Split(n, w int) []Range {
	check(n, w)
	out := make([]Range, w)
	for i := range out {
		out[i] = Of(n, w, i)
	}
	return out
}

// Of returns worker i's range of a Split(n, w) without building the
// whole split.
func Of(n, w, i int) Range {
	check(n, w)
	if i < 0 || i >= w {
		panic(fmt.Sprintf("partition: worker %d out of range [0, %d)", i, w))
	}
	base, extra := n/w, n%w
	if i < extra {
		return Range{Offset: i * (base + 1), Size: base + 1}
	}
	return Range{Offset: extra*(base+1) + (i-extra)*base, Size: base}
}

func check(n, w int) {
	if w <= 0 {
		panic(fmt.Sprintf("partition: worker count must be positive, got %d", w))
	}
	if n < 0 {
		panic(fmt.Sprintf("partition: item count must be non-negative, got %d", n))
	}
}
