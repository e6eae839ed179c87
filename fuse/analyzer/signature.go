// Package analyzer implements the earth-mover (transportation) distance
// analyzer (spec §4.4) and the calibration table builder (spec §4.5).
package analyzer

import (
	"fmt"
	"math"
)

// Bound is the (min,max) range of one event dimension.
type Bound struct{ Min, Max float64 }

// Signature is a finite-support representation of a distribution of
// m-dimensional instance vectors: a set of weighted points (spec §4.4).
type Signature struct {
	Features [][]float64 // one coordinate vector per support point
	Weights  []float64   // sums to 1
}

// belowSentinel is the bin index for values below a dimension's minimum;
// values above the maximum go to bin numBins (spec §4.4: "out-of-bounds values go to
// sentinel bins -1 ... or num_bins ... ensuring every instance is
// placed").
const (
	belowSentinel = -1
)

// BuildSignature converts dist (a list of i64 m-vectors) into a Signature
// over the given per-dimension bounds and bin count. Returns an error for
// an empty distribution (spec §4.4: "Empty distribution is a runtime
// error").
func BuildSignature(dist [][]int64, bounds []Bound, numBins int) (Signature, error) {
	if len(dist) == 0 {
		return Signature{}, fmt.Errorf("analyzer: empty distribution")
	}
	dims := len(bounds)

	widths := make([]float64, dims)
	for d := 0; d < dims; d++ {
		widths[d] = (bounds[d].Max - bounds[d].Min) / float64(numBins)
	}

	type cellAgg struct {
		count int
		sum   []float64
	}
	cells := make(map[string]*cellAgg)
	order := make([]string, 0)

	cellKeyOf := func(idx []int) string { return fmt.Sprint(idx) }

	for _, point := range dist {
		idx := make([]int, dims)
		for d := 0; d < dims; d++ {
			w := widths[d]
			v := float64(point[d])
			if w == 0 {
				idx[d] = 0
				continue
			}
			c := int(math.Floor((v - bounds[d].Min) / w))
			switch {
			case v < bounds[d].Min:
				c = belowSentinel
			case v > bounds[d].Max:
				c = numBins
			case c < 0:
				c = 0
			case c >= numBins:
				c = numBins - 1
			}
			idx[d] = c
		}
		k := cellKeyOf(idx)
		agg, ok := cells[k]
		if !ok {
			agg = &cellAgg{sum: make([]float64, dims)}
			cells[k] = agg
			order = append(order, k)
		}
		agg.count++
		for d := 0; d < dims; d++ {
			agg.sum[d] += float64(point[d])
		}
	}

	total := float64(len(dist))
	sig := Signature{
		Features: make([][]float64, 0, len(order)),
		Weights:  make([]float64, 0, len(order)),
	}
	for _, k := range order {
		agg := cells[k]
		coord := make([]float64, dims)
		for d := 0; d < dims; d++ {
			mean := agg.sum[d] / float64(agg.count)
			w := widths[d]
			if w == 0 {
				coord[d] = 0
				continue
			}
			coord[d] = (mean - bounds[d].Min) / w
		}
		sig.Features = append(sig.Features, coord)
		sig.Weights = append(sig.Weights, float64(agg.count)/total)
	}
	return sig, nil
}
