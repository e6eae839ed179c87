// Package sequence implements the combination-sequence generator (spec
// §4.7): a branch-and-bound search over BC-style Combination sequences,
// guided by pairwise mutual information and calibrated TMD feedback.
package sequence

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
)

// MIMatrix holds pairwise mutual information between every reference
// pair, loaded from disk or computed from reference distributions (spec
// §4.7's "Inputs (computed once)").
type MIMatrix map[analyzer.EventPair]float64

// ComputeMI estimates the mutual information (in nats) between the two
// columns of a 2-column projection, discretizing each dimension into
// numBins equal-width histogram bins over its observed range. A constant
// column (zero range) contributes zero information and yields MI 0.
func ComputeMI(projection [][]int64, numBins int) float64 {
	if len(projection) == 0 || numBins < 1 {
		return 0
	}

	minX, maxX := projection[0][0], projection[0][0]
	minY, maxY := projection[0][1], projection[0][1]
	for _, row := range projection {
		if row[0] < minX {
			minX = row[0]
		}
		if row[0] > maxX {
			maxX = row[0]
		}
		if row[1] < minY {
			minY = row[1]
		}
		if row[1] > maxY {
			maxY = row[1]
		}
	}

	binOf := func(v, min, max int64) int {
		if max == min {
			return 0
		}
		b := int(float64(v-min) / float64(max-min) * float64(numBins))
		if b >= numBins {
			b = numBins - 1
		}
		if b < 0 {
			b = 0
		}
		return b
	}

	joint := make([]float64, numBins*numBins)
	marginalX := make([]float64, numBins)
	marginalY := make([]float64, numBins)
	n := len(projection)
	for _, row := range projection {
		bx := binOf(row[0], minX, maxX)
		by := binOf(row[1], minY, maxY)
		joint[bx*numBins+by]++
		marginalX[bx]++
		marginalY[by]++
	}
	total := float64(n)
	for i := range joint {
		joint[i] /= total
	}
	for i := range marginalX {
		marginalX[i] /= total
		marginalY[i] /= total
	}

	// MI(X;Y) = H(X) + H(Y) - H(X,Y), each computed as Shannon entropy
	// (stat.Entropy skips non-positive bin probabilities, so empty bins
	// contribute nothing).
	mi := stat.Entropy(marginalX) + stat.Entropy(marginalY) - stat.Entropy(joint)
	if mi < 0 {
		mi = 0
	}
	return mi
}

// BestAchievableAMI computes, for every event a and every L in [1,Lmax],
// the best achievable average mutual information obtainable by linking a
// with L other events (spec §4.7's "for each event a and each L the best
// achievable average-MI when combining a with L linking events"). Since
// the average of any L values from a fixed pool is maximized by taking the
// L largest, this reduces to a prefix average over a's MI values sorted
// descending.
func BestAchievableAMI(events []fuse.Event, mi MIMatrix, lmax int) map[fuse.Event][]float64 {
	out := make(map[fuse.Event][]float64, len(events))
	for _, a := range events {
		var values []float64
		for _, b := range events {
			if a == b {
				continue
			}
			values = append(values, mi[analyzer.NewEventPair(a, b)])
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(values)))

		best := make([]float64, lmax+1) // index 0 unused, 1-indexed by L
		var running float64
		for l := 1; l <= lmax && l <= len(values); l++ {
			running += values[l-1]
			best[l] = running / float64(l)
		}
		// L beyond len(values) saturates at the full-pool average.
		for l := len(values) + 1; l <= lmax; l++ {
			if len(values) == 0 {
				best[l] = 0
				continue
			}
			best[l] = best[len(values)]
		}
		out[a] = best
	}
	return out
}

// AverageMI returns the average mutual information between event u and
// every event in linking.
func AverageMI(u fuse.Event, linking []fuse.Event, mi MIMatrix) float64 {
	if len(linking) == 0 {
		return 0
	}
	var sum float64
	for _, l := range linking {
		sum += mi[analyzer.NewEventPair(u, l)]
	}
	return sum / float64(len(linking))
}

// lowestMIPair returns the event pair with the lowest MI among pairs
// whose events are both in events (spec §4.7's root-selection rule: "find
// the event pair with lowest MI ... drawn from pairs both of whose events
// are in T").
func lowestMIPair(events []fuse.Event, mi MIMatrix) (fuse.Event, fuse.Event, bool) {
	var bestA, bestB fuse.Event
	best := math.Inf(1)
	found := false
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			v := mi[analyzer.NewEventPair(events[i], events[j])]
			if v < best {
				best = v
				bestA, bestB = events[i], events[j]
				found = true
			}
		}
	}
	return bestA, bestB, found
}
