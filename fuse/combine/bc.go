package combine

import (
	"fmt"
	"math"
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
)

// matchBC implements bounded clustering (spec §4.3.4). BC combines
// exactly two profiles per call and requires both a Statistics
// accumulator and a non-empty overlapping-events list.
func matchBC(lists [][]*fuse.Instance, opts Options, log logger) ([]Match, error) {
	if len(lists) != 2 {
		return nil, fmt.Errorf("%w: BC combines exactly 2 profiles, got %d", fuse.ErrPreconditionViolated, len(lists))
	}
	if opts.Statistics == nil {
		return nil, fmt.Errorf("%w: BC requires a statistics accumulator", fuse.ErrPreconditionViolated)
	}
	var overlapping []fuse.Event
	if len(opts.OverlappingPerProfile) > 0 {
		overlapping = opts.OverlappingPerProfile[0]
	}
	if len(overlapping) == 0 {
		return nil, fmt.Errorf("%w: BC requires a non-empty overlapping-events list", fuse.ErrPreconditionViolated)
	}

	a, b := lists[0], lists[1]
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	symbol := a[0].Symbol

	bounds := make(map[fuse.Event][2]float64, len(overlapping))
	for _, e := range overlapping {
		min, max, err := opts.Statistics.Bounds(e, symbol)
		if err != nil {
			return nil, fmt.Errorf("BC bounds lookup: %w", err)
		}
		bounds[e] = [2]float64{min, max}
	}

	g0 := initialGranularity(a, b, overlapping, bounds)
	remA := append([]*fuse.Instance(nil), a...)
	remB := append([]*fuse.Instance(nil), b...)

	var matches []Match
	g := g0
	maxIterations := g0 + 1
	for iter := 0; iter < maxIterations && len(remA) > 0 && len(remB) > 0; iter++ {
		cellsA := cluster(remA, overlapping, bounds, g)
		cellsB := cluster(remB, overlapping, bounds, g)

		matchedA := make(map[int]bool)
		matchedB := make(map[int]bool)
		for key, idxA := range cellsA {
			idxB, ok := cellsB[key]
			if !ok {
				continue
			}
			instA := selectByIdx(remA, idxA)
			instB := selectByIdx(remB, idxB)
			cellMatches := matchLabel([][]*fuse.Instance{instA, instB}, log)
			matches = append(matches, cellMatches...)

			// matchLabel zips only the common-min prefix of the two
			// label-sorted cell populations; the excess stays in
			// remA/remB for the next relaxation iteration (spec §4.3.4:
			// "remove matched instances from both").
			n := len(cellMatches)
			for _, i := range sortIdxByLabel(remA, idxA)[:n] {
				matchedA[i] = true
			}
			for _, i := range sortIdxByLabel(remB, idxB)[:n] {
				matchedB[i] = true
			}
		}

		remA = removeMatched(remA, matchedA)
		remB = removeMatched(remB, matchedB)
		if len(remA) == 0 || len(remB) == 0 {
			break
		}

		newG := relax(g, remA, remB, overlapping, bounds)
		if newG == g {
			newG = g - 1
		}
		if newG < 1 {
			newG = 1
		}
		g = newG
	}

	if len(remA) > 0 || len(remB) > 0 {
		log.Warnf("combine: BC discarding %d+%d unmatched residual instances", len(remA), len(remB))
	}
	return matches, nil
}

// sortIdxByLabel orders a cell's index list with the same stable label
// comparator matchLabel sorts by, so the first n entries are exactly the
// instances an n-pair label zip consumed.
func sortIdxByLabel(instances []*fuse.Instance, idx []int) []int {
	out := append([]int(nil), idx...)
	sort.SliceStable(out, func(a, b int) bool {
		return instances[out[a]].Label.Less(instances[out[b]].Label)
	})
	return out
}

func selectByIdx(instances []*fuse.Instance, idx []int) []*fuse.Instance {
	out := make([]*fuse.Instance, len(idx))
	for i, j := range idx {
		out[i] = instances[j]
	}
	return out
}

func removeMatched(instances []*fuse.Instance, matched map[int]bool) []*fuse.Instance {
	out := instances[:0:0]
	for i, in := range instances {
		if !matched[i] {
			out = append(out, in)
		}
	}
	return out
}

// initialGranularity implements spec §4.3.5.
func initialGranularity(a, b []*fuse.Instance, events []fuse.Event, bounds map[fuse.Event][2]float64) int {
	g0 := math.MaxInt32
	for _, e := range events {
		va := sortedValues(a, e)
		vb := sortedValues(b, e)
		cells := cellsForDim(va, vb, bounds[e])
		if cells < g0 {
			g0 = cells
		}
	}
	if g0 < 1 {
		g0 = 1
	}
	return g0
}

func sortedValues(instances []*fuse.Instance, e fuse.Event) []float64 {
	out := make([]float64, 0, len(instances))
	for _, in := range instances {
		if v, ok := in.Value(e); ok {
			out = append(out, float64(v))
		}
	}
	sort.Float64s(out)
	return out
}

func cellsForDim(va, vb []float64, bound [2]float64) int {
	if len(va) <= 1 || len(vb) <= 1 {
		return 1
	}
	dMin := minPairwiseDiff(va, vb)
	if dMin == 0 {
		return 1
	}
	min, max := bound[0], bound[1]
	cells := int(math.Floor((max - min) / dMin))
	if cells < 1 {
		cells = 1
	}
	return cells
}

// minPairwiseDiff two-pointer-scans two sorted lists for the minimum
// absolute pairwise difference.
func minPairwiseDiff(va, vb []float64) float64 {
	i, j := 0, 0
	best := math.MaxFloat64
	for i < len(va) && j < len(vb) {
		d := math.Abs(va[i] - vb[j])
		if d < best {
			best = d
		}
		if va[i] < vb[j] {
			i++
		} else if va[i] > vb[j] {
			j++
		} else {
			return 0
		}
	}
	return best
}

// cellKey is a comparable grid-cell coordinate (spec §4.3.6).
type cellKey string

func cellVector(in *fuse.Instance, events []fuse.Event, bounds map[fuse.Event][2]float64, g int) []int {
	vec := make([]int, len(events))
	for i, e := range events {
		v, _ := in.Value(e)
		min, max := bounds[e][0], bounds[e][1]
		var c int
		if min == max {
			c = 0
		} else {
			c = int(math.Floor(((float64(v) - min) / (max - min)) * float64(g)))
		}
		if c >= g {
			c = g - 1
		}
		if c < 0 {
			c = 0
		}
		vec[i] = c
	}
	return vec
}

func keyOf(vec []int) cellKey {
	return cellKey(fmt.Sprint(vec))
}

func cluster(instances []*fuse.Instance, events []fuse.Event, bounds map[fuse.Event][2]float64, g int) map[cellKey][]int {
	out := make(map[cellKey][]int)
	for i, in := range instances {
		vec := cellVector(in, events, bounds, g)
		k := keyOf(vec)
		out[k] = append(out[k], i)
	}
	return out
}

// relax implements spec §4.3.7: find the pair of non-empty clusters
// (one from each profile) closest in grid space, compute the largest
// single-dimension bin distance between them (d*, the Chebyshev distance
// between their cell vectors — every instance within a cluster shares its
// cell vector exactly, so this is also the distance between the closest
// still-unmerged instance pair), and return ceil(g/(1+d*)).
func relax(g int, remA, remB []*fuse.Instance, events []fuse.Event, bounds map[fuse.Event][2]float64) int {
	cellsA := cluster(remA, events, bounds, g)
	cellsB := cluster(remB, events, bounds, g)

	vecA := make(map[cellKey][]int, len(cellsA))
	for k, idx := range cellsA {
		vecA[k] = cellVectorFromAny(remA, events, bounds, g, idx[0])
	}
	vecB := make(map[cellKey][]int, len(cellsB))
	for k, idx := range cellsB {
		vecB[k] = cellVectorFromAny(remB, events, bounds, g, idx[0])
	}

	best := math.MaxInt32
	for _, va := range vecA {
		for _, vb := range vecB {
			d := chebyshev(va, vb)
			if d < best {
				best = d
			}
		}
	}
	if best == math.MaxInt32 {
		return g
	}
	newG := int(math.Ceil(float64(g) / (1 + float64(best))))
	return newG
}

func cellVectorFromAny(instances []*fuse.Instance, events []fuse.Event, bounds map[fuse.Event][2]float64, g, idx int) []int {
	return cellVector(instances[idx], events, bounds, g)
}

func chebyshev(a, b []int) int {
	best := 0
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > best {
			best = d
		}
	}
	return best
}
