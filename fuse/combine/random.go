package combine

import (
	"math/rand"

	"github.com/pepperpots/fusehpm/fuse"
)

// matchRandom implements spec §4.3.1: shuffle each input list with a
// fresh seeded RNG, truncate to the common minimum length, zip
// positionally. Warns (but continues) if input lengths differ.
//
// The RNG seed is derived deterministically from the input so that a
// caller rerunning with the same profiles gets the same matches; callers
// that want a fresh random seed each run should vary the inputs (e.g. via
// a seed carried in the profile's tracefile name) rather than relying on
// wall-clock entropy here, since the engine itself never reads the clock.
func matchRandom(lists [][]*fuse.Instance, log logger, seed *int64, noShuffle bool) []Match {
	n := minLen(lists)
	lengths := make([]int, len(lists))
	for i, l := range lists {
		lengths[i] = len(l)
	}
	if !allEqual(lengths) {
		log.Warnf("combine: random matching input lengths differ: %v; truncating to %d", lengths, n)
	}

	shuffled := make([][]*fuse.Instance, len(lists))
	for i, l := range lists {
		cp := append([]*fuse.Instance(nil), l...)
		if !noShuffle {
			s := seedFor(l)
			if seed != nil {
				s = *seed + int64(i)
			}
			rng := rand.New(rand.NewSource(s))
			rng.Shuffle(len(cp), func(a, b int) { cp[a], cp[b] = cp[b], cp[a] })
		}
		shuffled[i] = cp[:min(n, len(cp))]
	}
	return zip(shuffled, n)
}

// seedFor derives a stable seed from a list's instance count and first
// instance's label so that repeated runs over the same profile shuffle
// identically, matching the reproducibility spec §5 requires of tie-
// breaks within one run.
func seedFor(l []*fuse.Instance) int64 {
	if len(l) == 0 {
		return 0
	}
	seed := int64(len(l))
	for _, v := range l[0].Label {
		seed = seed*31 + v
	}
	return seed
}

func allEqual(xs []int) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
