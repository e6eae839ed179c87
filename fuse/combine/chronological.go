package combine

import (
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
)

// matchChronological implements spec §4.3.2 (CTC / Random_TT): sort each
// input list by start ascending, then zip positionally to the common
// minimum length. Ties on equal start are broken by InstanceID, which is
// assigned in parse order, so the sort is stable within one run and
// reproducible (spec §5's ordering guarantee).
func matchChronological(lists [][]*fuse.Instance, log logger) []Match {
	n := minLen(lists)
	lengths := make([]int, len(lists))
	sorted := make([][]*fuse.Instance, len(lists))
	for i, l := range lists {
		lengths[i] = len(l)
		cp := append([]*fuse.Instance(nil), l...)
		sort.SliceStable(cp, func(a, b int) bool {
			if cp[a].Start != cp[b].Start {
				return cp[a].Start < cp[b].Start
			}
			return cp[a].ID < cp[b].ID
		})
		sorted[i] = cp
	}
	if !allEqual(lengths) {
		log.Warnf("combine: chronological matching input lengths differ: %v; truncating to %d", lengths, n)
	}
	return zip(sorted, n)
}
