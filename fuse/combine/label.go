package combine

import (
	"sort"

	"github.com/pepperpots/fusehpm/fuse"
)

// matchLabel implements spec §4.3.3 (LGL): sort each input list by the
// depth-first label comparator, zip positionally to the common minimum
// length. If the labels at a zipped index differ across inputs, a
// warning is logged and the zip is kept.
func matchLabel(lists [][]*fuse.Instance, log logger) []Match {
	n := minLen(lists)
	sorted := make([][]*fuse.Instance, len(lists))
	for i, l := range lists {
		cp := append([]*fuse.Instance(nil), l...)
		sort.SliceStable(cp, func(a, b int) bool { return cp[a].Label.Less(cp[b].Label) })
		sorted[i] = cp
	}
	matches := zip(sorted, n)
	for i, m := range matches {
		for _, in := range m[1:] {
			if in.Label.Compare(m[0].Label) != 0 {
				log.Warnf("combine: label mismatch at index %d across inputs", i)
				break
			}
		}
	}
	return matches
}
