package sequence

import (
	"sort"
	"strings"

	"github.com/pepperpots/fusehpm/fuse"
)

// amiThreshold is the spec's "≥ 0.3" gap between an event's AMI to a
// candidate linking set and the best achievable AMI it could get
// elsewhere; exceeding it means the candidate combines that event
// significantly worse than achievable (spec §4.7 Child expansion).
const amiThreshold = 0.3

// Candidate is a proposed (linking-set, unique-set) child expansion of a
// node (spec §4.7's "(Lset, Uset) pair").
type Candidate struct {
	Lset []fuse.Event
	Uset []fuse.Event
}

func canonicalKey(lset, uset []fuse.Event) string {
	return joinSorted(lset) + "|" + joinSorted(uset)
}

func joinSorted(events []fuse.Event) string {
	sorted := append([]fuse.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = string(e)
	}
	return strings.Join(out, ",")
}

// subsets returns every L-sized subset of events, order-insensitive
// (caller-deduplicated via Lset's own sort).
func subsets(events []fuse.Event, l int) [][]fuse.Event {
	if l <= 0 || l > len(events) {
		return nil
	}
	var out [][]fuse.Event
	var pick func(start int, cur []fuse.Event)
	pick = func(start int, cur []fuse.Event) {
		if len(cur) == l {
			out = append(out, append([]fuse.Event(nil), cur...))
			return
		}
		for i := start; i < len(events); i++ {
			pick(i+1, append(cur, events[i]))
		}
	}
	pick(0, nil)
	return out
}

// ExpandChildren implements spec §4.7's "Child expansion": for a node
// whose combined events are C, for each L in [1,min(Lmax,K-1)] enumerate
// L-subsets of C as linking candidates, rank the remaining target events
// by AMI to each linking set, take the top K-L as unique candidates,
// reject hardware-incompatible combinations, and shrink the unique count
// when an event would be combined significantly worse than its
// best-achievable AMI elsewhere. Results are deduplicated by
// (sorted(Lset), sorted(Uset)).
func ExpandChildren(
	combined []fuse.Event,
	targetEvents []fuse.Event,
	k, lmax int,
	mi MIMatrix,
	bestAMI map[fuse.Event][]float64,
	compatible func([]fuse.Event) bool,
) []Candidate {
	remaining := subtract(targetEvents, combined)
	if len(remaining) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []Candidate

	maxL := lmax
	if k-1 < maxL {
		maxL = k - 1
	}
	if maxL > len(combined) {
		maxL = len(combined)
	}

	for l := 1; l <= maxL; l++ {
		for _, lset := range subsets(combined, l) {
			uniqueCount := k - l
			if uniqueCount > len(remaining) {
				uniqueCount = len(remaining)
			}
			if uniqueCount <= 0 {
				continue
			}

			ranked := rankByAMI(remaining, lset, mi)

			for uniqueCount > 0 {
				uset := ranked[:uniqueCount]
				if !compatible(append(append([]fuse.Event(nil), lset...), uset...)) {
					uniqueCount--
					continue
				}

				worstOffender := -1
				worstGap := amiThreshold
				for i, u := range uset {
					actual := AverageMI(u, lset, mi)
					best := 0.0
					if bests, ok := bestAMI[u]; ok && l < len(bests) {
						best = bests[l]
					}
					gap := best - actual
					if gap >= worstGap {
						worstGap = gap
						worstOffender = i
					}
				}
				if worstOffender >= 0 {
					// Drop the single worst-fitting candidate and retry
					// with one fewer unique event (spec: "shrink the
					// unique count and retry").
					ranked = append(append([]fuse.Event(nil), ranked[:worstOffender]...), ranked[worstOffender+1:]...)
					uniqueCount--
					continue
				}

				key := canonicalKey(lset, uset)
				if !seen[key] {
					seen[key] = true
					out = append(out, Candidate{
						Lset: append([]fuse.Event(nil), lset...),
						Uset: append([]fuse.Event(nil), uset...),
					})
				}
				break
			}
		}
	}
	return out
}

func rankByAMI(events, lset []fuse.Event, mi MIMatrix) []fuse.Event {
	sorted := append([]fuse.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool {
		return AverageMI(sorted[i], lset, mi) > AverageMI(sorted[j], lset, mi)
	})
	return sorted
}

func subtract(all, remove []fuse.Event) []fuse.Event {
	removeSet := fuse.NewEventSet(eventStrings(remove)...)
	var out []fuse.Event
	for _, e := range all {
		if !removeSet.Has(e) {
			out = append(out, e)
		}
	}
	return out
}
