package sequence

import (
	"sort"
	"strings"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/target"
)

// Node is one branch-and-bound search node (spec §4.7): the combined
// event set reached so far, the Combination sequence that produced it,
// per-reference-pair TMD measurements, and the four priority metrics.
type Node struct {
	CombinedEvents []fuse.Event // in the order events were added; see sortedKey
	Sequence       target.Sequence

	TMDs map[analyzer.EventPair]float64

	NewWithinProfile []analyzer.EventPair
	NewCrossProfile  []analyzer.EventPair

	EPD                float64
	CrossProfileEPD    float64
	TMDMSE             float64
	CrossProfileTMDMSE float64
}

// sortedKey returns a canonical string of CombinedEvents (sorted by name),
// used by the search to dedupe and prune nodes reaching the same event
// set. The orchestrator's combination cache is keyed separately, by the
// node's full sequence.
func (n *Node) sortedKey() string {
	sorted := append([]fuse.Event(nil), n.CombinedEvents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = string(e)
	}
	return strings.Join(names, ",")
}

// IsComplete reports whether n's combined event set equals target (spec
// §4.7: "A node whose combined-event set equals T is a complete solution").
func (n *Node) IsComplete(target []fuse.Event) bool {
	if len(n.CombinedEvents) != len(target) {
		return false
	}
	have := fuse.NewEventSet(eventStrings(n.CombinedEvents)...)
	want := fuse.NewEventSet(eventStrings(target)...)
	return have.Subset(want) && want.Subset(have)
}

// NewEvaluatedNode builds a Node from a child expansion's measurements and
// derives its four priority metrics. It is the construction entry point
// an orchestrator's Evaluator implementation uses to turn real profiling/
// combination/TMD results into a search node (spec §4.7's "Evaluation").
func NewEvaluatedNode(
	combinedEvents []fuse.Event,
	seq target.Sequence,
	tmds map[analyzer.EventPair]float64,
	newWithinProfile, newCrossProfile []analyzer.EventPair,
	meanInstanceCount map[analyzer.EventPair]float64,
) (*Node, error) {
	n := &Node{
		CombinedEvents:   combinedEvents,
		Sequence:         seq,
		TMDs:             tmds,
		NewWithinProfile: newWithinProfile,
		NewCrossProfile:  newCrossProfile,
	}
	if err := n.evaluateMetrics(meanInstanceCount); err != nil {
		return nil, err
	}
	return n, nil
}

func eventStrings(events []fuse.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

// evaluateMetrics derives epd, cross_profile_epd, tmd_mse, and
// cross_profile_tmd_mse from n.TMDs and the newly-observed pair lists
// (spec §4.7's "Evaluation").
func (n *Node) evaluateMetrics(meanInstanceCount map[analyzer.EventPair]float64) error {
	all := make([]analyzer.EventPair, 0, len(n.TMDs))
	for p := range n.TMDs {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].String() < all[j].String() })

	epd, err := weightedMean(all, n.TMDs, meanInstanceCount)
	if err != nil {
		return err
	}
	n.EPD = epd
	n.TMDMSE = meanSquare(all, n.TMDs)

	crossEPD, err := weightedMean(n.NewCrossProfile, n.TMDs, meanInstanceCount)
	if err == nil {
		n.CrossProfileEPD = crossEPD
	}
	n.CrossProfileTMDMSE = meanSquare(n.NewCrossProfile, n.TMDs)
	return nil
}

// tmdFloor keeps a perfectly-calibrated (zero) pair from making the
// geometric mean undefined; it is far below any value calibration ever
// actually produces.
const tmdFloor = 1e-9

func weightedMean(pairs []analyzer.EventPair, tmds, weights map[analyzer.EventPair]float64) (float64, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	values := make([]float64, len(pairs))
	ws := make([]float64, len(pairs))
	for i, p := range pairs {
		v := tmds[p]
		if v < tmdFloor {
			v = tmdFloor
		}
		values[i] = v
		if w, ok := weights[p]; ok && w > 0 {
			ws[i] = w
		} else {
			ws[i] = 1
		}
	}
	return analyzer.WeightedGeometricMean(values, ws)
}

func meanSquare(pairs []analyzer.EventPair, tmds map[analyzer.EventPair]float64) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pairs {
		v := tmds[p]
		sum += v * v
	}
	return sum / float64(len(pairs))
}
