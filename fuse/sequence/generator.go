package sequence

import (
	"fmt"
	"sync"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
	"github.com/pepperpots/fusehpm/fuse/target"
)

// Evaluator computes real measurements for a candidate child: it sources
// profiles for Lset∪Uset (the orchestrator's implementation reuses profiles
// only for an identical, previously profiled event set; a superset is not
// reused, and any other set drives the external Profiler), fuses them against the
// parent's per-repeat profile via BC, and computes calibrated TMDs for
// every newly observed pair (spec §4.7's "Profile sourcing", "Combination"
// and "Evaluation"). It is implemented by the orchestrator, which alone
// holds the external Profiler/TraceParser/reference-cache dependencies;
// this package only drives the search shape.
type Evaluator interface {
	Evaluate(parent *Node, candidate Candidate) (*Node, error)
}

// Generator runs the branch-and-bound combination-sequence search (spec
// §4.7).
type Generator struct {
	TargetEvents []fuse.Event
	MI           MIMatrix
	K            int // physical hardware counters
	Lmax         int
	Compatible   func(events []fuse.Event) (bool, error)

	// Concurrency bounds the fan-out work pool evaluating a node's
	// children in parallel (spec §5's "bounded work pool").
	Concurrency int

	// MaxNodes stops the search after this many nodes have been expanded,
	// the "implementation-chosen budget" spec §4.7 allows in place of
	// exhausting the priority list.
	MaxNodes int

	bestAMI map[fuse.Event][]float64
}

// Root implements spec §4.7's root-selection rule: seed with the
// lowest-MI pair drawn from target events, then greedily extend by adding
// the lowest-AMI-cost event, rejecting hardware-incompatible additions,
// until no more can be added.
func (g *Generator) Root() (*Node, error) {
	a, b, ok := lowestMIPair(g.TargetEvents, g.MI)
	if !ok {
		return nil, fmt.Errorf("sequence: need at least 2 target events to seed a root, got %d", len(g.TargetEvents))
	}
	combined := []fuse.Event{a, b}

	for {
		remaining := subtract(g.TargetEvents, combined)
		if len(remaining) == 0 {
			break
		}
		ranked := rankByAMI(remaining, combined, g.MI)
		var next fuse.Event
		found := false
		// ranked is in descending AMI order; scan from the end so the
		// lowest-AMI compatible event is added.
		for i := len(ranked) - 1; i >= 0; i-- {
			candidate := ranked[i]
			trial := append(append([]fuse.Event(nil), combined...), candidate)
			ok, err := g.Compatible(trial)
			if err != nil {
				return nil, fmt.Errorf("sequence: root compatibility check: %w", err)
			}
			if ok {
				next = candidate
				found = true
				break
			}
		}
		if !found {
			break
		}
		combined = append(combined, next)
	}

	return &Node{
		CombinedEvents: combined,
		Sequence: target.Sequence{
			{PartIndex: 0, Unique: append([]fuse.Event(nil), combined...)},
		},
		TMDs: make(map[analyzer.EventPair]float64),
	}, nil
}

// Run executes the branch-and-bound search from root, popping leaves by
// metric, expanding and evaluating their children through evaluator, and
// returns the best complete node reached (minimum tmd_mse among nodes
// whose combined events equal TargetEvents), or an error if none completed.
func (g *Generator) Run(root *Node, evaluator Evaluator, metric Metric) (*Node, error) {
	if g.bestAMI == nil {
		g.bestAMI = BestAchievableAMI(g.TargetEvents, g.MI, g.Lmax)
	}
	concurrency := g.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	lists := newPriorityLists()
	lists.InsertAll(root)

	// seen maps a canonical combined-event key to the best node reached
	// for it so far, implementing spec §4.7's pruning rules.
	seen := map[string]*Node{root.sortedKey(): root}
	var seenMu sync.Mutex

	var best *Node
	expanded := 0
	for expanded < g.MaxNodes || g.MaxNodes <= 0 {
		leaf := lists.listFor(metric).PopBest()
		if leaf == nil {
			break
		}
		expanded++

		if leaf.IsComplete(g.TargetEvents) {
			if best == nil || leaf.TMDMSE < best.TMDMSE {
				best = leaf
			}
			continue
		}

		compatible := func(events []fuse.Event) bool {
			ok, err := g.Compatible(events)
			return err == nil && ok
		}
		candidates := ExpandChildren(leaf.CombinedEvents, g.TargetEvents, g.K, g.Lmax, g.MI, g.bestAMI, compatible)
		if len(candidates) == 0 {
			continue
		}

		children := evaluateConcurrently(leaf, candidates, evaluator, concurrency)
		for _, child := range children {
			if child == nil {
				continue
			}
			key := child.sortedKey()

			seenMu.Lock()
			existing, ok := seen[key]
			accept := !ok || child.TMDMSE < existing.TMDMSE
			if accept {
				seen[key] = child
			}
			seenMu.Unlock()
			if !accept {
				continue
			}
			if ok {
				match := func(n *Node) bool { return n.sortedKey() == key }
				lists.RemoveAll(match)
			}
			lists.InsertAll(child)

			if child.IsComplete(g.TargetEvents) {
				if best == nil || child.TMDMSE < best.TMDMSE {
					best = child
				}
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: sequence search found no complete combination of target events", fuse.ErrDataNotFound)
	}
	return best, nil
}

func evaluateConcurrently(parent *Node, candidates []Candidate, evaluator Evaluator, concurrency int) []*Node {
	out := make([]*Node, len(candidates))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c Candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			child, err := evaluator.Evaluate(parent, c)
			if err != nil {
				return
			}
			out[i] = child
		}(i, c)
	}
	wg.Wait()
	return out
}
