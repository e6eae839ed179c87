package sequence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse"
	"github.com/pepperpots/fusehpm/fuse/analyzer"
)

func ev(name string) fuse.Event { return fuse.NewEvent(name) }

func TestComputeMI_IndependentColumnsIsNearZero(t *testing.T) {
	var rows [][]int64
	for i := int64(0); i < 4; i++ {
		for j := int64(0); j < 4; j++ {
			rows = append(rows, []int64{i, j})
		}
	}
	mi := ComputeMI(rows, 4)
	assert.InDelta(t, 0, mi, 1e-9)
}

func TestComputeMI_PerfectlyCorrelatedColumnsIsPositive(t *testing.T) {
	var rows [][]int64
	for i := int64(0); i < 8; i++ {
		rows = append(rows, []int64{i, i})
	}
	mi := ComputeMI(rows, 4)
	assert.Greater(t, mi, 0.0)
}

func TestComputeMI_ConstantColumnIsZero(t *testing.T) {
	rows := [][]int64{{1, 1}, {1, 2}, {1, 3}, {1, 4}}
	mi := ComputeMI(rows, 4)
	assert.Equal(t, 0.0, mi)
}

func TestBestAchievableAMI_PrefixAverageOfSortedValues(t *testing.T) {
	a, b, c, d := ev("a"), ev("b"), ev("c"), ev("d")
	mi := MIMatrix{
		analyzer.NewEventPair(a, b): 3,
		analyzer.NewEventPair(a, c): 1,
		analyzer.NewEventPair(a, d): 2,
	}
	best := BestAchievableAMI([]fuse.Event{a, b, c, d}, mi, 3)
	// Sorted descending for a: [3,2,1]. Prefix averages: L=1 -> 3, L=2 -> 2.5, L=3 -> 2.
	require.Len(t, best[a], 4)
	assert.InDelta(t, 3.0, best[a][1], 1e-9)
	assert.InDelta(t, 2.5, best[a][2], 1e-9)
	assert.InDelta(t, 2.0, best[a][3], 1e-9)
}

func TestBestAchievableAMI_SaturatesBeyondPoolSize(t *testing.T) {
	a, b := ev("a"), ev("b")
	mi := MIMatrix{analyzer.NewEventPair(a, b): 5}
	best := BestAchievableAMI([]fuse.Event{a, b}, mi, 3)
	assert.InDelta(t, 5.0, best[a][1], 1e-9)
	assert.InDelta(t, best[a][1], best[a][2], 1e-9)
	assert.InDelta(t, best[a][1], best[a][3], 1e-9)
}

func TestAverageMI_EmptyLinkingIsZero(t *testing.T) {
	assert.Equal(t, 0.0, AverageMI(ev("a"), nil, MIMatrix{}))
}

func TestAverageMI_AveragesAcrossLinkingSet(t *testing.T) {
	a, b, c := ev("a"), ev("b"), ev("c")
	mi := MIMatrix{
		analyzer.NewEventPair(a, b): 2,
		analyzer.NewEventPair(a, c): 4,
	}
	assert.InDelta(t, 3.0, AverageMI(a, []fuse.Event{b, c}, mi), 1e-9)
}

func fullyConnectedMI(events []fuse.Event, value float64) MIMatrix {
	mi := make(MIMatrix)
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			mi[analyzer.NewEventPair(events[i], events[j])] = value
		}
	}
	return mi
}

func TestExpandChildren_ProducesDedupedCandidates(t *testing.T) {
	a, b, c, d := ev("a"), ev("b"), ev("c"), ev("d")
	target := []fuse.Event{a, b, c, d}
	mi := fullyConnectedMI(target, 1.0)
	best := BestAchievableAMI(target, mi, 2)

	always := func([]fuse.Event) bool { return true }
	children := ExpandChildren([]fuse.Event{a, b}, target, 3, 2, mi, best, always)
	require.NotEmpty(t, children)

	seen := map[string]bool{}
	for _, c := range children {
		key := canonicalKey(c.Lset, c.Uset)
		assert.False(t, seen[key], "duplicate candidate %v", c)
		seen[key] = true
		assert.LessOrEqual(t, len(c.Lset)+len(c.Uset), 3)
	}
}

func TestExpandChildren_ShrinksUniqueCountWhenHardwareIncompatible(t *testing.T) {
	a, b, c, d := ev("a"), ev("b"), ev("c"), ev("d")
	target := []fuse.Event{a, b, c, d}
	mi := fullyConnectedMI(target, 1.0)
	best := BestAchievableAMI(target, mi, 3)

	// Reject any candidate combining more than 2 events at once, forcing
	// the shrink-and-retry path to reduce the unique count.
	limited := func(events []fuse.Event) bool { return len(events) <= 2 }
	children := ExpandChildren([]fuse.Event{a}, target, 3, 1, mi, best, limited)
	for _, c := range children {
		assert.LessOrEqual(t, len(c.Lset)+len(c.Uset), 2)
	}
}

func TestExpandChildren_NoRemainingEventsReturnsNil(t *testing.T) {
	a, b := ev("a"), ev("b")
	mi := fullyConnectedMI([]fuse.Event{a, b}, 1.0)
	best := BestAchievableAMI([]fuse.Event{a, b}, mi, 1)
	always := func([]fuse.Event) bool { return true }
	children := ExpandChildren([]fuse.Event{a, b}, []fuse.Event{a, b}, 2, 1, mi, best, always)
	assert.Nil(t, children)
}

func TestPriorityList_InsertKeepsAscendingOrder(t *testing.T) {
	l := newPriorityList(MetricTMDMSE)
	n1 := &Node{TMDMSE: 3}
	n2 := &Node{TMDMSE: 1}
	n3 := &Node{TMDMSE: 2}
	l.Insert(n1)
	l.Insert(n2)
	l.Insert(n3)

	first := l.PopBest()
	second := l.PopBest()
	third := l.PopBest()
	assert.Equal(t, n2, first)
	assert.Equal(t, n3, second)
	assert.Equal(t, n1, third)
	assert.Nil(t, l.PopBest())
}

func TestPriorityList_TiesResolvedInsertionOrder(t *testing.T) {
	l := newPriorityList(MetricEPD)
	n1 := &Node{EPD: 1}
	n2 := &Node{EPD: 1}
	l.Insert(n1)
	l.Insert(n2)
	assert.Equal(t, n1, l.PopBest())
	assert.Equal(t, n2, l.PopBest())
}

func TestPriorityList_RemoveDropsMatching(t *testing.T) {
	l := newPriorityList(MetricEPD)
	n1 := &Node{EPD: 1}
	n2 := &Node{EPD: 2}
	l.Insert(n1)
	l.Insert(n2)
	l.Remove(func(n *Node) bool { return n == n1 })
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, n2, l.PopBest())
}

func TestPriorityLists_InsertAllPopulatesAllFourMetrics(t *testing.T) {
	lists := newPriorityLists()
	n := &Node{EPD: 1, CrossProfileEPD: 2, TMDMSE: 3, CrossProfileTMDMSE: 4}
	lists.InsertAll(n)
	assert.Equal(t, 1, lists.byEPD.Len())
	assert.Equal(t, 1, lists.byCrossProfileEPD.Len())
	assert.Equal(t, 1, lists.byTMDMSE.Len())
	assert.Equal(t, 1, lists.byCrossProfileTMDMSE.Len())
}

func TestNode_IsComplete(t *testing.T) {
	a, b := ev("a"), ev("b")
	n := &Node{CombinedEvents: []fuse.Event{a, b}}
	assert.True(t, n.IsComplete([]fuse.Event{b, a}))
	assert.False(t, n.IsComplete([]fuse.Event{a}))
}

func TestNode_SortedKeyIsOrderIndependent(t *testing.T) {
	a, b := ev("a"), ev("b")
	n1 := &Node{CombinedEvents: []fuse.Event{a, b}}
	n2 := &Node{CombinedEvents: []fuse.Event{b, a}}
	assert.Equal(t, n1.sortedKey(), n2.sortedKey())
}

func TestLowestMIPair_PicksMinimum(t *testing.T) {
	a, b, c := ev("a"), ev("b"), ev("c")
	mi := MIMatrix{
		analyzer.NewEventPair(a, b): 5,
		analyzer.NewEventPair(a, c): 1,
		analyzer.NewEventPair(b, c): 9,
	}
	x, y, ok := lowestMIPair([]fuse.Event{a, b, c}, mi)
	require.True(t, ok)
	got := map[fuse.Event]bool{x: true, y: true}
	assert.True(t, got[a] && got[c])
}

// fakeEvaluator deterministically scores a child by how many of the
// target events it newly covers, so the search can be driven to
// completion without any real profiling.
type fakeEvaluator struct {
	targetEvents []fuse.Event
}

func (f *fakeEvaluator) Evaluate(parent *Node, c Candidate) (*Node, error) {
	combined := append([]fuse.Event(nil), c.Lset...)
	combined = append(combined, c.Uset...)
	for _, e := range parent.CombinedEvents {
		found := false
		for _, x := range combined {
			if x == e {
				found = true
				break
			}
		}
		if !found {
			combined = append(combined, e)
		}
	}

	tmds := make(map[analyzer.EventPair]float64)
	var newPairs []analyzer.EventPair
	for i := 0; i < len(combined); i++ {
		for j := i + 1; j < len(combined); j++ {
			p := analyzer.NewEventPair(combined[i], combined[j])
			tmds[p] = 0.1
			newPairs = append(newPairs, p)
		}
	}

	n := &Node{
		CombinedEvents:  combined,
		TMDs:            tmds,
		NewCrossProfile: newPairs,
	}
	if err := n.evaluateMetrics(nil); err != nil {
		return nil, err
	}
	return n, nil
}

func TestGenerator_RunReachesCompleteSolution(t *testing.T) {
	events := []fuse.Event{ev("a"), ev("b"), ev("c"), ev("d")}
	mi := fullyConnectedMI(events, 1.0)

	g := &Generator{
		TargetEvents: events,
		MI:           mi,
		K:            4,
		Lmax:         2,
		Compatible:   func([]fuse.Event) (bool, error) { return true, nil },
		Concurrency:  2,
		MaxNodes:     50,
	}
	root, err := g.Root()
	require.NoError(t, err)
	require.NotEmpty(t, root.CombinedEvents)

	best, err := g.Run(root, &fakeEvaluator{targetEvents: events}, MetricCrossProfileTMDMSE)
	require.NoError(t, err)
	assert.True(t, best.IsComplete(events))
}

func TestGenerator_RootRejectsIncompatibleAdditions(t *testing.T) {
	events := []fuse.Event{ev("a"), ev("b"), ev("c")}
	mi := fullyConnectedMI(events, 1.0)
	g := &Generator{
		TargetEvents: events,
		MI:           mi,
		K:            3,
		Lmax:         2,
		Compatible:   func(e []fuse.Event) (bool, error) { return len(e) <= 2, nil },
	}
	root, err := g.Root()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(root.CombinedEvents), 2)
}

func TestGenerator_RunErrorsWhenNoCompleteSolutionReachable(t *testing.T) {
	events := []fuse.Event{ev("a"), ev("b"), ev("c")}
	mi := fullyConnectedMI(events, 1.0)
	g := &Generator{
		TargetEvents: events,
		MI:           mi,
		K:            2,
		Lmax:         1,
		// No candidate larger than a single event is ever compatible, so
		// no child expansion can ever be accepted.
		Compatible:  func(e []fuse.Event) (bool, error) { return len(e) <= 1, nil },
		Concurrency: 1,
		MaxNodes:    20,
	}
	root, err := g.Root()
	require.NoError(t, err)
	_, err = g.Run(root, &fakeEvaluator{targetEvents: events}, MetricTMDMSE)
	assert.Error(t, err)
}

func TestGenerator_CompatibilityErrorPropagatesFromRoot(t *testing.T) {
	events := []fuse.Event{ev("a"), ev("b"), ev("c")}
	mi := fullyConnectedMI(events, 1.0)
	boom := fmt.Errorf("boom")
	g := &Generator{
		TargetEvents: events,
		MI:           mi,
		K:            3,
		Lmax:         2,
		Compatible:   func([]fuse.Event) (bool, error) { return false, boom },
	}
	_, err := g.Root()
	assert.Error(t, err)
}
