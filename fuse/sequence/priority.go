package sequence

import (
	"container/heap"
	"fmt"
	"sync"
)

// Metric names one of the four priority values a leaf is ranked by (spec
// §4.7: "four priority metrics").
type Metric int

const (
	MetricEPD Metric = iota
	MetricCrossProfileEPD
	MetricTMDMSE
	MetricCrossProfileTMDMSE
)

// ParseMetric resolves one of the four priority-metric names the CLI and
// EngineConfig accept; "cross_profile_tmd_mse" is the spec's stated default.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "epd":
		return MetricEPD, nil
	case "cross_profile_epd":
		return MetricCrossProfileEPD, nil
	case "tmd_mse":
		return MetricTMDMSE, nil
	case "cross_profile_tmd_mse", "":
		return MetricCrossProfileTMDMSE, nil
	default:
		return 0, fmt.Errorf("sequence: unrecognized metric %q", name)
	}
}

func (m Metric) value(n *Node) float64 {
	switch m {
	case MetricEPD:
		return n.EPD
	case MetricCrossProfileEPD:
		return n.CrossProfileEPD
	case MetricTMDMSE:
		return n.TMDMSE
	default:
		return n.CrossProfileTMDMSE
	}
}

// leafEntry is one heap element: the leaf plus its insertion sequence
// number, the deterministic tie-breaker.
type leafEntry struct {
	node *Node
	seq  int
}

// leafHeap implements a priority queue of active leaves keyed by one
// metric, ascending.
// Ordering: metric value → insertion sequence
type leafHeap struct {
	metric  Metric
	entries []leafEntry
}

// Len implements heap.Interface
func (h *leafHeap) Len() int {
	return len(h.entries)
}

// Less implements heap.Interface with deterministic ordering
// Order by: metric value → insertion sequence
func (h *leafHeap) Less(i, j int) bool {
	ei, ej := h.entries[i], h.entries[j]

	vi, vj := h.metric.value(ei.node), h.metric.value(ej.node)
	if vi != vj {
		return vi < vj
	}

	// Insertion sequence (lower first, resolves ties insertion-order per
	// spec §5)
	return ei.seq < ej.seq
}

// Swap implements heap.Interface
func (h *leafHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

// Push implements heap.Interface
func (h *leafHeap) Push(x interface{}) {
	h.entries = append(h.entries, x.(leafEntry))
}

// Pop implements heap.Interface
func (h *leafHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	item := old[n-1]
	h.entries = old[0 : n-1]
	return item
}

// priorityList is the sorted list of active leaves for one metric (spec
// §4.7: "default: cross_profile_tmd_mse, ascending"). Insertion and
// removal are serialized by a coarse mutex per list (spec §5's "sorted
// priority lists are updated under a coarse mutex per list"), since child
// evaluation runs concurrently across a bounded work pool.
type priorityList struct {
	mu      sync.Mutex
	heap    *leafHeap
	nextSeq int
}

func newPriorityList(metric Metric) *priorityList {
	h := &leafHeap{metric: metric}
	heap.Init(h)
	return &priorityList{heap: h}
}

// Insert adds n, stamped with the next insertion sequence number.
func (p *priorityList) Insert(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	heap.Push(p.heap, leafEntry{node: n, seq: p.nextSeq})
	p.nextSeq++
}

// PopBest removes and returns the lowest-metric node, or nil if empty.
func (p *priorityList) PopBest() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(p.heap).(leafEntry).node
}

// Remove deletes every node for which match returns true (used by pruning
// to discard superseded leaves across all four lists), restoring the heap
// invariant afterwards.
func (p *priorityList) Remove(match func(*Node) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.heap.entries[:0]
	for _, e := range p.heap.entries {
		if !match(e.node) {
			kept = append(kept, e)
		}
	}
	p.heap.entries = kept
	heap.Init(p.heap)
}

// Len reports the number of active leaves.
func (p *priorityList) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heap.Len()
}

// priorityLists bundles the four metric-keyed lists the search maintains
// in parallel (spec §4.7: "insert them into all four sorted lists").
type priorityLists struct {
	byEPD                *priorityList
	byCrossProfileEPD    *priorityList
	byTMDMSE             *priorityList
	byCrossProfileTMDMSE *priorityList
}

func newPriorityLists() *priorityLists {
	return &priorityLists{
		byEPD:                newPriorityList(MetricEPD),
		byCrossProfileEPD:    newPriorityList(MetricCrossProfileEPD),
		byTMDMSE:             newPriorityList(MetricTMDMSE),
		byCrossProfileTMDMSE: newPriorityList(MetricCrossProfileTMDMSE),
	}
}

func (p *priorityLists) InsertAll(n *Node) {
	p.byEPD.Insert(n)
	p.byCrossProfileEPD.Insert(n)
	p.byTMDMSE.Insert(n)
	p.byCrossProfileTMDMSE.Insert(n)
}

func (p *priorityLists) RemoveAll(match func(*Node) bool) {
	p.byEPD.Remove(match)
	p.byCrossProfileEPD.Remove(match)
	p.byTMDMSE.Remove(match)
	p.byCrossProfileTMDMSE.Remove(match)
}

// listFor returns the list the search pops leaves from (the default
// selection metric, spec §4.7).
func (p *priorityLists) listFor(metric Metric) *priorityList {
	switch metric {
	case MetricEPD:
		return p.byEPD
	case MetricCrossProfileEPD:
		return p.byCrossProfileEPD
	case MetricTMDMSE:
		return p.byTMDMSE
	default:
		return p.byCrossProfileTMDMSE
	}
}
