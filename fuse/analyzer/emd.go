package analyzer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// EMD computes the earth-mover (transportation) distance between two
// signatures using Euclidean ground distance over the bin-coordinate
// space, with an extra-mass penalty of 0 (both signatures are already
// normalized to equal total mass — spec §4.4). Internally this solves the
// balanced transportation linear program exactly via successive shortest
// augmenting paths (a standard min-cost-flow technique that is exact for
// real-valued, not just integer, supplies/demands).
func EMD(a, b Signature) float64 {
	n1, n2 := len(a.Weights), len(b.Weights)
	if n1 == 0 || n2 == 0 {
		return 0
	}

	cost := make([][]float64, n1)
	for i := range cost {
		cost[i] = make([]float64, n2)
		for j := range cost[i] {
			cost[i][j] = floats.Distance(a.Features[i], b.Features[j], 2)
		}
	}

	return solveTransportation(append([]float64(nil), a.Weights...), append([]float64(nil), b.Weights...), cost)
}

const flowEpsilon = 1e-9

// solveTransportation solves the balanced transportation problem (supply
// sum == demand sum) via successive shortest augmenting paths on the
// bipartite supply/demand network. Returns the total transport cost.
func solveTransportation(supply, demand []float64, cost [][]float64) float64 {
	n1, n2 := len(supply), len(demand)
	// node ids: 0 = source, 1..n1 = supply nodes, n1+1..n1+n2 = demand
	// nodes, n1+n2+1 = sink.
	numNodes := n1 + n2 + 2
	source, sink := 0, n1+n2+1

	type edge struct {
		to   int
		cap  float64
		cost float64
		rev  int // index of reverse edge in graph[to]
	}
	graph := make([][]edge, numNodes)
	addEdge := func(u, v int, cap, cst float64) {
		graph[u] = append(graph[u], edge{to: v, cap: cap, cost: cst, rev: len(graph[v])})
		graph[v] = append(graph[v], edge{to: u, cap: 0, cost: -cst, rev: len(graph[u]) - 1})
	}
	for i := 0; i < n1; i++ {
		addEdge(source, 1+i, supply[i], 0)
	}
	for j := 0; j < n2; j++ {
		addEdge(1+n1+j, sink, demand[j], 0)
	}
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			addEdge(1+i, 1+n1+j, math.Inf(1), cost[i][j])
		}
	}

	var totalCost float64
	for {
		// Bellman-Ford shortest path by cost from source to sink in the
		// residual graph.
		dist := make([]float64, numNodes)
		for i := range dist {
			dist[i] = math.Inf(1)
		}
		dist[source] = 0
		prevNode := make([]int, numNodes)
		prevEdge := make([]int, numNodes)
		for i := range prevNode {
			prevNode[i] = -1
		}
		inQueue := make([]bool, numNodes)
		queue := []int{source}
		inQueue[source] = true
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			inQueue[u] = false
			for ei, e := range graph[u] {
				if e.cap <= flowEpsilon {
					continue
				}
				if dist[u]+e.cost < dist[e.to]-1e-12 {
					dist[e.to] = dist[u] + e.cost
					prevNode[e.to] = u
					prevEdge[e.to] = ei
					if !inQueue[e.to] {
						queue = append(queue, e.to)
						inQueue[e.to] = true
					}
				}
			}
		}

		if math.IsInf(dist[sink], 1) {
			break
		}

		// Bottleneck capacity along the path.
		bottleneck := math.Inf(1)
		for v := sink; v != source; {
			u := prevNode[v]
			e := graph[u][prevEdge[v]]
			if e.cap < bottleneck {
				bottleneck = e.cap
			}
			v = u
		}
		if bottleneck <= flowEpsilon {
			break
		}

		for v := sink; v != source; {
			u := prevNode[v]
			ei := prevEdge[v]
			graph[u][ei].cap -= bottleneck
			rev := graph[u][ei].rev
			graph[v][rev].cap += bottleneck
			v = u
		}
		totalCost += bottleneck * dist[sink]
	}
	return totalCost
}
