package graph

import "math"

const (
	// DefaultDamping is the standard PageRank damping factor.
	DefaultDamping = 0.85

	// DefaultMaxIterations bounds the power iteration.
	DefaultMaxIterations = 20
)

// Ranks computes PageRank scores over the graph. Every node starts at
// 1/N; each iteration redistributes rank along out-edges with the
// damping factor and spreads (1-damping) uniformly. Dangling nodes
// shed their full rank uniformly across all nodes, so total mass
// stays at 1 throughout. Iteration stops after maxIterations or once
// the summed per-node change drops below epsilon (epsilon <= 0
// disables the residual check). An empty graph yields an empty map.
func (g *Graph) Ranks(damping float64, maxIterations int, epsilon float64) map[string]float64 {
	if len(g.nodes) == 0 {
		return map[string]float64{}
	}

	if damping <= 0 || damping >= 1 {
		damping = DefaultDamping
	}
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}

	urls := g.Nodes()
	n := float64(len(urls))

	ranks := make(map[string]float64, len(urls))
	for _, url := range urls {
		ranks[url] = 1.0 / n
	}

	newRanks := make(map[string]float64, len(urls))
	for iter := 0; iter < maxIterations; iter++ {
		for _, url := range urls {
			newRanks[url] = (1.0 - damping) / n
		}

		for _, source := range urls {
			targets := g.adjacency[source]
			if len(targets) == 0 {
				// Dangling node: its rank flows to everyone.
				share := damping * ranks[source] / n
				for _, url := range urls {
					newRanks[url] += share
				}
				continue
			}

			contribution := damping * ranks[source] / float64(len(targets))
			for _, target := range targets {
				newRanks[target] += contribution
			}
		}

		delta := 0.0
		for _, url := range urls {
			delta += math.Abs(newRanks[url] - ranks[url])
			ranks[url] = newRanks[url]
		}
		if epsilon > 0 && delta < epsilon {
			break
		}
	}

	return ranks
}
