// Package graph builds the directed link graph observed during a
// crawl and scores page importance over it.
package graph

import (
	"sort"
)

// Graph is a directed graph over page URLs. Repeated edges between
// the same pair of nodes are collapsed to a single edge; the repeat
// count is kept as the edge weight.
type Graph struct {
	nodes     map[string]struct{}
	adjacency map[string][]string
	weights   map[string]map[string]int
	edgeCount int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]struct{}),
		adjacency: make(map[string][]string),
		weights:   make(map[string]map[string]int),
	}
}

// AddNode ensures a node exists even if no edge touches it.
func (g *Graph) AddNode(url string) {
	g.nodes[url] = struct{}{}
}

// AddEdge records a source→target link. Duplicate edges increment the
// weight of the existing edge instead of adding a parallel one.
func (g *Graph) AddEdge(source, target string) {
	if source == "" || target == "" {
		return
	}

	g.nodes[source] = struct{}{}
	g.nodes[target] = struct{}{}

	if g.weights[source] == nil {
		g.weights[source] = make(map[string]int)
	}
	if _, exists := g.weights[source][target]; exists {
		g.weights[source][target]++
		return
	}

	g.weights[source][target] = 1
	g.adjacency[source] = append(g.adjacency[source], target)
	g.edgeCount++
}

// HasNode reports whether the URL is part of the graph.
func (g *Graph) HasNode(url string) bool {
	_, exists := g.nodes[url]
	return exists
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct (source,target) edges.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// OutDegree returns the number of distinct outgoing edges of a node.
func (g *Graph) OutDegree(url string) int {
	return len(g.adjacency[url])
}

// InDegree returns the number of distinct incoming edges of a node.
func (g *Graph) InDegree(url string) int {
	count := 0
	for _, targets := range g.weights {
		if _, exists := targets[url]; exists {
			count++
		}
	}
	return count
}

// Weight returns the collapsed repeat count of an edge, 0 if absent.
func (g *Graph) Weight(source, target string) int {
	return g.weights[source][target]
}

// Outlinks returns the distinct targets of a node in insertion order.
func (g *Graph) Outlinks(url string) []string {
	targets := g.adjacency[url]
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// Nodes returns all node URLs sorted lexicographically.
func (g *Graph) Nodes() []string {
	urls := make([]string, 0, len(g.nodes))
	for url := range g.nodes {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}
