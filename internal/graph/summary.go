package graph

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strings"
)

// SummaryNode is one page in the exported graph summary.
type SummaryNode struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Group    string  `json:"group"`
	InLinks  int     `json:"in_links"`
	OutLinks int     `json:"out_links"`
	Size     float64 `json:"size"`
	Score    float64 `json:"score"`
}

// SummaryLink is one collapsed edge in the exported graph summary.
type SummaryLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int    `json:"value"`
}

// Summary is a render-ready view of the crawl graph.
type Summary struct {
	Nodes     []*SummaryNode `json:"nodes"`
	Links     []*SummaryLink `json:"links"`
	NodeCount int            `json:"node_count"`
	EdgeCount int            `json:"edge_count"`
	Density   float64        `json:"density"`
	AvgDegree float64        `json:"avg_degree"`
}

// BuildSummary flattens the graph into nodes and links for rendering.
// Scores may be nil; nodes missing from the map get 0. Nodes are
// ordered by descending score, then URL.
func BuildSummary(g *Graph, scores map[string]float64) *Summary {
	inLinks := make(map[string]int)
	for _, targets := range g.weights {
		for target := range targets {
			inLinks[target]++
		}
	}

	nodes := make([]*SummaryNode, 0, len(g.nodes))
	for _, u := range g.Nodes() {
		nodes = append(nodes, &SummaryNode{
			ID:       u,
			Label:    labelForURL(u),
			Group:    groupForURL(u),
			InLinks:  inLinks[u],
			OutLinks: len(g.adjacency[u]),
			Size:     nodeSize(inLinks[u]),
			Score:    scores[u],
		})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Score != nodes[j].Score {
			return nodes[i].Score > nodes[j].Score
		}
		return nodes[i].ID < nodes[j].ID
	})

	links := make([]*SummaryLink, 0, g.edgeCount)
	for source, targets := range g.weights {
		for target, weight := range targets {
			links = append(links, &SummaryLink{
				Source: source,
				Target: target,
				Value:  weight,
			})
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		return links[i].Target < links[j].Target
	})

	summary := &Summary{
		Nodes:     nodes,
		Links:     links,
		NodeCount: len(nodes),
		EdgeCount: len(links),
	}

	if len(nodes) > 1 {
		maxEdges := float64(len(nodes) * (len(nodes) - 1))
		summary.Density = float64(len(links)) / maxEdges
	}
	if len(nodes) > 0 {
		totalDegree := 0
		for _, node := range nodes {
			totalDegree += node.InLinks + node.OutLinks
		}
		summary.AvgDegree = float64(totalDegree) / float64(len(nodes))
	}

	return summary
}

// ToJSON serializes the summary for export.
func (s *Summary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// groupForURL clusters a URL by its first path segment.
func groupForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "other"
	}
	if u.Path == "" || u.Path == "/" {
		return "root"
	}
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			return part
		}
	}
	return "other"
}

// labelForURL derives a short display label from the last path segment.
func labelForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return truncate(rawURL, 25)
	}
	if u.Path == "" || u.Path == "/" {
		return "/"
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" {
		return truncate(parts[len(parts)-1], 25)
	}
	return truncate(u.Path, 25)
}

// nodeSize scales node size with in-link count, log-dampened.
func nodeSize(inLinks int) float64 {
	base := 5.0
	if inLinks > 0 {
		return base + math.Log10(float64(inLinks+1))*5
	}
	return base
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
