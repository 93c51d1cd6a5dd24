package report

import (
	"fmt"
	"os"

	"github.com/priority-crawler/prowl/internal/graph"
	"github.com/priority-crawler/prowl/internal/session"
)

// ExportGraphSummary writes the link graph of a finished crawl as JSON
// suitable for force-directed rendering.
func ExportGraphSummary(result *session.Result, filePath string) error {
	g := graph.New()
	for _, edge := range result.Edges {
		g.AddEdge(edge.Source, edge.Target)
	}

	scores := make(map[string]float64, len(result.Pages))
	for _, page := range result.Pages {
		scores[page.URL] = page.ImportanceScore
	}

	summary := graph.BuildSummary(g, scores)
	data, err := summary.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode graph summary: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write graph summary: %w", err)
	}
	return nil
}
