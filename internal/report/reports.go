// Package report turns a finished crawl into exportable tabular reports.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/priority-crawler/prowl/internal/session"
)

// ReportType defines the type of report.
type ReportType string

const (
	ReportAllPages        ReportType = "all_pages"
	ReportTopPages        ReportType = "top_pages"
	ReportFailedPages     ReportType = "failed_pages"
	ReportClientErrors    ReportType = "client_errors_4xx"
	ReportServerErrors    ReportType = "server_errors_5xx"
	ReportAllLinks        ReportType = "all_links"
	ReportBlockedTargets  ReportType = "blocked_targets"
	ReportDuplicateTitles ReportType = "duplicate_titles"
	ReportLanguages       ReportType = "languages"
	ReportCrawlSummary    ReportType = "crawl_summary"
)

// ReportDefinition defines a report type.
type ReportDefinition struct {
	Type        ReportType
	Name        string
	Description string
	Category    string
	Columns     []string
}

// AllReports returns all available report definitions.
func AllReports() []*ReportDefinition {
	return []*ReportDefinition{
		// Pages
		{ReportAllPages, "All Pages", "Every visited page with its crawl metadata", "Pages", []string{"URL", "Depth", "Status Code", "Content Type", "Title", "Word Count", "Language", "Outlinks", "Importance Score", "Latency (ms)", "Referer"}},
		{ReportTopPages, "Top Pages", "Pages ranked by importance score", "Pages", []string{"URL", "Importance Score", "Inlinks", "Outlinks", "Title"}},
		{ReportFailedPages, "Failed Pages", "Pages whose fetch did not complete", "Pages", []string{"URL", "Depth", "Referer", "Error"}},

		// Response Codes
		{ReportClientErrors, "Client Errors (4xx)", "All URLs returning 4xx status codes", "Response Codes", []string{"URL", "Status Code", "Found On"}},
		{ReportServerErrors, "Server Errors (5xx)", "All URLs returning 5xx status codes", "Response Codes", []string{"URL", "Status Code", "Found On"}},

		// Links
		{ReportAllLinks, "All Links", "Every discovered link edge with its assigned priority", "Links", []string{"Source", "Target", "Anchor Text", "NoFollow", "Disallowed", "Priority"}},
		{ReportBlockedTargets, "Blocked Targets", "Links pointing at robots-excluded URLs", "Links", []string{"Source", "Target", "Anchor Text", "Priority"}},

		// Content
		{ReportDuplicateTitles, "Duplicate Titles", "Pages sharing the same title tag", "Content", []string{"Title", "Count", "URLs"}},
		{ReportLanguages, "Languages", "Detected language breakdown", "Content", []string{"Language", "Pages"}},

		// Summary
		{ReportCrawlSummary, "Crawl Summary", "Summary of crawl statistics", "Summary", []string{"Metric", "Value"}},
	}
}

// ReportRow represents a single row in a report.
type ReportRow struct {
	Values map[string]interface{}
}

// Report represents a generated report.
type Report struct {
	Definition *ReportDefinition
	Rows       []*ReportRow
	TotalCount int
}

// FilterReport returns a copy containing only rows whose column matches
// the given value.
func (r *Report) FilterReport(column string, value interface{}) *Report {
	filtered := &Report{
		Definition: r.Definition,
		Rows:       make([]*ReportRow, 0),
	}
	for _, row := range r.Rows {
		if row.Values[column] == value {
			filtered.Rows = append(filtered.Rows, row)
		}
	}
	filtered.TotalCount = len(filtered.Rows)
	return filtered
}

// Generator generates reports from a finished crawl.
type Generator struct {
	result *session.Result
}

// NewGenerator creates a new report generator.
func NewGenerator(result *session.Result) *Generator {
	return &Generator{result: result}
}

// Generate generates a report of the specified type.
func (g *Generator) Generate(reportType ReportType) (*Report, error) {
	def := g.getDefinition(reportType)
	if def == nil {
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}

	report := &Report{
		Definition: def,
		Rows:       make([]*ReportRow, 0),
	}

	switch reportType {
	case ReportAllPages:
		g.generateAllPages(report)
	case ReportTopPages:
		g.generateTopPages(report)
	case ReportFailedPages:
		g.generateFailedPages(report)
	case ReportClientErrors:
		g.generateStatusRange(report, 400, 500)
	case ReportServerErrors:
		g.generateStatusRange(report, 500, 600)
	case ReportAllLinks:
		g.generateAllLinks(report)
	case ReportBlockedTargets:
		g.generateBlockedTargets(report)
	case ReportDuplicateTitles:
		g.generateDuplicateTitles(report)
	case ReportLanguages:
		g.generateLanguages(report)
	case ReportCrawlSummary:
		g.generateCrawlSummary(report)
	default:
		return nil, fmt.Errorf("report generator not implemented: %s", reportType)
	}

	report.TotalCount = len(report.Rows)
	return report, nil
}

func (g *Generator) getDefinition(reportType ReportType) *ReportDefinition {
	for _, def := range AllReports() {
		if def.Type == reportType {
			return def
		}
	}
	return nil
}

func (g *Generator) generateAllPages(report *Report) {
	for _, page := range g.result.Pages {
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"URL":              page.URL,
				"Depth":            page.Depth,
				"Status Code":      page.StatusCode,
				"Content Type":     page.ContentType,
				"Title":            page.Title,
				"Word Count":       page.WordCount,
				"Language":         page.DetectedLanguage,
				"Outlinks":         page.OutlinkCount,
				"Importance Score": page.ImportanceScore,
				"Latency (ms)":     page.Latency.Milliseconds(),
				"Referer":          page.Referer,
			},
		})
	}
}

func (g *Generator) generateTopPages(report *Report) {
	inlinks := make(map[string]int)
	for _, edge := range g.result.Edges {
		inlinks[edge.Target]++
	}

	pages := make([]*session.PageRecord, 0, len(g.result.Pages))
	for _, page := range g.result.Pages {
		if !page.Failed {
			pages = append(pages, page)
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].ImportanceScore > pages[j].ImportanceScore
	})

	for _, page := range pages {
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"URL":              page.URL,
				"Importance Score": page.ImportanceScore,
				"Inlinks":          inlinks[page.URL],
				"Outlinks":         page.OutlinkCount,
				"Title":            page.Title,
			},
		})
	}
}

func (g *Generator) generateFailedPages(report *Report) {
	for _, page := range g.result.Pages {
		if !page.Failed {
			continue
		}
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"URL":     page.URL,
				"Depth":   page.Depth,
				"Referer": page.Referer,
				"Error":   page.FetchError,
			},
		})
	}
}

func (g *Generator) generateStatusRange(report *Report, from, to int) {
	for _, page := range g.result.Pages {
		if page.StatusCode < from || page.StatusCode >= to {
			continue
		}
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"URL":         page.URL,
				"Status Code": page.StatusCode,
				"Found On":    page.Referer,
			},
		})
	}
}

func (g *Generator) generateAllLinks(report *Report) {
	for _, edge := range g.result.Edges {
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"Source":      edge.Source,
				"Target":      edge.Target,
				"Anchor Text": edge.AnchorText,
				"NoFollow":    edge.NoFollow,
				"Disallowed":  edge.Disallowed,
				"Priority":    edge.Priority,
			},
		})
	}
}

func (g *Generator) generateBlockedTargets(report *Report) {
	for _, edge := range g.result.Edges {
		if !edge.Disallowed {
			continue
		}
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"Source":      edge.Source,
				"Target":      edge.Target,
				"Anchor Text": edge.AnchorText,
				"Priority":    edge.Priority,
			},
		})
	}
}

func (g *Generator) generateDuplicateTitles(report *Report) {
	byTitle := make(map[string][]string)
	for _, page := range g.result.Pages {
		if page.Failed || page.Title == "" {
			continue
		}
		byTitle[page.Title] = append(byTitle[page.Title], page.URL)
	}

	titles := make([]string, 0, len(byTitle))
	for title, urls := range byTitle {
		if len(urls) > 1 {
			titles = append(titles, title)
		}
	}
	sort.Slice(titles, func(i, j int) bool {
		if len(byTitle[titles[i]]) != len(byTitle[titles[j]]) {
			return len(byTitle[titles[i]]) > len(byTitle[titles[j]])
		}
		return titles[i] < titles[j]
	})

	for _, title := range titles {
		urls := byTitle[title]
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"Title": title,
				"Count": len(urls),
				"URLs":  strings.Join(urls, " | "),
			},
		})
	}
}

func (g *Generator) generateLanguages(report *Report) {
	counts := make(map[string]int)
	for _, page := range g.result.Pages {
		if page.Failed {
			continue
		}
		lang := page.DetectedLanguage
		if lang == "" {
			lang = "unknown"
		}
		counts[lang]++
	}

	langs := make([]string, 0, len(counts))
	for lang := range counts {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})

	for _, lang := range langs {
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"Language": lang,
				"Pages":    counts[lang],
			},
		})
	}
}

func (g *Generator) generateCrawlSummary(report *Report) {
	maxDepth := 0
	totalWords := 0
	visited := 0
	for _, page := range g.result.Pages {
		if page.Depth > maxDepth {
			maxDepth = page.Depth
		}
		if !page.Failed {
			visited++
			totalWords += page.WordCount
		}
	}
	avgWords := 0
	if visited > 0 {
		avgWords = totalWords / visited
	}

	rows := [][2]interface{}{
		{"Session ID", g.result.SessionID},
		{"Seed URL", g.result.SeedURL},
		{"Pages Visited", g.result.Stats.PagesVisited},
		{"Pages Failed", g.result.Stats.PagesFailed},
		{"Links Discovered", g.result.Stats.Edges},
		{"Max Depth Reached", maxDepth},
		{"Average Word Count", avgWords},
		{"Duration", g.result.Duration.Round(time.Millisecond).String()},
	}
	for _, row := range rows {
		report.Rows = append(report.Rows, &ReportRow{
			Values: map[string]interface{}{
				"Metric": row[0],
				"Value":  row[1],
			},
		})
	}
}
