package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/priority-crawler/prowl/internal/session"
)

func testResult() *session.Result {
	return &session.Result{
		SessionID: "test-session",
		SeedURL:   "https://example.com/",
		Duration:  3 * time.Second,
		Pages: []*session.PageRecord{
			{
				URL:              "https://example.com/",
				Depth:            0,
				StatusCode:       200,
				ContentType:      "text/html",
				Title:            "Home",
				WordCount:        500,
				DetectedLanguage: "eng",
				OutlinkCount:     3,
				ImportanceScore:  0.5,
				Latency:          100 * time.Millisecond,
			},
			{
				URL:              "https://example.com/products",
				Depth:            1,
				Referer:          "https://example.com/",
				StatusCode:       200,
				ContentType:      "text/html",
				Title:            "Home",
				WordCount:        200,
				DetectedLanguage: "eng",
				OutlinkCount:     1,
				ImportanceScore:  0.3,
			},
			{
				URL:        "https://example.com/gone",
				Depth:      1,
				Referer:    "https://example.com/",
				StatusCode: 404,
			},
			{
				URL:        "https://example.com/dead",
				Depth:      1,
				Referer:    "https://example.com/",
				Failed:     true,
				FetchError: "gave up after 3 attempts",
			},
		},
		Edges: []*session.LinkEdge{
			{Source: "https://example.com/", Target: "https://example.com/products", AnchorText: "Products", Priority: 80},
			{Source: "https://example.com/", Target: "https://example.com/gone", Priority: 10},
			{Source: "https://example.com/", Target: "https://example.com/admin", Disallowed: true, Priority: -20},
			{Source: "https://example.com/products", Target: "https://example.com/", Priority: 10},
		},
		Stats: session.Stats{PagesVisited: 3, PagesFailed: 1, Edges: 4},
	}
}

func TestGenerateAllPages(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportAllPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.TotalCount != 4 {
		t.Fatalf("expected 4 rows, got %d", report.TotalCount)
	}
	if report.Rows[0].Values["URL"] != "https://example.com/" {
		t.Errorf("unexpected first row: %v", report.Rows[0].Values)
	}
	if report.Rows[0].Values["Importance Score"] != 0.5 {
		t.Errorf("expected importance score 0.5, got %v", report.Rows[0].Values["Importance Score"])
	}
}

func TestGenerateTopPagesOrdering(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportTopPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Failed page excluded.
	if report.TotalCount != 3 {
		t.Fatalf("expected 3 rows, got %d", report.TotalCount)
	}
	if report.Rows[0].Values["URL"] != "https://example.com/" {
		t.Errorf("expected highest score first, got %v", report.Rows[0].Values["URL"])
	}
	if report.Rows[0].Values["Inlinks"] != 1 {
		t.Errorf("expected 1 inlink for seed, got %v", report.Rows[0].Values["Inlinks"])
	}
}

func TestGenerateFailedAndErrorReports(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(testResult())

	failed, err := gen.Generate(ReportFailedPages)
	if err != nil {
		t.Fatalf("Generate failed pages: %v", err)
	}
	if failed.TotalCount != 1 || failed.Rows[0].Values["URL"] != "https://example.com/dead" {
		t.Errorf("unexpected failed pages report: %+v", failed.Rows)
	}

	clientErrors, err := gen.Generate(ReportClientErrors)
	if err != nil {
		t.Fatalf("Generate client errors: %v", err)
	}
	if clientErrors.TotalCount != 1 || clientErrors.Rows[0].Values["Status Code"] != 404 {
		t.Errorf("unexpected client errors report: %+v", clientErrors.Rows)
	}

	serverErrors, err := gen.Generate(ReportServerErrors)
	if err != nil {
		t.Fatalf("Generate server errors: %v", err)
	}
	if serverErrors.TotalCount != 0 {
		t.Errorf("expected no server errors, got %d", serverErrors.TotalCount)
	}
}

func TestGenerateBlockedTargets(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportBlockedTargets)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.TotalCount != 1 {
		t.Fatalf("expected 1 row, got %d", report.TotalCount)
	}
	if report.Rows[0].Values["Target"] != "https://example.com/admin" {
		t.Errorf("unexpected blocked target: %v", report.Rows[0].Values)
	}
}

func TestGenerateDuplicateTitles(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportDuplicateTitles)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.TotalCount != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", report.TotalCount)
	}
	row := report.Rows[0]
	if row.Values["Title"] != "Home" || row.Values["Count"] != 2 {
		t.Errorf("unexpected duplicate row: %v", row.Values)
	}
}

func TestGenerateCrawlSummary(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportCrawlSummary)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	metrics := make(map[interface{}]interface{})
	for _, row := range report.Rows {
		metrics[row.Values["Metric"]] = row.Values["Value"]
	}
	if metrics["Pages Visited"] != 3 {
		t.Errorf("expected 3 visited, got %v", metrics["Pages Visited"])
	}
	if metrics["Max Depth Reached"] != 1 {
		t.Errorf("expected max depth 1, got %v", metrics["Max Depth Reached"])
	}
}

func TestFilterReport(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportAllPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	filtered := report.FilterReport("Depth", 1)
	if filtered.TotalCount != 3 {
		t.Errorf("expected 3 depth-1 rows, got %d", filtered.TotalCount)
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportAllPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "pages.csv")
	exporter := NewExporter(&ExportOptions{Format: FormatCSV, FilePath: path, IncludeEmpty: true, Delimiter: ','})
	if err := exporter.Export(report); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("expected UTF-8 BOM prefix")
	}

	lines := strings.Split(strings.TrimSpace(string(data[3:])), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "URL,Depth,Status Code") {
		t.Errorf("unexpected header: %s", lines[0])
	}
}

func TestExportCSVMaxRows(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportAllPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "pages.csv")
	exporter := NewExporter(&ExportOptions{Format: FormatCSV, FilePath: path, IncludeEmpty: true, Delimiter: ',', MaxRows: 2})
	if err := exporter.Export(report); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data[3:])), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header plus 2 rows, got %d lines", len(lines))
	}
}

func TestExportJSON(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportTopPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "top.json")
	exporter := NewExporter(&ExportOptions{Format: FormatJSON, FilePath: path, IncludeEmpty: true})
	if err := exporter.Export(report); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var decoded JSONReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Metadata.ReportType != string(ReportTopPages) {
		t.Errorf("unexpected report type: %s", decoded.Metadata.ReportType)
	}
	if len(decoded.Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(decoded.Rows))
	}
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()

	report, err := NewGenerator(testResult()).Generate(ReportAllPages)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "pages.xlsx")
	exporter := NewExporter(&ExportOptions{Format: FormatXLSX, FilePath: path, IncludeEmpty: true})
	if err := exporter.Export(report); err != nil {
		t.Fatalf("Export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("All Pages", "A1")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if got != "URL" {
		t.Errorf("expected header cell URL, got %q", got)
	}
}

func TestBulkExportAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bulk := NewBulkExporter(NewGenerator(testResult()), dir)
	if err := bulk.ExportAll(FormatCSV); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected exported files")
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".csv") {
			t.Errorf("unexpected file %s", entry.Name())
		}
	}
}

func TestExportGraphSummary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := ExportGraphSummary(testResult(), path); err != nil {
		t.Fatalf("ExportGraphSummary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var decoded struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
		Links []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"links"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	// Nodes come from edges: seed, products, gone, admin.
	if len(decoded.Nodes) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(decoded.Nodes))
	}
	if len(decoded.Links) != 4 {
		t.Errorf("expected 4 links, got %d", len(decoded.Links))
	}
}
