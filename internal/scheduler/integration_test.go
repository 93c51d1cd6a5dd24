package scheduler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/priority-crawler/prowl/internal/crawltest"
	"github.com/priority-crawler/prowl/internal/storage"
)

// Crawls a scripted site into a real SQLite database and checks what
// landed on disk.
func TestCrawlPersistsToDatabase(t *testing.T) {
	t.Parallel()

	site := crawltest.NewSite()
	defer site.Close()

	site.SetRobots("User-agent: *\nDisallow: /private/\n")
	site.AddPage("/", &crawltest.Page{
		Title:           "Home",
		MetaDescription: "Landing page for the crawl",
		Headings:        []string{"Welcome"},
		Body:            "Plenty of words on the landing page.",
		Links: []crawltest.Link{
			{Href: "/products", Text: "Products"},
			{Href: "/private/area", Text: "Private"},
			{Href: "/gone", Text: "Gone"},
			{Href: "/sponsored", Text: "Sponsored", Rel: "nofollow"},
		},
	})
	site.AddPage("/products", &crawltest.Page{
		Title:    "Products",
		Headings: []string{"Products"},
		Links:    []crawltest.Link{{Href: "/", Text: "Home"}},
	})
	site.AddPage("/sponsored", &crawltest.Page{Title: "Sponsored"})
	site.SetStatus("/gone", http.StatusNotFound)

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "crawl.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	c, err := New(crawlTestConfig(site.URL()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	sessionID := c.Session().ID()
	if err := db.BeginSession(sessionID, site.URL()+"/", "{}"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	c.SetSink(db)

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if err := db.FinishSession(result, storage.SessionCompleted); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}

	pages, err := db.GetPages(sessionID)
	if err != nil {
		t.Fatalf("GetPages: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("expected 4 stored pages, got %d", len(pages))
	}

	byURL := make(map[string]*storage.PageRow, len(pages))
	for _, page := range pages {
		byURL[page.URL] = page
	}

	seed := byURL[site.URL()+"/"]
	if seed == nil {
		t.Fatal("seed page missing from database")
	}
	if seed.Title != "Home" || seed.MetaDescription == "" || seed.WordCount == 0 {
		t.Errorf("seed extraction not persisted: %+v", seed)
	}
	if seed.ImportanceScore <= 0 {
		t.Errorf("expected seed importance score after FinishSession, got %f", seed.ImportanceScore)
	}

	gone := byURL[site.URL()+"/gone"]
	if gone == nil {
		t.Fatal("404 page missing from database")
	}
	if gone.StatusCode != http.StatusNotFound || gone.Failed {
		t.Errorf("a 404 is a completed fetch: %+v", gone)
	}

	if _, blocked := byURL[site.URL()+"/private/area"]; blocked {
		t.Error("robots-blocked URL must not be stored as a page")
	}
	if site.Hits("/private/area") != 0 {
		t.Error("robots-blocked URL must never be fetched")
	}

	edges, err := db.GetEdges(sessionID)
	if err != nil {
		t.Fatalf("GetEdges: %v", err)
	}
	if len(edges) != 5 {
		t.Errorf("expected 5 stored edges, got %d", len(edges))
	}
	var sawNoFollow, sawDisallowed bool
	for _, edge := range edges {
		if strings.HasSuffix(edge.Target, "/sponsored") && edge.NoFollow {
			sawNoFollow = true
		}
		if strings.HasSuffix(edge.Target, "/private/area") && edge.Disallowed {
			sawDisallowed = true
		}
	}
	if !sawNoFollow {
		t.Error("nofollow flag lost on the sponsored edge")
	}
	if !sawDisallowed {
		t.Error("disallowed flag lost on the private edge")
	}

	stats, err := db.GetStats(sessionID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalPages != 4 || stats.StatusCodes[200] != 3 || stats.StatusCodes[404] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.NoFollowEdges != 1 || stats.DisallowedEdges != 1 {
		t.Errorf("unexpected edge flags in stats: %+v", stats)
	}

	policy, err := db.GetPolicy(site.URL())
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if policy == nil {
		t.Fatal("robots policy not persisted")
	}
	if !policy.FetchedOK || !strings.Contains(policy.RulesJSON, "/private/") {
		t.Errorf("unexpected policy row: %+v", policy)
	}

	row, err := db.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if row.Status != storage.SessionCompleted || row.PagesVisited != 4 {
		t.Errorf("unexpected session row: %+v", row)
	}
	if row.CompletedAt == nil {
		t.Error("expected a completion timestamp")
	}
}
