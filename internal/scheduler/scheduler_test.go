package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/priority-crawler/prowl/internal/config"
)

// requestLog tracks the paths a test server has served.
type requestLog struct {
	mu    sync.Mutex
	paths map[string]int
}

func newRequestLog() *requestLog {
	return &requestLog{paths: make(map[string]int)}
}

func (l *requestLog) record(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths[path]++
}

func (l *requestLog) count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paths[path]
}

func crawlTestConfig(seedURL string) *config.CrawlConfig {
	cfg := config.DefaultConfig()
	cfg.SeedURL = seedURL
	cfg.MaxPages = 10
	cfg.MaxDepth = 2
	cfg.DelayMin = time.Millisecond
	cfg.DelayMax = 2 * time.Millisecond
	cfg.AdaptiveDelay = false
	cfg.PerHostRateLimit = 1000
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryJitter = false
	cfg.DetectLanguage = false
	return cfg
}

func htmlPage(title string, hrefs ...string) string {
	body := ""
	for _, href := range hrefs {
		body += fmt.Sprintf(`<a href=%q>link</a> `, href)
	}
	return fmt.Sprintf(
		`<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>`,
		title, body)
}

func TestCrawlInternalAndExternalLinks(t *testing.T) {
	t.Parallel()

	log := newRequestLog()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.record(r.URL.Path)
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("Home", "/a", "/a", "/b", "http://external.invalid/c"))
		case "/a":
			fmt.Fprint(w, htmlPage("Page A"))
		case "/b":
			fmt.Fprint(w, htmlPage("Page B"))
		default:
			http.NotFound(w, r)
		}
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 5
	cfg.MaxDepth = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if len(result.Pages) != 3 {
		t.Fatalf("expected 3 page records, got %d: %v", len(result.Pages), result.VisitedURLs)
	}

	seed := srv.URL + "/"
	wantOrder := []string{seed, srv.URL + "/a", srv.URL + "/b"}
	for i, url := range wantOrder {
		if result.VisitedURLs[i] != url {
			t.Errorf("visit %d: expected %s, got %s", i, url, result.VisitedURLs[i])
		}
	}

	if result.Pages[0].Depth != 0 {
		t.Errorf("seed depth: expected 0, got %d", result.Pages[0].Depth)
	}
	for _, page := range result.Pages[1:] {
		if page.Depth != 1 {
			t.Errorf("page %s: expected depth 1, got %d", page.URL, page.Depth)
		}
	}

	// The duplicate /a anchor and the external link are edges, not visits.
	if len(result.Edges) != 4 {
		t.Errorf("expected 4 edges, got %d", len(result.Edges))
	}
	externalSeen := false
	for _, edge := range result.Edges {
		if edge.Target == "http://external.invalid/c" {
			externalSeen = true
		}
	}
	if !externalSeen {
		t.Error("expected external target among edges")
	}
	for _, page := range result.Pages {
		if page.URL == "http://external.invalid/c" {
			t.Error("external URL must not produce a page record")
		}
	}

	// Importance scores attached once scoring ran.
	for _, page := range result.Pages {
		if page.ImportanceScore <= 0 {
			t.Errorf("page %s: expected positive importance score, got %f", page.URL, page.ImportanceScore)
		}
	}
}

func TestCrawlVisitsByPriorityOrder(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			// Document order is the reverse of priority order.
			fmt.Fprint(w, htmlPage("Home", "/misc", "/list/all", "/item/widget"))
			return
		}
		fmt.Fprint(w, htmlPage("Leaf"))
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 10
	cfg.MaxDepth = 1
	cfg.PriorityRules = []config.PriorityRule{
		{Name: "product", Pattern: `/item/`, Weight: 80},
		{Name: "listing", Pattern: `/list/`, Weight: 60},
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	want := []string{
		srv.URL + "/",
		srv.URL + "/item/widget",
		srv.URL + "/list/all",
		srv.URL + "/misc",
	}
	if len(result.VisitedURLs) != len(want) {
		t.Fatalf("expected %d visits, got %d: %v", len(want), len(result.VisitedURLs), result.VisitedURLs)
	}
	for i, url := range want {
		if result.VisitedURLs[i] != url {
			t.Errorf("visit %d: expected %s, got %s", i, url, result.VisitedURLs[i])
		}
	}
}

func TestCrawlDepthBound(t *testing.T) {
	t.Parallel()

	log := newRequestLog()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.record(r.URL.Path)
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("Root", "/d1"))
		case "/d1":
			fmt.Fprint(w, htmlPage("Depth 1", "/d2"))
		case "/d2":
			fmt.Fprint(w, htmlPage("Depth 2", "/d3"))
		default:
			http.NotFound(w, r)
		}
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 10
	cfg.MaxDepth = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 page records, got %d", len(result.Pages))
	}
	for _, page := range result.Pages {
		if page.Depth > 1 {
			t.Errorf("page %s exceeds depth bound: %d", page.URL, page.Depth)
		}
	}
	if log.count("/d2") != 0 {
		t.Error("server saw a request beyond the depth bound")
	}

	// The edge into the unvisited depth is still recorded.
	edgeSeen := false
	for _, edge := range result.Edges {
		if edge.Target == srv.URL+"/d2" {
			edgeSeen = true
		}
	}
	if !edgeSeen {
		t.Error("expected edge to the out-of-depth target")
	}
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Every page links to five more; the crawl must still stop.
		links := make([]string, 5)
		for i := range links {
			links[i] = fmt.Sprintf("%s-child%d", r.URL.Path, i)
		}
		fmt.Fprint(w, htmlPage("Page", links...))
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 3
	cfg.MaxDepth = 5

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if len(result.Pages) != 3 {
		t.Errorf("expected exactly 3 page records, got %d", len(result.Pages))
	}

	// No URL is recorded twice.
	seen := make(map[string]struct{})
	for _, page := range result.Pages {
		if _, dup := seen[page.URL]; dup {
			t.Errorf("duplicate page record for %s", page.URL)
		}
		seen[page.URL] = struct{}{}
	}
}

func TestCrawlRobotsDisallowed(t *testing.T) {
	t.Parallel()

	log := newRequestLog()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /admin/\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.record(r.URL.Path)
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("Home", "/admin/settings", "/public"))
		case "/public":
			fmt.Fprint(w, htmlPage("Public"))
		default:
			http.NotFound(w, r)
		}
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 5
	cfg.MaxDepth = 2

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	var adminEdge, publicEdge bool
	var adminPriority, publicPriority float64
	for _, edge := range result.Edges {
		switch edge.Target {
		case srv.URL + "/admin/settings":
			adminEdge = true
			adminPriority = edge.Priority
			if !edge.Disallowed {
				t.Error("expected admin edge to be tagged disallowed")
			}
		case srv.URL + "/public":
			publicEdge = true
			publicPriority = edge.Priority
			if edge.Disallowed {
				t.Error("public edge must not be tagged disallowed")
			}
		}
	}
	if !adminEdge || !publicEdge {
		t.Fatal("expected both edges to be recorded")
	}
	if adminPriority != publicPriority-30 {
		t.Errorf("expected disallowed penalty of 30: admin=%.1f public=%.1f", adminPriority, publicPriority)
	}

	for _, page := range result.Pages {
		if page.URL == srv.URL+"/admin/settings" {
			t.Error("disallowed URL must not produce a page record")
		}
	}
	if log.count("/admin/settings") != 0 {
		t.Error("server saw a request for the disallowed path")
	}
}

func TestCrawlRecordsFetchFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Port 1 refuses connections; the target shares the seed's host.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, htmlPage("Home", "http://127.0.0.1:1/"))
			return
		}
		http.NotFound(w, r)
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 5
	cfg.MaxDepth = 2

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 page records, got %d", len(result.Pages))
	}

	var failed bool
	for _, page := range result.Pages {
		if page.URL == "http://127.0.0.1:1/" {
			failed = true
			if !page.Failed {
				t.Error("expected record to be marked failed")
			}
			if page.StatusCode != 0 {
				t.Errorf("expected status 0 for transport failure, got %d", page.StatusCode)
			}
			if page.FetchError == "" {
				t.Error("expected a fetch error message")
			}
		}
	}
	if !failed {
		t.Fatal("expected a page record for the unreachable URL")
	}
	if result.Stats.PagesFailed != 1 {
		t.Errorf("expected 1 failed page in stats, got %d", result.Stats.PagesFailed)
	}
}

func TestCrawlSkipsExcludedExtensions(t *testing.T) {
	t.Parallel()

	log := newRequestLog()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.record(r.URL.Path)
		if r.URL.Path == "/" {
			fmt.Fprint(w, htmlPage("Home", "/logo.png", "/about"))
			return
		}
		fmt.Fprint(w, htmlPage("Leaf"))
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 5
	cfg.MaxDepth = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if log.count("/logo.png") != 0 {
		t.Error("server saw a request for an excluded extension")
	}

	imageEdge := false
	for _, edge := range result.Edges {
		if edge.Target == srv.URL+"/logo.png" {
			imageEdge = true
		}
	}
	if !imageEdge {
		t.Error("expected the image link to be recorded as an edge")
	}
}

func TestCrawlSessionTimeout(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		n := 0
		fmt.Sscanf(r.URL.Path, "/n%d", &n)
		fmt.Fprint(w, htmlPage("Page", fmt.Sprintf("/n%d", n+1)))
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 100
	cfg.MaxDepth = 100
	cfg.SessionTimeout = 200 * time.Millisecond

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	start := time.Now()
	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("crawl ran %s despite session timeout", elapsed)
	}
	if len(result.Pages) == 0 {
		t.Error("expected partial progress before the timeout")
	}
	if len(result.Pages) >= 100 {
		t.Errorf("expected the timeout to cut the crawl short, got %d pages", len(result.Pages))
	}
}

func TestCrawlNonHTMLRecordedWithoutExtraction(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, htmlPage("Home", "/feed"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[]}`)
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 5
	cfg.MaxDepth = 1

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	var feed bool
	for _, page := range result.Pages {
		if page.URL == srv.URL+"/feed" {
			feed = true
			if page.Failed {
				t.Error("JSON response is a completed fetch, not a failure")
			}
			if page.StatusCode != 200 {
				t.Errorf("expected status 200, got %d", page.StatusCode)
			}
			if page.Title != "" || page.OutlinkCount != 0 {
				t.Error("non-HTML response must not be parsed for features")
			}
		}
	}
	if !feed {
		t.Fatal("expected a record for the JSON URL")
	}
}

func TestCrawlCheckpointResume(t *testing.T) {
	t.Parallel()

	log := newRequestLog()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.record(r.URL.Path)
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("Home", "/a", "/b", "/c"))
		case "/a":
			fmt.Fprint(w, htmlPage("Page A"))
		case "/b":
			fmt.Fprint(w, htmlPage("Page B"))
		case "/c":
			fmt.Fprint(w, htmlPage("Page C"))
		default:
			http.NotFound(w, r)
		}
	})

	cfg := crawlTestConfig(srv.URL)
	cfg.MaxPages = 2

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()

	if _, err := first.Crawl(context.Background()); err != nil {
		t.Fatalf("first Crawl: %v", err)
	}

	state := first.Checkpoint()
	if state.Completed() != 2 {
		t.Fatalf("expected 2 consumed page slots, got %d", state.Completed())
	}
	if len(state.Visited) != 2 {
		t.Fatalf("expected 2 visited URLs, got %d", len(state.Visited))
	}
	if len(state.Pending) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(state.Pending))
	}

	resumedCfg := crawlTestConfig(srv.URL)
	resumedCfg.MaxPages = 4

	resumed, err := New(resumedCfg)
	if err != nil {
		t.Fatalf("New resumed: %v", err)
	}
	defer resumed.Close()

	if err := resumed.Restore(state); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	result, err := resumed.Crawl(context.Background())
	if err != nil {
		t.Fatalf("resumed Crawl: %v", err)
	}

	wantOrder := []string{srv.URL + "/b", srv.URL + "/c"}
	if len(result.VisitedURLs) != len(wantOrder) {
		t.Fatalf("expected %d visits after resume, got %d: %v",
			len(wantOrder), len(result.VisitedURLs), result.VisitedURLs)
	}
	for i, url := range wantOrder {
		if result.VisitedURLs[i] != url {
			t.Errorf("resumed visit %d: expected %s, got %s", i, url, result.VisitedURLs[i])
		}
	}

	// The seed and /a were consumed before the checkpoint and must not
	// be fetched again.
	for _, path := range []string{"/", "/a", "/b", "/c"} {
		if got := log.count(path); got != 1 {
			t.Errorf("path %s: expected 1 fetch, got %d", path, got)
		}
	}
}

func TestRestoreRejectsSeedMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlPage("Home"))
	}))
	defer srv.Close()

	c, err := New(crawlTestConfig(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	state := c.Checkpoint()
	state.SeedURL = "https://other.invalid/"
	if err := c.Restore(state); err == nil {
		t.Error("expected error for a checkpoint from a different seed")
	}
}

func TestNewRejectsFatalConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	if _, err := New(cfg); err == nil {
		t.Error("expected error for missing seed URL")
	}

	cfg = config.DefaultConfig()
	cfg.SeedURL = "https://example.com/"
	cfg.MaxPages = 0
	if _, err := New(cfg); err == nil {
		t.Error("expected error for non-positive max pages")
	}

	cfg = config.DefaultConfig()
	cfg.SeedURL = "https://example.com/"
	cfg.PriorityRules = []config.PriorityRule{{Name: "broken", Pattern: `[`, Weight: 50}}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for an invalid rule pattern")
	}
}
