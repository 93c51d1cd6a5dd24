// Package session aggregates the mutable state of one crawl: page
// records in visitation order, the accumulated link edges, and the
// counters exposed while the crawl runs.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stats holds the running counters of a session.
type Stats struct {
	PagesVisited int           `json:"pages_visited"`
	PagesFailed  int           `json:"pages_failed"`
	Edges        int           `json:"edges"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Completed returns visited plus failed pages, the count that drives
// the max-pages termination check.
func (s Stats) Completed() int {
	return s.PagesVisited + s.PagesFailed
}

// Result is the value a finished crawl hands back to the caller:
// everything aggregated during the session, pages in the order they
// were dequeued.
type Result struct {
	SessionID   string        `json:"session_id"`
	SeedURL     string        `json:"seed_url"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
	VisitedURLs []string      `json:"visited_urls"`
	Pages       []*PageRecord `json:"pages"`
	Edges       []*LinkEdge   `json:"edges"`
	Stats       Stats         `json:"stats"`
}

// Session collects pages and edges for one crawl. The crawl loop
// drives it sequentially; the mutex covers observers reading stats
// from other goroutines.
type Session struct {
	mu        sync.RWMutex
	id        string
	seedURL   string
	startedAt time.Time
	pages     map[string]*PageRecord
	order     []string
	edges     []*LinkEdge
	failed    int
	scored    bool
}

// New creates a session for the given seed.
func New(seedURL string) *Session {
	return &Session{
		id:        uuid.New().String(),
		seedURL:   seedURL,
		startedAt: time.Now(),
		pages:     make(map[string]*PageRecord),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SeedURL returns the seed the session was created for.
func (s *Session) SeedURL() string {
	return s.seedURL
}

// StartedAt returns the session start time.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// RecordPage stores a page record. It reports false when a record
// for the URL already exists; the first record wins.
func (s *Session) RecordPage(record *PageRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pages[record.URL]; exists {
		return false
	}

	s.pages[record.URL] = record
	s.order = append(s.order, record.URL)
	if record.Failed {
		s.failed++
	}
	return true
}

// Page returns the record for a URL, nil if absent.
func (s *Session) Page(url string) *PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages[url]
}

// RecordEdge appends a discovered link edge.
func (s *Session) RecordEdge(edge *LinkEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edge)
}

// RecordEdges appends a batch of edges from one page.
func (s *Session) RecordEdges(edges []*LinkEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edges...)
}

// Pages returns the page records in visitation order.
func (s *Session) Pages() []*PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make([]*PageRecord, 0, len(s.order))
	for _, url := range s.order {
		pages = append(pages, s.pages[url])
	}
	return pages
}

// VisitedURLs returns the recorded URLs in visitation order.
func (s *Session) VisitedURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, len(s.order))
	copy(urls, s.order)
	return urls
}

// Edges returns all recorded link edges in discovery order.
func (s *Session) Edges() []*LinkEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := make([]*LinkEdge, len(s.edges))
	copy(edges, s.edges)
	return edges
}

// AttachScores writes importance scores onto the page records. URLs
// missing from the map keep the zero score. Scores are attached once;
// later calls are ignored.
func (s *Session) AttachScores(scores map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scored {
		return
	}
	s.scored = true

	for url, record := range s.pages {
		record.ImportanceScore = scores[url]
	}
}

// Scored reports whether importance scores were attached.
func (s *Session) Scored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scored
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		PagesVisited: len(s.order) - s.failed,
		PagesFailed:  s.failed,
		Edges:        len(s.edges),
		Elapsed:      time.Since(s.startedAt),
	}
}

// Finish freezes the session into a Result.
func (s *Session) Finish() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	finishedAt := time.Now()
	pages := make([]*PageRecord, 0, len(s.order))
	urls := make([]string, len(s.order))
	copy(urls, s.order)
	for _, url := range s.order {
		pages = append(pages, s.pages[url])
	}
	edges := make([]*LinkEdge, len(s.edges))
	copy(edges, s.edges)

	return &Result{
		SessionID:   s.id,
		SeedURL:     s.seedURL,
		StartedAt:   s.startedAt,
		FinishedAt:  finishedAt,
		Duration:    finishedAt.Sub(s.startedAt),
		VisitedURLs: urls,
		Pages:       pages,
		Edges:       edges,
		Stats: Stats{
			PagesVisited: len(s.order) - s.failed,
			PagesFailed:  s.failed,
			Edges:        len(s.edges),
			Elapsed:      finishedAt.Sub(s.startedAt),
		},
	}
}
