// Package storage persists crawl sessions, page records, link edges and
// robots policies to SQLite.
package storage

import "time"

// SessionRow is a crawl session as stored in the database.
type SessionRow struct {
	ID           string     `json:"id"`
	SeedURL      string     `json:"seed_url"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Status       string     `json:"status"` // running, completed, failed
	PagesVisited int        `json:"pages_visited"`
	PagesFailed  int        `json:"pages_failed"`
	Edges        int        `json:"edges"`
	ConfigJSON   string     `json:"config_json"` // Crawl config snapshot
}

// PageRow is a visited page as stored in the database.
type PageRow struct {
	ID               int64         `json:"id"`
	SessionID        string        `json:"session_id"`
	URL              string        `json:"url"`
	Depth            int           `json:"depth"`
	Referer          string        `json:"referer,omitempty"`
	StatusCode       int           `json:"status_code"`
	ContentType      string        `json:"content_type"`
	Latency          time.Duration `json:"latency"`
	FetchedAt        time.Time     `json:"fetched_at"`
	Title            string        `json:"title"`
	MetaDescription  string        `json:"meta_description"`
	CanonicalURL     string        `json:"canonical_url,omitempty"`
	HeadingText      string        `json:"heading_text,omitempty"`
	WordCount        int           `json:"word_count"`
	DetectedLanguage string        `json:"detected_language,omitempty"`
	OutlinkCount     int           `json:"outlink_count"`
	ImportanceScore  float64       `json:"importance_score"`
	Failed           bool          `json:"failed"`
	FetchError       string        `json:"fetch_error,omitempty"`
}

// EdgeRow is a discovered link as stored in the database.
type EdgeRow struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id"`
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	AnchorText string  `json:"anchor_text"`
	NoFollow   bool    `json:"is_nofollow"`
	Disallowed bool    `json:"is_disallowed"`
	Priority   float64 `json:"priority"`
}

// PolicyRow is a cached robots.txt policy as stored in the database.
type PolicyRow struct {
	ID           int64         `json:"id"`
	Host         string        `json:"host"`
	Agent        string        `json:"agent"`
	FetchedOK    bool          `json:"fetched_ok"`
	FetchStatus  int           `json:"fetch_status"`
	CrawlDelay   time.Duration `json:"crawl_delay"`
	RulesJSON    string        `json:"rules_json"`    // {"allow":[...],"disallow":[...]}
	SitemapsJSON string        `json:"sitemaps_json"` // JSON array
	FetchedAt    time.Time     `json:"fetched_at"`
}

// Session statuses
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)
