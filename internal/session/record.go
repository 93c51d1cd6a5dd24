package session

import "time"

// PageRecord is the terminal record of one fetched URL, successful or
// not. At most one exists per normalized URL in a session. All fields
// are fixed at creation except ImportanceScore, which the scoring
// phase sets once after the crawl ends.
type PageRecord struct {
	URL              string        `json:"url"`
	Depth            int           `json:"depth"`
	Referer          string        `json:"referer,omitempty"`
	StatusCode       int           `json:"status_code"`
	ContentType      string        `json:"content_type,omitempty"`
	Latency          time.Duration `json:"latency"`
	FetchedAt        time.Time     `json:"fetched_at"`
	Title            string        `json:"title,omitempty"`
	MetaDescription  string        `json:"meta_description,omitempty"`
	CanonicalURL     string        `json:"canonical_url,omitempty"`
	HeadingText      string        `json:"heading_text,omitempty"`
	WordCount        int           `json:"word_count"`
	DetectedLanguage string        `json:"detected_language,omitempty"`
	OutlinkCount     int           `json:"outlink_count"`
	ImportanceScore  float64       `json:"importance_score"`
	Failed           bool          `json:"failed"`
	FetchError       string        `json:"fetch_error,omitempty"`
}

// LatencySeconds returns the fetch latency as float seconds.
func (p *PageRecord) LatencySeconds() float64 {
	return p.Latency.Seconds()
}

// LinkEdge is one discovered anchor on a page. Duplicate
// (source,target) pairs are kept as separate edges; collapsing
// happens at scoring time.
type LinkEdge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	AnchorText string  `json:"anchor_text,omitempty"`
	NoFollow   bool    `json:"is_nofollow"`
	Disallowed bool    `json:"is_disallowed"`
	Priority   float64 `json:"priority"`
}
