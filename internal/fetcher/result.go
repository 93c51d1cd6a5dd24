package fetcher

import (
	"net/http"
	"strings"
	"time"
)

// Result is the outcome of one logical fetch, after internal retries.
// Body is a transient buffer: callers extract what they need and call
// DropBody before retaining the result.
type Result struct {
	// URL as requested
	RequestURL string

	// URL after following redirects
	FinalURL string

	// HTTP status of the final response; 0 when all attempts failed
	StatusCode int
	Status     string

	// Last status seen before giving up (set only when Failed)
	LastStatus int

	// Content-Type without parameters
	ContentType string

	// Response headers of the final response
	Headers http.Header

	// Decoded response body, size-limited
	Body     []byte
	BodySize int64

	// Timing
	Latency   time.Duration
	TTFB      time.Duration
	FetchedAt time.Time

	// Attempts consumed, including the final one
	Attempts int

	// Identity used on the final attempt
	UserAgent string
	ProxyURL  string

	// Redirect hops followed, in order
	RedirectChain []RedirectHop

	// Terminal failure: retries exhausted or a permanent error
	Failed bool
	Error  error
}

// RedirectHop records one redirect in a chain.
type RedirectHop struct {
	URL        string
	StatusCode int
	Location   string
}

// IsSuccess reports a completed 2xx fetch.
func (r *Result) IsSuccess() bool {
	return !r.Failed && r.StatusCode >= 200 && r.StatusCode < 300
}

// IsHTML reports whether the response is an HTML document.
func (r *Result) IsHTML() bool {
	return strings.Contains(r.ContentType, "text/html") ||
		strings.Contains(r.ContentType, "application/xhtml")
}

// IsRedirect reports whether the final response was an unfollowed
// redirect.
func (r *Result) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// DropBody releases the raw content buffer once extraction is done.
func (r *Result) DropBody() {
	r.Body = nil
}
