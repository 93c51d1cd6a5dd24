// Package fetcher performs stealth HTTP fetches with a bounded retry
// state machine. A logical fetch runs up to MaxRetries attempts,
// rotating transport identity and proxy between attempts, and backs
// off exponentially after transient failures. Non-transient responses
// complete immediately, whatever their status.
package fetcher

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/priority-crawler/prowl/internal/config"
)

// Markers whose presence in a response body indicates a bot challenge
// rather than real content. Matched case-insensitively against the
// head of the body.
var challengeMarkers = []string{
	"captcha",
	"robot check",
	"are you a robot",
	"unusual traffic",
	"access denied",
}

// How much of the body the challenge heuristic inspects.
const challengeScanLimit = 16 * 1024

// Authorizer attaches authentication to outgoing requests.
type Authorizer interface {
	Apply(req *http.Request)
}

// Client fetches pages for a single crawl session. Not safe for
// concurrent use; each session owns its own Client.
type Client struct {
	config     *config.CrawlConfig
	clients    []*http.Client
	proxies    []string
	identities *identityPool
	auth       Authorizer
	rng        *rand.Rand
	attempts   int
}

// New builds a Client from the session configuration. One HTTP client
// is prepared per proxy, or a single direct client when the proxy pool
// is empty. A malformed proxy URL is an error.
func New(cfg *config.CrawlConfig) (*Client, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = config.DefaultUserAgents
	}

	c := &Client{
		config:     cfg,
		identities: newIdentityPool(agents, rng),
		rng:        rng,
	}

	if len(cfg.ProxyURLs) == 0 {
		c.clients = []*http.Client{c.newHTTPClient(nil)}
		c.proxies = []string{""}
		return c, nil
	}

	for _, proxy := range cfg.ProxyURLs {
		u, err := url.Parse(proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", proxy)
		}
		c.clients = append(c.clients, c.newHTTPClient(u))
		c.proxies = append(c.proxies, proxy)
	}
	return c, nil
}

func (c *Client) newHTTPClient(proxy *url.URL) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{},
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects are followed manually to record the chain.
			return http.ErrUseLastResponse
		},
	}
}

// Fetch performs one logical fetch of rawURL. Transient conditions
// (429/500/502/503/504, transport errors, bot challenges) are retried
// with exponential backoff up to the configured attempt bound; any
// other response completes the fetch with its status. Exhausting
// retries or hitting a permanent error yields a Result with Failed
// set and status 0.
func (c *Client) Fetch(ctx context.Context, rawURL, referer string) *Result {
	var result *Result

	for attempt := 1; ; attempt++ {
		identity := c.identities.Next()
		client, proxy := c.nextClient()

		result = c.attempt(ctx, rawURL, referer, identity, client)
		result.Attempts = attempt
		result.UserAgent = identity.UserAgent
		result.ProxyURL = proxy

		cause := c.transientCause(result)
		if cause == nil {
			if result.Error != nil {
				result.Failed = true
				result.LastStatus = result.StatusCode
				result.StatusCode = 0
				result.DropBody()
			}
			return result
		}

		if attempt >= c.config.MaxRetries {
			result.Failed = true
			result.LastStatus = result.StatusCode
			result.StatusCode = 0
			result.Error = fmt.Errorf("gave up after %d attempts: %w", attempt, cause)
			result.DropBody()
			return result
		}

		wait := Backoff(c.config.RetryBackoff, attempt)
		if c.config.RetryJitter {
			wait += time.Duration(c.rng.Int63n(int64(wait)/2 + 1))
		}

		select {
		case <-ctx.Done():
			result.Failed = true
			result.LastStatus = result.StatusCode
			result.StatusCode = 0
			result.Error = ctx.Err()
			result.DropBody()
			return result
		case <-time.After(wait):
		}
	}
}

// Backoff returns the wait before retrying after the given 1-based
// attempt number: base × 2^(attempt-1). Pure; jitter is applied by
// the caller.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << uint(attempt-1)
}

// transientCause returns the reason a result should be retried, or
// nil when the fetch is complete (successfully or permanently).
func (c *Client) transientCause(result *Result) error {
	if result.Error != nil {
		if transientError(result.Error) {
			return result.Error
		}
		return nil
	}

	if TransientStatus(result.StatusCode) {
		return fmt.Errorf("transient HTTP %d", result.StatusCode)
	}

	if len(result.Body) > 0 && ChallengeDetected(result.Body) {
		return fmt.Errorf("bot challenge detected on %s", result.FinalURL)
	}
	return nil
}

// TransientStatus reports whether an HTTP status warrants a retry.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ChallengeDetected scans the head of a response body for bot
// challenge markers.
func ChallengeDetected(body []byte) bool {
	head := body
	if len(head) > challengeScanLimit {
		head = head[:challengeScanLimit]
	}
	lower := strings.ToLower(string(head))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (c *Client) nextClient() (*http.Client, string) {
	i := c.attempts % len(c.clients)
	c.attempts++
	return c.clients[i], c.proxies[i]
}

// attempt performs a single fetch attempt, following redirects
// manually to record the chain.
func (c *Client) attempt(ctx context.Context, rawURL, referer string, identity *Identity, client *http.Client) *Result {
	startTime := time.Now()
	result := &Result{
		RequestURL:    rawURL,
		RedirectChain: make([]RedirectHop, 0),
	}

	currentURL := rawURL
	var ttfbRecorded bool

	for i := 0; i <= c.config.MaxRedirects; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			result.Error = fmt.Errorf("failed to create request: %w", err)
			return result
		}

		c.setRequestHeaders(req, identity, referer)

		reqStart := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			result.Error = categorizeError(err)
			result.FinalURL = currentURL
			result.FetchedAt = time.Now()
			result.Latency = time.Since(startTime)
			return result
		}

		if !ttfbRecorded {
			result.TTFB = time.Since(reqStart)
			ttfbRecorded = true
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			resp.Body.Close()

			result.RedirectChain = append(result.RedirectChain, RedirectHop{
				URL:        currentURL,
				StatusCode: resp.StatusCode,
				Location:   location,
			})

			if location != "" {
				redirectURL, err := resolveRedirectURL(currentURL, location)
				if err != nil {
					result.Error = fmt.Errorf("invalid redirect location: %w", err)
					result.FinalURL = currentURL
					result.StatusCode = resp.StatusCode
					result.FetchedAt = time.Now()
					result.Latency = time.Since(startTime)
					return result
				}
				currentURL = redirectURL
				continue
			}

			// Redirect without a Location header terminates here.
			result.FinalURL = currentURL
			result.StatusCode = resp.StatusCode
			result.Status = resp.Status
			result.Headers = resp.Header
			result.FetchedAt = time.Now()
			result.Latency = time.Since(startTime)
			return result
		}

		result.FinalURL = currentURL
		result.StatusCode = resp.StatusCode
		result.Status = resp.Status
		result.Headers = resp.Header
		result.ContentType = extractContentType(resp.Header.Get("Content-Type"))

		body, bodySize, err := c.readBody(resp)
		resp.Body.Close()
		if err != nil {
			result.Error = fmt.Errorf("failed to read body: %w", err)
		} else {
			result.Body = body
			result.BodySize = bodySize
		}

		result.FetchedAt = time.Now()
		result.Latency = time.Since(startTime)
		return result
	}

	result.Error = fmt.Errorf("max redirects (%d) exceeded", c.config.MaxRedirects)
	result.FinalURL = currentURL
	result.FetchedAt = time.Now()
	result.Latency = time.Since(startTime)
	return result
}

// setRequestHeaders applies the attempt identity, referer and
// configured extras to a request.
func (c *Client) setRequestHeaders(req *http.Request, identity *Identity, referer string) {
	for name, value := range identity.Headers {
		req.Header.Set(name, value)
	}
	req.Header.Set("User-Agent", identity.UserAgent)

	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	for name, value := range c.config.CustomHeaders {
		req.Header.Set(name, value)
	}

	for _, cookie := range identity.Cookies {
		req.AddCookie(cookie)
	}
	for _, cookie := range c.config.Cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	if c.auth != nil {
		c.auth.Apply(req)
	}
}

// SetAuthorizer installs per-request authentication.
func (c *Client) SetAuthorizer(a Authorizer) {
	c.auth = a
}

// readBody reads the response body with gzip decoding and the
// configured size limit.
func (c *Client) readBody(resp *http.Response) ([]byte, int64, error) {
	var reader io.Reader = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("gzip decode error: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	body, err := io.ReadAll(io.LimitReader(reader, c.config.MaxBodySize))
	if err != nil {
		return nil, 0, err
	}
	return body, int64(len(body)), nil
}

// Close releases idle connections across the client pool.
func (c *Client) Close() {
	for _, client := range c.clients {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
}

// HTTPClient exposes the first pooled client for policy and sitemap
// fetches that share the session's transport settings.
func (c *Client) HTTPClient() *http.Client {
	return c.clients[0]
}

// categorizeError wraps network errors with a recognizable prefix.
func categorizeError(err error) error {
	if err == nil {
		return nil
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}

	if _, ok := err.(*net.DNSError); ok {
		return fmt.Errorf("DNS error: %w", err)
	}

	if opErr, ok := err.(*net.OpError); ok && opErr.Op == "dial" {
		return fmt.Errorf("connection failed: %w", err)
	}

	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "certificate") {
		return fmt.Errorf("TLS error: %w", err)
	}

	return err
}

// transientError reports whether a transport error is worth retrying.
func transientError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"connection failed",
		"no such host",
		"eof",
		"broken pipe",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func resolveRedirectURL(baseURL, location string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}

func extractContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
