package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/priority-crawler/prowl/internal/checkpoint"
	"github.com/priority-crawler/prowl/internal/config"
	"github.com/priority-crawler/prowl/internal/fetcher"
	"github.com/priority-crawler/prowl/internal/frontier"
	"github.com/priority-crawler/prowl/internal/graph"
	"github.com/priority-crawler/prowl/internal/parser"
	"github.com/priority-crawler/prowl/internal/robots"
	"github.com/priority-crawler/prowl/internal/session"
	"github.com/priority-crawler/prowl/internal/urlutil"
)

// Sink receives records as the crawl produces them. Sink errors are
// logged, never fatal to the crawl.
type Sink interface {
	SavePage(record *session.PageRecord) error
	SaveEdges(edges []*session.LinkEdge) error
	SavePolicy(policy *robots.Policy) error
}

// Renderer produces the DOM of a page after JavaScript execution.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// MemoryGuard holds the crawl between fetches while the process is
// under memory pressure.
type MemoryGuard interface {
	WaitNominal(ctx context.Context) error
}

// Stats is a point-in-time view of crawl progress.
type Stats struct {
	Completed  int
	Visited    int
	Failed     int
	Edges      int
	Queued     int
	Duplicates int
	CapDrops   int
	Elapsed    time.Duration
}

// Crawler runs one crawl session: a strictly sequential loop over a
// priority frontier, one fetch in flight at a time.
type Crawler struct {
	cfg        *config.CrawlConfig
	client     *fetcher.Client
	extractor  *parser.Extractor
	frontier   *frontier.Frontier
	session    *session.Session
	throttle   *Throttle
	normalizer *urlutil.Normalizer

	// Per-host robots policies, fetched once and never refreshed
	// during the session. Touched only by the crawl loop.
	policies map[string]*robots.Policy

	seedURL  string
	sink     Sink
	renderer Renderer
	guard    MemoryGuard

	// Page budget consumed by an earlier run when this session was
	// restored from a checkpoint.
	carriedVisited int
	carriedFailed  int
	restored       bool
}

// New builds a crawler for the configuration. Only an invalid seed
// URL, a non-positive page limit, or a bad rule pattern is an error;
// everything else is clamped by validation.
func New(cfg *config.CrawlConfig) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CompilePatterns(); err != nil {
		return nil, err
	}

	normalizer := urlutil.NewNormalizer(cfg.IgnoreQueryParams)
	seed, err := normalizer.Normalize(cfg.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL %q: %w", cfg.SeedURL, err)
	}

	client, err := fetcher.New(cfg)
	if err != nil {
		return nil, err
	}

	var detector parser.LanguageDetector
	if cfg.DetectLanguage {
		detector = parser.WhatlangDetector{}
	}

	return &Crawler{
		cfg:        cfg,
		client:     client,
		extractor:  parser.NewExtractor(detector),
		frontier:   frontier.New(cfg.MaxPages * cfg.FrontierCapFactor),
		session:    session.New(seed),
		throttle:   NewThrottle(cfg),
		normalizer: normalizer,
		policies:   make(map[string]*robots.Policy),
		seedURL:    seed,
	}, nil
}

// SetSink attaches a persistence sink. Call before Crawl.
func (c *Crawler) SetSink(sink Sink) {
	c.sink = sink
}

// SetRenderer attaches a headless renderer, used when the render
// mode asks for it. Call before Crawl.
func (c *Crawler) SetRenderer(r Renderer) {
	c.renderer = r
}

// SetAuthorizer forwards an authorizer to the fetch client.
func (c *Crawler) SetAuthorizer(a fetcher.Authorizer) {
	c.client.SetAuthorizer(a)
}

// SetMemoryGuard attaches a memory guard. Call before Crawl.
func (c *Crawler) SetMemoryGuard(g MemoryGuard) {
	c.guard = g
}

// Session returns the live session aggregate.
func (c *Crawler) Session() *session.Session {
	return c.session
}

// Frontier returns the frontier for inspection.
func (c *Crawler) Frontier() *frontier.Frontier {
	return c.frontier
}

// Policies returns the robots policies fetched during the crawl.
// Call after Crawl returns.
func (c *Crawler) Policies() map[string]*robots.Policy {
	out := make(map[string]*robots.Policy, len(c.policies))
	for host, policy := range c.policies {
		out[host] = policy
	}
	return out
}

// Stats combines session and frontier counters for progress display.
// Safe to call from another goroutine while the crawl runs.
func (c *Crawler) Stats() Stats {
	ss := c.session.Stats()
	fs := c.frontier.Stats()
	return Stats{
		Completed:  ss.Completed(),
		Visited:    ss.PagesVisited,
		Failed:     ss.PagesFailed,
		Edges:      ss.Edges,
		Queued:     fs.Queued,
		Duplicates: fs.Duplicates,
		CapDrops:   fs.CapDrops,
		Elapsed:    ss.Elapsed,
	}
}

// Close releases the fetch transports.
func (c *Crawler) Close() {
	c.client.Close()
}

// completed returns the page slots consumed so far, including any
// budget carried over from a restored checkpoint.
func (c *Crawler) completed() int {
	return c.session.Stats().Completed() + c.carriedVisited + c.carriedFailed
}

// Checkpoint captures the crawl state for later resumption. Safe to
// call while the crawl runs.
func (c *Crawler) Checkpoint() *checkpoint.State {
	ss := c.session.Stats()

	snapshot := c.frontier.Snapshot()
	pending := make([]checkpoint.PendingEntry, 0, len(snapshot))
	for _, e := range snapshot {
		pending = append(pending, checkpoint.PendingEntry{
			URL:          e.URL,
			Depth:        e.Depth,
			Priority:     e.Priority,
			Referer:      e.Referer,
			DiscoveredAt: e.DiscoveredAt,
		})
	}

	cfgJSON, _ := json.Marshal(c.cfg)
	return &checkpoint.State{
		SessionID:    c.session.ID(),
		SeedURL:      c.seedURL,
		Visited:      c.frontier.VisitedURLs(),
		Pending:      pending,
		PagesVisited: ss.PagesVisited + c.carriedVisited,
		PagesFailed:  ss.PagesFailed + c.carriedFailed,
		ConfigJSON:   string(cfgJSON),
	}
}

// Restore loads a checkpoint into a freshly built crawler: the visited
// set, the pending frontier in its saved order, and the page budget
// already consumed. Call before Crawl.
func (c *Crawler) Restore(state *checkpoint.State) error {
	if state.SeedURL != c.seedURL {
		return fmt.Errorf("checkpoint seed %q does not match configured seed %q", state.SeedURL, c.seedURL)
	}

	for _, url := range state.Visited {
		c.frontier.MarkVisited(url)
	}
	for _, p := range state.Pending {
		c.frontier.Push(&frontier.Entry{
			URL:          p.URL,
			Depth:        p.Depth,
			Priority:     p.Priority,
			Referer:      p.Referer,
			DiscoveredAt: p.DiscoveredAt,
		})
	}

	c.carriedVisited = state.PagesVisited
	c.carriedFailed = state.PagesFailed
	c.restored = true

	logrus.Infof("Restored checkpoint from session %s: visited=%d pending=%d consumed=%d",
		state.SessionID, len(state.Visited), len(state.Pending), state.Completed())
	return nil
}

// Crawl runs the frontier loop until the frontier drains, the page
// limit is reached, or the context ends. It then scores the link
// graph and returns the aggregated result. The returned error is
// nil even for a crawl that visited nothing; partial progress is
// always reflected in the result.
func (c *Crawler) Crawl(ctx context.Context) (*session.Result, error) {
	if c.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SessionTimeout)
		defer cancel()
	}

	if !c.restored {
		c.frontier.Push(frontier.NewEntry(c.seedURL, 0, c.cfg.SeedPriority, ""))
	}

	logrus.Infof("Crawl %s started: seed=%s max_pages=%d max_depth=%d",
		c.session.ID(), c.seedURL, c.cfg.MaxPages, c.cfg.MaxDepth)

	for {
		if err := ctx.Err(); err != nil {
			logrus.Warnf("Crawl interrupted: %v", err)
			break
		}
		if c.completed() >= c.cfg.MaxPages {
			logrus.Infof("Page limit reached: %d", c.cfg.MaxPages)
			break
		}
		if c.guard != nil {
			if err := c.guard.WaitNominal(ctx); err != nil {
				logrus.Warnf("Crawl interrupted while paused for memory: %v", err)
				break
			}
		}

		entry := c.frontier.Pop()
		if entry == nil {
			logrus.Info("Frontier exhausted")
			break
		}

		c.step(ctx, entry)
	}

	c.score()

	result := c.session.Finish()
	logrus.Infof("Crawl %s finished: visited=%d failed=%d edges=%d elapsed=%s",
		result.SessionID, result.Stats.PagesVisited, result.Stats.PagesFailed,
		result.Stats.Edges, result.Duration.Round(time.Millisecond))
	return result, nil
}

// step processes one dequeued entry through skip checks, fetch,
// extraction, and frontier expansion.
func (c *Crawler) step(ctx context.Context, entry *frontier.Entry) {
	if c.frontier.HasVisited(entry.URL) {
		logrus.Debugf("Skip %s: already visited", entry.URL)
		return
	}
	if entry.Depth > c.cfg.MaxDepth {
		logrus.Debugf("Skip %s: depth %d exceeds limit", entry.URL, entry.Depth)
		return
	}

	host, err := urlutil.Host(entry.URL)
	if err != nil || host == "" {
		logrus.Debugf("Skip %s: no usable host", entry.URL)
		return
	}

	// Re-check permission against the live policy; discovery-time
	// tagging may have used a stale or missing policy.
	policy := c.policy(ctx, entry.URL, host)
	if c.cfg.RespectRobots && !policy.Allowed(entry.URL) {
		logrus.Debugf("Skip %s: robots disallowed", entry.URL)
		return
	}

	// Marked before the fetch so rediscoveries of this URL are
	// rejected while it is in flight.
	c.frontier.MarkVisited(entry.URL)

	if err := c.throttle.Wait(ctx, host, entry.Priority); err != nil {
		logrus.Debugf("Throttle wait aborted for %s: %v", entry.URL, err)
		return
	}

	result := c.client.Fetch(ctx, entry.URL, entry.Referer)
	record := c.buildRecord(entry, result)

	var links []parser.Link
	var pageScore float64
	if !result.Failed && result.IsHTML() && len(result.Body) > 0 {
		links, pageScore = c.extract(ctx, entry, result, record)
	}

	if result.Failed {
		logrus.Warnf("Fetch failed %s after %d attempts: %v", entry.URL, result.Attempts, result.Error)
	} else {
		logrus.Infof("Fetched %s: status=%d depth=%d priority=%.1f links=%d",
			entry.URL, result.StatusCode, entry.Depth, entry.Priority, len(links))
	}

	c.record(record)

	if len(links) > 0 {
		c.processLinks(entry, record, links, pageScore)
	}
}

// buildRecord turns a fetch result into the page's terminal record.
func (c *Crawler) buildRecord(entry *frontier.Entry, result *fetcher.Result) *session.PageRecord {
	record := &session.PageRecord{
		URL:         entry.URL,
		Depth:       entry.Depth,
		Referer:     entry.Referer,
		StatusCode:  result.StatusCode,
		ContentType: result.ContentType,
		Latency:     result.Latency,
		FetchedAt:   result.FetchedAt,
	}
	if result.Failed {
		record.Failed = true
		if result.Error != nil {
			record.FetchError = result.Error.Error()
		}
	}
	return record
}

// extract renders (when configured), parses the body, and fills the
// content fields of the record. Extraction problems degrade to empty
// fields.
func (c *Crawler) extract(ctx context.Context, entry *frontier.Entry, result *fetcher.Result, record *session.PageRecord) ([]parser.Link, float64) {
	body := result.Body
	if c.renderer != nil && c.cfg.RenderMode == config.RenderChrome {
		rendered, err := c.renderer.Render(ctx, entry.URL)
		if err != nil {
			logrus.Warnf("Render %s: %v, falling back to fetched body", entry.URL, err)
		} else if len(rendered) > 0 {
			body = rendered
		}
	}

	base := result.FinalURL
	if base == "" {
		base = entry.URL
	}

	features, links, err := c.extractor.Extract(body, base)
	if err != nil {
		logrus.Debugf("Extract %s: %v", entry.URL, err)
		return nil, 0
	}
	features.DropText()

	record.Title = features.Title
	record.MetaDescription = features.MetaDescription
	record.CanonicalURL = features.Canonical
	record.HeadingText = features.HeadingText()
	record.WordCount = features.WordCount
	record.DetectedLanguage = features.DetectedLanguage
	if record.DetectedLanguage == "" {
		record.DetectedLanguage = features.DeclaredLanguage
	}
	record.OutlinkCount = len(links)

	// Page-level nofollow applies to every link on the page.
	meta := robots.ParseDirectives(features.MetaRobots)
	header := robots.ParseHeaderDirectives(result.Headers.Values("X-Robots-Tag"), c.cfg.RobotsAgent)
	if !meta.Followable() || !header.Followable() {
		for i := range links {
			links[i].NoFollow = true
		}
	}

	return links, PageScore(features.Title, features.MetaDescription, features.WordCount)
}

// processLinks records the discovered edges and pushes eligible
// targets onto the frontier at the next depth.
func (c *Crawler) processLinks(entry *frontier.Entry, record *session.PageRecord, links []parser.Link, pageScore float64) {
	edges := make([]*session.LinkEdge, 0, len(links))

	for _, link := range links {
		target, err := c.normalizer.Normalize(link.URL)
		if err != nil || !urlutil.IsHTTP(target) {
			continue
		}

		disallowed := c.tagDisallowed(target)
		priority := LinkPriority(c.cfg, target, pageScore, entry.Depth, link.NoFollow, disallowed)

		edges = append(edges, &session.LinkEdge{
			Source:     record.URL,
			Target:     target,
			AnchorText: link.Text,
			NoFollow:   link.NoFollow,
			Disallowed: disallowed,
			Priority:   priority,
		})

		if !urlutil.SameRegistrableDomain(c.seedURL, target) {
			continue
		}
		if entry.Depth+1 > c.cfg.MaxDepth {
			continue
		}
		if !c.cfg.ShouldCrawl(target) || c.excludedExtension(target) {
			continue
		}
		c.frontier.Push(frontier.NewEntry(target, entry.Depth+1, priority, record.URL))
	}

	c.session.RecordEdges(edges)
	if c.sink != nil && len(edges) > 0 {
		if err := c.sink.SaveEdges(edges); err != nil {
			logrus.Warnf("Save edges for %s: %v", record.URL, err)
		}
	}
}

// excludedExtension reports whether the target's path ends in a
// skipped file extension.
func (c *Crawler) excludedExtension(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return ext != "" && c.cfg.IsExtensionExcluded(ext)
}

// tagDisallowed reports whether the target is disallowed by the
// cached policy of its host. Hosts with no cached policy read as
// allowed; the dequeue-time check is authoritative.
func (c *Crawler) tagDisallowed(target string) bool {
	if !c.cfg.RespectRobots {
		return false
	}
	host, err := urlutil.Host(target)
	if err != nil {
		return false
	}
	policy, exists := c.policies[host]
	if !exists {
		return false
	}
	return !policy.Allowed(target)
}

// record stores the page record in the session and forwards it to
// the sink.
func (c *Crawler) record(record *session.PageRecord) {
	if !c.session.RecordPage(record) {
		logrus.Debugf("Duplicate record suppressed for %s", record.URL)
		return
	}
	if c.sink != nil {
		if err := c.sink.SavePage(record); err != nil {
			logrus.Warnf("Save page %s: %v", record.URL, err)
		}
	}
}

// policy returns the robots policy for a host, fetching it on first
// use. Crawl-delay feeds the throttle as a per-host floor.
func (c *Crawler) policy(ctx context.Context, rawURL, host string) *robots.Policy {
	if policy, exists := c.policies[host]; exists {
		return policy
	}

	var policy *robots.Policy
	if c.cfg.RespectRobots {
		policy = robots.Fetch(ctx, c.client.HTTPClient(), rawURL, c.cfg.RobotsAgent)
	} else {
		policy = robots.Permissive(host, c.cfg.RobotsAgent)
	}
	c.policies[host] = policy

	if policy.CrawlDelay > 0 {
		c.throttle.SetHostFloor(host, policy.CrawlDelay)
	}
	if c.sink != nil {
		if err := c.sink.SavePolicy(policy); err != nil {
			logrus.Warnf("Save policy for %s: %v", host, err)
		}
	}

	logrus.Debugf("Robots policy %s: fetched=%v status=%d allow=%d disallow=%d delay=%s",
		host, policy.FetchedOK, policy.FetchStatus, len(policy.Allow), len(policy.Disallow), policy.CrawlDelay)
	return policy
}

// score runs PageRank over the session's edges and attaches the
// importance scores. An empty edge set leaves every score at 0.
func (c *Crawler) score() {
	edges := c.session.Edges()
	if len(edges) == 0 {
		logrus.Info("No edges recorded, skipping importance scoring")
		c.session.AttachScores(map[string]float64{})
		return
	}

	g := graph.New()
	for _, edge := range edges {
		g.AddEdge(edge.Source, edge.Target)
	}

	scores := g.Ranks(c.cfg.Damping, c.cfg.PageRankMaxIter, c.cfg.PageRankEpsilon)
	c.session.AttachScores(scores)
	logrus.Infof("Importance scoring done: %d nodes, %d edges collapsed from %d",
		g.NodeCount(), g.EdgeCount(), len(edges))
}
