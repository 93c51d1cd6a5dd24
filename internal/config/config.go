// Package config defines crawl configuration options.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// RenderMode defines how pages are rendered.
type RenderMode string

const (
	RenderHTML   RenderMode = "html"   // Plain HTTP fetch (no JavaScript)
	RenderChrome RenderMode = "chrome" // Headless Chromium rendering
)

// WaitCondition defines when a rendered page counts as loaded.
type WaitCondition string

const (
	WaitDOMContentLoaded WaitCondition = "domcontentloaded" // Wait for DOMContentLoaded
	WaitLoad             WaitCondition = "load"             // Wait for load event
	WaitNetworkIdle      WaitCondition = "networkidle"      // Wait for network idle
	WaitSelector         WaitCondition = "selector"         // Wait for specific selector
)

// AuthType defines authentication method.
type AuthType string

const (
	AuthNone   AuthType = "none"   // No authentication
	AuthBasic  AuthType = "basic"  // HTTP Basic Auth
	AuthBearer AuthType = "bearer" // Bearer token
	AuthCookie AuthType = "cookie" // Cookie-based
	AuthForm   AuthType = "form"   // Form login
)

// PriorityRule maps a URL pattern class to a base scheduling weight.
// Rules are evaluated in order; the first match wins.
type PriorityRule struct {
	Name    string  `json:"name" yaml:"name"`
	Pattern string  `json:"pattern" yaml:"pattern"`
	Weight  float64 `json:"weight" yaml:"weight"`

	compiled *regexp.Regexp
}

// Match reports whether the rule applies to the given URL.
func (r *PriorityRule) Match(rawURL string) bool {
	return r.compiled != nil && r.compiled.MatchString(rawURL)
}

// CrawlConfig holds all configuration for a crawl session. The value is
// built once at session start and passed by reference; nothing mutates
// it afterwards.
type CrawlConfig struct {
	// === Basic Settings ===

	// Seed URL to start crawling from
	SeedURL string `json:"seed_url" yaml:"seed_url"`

	// Maximum number of completed (visited or failed) pages
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// Maximum crawl depth from the seed
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Frontier capacity as a multiple of MaxPages
	FrontierCapFactor int `json:"frontier_cap_factor" yaml:"frontier_cap_factor"`

	// Overall session deadline (0 = unlimited)
	SessionTimeout time.Duration `json:"session_timeout" yaml:"session_timeout"`

	// === Politeness & Stealth ===

	// Randomized per-request delay range
	DelayMin time.Duration `json:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `json:"delay_max" yaml:"delay_max"`

	// Scale the delay by entry priority (high priority = shorter wait)
	AdaptiveDelay bool `json:"adaptive_delay" yaml:"adaptive_delay"`

	// Per-host request rate floor (requests per second, 0 = off)
	PerHostRateLimit float64 `json:"per_host_rate_limit" yaml:"per_host_rate_limit"`

	// User-Agent pool, rotated per attempt
	UserAgents []string `json:"user_agents" yaml:"user_agents"`

	// Proxy pool, rotated per attempt (empty = direct)
	ProxyURLs []string `json:"proxy_urls" yaml:"proxy_urls"`

	// === Fetching ===

	// Request timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Maximum fetch attempts for transient failures
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Base delay for exponential backoff between attempts
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// Add random jitter to backoff waits
	RetryJitter bool `json:"retry_jitter" yaml:"retry_jitter"`

	// Maximum number of redirects to follow
	MaxRedirects int `json:"max_redirects" yaml:"max_redirects"`

	// Maximum response body size in bytes
	MaxBodySize int64 `json:"max_body_size" yaml:"max_body_size"`

	// === Priority Assignment ===

	// URL pattern classes with base weights; first match wins
	PriorityRules []PriorityRule `json:"priority_rules" yaml:"priority_rules"`

	// Base weight for URLs matching no rule
	DefaultPriority float64 `json:"default_priority" yaml:"default_priority"`

	// Priority assigned to the seed entry
	SeedPriority float64 `json:"seed_priority" yaml:"seed_priority"`

	// Fraction of the parent page score added to child priority, capped
	ParentScoreFraction float64 `json:"parent_score_fraction" yaml:"parent_score_fraction"`
	ParentScoreCap      float64 `json:"parent_score_cap" yaml:"parent_score_cap"`

	// Priority subtracted per depth level
	DepthPenalty float64 `json:"depth_penalty" yaml:"depth_penalty"`

	// Priority subtracted when an edge is nofollow or robots-disallowed
	NoFollowPenalty float64 `json:"nofollow_penalty" yaml:"nofollow_penalty"`

	// === Scope ===

	// URL patterns to include (regex; empty = all)
	IncludePatterns []string `json:"include_patterns" yaml:"include_patterns"`

	// URL patterns to exclude (regex)
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`

	// File extensions never enqueued
	ExcludeExtensions []string `json:"exclude_extensions" yaml:"exclude_extensions"`

	// === Robots ===

	// Re-check robots permission at dequeue and skip disallowed URLs
	RespectRobots bool `json:"respect_robots" yaml:"respect_robots"`

	// Robots user-agent token used for rule group matching
	RobotsAgent string `json:"robots_agent" yaml:"robots_agent"`

	// === Extraction ===

	// Run best-effort content language detection
	DetectLanguage bool `json:"detect_language" yaml:"detect_language"`

	// === Scoring ===

	// PageRank damping factor
	Damping float64 `json:"damping" yaml:"damping"`

	// PageRank iteration cap
	PageRankMaxIter int `json:"pagerank_max_iter" yaml:"pagerank_max_iter"`

	// PageRank convergence threshold (L1 residual)
	PageRankEpsilon float64 `json:"pagerank_epsilon" yaml:"pagerank_epsilon"`

	// === Rendering ===

	// Render mode: html or chrome
	RenderMode RenderMode `json:"render_mode" yaml:"render_mode"`

	// Render timeout (for Chromium rendering)
	RenderTimeout time.Duration `json:"render_timeout" yaml:"render_timeout"`

	// Wait condition for rendering
	WaitCondition WaitCondition `json:"wait_condition" yaml:"wait_condition"`

	// Selector to wait for (when WaitCondition = selector)
	WaitSelector string `json:"wait_selector" yaml:"wait_selector"`

	// Chromium executable path (empty = discovered)
	ChromiumPath string `json:"chromium_path" yaml:"chromium_path"`

	// === Authentication ===

	// Authentication type
	AuthType AuthType `json:"auth_type" yaml:"auth_type"`

	// Authentication configuration
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Custom headers injected into every request
	CustomHeaders map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`

	// Cookies preset before crawling
	Cookies []*CookieConfig `json:"cookies,omitempty" yaml:"cookies,omitempty"`

	// === URL Normalization ===

	// Query parameters to ignore (utm_*, gclid, etc.)
	IgnoreQueryParams []string `json:"ignore_query_params" yaml:"ignore_query_params"`

	// === Persistence ===

	// SQLite database path (empty = no database sink)
	DatabasePath string `json:"database_path" yaml:"database_path"`

	// Directory for exported reports
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Checkpoint directory (empty = checkpointing off)
	CheckpointDir string `json:"checkpoint_dir" yaml:"checkpoint_dir"`

	// Checkpoint auto-save interval
	CheckpointInterval time.Duration `json:"checkpoint_interval" yaml:"checkpoint_interval"`

	// === Compiled patterns (not serialized) ===
	compiledIncludes []*regexp.Regexp
	compiledExcludes []*regexp.Regexp
}

// AuthConfig holds authentication credentials.
type AuthConfig struct {
	// Basic/Bearer auth
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`

	// Form login
	LoginURL    string            `json:"login_url,omitempty" yaml:"login_url,omitempty"`
	FormFields  map[string]string `json:"form_fields,omitempty" yaml:"form_fields,omitempty"`
	SuccessURL  string            `json:"success_url,omitempty" yaml:"success_url,omitempty"`
	SuccessText string            `json:"success_text,omitempty" yaml:"success_text,omitempty"`
}

// CookieConfig holds cookie information.
type CookieConfig struct {
	Name     string `json:"name" yaml:"name"`
	Value    string `json:"value" yaml:"value"`
	Domain   string `json:"domain" yaml:"domain"`
	Path     string `json:"path" yaml:"path"`
	Secure   bool   `json:"secure" yaml:"secure"`
	HttpOnly bool   `json:"http_only" yaml:"http_only"`
}

// DefaultUserAgents is the built-in identity pool rotated per attempt.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// DefaultPriorityRules returns the built-in URL pattern taxonomy. The
// vocabulary is configuration, not contract; callers crawling other
// site shapes replace it wholesale.
func DefaultPriorityRules() []PriorityRule {
	return []PriorityRule{
		{Name: "product", Pattern: `/(dp|product|products|item)/`, Weight: 80},
		{Name: "search", Pattern: `/search|[?&](q|k|query)=`, Weight: 70},
		{Name: "bestsellers", Pattern: `/(bestsellers|best-sellers|top-rated)`, Weight: 60},
		{Name: "new-releases", Pattern: `/(new-releases|new-arrivals)`, Weight: 50},
		{Name: "deals", Pattern: `/(deals|goldbox|offers|sale)`, Weight: 40},
	}
}

// DefaultConfig returns a CrawlConfig with sensible defaults.
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		// Basic
		MaxPages:          50,
		MaxDepth:          3,
		FrontierCapFactor: 2,
		SessionTimeout:    0, // unlimited

		// Politeness & Stealth
		DelayMin:         500 * time.Millisecond,
		DelayMax:         2 * time.Second,
		AdaptiveDelay:    true,
		PerHostRateLimit: 2,
		UserAgents:       append([]string(nil), DefaultUserAgents...),

		// Fetching
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
		RetryJitter:  true,
		MaxRedirects: 10,
		MaxBodySize:  10 * 1024 * 1024, // 10MB

		// Priority
		PriorityRules:       DefaultPriorityRules(),
		DefaultPriority:     10,
		SeedPriority:        100,
		ParentScoreFraction: 0.2,
		ParentScoreCap:      20,
		DepthPenalty:        10,
		NoFollowPenalty:     30,

		// Scope
		ExcludeExtensions: []string{
			".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
			".zip", ".rar", ".tar", ".gz", ".7z",
			".mp3", ".mp4", ".avi", ".mov", ".wmv", ".flv",
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".ico", ".svg", ".webp",
			".css", ".js", ".woff", ".woff2", ".ttf", ".eot",
		},

		// Robots
		RespectRobots: true,
		RobotsAgent:   "*",

		// Extraction
		DetectLanguage: true,

		// Scoring
		Damping:         0.85,
		PageRankMaxIter: 100,
		PageRankEpsilon: 1e-8,

		// Rendering
		RenderMode:    RenderHTML,
		RenderTimeout: 30 * time.Second,
		WaitCondition: WaitDOMContentLoaded,

		// Authentication
		AuthType: AuthNone,

		// URL Normalization
		IgnoreQueryParams: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"gclid", "fbclid", "msclkid", "ref", "source",
		},

		// Persistence
		CheckpointInterval: 5 * time.Minute,
	}
}

// Validate checks the configuration. An invalid seed URL or
// non-positive MaxPages is fatal; every other field is clamped into
// its valid range.
func (c *CrawlConfig) Validate() error {
	if c.SeedURL == "" {
		return fmt.Errorf("seed URL is required")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive, got %d", c.MaxPages)
	}

	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	if c.FrontierCapFactor < 1 {
		c.FrontierCapFactor = 2
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 100 * time.Millisecond
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin
	}
	if c.Timeout < time.Second {
		c.Timeout = time.Second
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxRedirects < 0 {
		c.MaxRedirects = 0
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = 10 * 1024 * 1024
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = append([]string(nil), DefaultUserAgents...)
	}
	if c.ParentScoreFraction < 0 {
		c.ParentScoreFraction = 0
	}
	if c.Damping <= 0 || c.Damping >= 1 {
		c.Damping = 0.85
	}
	if c.PageRankMaxIter < 1 {
		c.PageRankMaxIter = 100
	}
	if c.PageRankEpsilon <= 0 {
		c.PageRankEpsilon = 1e-8
	}
	if c.RobotsAgent == "" {
		c.RobotsAgent = "*"
	}
	if c.RenderTimeout < time.Second {
		c.RenderTimeout = time.Second
	}
	return nil
}

// CompilePatterns compiles priority rules and include/exclude patterns.
func (c *CrawlConfig) CompilePatterns() error {
	for i := range c.PriorityRules {
		re, err := regexp.Compile(c.PriorityRules[i].Pattern)
		if err != nil {
			return fmt.Errorf("invalid priority rule %q: %w", c.PriorityRules[i].Name, err)
		}
		c.PriorityRules[i].compiled = re
	}

	c.compiledIncludes = make([]*regexp.Regexp, 0, len(c.IncludePatterns))
	for _, pattern := range c.IncludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		c.compiledIncludes = append(c.compiledIncludes, re)
	}

	c.compiledExcludes = make([]*regexp.Regexp, 0, len(c.ExcludePatterns))
	for _, pattern := range c.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		c.compiledExcludes = append(c.compiledExcludes, re)
	}

	return nil
}

// BaseWeight returns the pattern-class base weight for a URL.
func (c *CrawlConfig) BaseWeight(rawURL string) float64 {
	for i := range c.PriorityRules {
		if c.PriorityRules[i].Match(rawURL) {
			return c.PriorityRules[i].Weight
		}
	}
	return c.DefaultPriority
}

// PatternClass returns the name of the first matching priority rule,
// or "generic" when none matches. Used for graph node grouping.
func (c *CrawlConfig) PatternClass(rawURL string) string {
	for i := range c.PriorityRules {
		if c.PriorityRules[i].Match(rawURL) {
			return c.PriorityRules[i].Name
		}
	}
	return "generic"
}

// ShouldCrawl checks a URL against include/exclude patterns.
func (c *CrawlConfig) ShouldCrawl(urlStr string) bool {
	for _, re := range c.compiledExcludes {
		if re.MatchString(urlStr) {
			return false
		}
	}
	if len(c.compiledIncludes) == 0 {
		return true
	}
	for _, re := range c.compiledIncludes {
		if re.MatchString(urlStr) {
			return true
		}
	}
	return false
}

// IsExtensionExcluded checks if a file extension should be excluded.
func (c *CrawlConfig) IsExtensionExcluded(ext string) bool {
	for _, excluded := range c.ExcludeExtensions {
		if ext == excluded {
			return true
		}
	}
	return false
}

// Save writes the configuration to a JSON or YAML file, chosen by
// extension.
func (c *CrawlConfig) Save(filePath string) error {
	var (
		data []byte
		err  error
	)

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads configuration from a JSON or YAML file, merging over
// defaults.
func Load(filePath string) (*CrawlConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := config.CompilePatterns(); err != nil {
		return nil, err
	}
	return config, nil
}

// Clone creates a deep copy of the configuration.
func (c *CrawlConfig) Clone() *CrawlConfig {
	clone := *c

	clone.UserAgents = append([]string(nil), c.UserAgents...)
	clone.ProxyURLs = append([]string(nil), c.ProxyURLs...)
	clone.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	clone.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	clone.ExcludeExtensions = append([]string(nil), c.ExcludeExtensions...)
	clone.IgnoreQueryParams = append([]string(nil), c.IgnoreQueryParams...)
	clone.PriorityRules = append([]PriorityRule(nil), c.PriorityRules...)

	if c.CustomHeaders != nil {
		clone.CustomHeaders = make(map[string]string, len(c.CustomHeaders))
		for k, v := range c.CustomHeaders {
			clone.CustomHeaders[k] = v
		}
	}

	if c.Cookies != nil {
		clone.Cookies = make([]*CookieConfig, len(c.Cookies))
		for i, cookie := range c.Cookies {
			cookieCopy := *cookie
			clone.Cookies[i] = &cookieCopy
		}
	}

	if c.Auth != nil {
		authCopy := *c.Auth
		if c.Auth.FormFields != nil {
			authCopy.FormFields = make(map[string]string, len(c.Auth.FormFields))
			for k, v := range c.Auth.FormFields {
				authCopy.FormFields[k] = v
			}
		}
		clone.Auth = &authCopy
	}

	return &clone
}

// Presets for common crawl scenarios
var (
	// PresetFast favors throughput over politeness.
	PresetFast = &CrawlConfig{
		MaxPages:         200,
		MaxDepth:         5,
		DelayMin:         100 * time.Millisecond,
		DelayMax:         300 * time.Millisecond,
		AdaptiveDelay:    false,
		PerHostRateLimit: 10,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RespectRobots:    false,
		RenderMode:       RenderHTML,
	}

	// PresetPolite keeps request pressure low.
	PresetPolite = &CrawlConfig{
		MaxPages:         50,
		MaxDepth:         3,
		DelayMin:         2 * time.Second,
		DelayMax:         5 * time.Second,
		AdaptiveDelay:    true,
		PerHostRateLimit: 0.5,
		Timeout:          60 * time.Second,
		MaxRetries:       3,
		RespectRobots:    true,
		RenderMode:       RenderHTML,
	}

	// PresetStealth rotates identity aggressively and spaces requests
	// like a human browsing session.
	PresetStealth = &CrawlConfig{
		MaxPages:         100,
		MaxDepth:         4,
		DelayMin:         3 * time.Second,
		DelayMax:         8 * time.Second,
		AdaptiveDelay:    true,
		PerHostRateLimit: 0.3,
		Timeout:          45 * time.Second,
		MaxRetries:       3,
		RetryJitter:      true,
		RespectRobots:    true,
		RenderMode:       RenderHTML,
	}

	// PresetRendering is for JavaScript-heavy sites.
	PresetRendering = &CrawlConfig{
		MaxPages:      50,
		MaxDepth:      3,
		DelayMin:      time.Second,
		DelayMax:      3 * time.Second,
		Timeout:       60 * time.Second,
		RenderMode:    RenderChrome,
		RenderTimeout: 30 * time.Second,
		WaitCondition: WaitNetworkIdle,
		RespectRobots: true,
	}
)
