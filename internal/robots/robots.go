// Package robots evaluates robots.txt policies: per-agent allow and
// disallow rules, crawl delays, sitemap declarations and a derived
// crawlability score. A policy that cannot be fetched degrades to a
// permissive default instead of failing the crawl.
package robots

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Robots files larger than this are truncated before parsing.
const maxRobotsSize = 512 * 1024

// Policy holds the robots.txt rules selected for one user-agent on one
// host.
type Policy struct {
	// Origin the policy applies to (scheme://host)
	Host string

	// Agent token the rule group was selected for
	Agent string

	// Whether robots.txt was fetched and parsed
	FetchedOK bool

	// HTTP status of the robots.txt fetch (0 = network error)
	FetchStatus int

	// Selected rule group
	Allow      []string
	Disallow   []string
	CrawlDelay time.Duration

	// Sitemap URLs declared anywhere in the file
	Sitemaps []string

	allowPatterns    []*regexp.Regexp
	disallowPatterns []*regexp.Regexp
}

// agentGroup accumulates rules for one user-agent token during parsing.
type agentGroup struct {
	allow      []string
	disallow   []string
	crawlDelay time.Duration
}

// Permissive returns the default policy used when robots.txt is
// unreachable or unparseable: everything allowed, no crawl delay.
func Permissive(host, agent string) *Policy {
	return &Policy{
		Host:  host,
		Agent: strings.ToLower(agent),
	}
}

// Parse parses robots.txt content and selects the rule group for the
// given user-agent. Directives are case-insensitive; blank lines and
// comments are skipped; malformed crawl-delay values are ignored.
func Parse(content, agent string) *Policy {
	groups := make(map[string]*agentGroup)
	var sitemaps []string

	var currentAgents []string
	lastWasAgent := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), maxRobotsSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and whole-line comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Remove inline comments
		if idx := strings.Index(line, "#"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch directive {
		case "user-agent":
			token := strings.ToLower(value)
			// Consecutive user-agent lines share one group; a
			// user-agent line after rules starts a new group.
			if lastWasAgent {
				currentAgents = append(currentAgents, token)
			} else {
				currentAgents = []string{token}
			}
			if _, exists := groups[token]; !exists {
				groups[token] = &agentGroup{}
			}
			lastWasAgent = true
			continue

		case "disallow":
			for _, token := range currentAgents {
				if g, exists := groups[token]; exists {
					g.disallow = append(g.disallow, value)
				}
			}

		case "allow":
			for _, token := range currentAgents {
				if g, exists := groups[token]; exists {
					g.allow = append(g.allow, value)
				}
			}

		case "crawl-delay":
			if delay, err := strconv.ParseFloat(value, 64); err == nil && delay >= 0 {
				for _, token := range currentAgents {
					if g, exists := groups[token]; exists {
						g.crawlDelay = time.Duration(delay * float64(time.Second))
					}
				}
			}

		case "sitemap":
			if value != "" {
				sitemaps = append(sitemaps, value)
			}
		}
		lastWasAgent = false
	}

	policy := Permissive("", agent)
	policy.Sitemaps = sitemaps

	if g := selectGroup(groups, policy.Agent); g != nil {
		policy.Allow = g.allow
		policy.Disallow = g.disallow
		policy.CrawlDelay = g.crawlDelay
		policy.compile()
	}
	return policy
}

// selectGroup picks the best rule group for an agent token: exact
// match, then substring match, then the wildcard group.
func selectGroup(groups map[string]*agentGroup, agent string) *agentGroup {
	if g, exists := groups[agent]; exists {
		return g
	}
	for token, g := range groups {
		if token == "*" {
			continue
		}
		if strings.Contains(agent, token) || strings.Contains(token, agent) {
			return g
		}
	}
	return groups["*"]
}

func (p *Policy) compile() {
	p.allowPatterns = make([]*regexp.Regexp, len(p.Allow))
	for i, rule := range p.Allow {
		p.allowPatterns[i] = compileRule(rule)
	}
	p.disallowPatterns = make([]*regexp.Regexp, len(p.Disallow))
	for i, rule := range p.Disallow {
		p.disallowPatterns[i] = compileRule(rule)
	}
}

// Allowed reports whether a URL may be fetched under this policy. The
// longest matching rule wins; allow beats disallow at equal length; a
// URL matching no rule is allowed.
func (p *Policy) Allowed(rawURL string) bool {
	path := PathForMatching(rawURL)

	allowMatch := bestMatch(p.Allow, p.allowPatterns, path)
	disallowMatch := bestMatch(p.Disallow, p.disallowPatterns, path)

	if disallowMatch == "" {
		return true
	}
	if allowMatch == "" {
		return false
	}
	return len(allowMatch) >= len(disallowMatch)
}

// CrawlabilityScore rates how open the policy is to crawlers on a 0
// to 100 scale. Disallow rules subtract weight growing with their
// reach, allow rules and sitemap declarations add a little back, and
// long crawl delays cost up to 20 points.
func (p *Policy) CrawlabilityScore() float64 {
	score := 100.0

	for _, rule := range p.Disallow {
		switch {
		case rule == "":
			// Empty disallow allows everything
		case rule == "/":
			score -= 40
		case strings.Contains(rule, "*"):
			score -= 5
		default:
			score -= 2
		}
	}

	allowBonus := float64(len(p.Allow))
	if allowBonus > 10 {
		allowBonus = 10
	}
	score += allowBonus

	if len(p.Sitemaps) > 0 {
		score += 5
	}

	if p.CrawlDelay > 0 {
		penalty := p.CrawlDelay.Seconds() * 2
		if penalty > 20 {
			penalty = 20
		}
		score -= penalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Fetch downloads and parses robots.txt for the host of baseURL. It
// never fails: an unreachable or non-200 robots.txt yields the
// permissive policy, with the fetch outcome recorded on it.
func Fetch(ctx context.Context, client *http.Client, baseURL, agent string) *Policy {
	origin, err := originOf(baseURL)
	if err != nil {
		return Permissive(baseURL, agent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return Permissive(origin, agent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Permissive(origin, agent)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		policy := Permissive(origin, agent)
		policy.FetchStatus = resp.StatusCode
		return policy
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		policy := Permissive(origin, agent)
		policy.FetchStatus = resp.StatusCode
		return policy
	}

	policy := Parse(string(body), agent)
	policy.Host = origin
	policy.FetchedOK = true
	policy.FetchStatus = resp.StatusCode
	return policy
}

// bestMatch finds the longest rule matching the path.
func bestMatch(rules []string, compiled []*regexp.Regexp, path string) string {
	var best string
	for i, rule := range rules {
		if rule == "" {
			continue
		}

		var matched bool
		if i < len(compiled) && compiled[i] != nil {
			matched = compiled[i].MatchString(path)
		} else {
			matched = strings.HasPrefix(path, rule)
		}

		if matched && len(rule) > len(best) {
			best = rule
		}
	}
	return best
}

// compileRule converts a robots.txt rule to an anchored regex. `*`
// matches any run of characters and a trailing `$` anchors the end.
func compileRule(rule string) *regexp.Regexp {
	if rule == "" {
		return nil
	}

	escaped := regexp.QuoteMeta(rule)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	if strings.HasSuffix(escaped, `\$`) {
		escaped = escaped[:len(escaped)-2] + "$"
	}
	escaped = "^" + escaped

	re, err := regexp.Compile(escaped)
	if err != nil {
		return nil
	}
	return re
}

// PathForMatching extracts the path plus query from a URL for rule
// matching.
func PathForMatching(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// originOf reduces a URL to scheme://host.
func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
