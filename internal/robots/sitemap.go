package robots

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// Sitemap discovery limits. An index contributes only its first few
// children and classification samples a bounded number of entries.
const (
	maxIndexChildren  = 3
	maxClassifiedURLs = 500
)

// Well-known sitemap locations probed when robots.txt declares none.
var fallbackSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap/sitemap.xml",
	"/sitemapindex.xml",
}

// SitemapURL is one URL entry from a sitemap file.
type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type xmlSitemap struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []SitemapURL `xml:"url"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// SitemapFile records the outcome of fetching one sitemap URL.
type SitemapFile struct {
	URL      string
	Kind     string // "urlset", "index" or "error"
	Status   int
	URLCount int
	Err      string
}

// Inventory aggregates the sitemaps discovered for a host.
type Inventory struct {
	// Fetched sitemap files, in discovery order
	Files []SitemapFile

	// URL entries collected across all urlsets
	URLs []SitemapURL

	// Entry counts per content class (product, category, article, other)
	Classes map[string]int
}

// Report bundles a robots policy with its score and sitemap inventory
// for the reporting layer.
type Report struct {
	Policy       *Policy
	Crawlability float64
	Inventory    *Inventory
}

// BuildReport fetches the robots policy for baseURL and discovers its
// sitemaps in one pass.
func BuildReport(ctx context.Context, client *http.Client, baseURL, agent string) *Report {
	policy := Fetch(ctx, client, baseURL, agent)
	return &Report{
		Policy:       policy,
		Crawlability: policy.CrawlabilityScore(),
		Inventory:    DiscoverSitemaps(ctx, client, baseURL, policy),
	}
}

// DiscoverSitemaps fetches the sitemaps a policy declares, falling
// back to well-known locations when it declares none. Sitemap indexes
// are expanded to their first children only.
func DiscoverSitemaps(ctx context.Context, client *http.Client, baseURL string, policy *Policy) *Inventory {
	inv := &Inventory{Classes: make(map[string]int)}

	origin, err := originOf(baseURL)
	if err != nil {
		return inv
	}

	candidates := append([]string(nil), policy.Sitemaps...)
	if len(candidates) == 0 {
		for _, path := range fallbackSitemapPaths {
			candidates = append(candidates, origin+path)
		}
	}

	declared := len(policy.Sitemaps) > 0
	for _, candidate := range candidates {
		file, urls, children := fetchSitemap(ctx, client, candidate)
		inv.Files = append(inv.Files, file)
		inv.URLs = append(inv.URLs, urls...)

		for _, child := range children {
			childFile, childURLs, _ := fetchSitemap(ctx, client, child)
			inv.Files = append(inv.Files, childFile)
			inv.URLs = append(inv.URLs, childURLs...)
		}

		// Fallback probing stops at the first location that exists.
		if !declared && file.Kind != "error" {
			break
		}
	}

	for i, u := range inv.URLs {
		if i >= maxClassifiedURLs {
			break
		}
		inv.Classes[ClassifyURL(u.Loc)]++
	}
	return inv
}

// fetchSitemap downloads and parses one sitemap URL. For an index it
// returns the first child sitemap URLs instead of entries.
func fetchSitemap(ctx context.Context, client *http.Client, sitemapURL string) (SitemapFile, []SitemapURL, []string) {
	file := SitemapFile{URL: sitemapURL, Kind: "error"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		file.Err = err.Error()
		return file, nil, nil
	}

	resp, err := client.Do(req)
	if err != nil {
		file.Err = err.Error()
		return file, nil, nil
	}
	defer resp.Body.Close()

	file.Status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		file.Err = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return file, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize*4))
	if err != nil {
		file.Err = err.Error()
		return file, nil, nil
	}

	content := string(body)
	switch {
	case strings.Contains(content, "<sitemapindex"):
		var index xmlSitemapIndex
		if err := xml.Unmarshal(body, &index); err != nil {
			file.Err = fmt.Sprintf("xml parse error: %s", err)
			return file, nil, nil
		}
		file.Kind = "index"
		var children []string
		for i, entry := range index.Sitemaps {
			if i >= maxIndexChildren {
				break
			}
			children = append(children, entry.Loc)
		}
		return file, nil, children

	case strings.Contains(content, "<urlset"):
		var sitemap xmlSitemap
		if err := xml.Unmarshal(body, &sitemap); err != nil {
			file.Err = fmt.Sprintf("xml parse error: %s", err)
			return file, nil, nil
		}
		file.Kind = "urlset"
		file.URLCount = len(sitemap.URLs)
		return file, sitemap.URLs, nil
	}

	file.Err = "unrecognized sitemap format"
	return file, nil, nil
}

var (
	productPattern  = regexp.MustCompile(`/(dp|product|products|item|items|p)/`)
	categoryPattern = regexp.MustCompile(`/(category|categories|collection|collections|shop|c)/`)
	articlePattern  = regexp.MustCompile(`/(blog|article|articles|news|post|posts|story)/`)
)

// ClassifyURL assigns a coarse content class to a sitemap URL based on
// its path shape.
func ClassifyURL(loc string) string {
	lower := strings.ToLower(loc)
	switch {
	case productPattern.MatchString(lower):
		return "product"
	case categoryPattern.MatchString(lower):
		return "category"
	case articlePattern.MatchString(lower):
		return "article"
	default:
		return "other"
	}
}
