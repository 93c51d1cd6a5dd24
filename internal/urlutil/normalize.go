// Package urlutil provides URL canonicalization and domain helpers.
// The crawler keys its visited set and frontier membership on the
// normalized absolute form produced here.
package urlutil

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Normalizer produces the canonical absolute form of a URL. Two URLs
// that normalize to the same string are the same page for the crawl.
type Normalizer struct {
	// Query parameters stripped before comparison (utm_*, gclid, etc.)
	StripParams map[string]struct{}

	// Drop the #fragment part
	StripFragment bool

	// Lowercase scheme and host
	LowercaseHost bool

	// Remove :80 / :443 when redundant for the scheme
	StripDefaultPort bool

	// Collapse a trailing slash on non-root paths
	StripTrailingSlash bool

	// Sort query parameters for a stable key
	SortQuery bool
}

// NewNormalizer returns a normalizer with the default rule set.
func NewNormalizer(stripParams []string) *Normalizer {
	params := make(map[string]struct{}, len(stripParams))
	for _, p := range stripParams {
		params[strings.ToLower(p)] = struct{}{}
	}

	return &Normalizer{
		StripParams:        params,
		StripFragment:      true,
		LowercaseHost:      true,
		StripDefaultPort:   true,
		StripTrailingSlash: true,
		SortQuery:          true,
	}
}

// Normalize canonicalizes an absolute URL. Relative references must be
// resolved with Resolve first.
func (n *Normalizer) Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("not an absolute URL: %q", rawURL)
	}

	if n.LowercaseHost {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
	}

	if n.StripDefaultPort {
		switch {
		case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
			u.Host = strings.TrimSuffix(u.Host, ":80")
		case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
			u.Host = strings.TrimSuffix(u.Host, ":443")
		}
	}

	if n.StripFragment {
		u.Fragment = ""
	}

	path := cleanPath(u.Path)
	if n.StripTrailingSlash && len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	u.Path = path

	if u.RawQuery != "" {
		u.RawQuery = n.rebuildQuery(u.Query())
	}

	return u.String(), nil
}

// rebuildQuery drops ignored parameters and optionally sorts the rest.
func (n *Normalizer) rebuildQuery(query url.Values) string {
	kept := url.Values{}
	for key, values := range query {
		if _, skip := n.StripParams[strings.ToLower(key)]; skip {
			continue
		}
		for _, v := range values {
			kept.Add(key, v)
		}
	}

	if len(kept) == 0 {
		return ""
	}
	if !n.SortQuery {
		return kept.Encode()
	}

	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := kept[k]
		sort.Strings(values)
		for _, v := range values {
			if v == "" {
				parts = append(parts, url.QueryEscape(k))
				continue
			}
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// cleanPath collapses repeated slashes and resolves . and .. segments.
// An empty path becomes "/".
func cleanPath(path string) string {
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	resolved := make([]string, 0, len(segments))
	for i, seg := range segments {
		switch seg {
		case ".":
			// skip
		case "..":
			if len(resolved) > 1 {
				resolved = resolved[:len(resolved)-1]
			}
		case "":
			// Keep the leading empty segment (absolute path) and a
			// trailing one (trailing slash); drop interior doubles.
			if i == 0 || i == len(segments)-1 {
				resolved = append(resolved, seg)
			}
		default:
			resolved = append(resolved, seg)
		}
	}

	cleaned := strings.Join(resolved, "/")
	if cleaned == "" || cleaned[0] != '/' {
		cleaned = "/" + strings.TrimPrefix(cleaned, "/")
	}
	return cleaned
}

// Resolve resolves a possibly relative reference against a base URL.
func Resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// Host extracts the lowercased host (with port, if any) from a URL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Host), nil
}

// RegistrableDomain reduces a host to its last two labels. Good enough
// for same-site checks without a public-suffix table; "shop.example.com"
// and "www.example.com" both map to "example.com".
func RegistrableDomain(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		if !strings.Contains(host, "]") || idx > strings.LastIndex(host, "]") {
			host = host[:idx]
		}
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}

// SameRegistrableDomain reports whether two URLs share a registrable
// domain. Used for the internal-link decision.
func SameRegistrableDomain(url1, url2 string) bool {
	host1, err1 := Host(url1)
	host2, err2 := Host(url2)
	if err1 != nil || err2 != nil {
		return false
	}
	return RegistrableDomain(host1) == RegistrableDomain(host2)
}

// IsHTTP reports whether the URL uses the http or https scheme.
func IsHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// ValidateSeed checks that a seed URL is an absolute http(s) URL with a
// host. This is the only URL error treated as fatal at session start.
func ValidateSeed(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("invalid seed URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("seed URL %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("seed URL %q: missing host", rawURL)
	}
	return nil
}
